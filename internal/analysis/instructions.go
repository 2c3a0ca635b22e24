// Package analysis holds the instruction and output schema sent to the vision
// model, and turns whatever the model returns into observations.
package analysis

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

// Version identifies the embedded instruction/schema pair. Bump it whenever
// either changes so stored raw responses can be traced back.
const Version = "2026-10-01"

//go:embed schema.json
var defaultSchema []byte

const defaultInstructions = `You are an expert inventory clerk cataloguing collectible die-cast vehicles and their retail packaging for a warehouse system. You have handled tens of thousands of blister cards, boxes and loose models and you read small print precisely.

Your task is to examine the photograph provided and report everything that is visible, without guessing.

INSTRUCTIONS:
1. Transcribe ALL printed text you can read, one fragment per entry, exactly as printed:
   - Brand and series names (e.g. "HOT WHEELS", "J-IMPORTS")
   - Collector and assortment numbers (e.g. "112/250", "3/5")
   - Barcodes: transcribe the digits printed under the bars
   - Model, batch and date codes
   - Legal text: country of manufacture, age grading, choking hazard warnings, standards (ASTM F963, EN71, CE)
   - Websites
   Categorise each fragment and give your confidence between 0 and 1.

2. Describe the vehicle if one is present: make, model, year, body style, scale (if printed) and a short descriptor.

3. Report the colors of the vehicle: exactly one "primary" body color, at most one "accent" color, and any "secondary" colors. Mention the paint finish (metallic, matte, spectraflame, chrome) when visible.

4. List the main objects in frame with a label and confidence.

5. Note the environment: lighting, background, glare, anything obscuring the item.

6. List any safety warnings printed on the packaging.

If something is not visible, leave the field empty or the list empty. Never invent barcodes or numbers.

OUTPUT FORMAT:
Respond with ONLY a JSON object matching the provided schema.`

// Spec is the versionable instruction and schema pair sent with every
// inference request.
type Spec struct {
	Version      string
	Instructions string
	Schema       map[string]any
}

// DefaultSpec returns the embedded instructions and schema.
func DefaultSpec() *Spec {
	var schema map[string]any
	if err := json.Unmarshal(defaultSchema, &schema); err != nil {
		panic(fmt.Sprintf("analysis: embedded schema is invalid: %v", err))
	}
	return &Spec{
		Version:      Version,
		Instructions: defaultInstructions,
		Schema:       schema,
	}
}

// LoadSpec starts from the embedded spec and replaces the instructions and
// schema with file contents when paths are given.
func LoadSpec(instructionsFile, schemaFile string) (*Spec, error) {
	spec := DefaultSpec()

	if instructionsFile != "" {
		data, err := os.ReadFile(instructionsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read instructions: %w", err)
		}
		spec.Instructions = string(data)
		spec.Version = Version + "+" + instructionsFile
	}

	if schemaFile != "" {
		data, err := os.ReadFile(schemaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		var schema map[string]any
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", schemaFile, err)
		}
		spec.Schema = schema
		spec.Version = spec.Version + "+" + schemaFile
	}

	return spec, nil
}
