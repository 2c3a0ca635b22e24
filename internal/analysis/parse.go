package analysis

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// Source says where parsed observations came from.
type Source string

const (
	SourceStructured Source = "structured"
	SourceText       Source = "text"
	SourceNone       Source = "none"
)

// Parsed is the outcome of interpreting one inference response.
type Parsed struct {
	Observations models.Observations
	// Payload is the decoded JSON object as returned by the model, kept for
	// the raw passthrough bag. Empty when nothing could be parsed.
	Payload map[string]any
	Source  Source
}

var errNoJSON = errors.New("no JSON object found")

// Parse tries the structured payload first, then any JSON embedded in text.
// It never fails: when neither yields an object the result carries an empty
// observation set and SourceNone.
func Parse(structured json.RawMessage, text string) Parsed {
	if len(structured) > 0 {
		if p, err := decode(structured); err == nil {
			p.Source = SourceStructured
			return p
		} else {
			slog.Warn("Failed to parse structured inference output, falling back to text", "error", err)
		}
	}

	if raw, err := extractJSON(text); err == nil {
		if p, err := decode(raw); err == nil {
			p.Source = SourceText
			return p
		} else {
			slog.Warn("Failed to parse JSON from inference text", "error", err)
		}
	} else if strings.TrimSpace(text) != "" {
		slog.Warn("Inference text contains no JSON object, continuing with empty observations", "length", len(text))
	}

	return Parsed{Payload: map[string]any{}, Source: SourceNone}
}

// extractJSON strips markdown fences and returns the outermost JSON object.
func extractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	return []byte(text[start : end+1]), nil
}

// decode reads each known field independently so one malformed field does
// not discard the rest of the observations.
func decode(raw []byte) (Parsed, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Parsed{}, err
	}
	if payload == nil {
		return Parsed{}, errNoJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Parsed{}, err
	}

	var obs models.Observations
	obs.DetectedText = decodeFragments(fields["detected_text"])
	decodeField(fields, "summary", &obs.Summary)
	decodeField(fields, "objects", &obs.Objects)
	decodeField(fields, "vehicles", &obs.Vehicles)
	decodeField(fields, "colors", &obs.Colors)
	decodeField(fields, "environment", &obs.Environment)
	decodeField(fields, "warnings", &obs.Warnings)

	return Parsed{Observations: obs, Payload: payload}, nil
}

func decodeField(fields map[string]json.RawMessage, key string, dst any) {
	raw, ok := fields[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Debug("Ignoring malformed observation field", "field", key, "error", err)
	}
}

// decodeFragments accepts either fragment objects or bare strings. Items that
// are neither, or carry blank text, are dropped.
func decodeFragments(raw json.RawMessage) []models.TextFragment {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var fragments []models.TextFragment
	for _, item := range items {
		var f models.TextFragment
		if err := json.Unmarshal(item, &f); err != nil {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				continue
			}
			f = models.TextFragment{Text: s}
		}
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		fragments = append(fragments, f)
	}
	return fragments
}
