package providers

import (
	"context"
	"encoding/json"
)

// Request is one image analysis call to a vision model
type Request struct {
	Model        string
	Temperature  float64
	Instructions string
	// Schema is a JSON Schema object describing the required output
	Schema      map[string]any
	Image       []byte
	ContentType string
}

// Response is what a provider returned. Parsed is set when the provider
// hands back structured output directly; Text always carries the raw reply.
type Response struct {
	ID     string
	Model  string
	Parsed json.RawMessage
	Text   string
}

// Provider defines the interface for a vision model provider
type Provider interface {
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (*Response, error)

func (f ProviderFunc) Analyze(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// StructuredJSON returns text as a raw JSON payload when it is a valid JSON
// object, so providers that return JSON text can report it as structured.
func StructuredJSON(text string) json.RawMessage {
	raw := json.RawMessage(text)
	if !json.Valid(raw) {
		return nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	return raw
}
