// Package inference binds a vision provider to the analysis instructions and
// schema, so callers only hand over image bytes.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/analysis"
	"github.com/lehigh-university-libraries/shelfscan/internal/config"
	"github.com/lehigh-university-libraries/shelfscan/internal/gemini"
	"github.com/lehigh-university-libraries/shelfscan/internal/ollama"
	"github.com/lehigh-university-libraries/shelfscan/internal/openai"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

// Client submits captures to one provider.
type Client struct {
	provider    providers.Provider
	spec        *analysis.Spec
	model       string
	temperature float64
	timeout     time.Duration
}

// NewProvider returns the provider named by name.
func NewProvider(name string) (providers.Provider, error) {
	switch name {
	case "gemini":
		return gemini.New(), nil
	case "openai":
		return openai.New(), nil
	case "ollama":
		return ollama.New(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// New builds a client from configuration, loading instruction and schema
// overrides when configured.
func New(cfg config.InferenceConfig) (*Client, error) {
	provider, err := NewProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	spec, err := analysis.LoadSpec(cfg.InstructionsFile, cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	slog.Info("Inference configured", "provider", cfg.Provider, "model", cfg.Model, "instructions_version", spec.Version)
	return NewClient(provider, spec, cfg.Model, cfg.Temperature, cfg.Timeout), nil
}

// NewClient wires an explicit provider; a zero timeout means none.
func NewClient(p providers.Provider, spec *analysis.Spec, model string, temperature float64, timeout time.Duration) *Client {
	if spec == nil {
		spec = analysis.DefaultSpec()
	}
	return &Client{provider: p, spec: spec, model: model, temperature: temperature, timeout: timeout}
}

// Infer sends one image with the configured instructions and schema.
func (c *Client) Infer(ctx context.Context, image []byte, contentType string) (*providers.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.provider.Analyze(ctx, providers.Request{
		Model:        c.model,
		Temperature:  c.temperature,
		Instructions: c.spec.Instructions,
		Schema:       c.spec.Schema,
		Image:        image,
		ContentType:  contentType,
	})
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = c.model
	}
	return resp, nil
}
