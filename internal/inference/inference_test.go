package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/analysis"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"gemini", "openai", "ollama"} {
		p, err := NewProvider(name)
		require.NoError(t, err, name)
		assert.NotNil(t, p, name)
	}

	_, err := NewProvider("watson")
	assert.Error(t, err)
}

func TestInferBuildsRequest(t *testing.T) {
	var got providers.Request
	p := providers.ProviderFunc(func(ctx context.Context, req providers.Request) (*providers.Response, error) {
		got = req
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return &providers.Response{ID: "resp-1", Text: "{}"}, nil
	})

	c := NewClient(p, analysis.DefaultSpec(), "test-model", 0.2, time.Minute)
	resp, err := c.Infer(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "resp-1", resp.ID)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 0.2, got.Temperature)
	assert.Equal(t, "image/png", got.ContentType)
	assert.NotEmpty(t, got.Instructions)
	assert.NotNil(t, got.Schema)
}

func TestInferPropagatesError(t *testing.T) {
	boom := errors.New("connection reset")
	p := providers.ProviderFunc(func(ctx context.Context, req providers.Request) (*providers.Response, error) {
		return nil, boom
	})

	c := NewClient(p, nil, "m", 0, 0)
	_, err := c.Infer(context.Background(), nil, "")
	assert.ErrorIs(t, err, boom)
}
