package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"gpt-4o-2024","choices":[{"message":{"content":"{\"summary\":\"red car\"}"}}]}`))
	}))
	defer srv.Close()

	o := &OpenAI{apiKey: "test-key", baseURL: srv.URL, client: srv.Client()}
	resp, err := o.Analyze(context.Background(), providers.Request{
		Model:        "gpt-4o",
		Instructions: "describe",
		Schema:       map[string]any{"type": "object"},
		Image:        []byte{0xff, 0xd8},
		ContentType:  "image/png",
	})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "gpt-4o-2024", resp.Model)
	assert.JSONEq(t, `{"summary":"red car"}`, string(resp.Parsed))

	format := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])

	content := got["messages"].([]any)[0].(map[string]any)["content"].([]any)
	image := content[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(image, "data:image/png;base64,"))
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "boom", "non-200"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"refusal", http.StatusOK, `{"choices":[{"message":{"content":"","refusal":"no"}}]}`, "refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			o := &OpenAI{apiKey: "k", baseURL: srv.URL, client: srv.Client()}
			_, err := o.Analyze(context.Background(), providers.Request{Model: "gpt-4o"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAnalyzeRequiresAPIKey(t *testing.T) {
	o := &OpenAI{baseURL: defaultBaseURL, client: http.DefaultClient}
	_, err := o.Analyze(context.Background(), providers.Request{})
	require.Error(t, err)
}
