package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

// Ollama is a provider for Ollama
type Ollama struct {
	baseURL string
	client  *http.Client
}

// New returns a new Ollama provider
func New() *Ollama {
	ollamaURL := os.Getenv("OLLAMA_URL")
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	return &Ollama{baseURL: strings.TrimRight(ollamaURL, "/"), client: &http.Client{}}
}

// Analyze runs a non-streaming generate call with the image attached and
// the schema passed as the output format.
func (o *Ollama) Analyze(ctx context.Context, req providers.Request) (*providers.Response, error) {
	body := map[string]any{
		"model":  req.Model,
		"prompt": req.Instructions,
		"images": []string{base64.StdEncoding.EncodeToString(req.Image)},
		"stream": false,
		"options": map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.Schema != nil {
		body["format"] = req.Schema
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Model    string `json:"model"`
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	model := response.Model
	if model == "" {
		model = req.Model
	}
	return &providers.Response{
		ID:     uuid.NewString(),
		Model:  model,
		Parsed: providers.StructuredJSON(response.Response),
		Text:   response.Response,
	}, nil
}
