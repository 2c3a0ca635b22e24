package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
)

// HTTP reads captures from a read-only image host at baseURL + key.
type HTTP struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (h *HTTP) Fetch(ctx context.Context, key string) ([]byte, error) {
	escaped := make([]string, 0)
	for _, part := range strings.Split(strings.TrimLeft(key, "/"), "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	u := h.BaseURL + "/" + strings.Join(escaped, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, ingesterr.Upstream("blob.fetch", fmt.Errorf("failed to create request: %w", err))
	}
	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, ingesterr.Upstream("blob.fetch", fmt.Errorf("failed to fetch image: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ingesterr.NotFound("blob.fetch", key)
	case resp.StatusCode != http.StatusOK:
		return nil, ingesterr.Upstream("blob.fetch", fmt.Errorf("image URL returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ingesterr.Upstream("blob.fetch", fmt.Errorf("failed to read image data: %w", err))
	}
	if len(data) == 0 {
		return nil, ingesterr.NotFound("blob.fetch", key)
	}
	return data, nil
}
