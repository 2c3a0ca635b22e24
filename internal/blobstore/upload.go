package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
)

// Upload sends data as directed by auth: a multipart form for POST policies,
// a raw body for PUT. A nil client uses a 60 second timeout.
func Upload(ctx context.Context, client *http.Client, auth *Authorization, filename string, data []byte) error {
	if auth == nil {
		return ingesterr.Validation("blob.upload", "missing authorization")
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	var (
		body        io.Reader
		contentType string
	)
	switch auth.Method {
	case "POST":
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for k, v := range auth.Fields {
			if err := mw.WriteField(k, v); err != nil {
				return fmt.Errorf("failed to write form field %s: %w", k, err)
			}
		}
		// the file part must come last for S3 POST policies
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("failed to write form file: %w", err)
		}
		if err := mw.Close(); err != nil {
			return fmt.Errorf("failed to close form: %w", err)
		}
		body = &buf
		contentType = mw.FormDataContentType()
	case "PUT", "":
		body = bytes.NewReader(data)
		contentType = auth.Fields["Content-Type"]
	default:
		return ingesterr.Validation("blob.upload", "unsupported upload method %s", auth.Method)
	}

	method := auth.Method
	if method == "" {
		method = "PUT"
	}
	req, err := http.NewRequestWithContext(ctx, method, auth.URL, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ingesterr.Upstream("blob.upload", fmt.Errorf("failed to upload: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ingesterr.Upstream("blob.upload", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
	return nil
}
