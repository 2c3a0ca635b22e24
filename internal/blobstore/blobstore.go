// Package blobstore fetches uploaded captures and issues upload
// authorizations for them.
package blobstore

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/shelfscan/internal/config"
)

// Store retrieves raw capture bytes. A missing or empty object is reported
// as an ingesterr not_found error, anything else as upstream.
type Store interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Presigner issues time-limited upload authorizations.
type Presigner interface {
	Presign(ctx context.Context, req PresignRequest) (*Authorization, error)
}

type PresignRequest struct {
	Identifier  string `json:"identifier"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Camera      int    `json:"cameraIndex"`
}

// Authorization tells the client where and how to upload. FinalKey is the
// blob key to send back with ingest_complete.
type Authorization struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Fields   map[string]string `json:"fields"`
	FinalKey string            `json:"finalKey"`
	Expiry   time.Time         `json:"expiry"`
}

// New builds the configured backend. The returned Presigner is nil for
// backends that cannot accept uploads.
func New(cfg config.Config) (Store, Presigner, error) {
	switch cfg.Blob.Backend {
	case "minio":
		m, err := NewMinio(cfg.Blob.Minio, cfg.Blob.PresignExpiry)
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	case "local":
		l, err := NewLocal(cfg.Blob.LocalDir, cfg.Server.PublicURL, cfg.Blob.PresignExpiry)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	case "http":
		return NewHTTP(cfg.Blob.HTTPBaseURL), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported blob backend: %s", cfg.Blob.Backend)
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey returns a fresh key for a capture:
// items/<identifier>/camera-<n>/<uuid><ext>.
func ObjectKey(identifier string, camera int, filename string) string {
	id := unsafeKeyChars.ReplaceAllString(strings.TrimSpace(identifier), "_")
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 6 || unsafeKeyChars.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("items/%s/camera-%d/%s%s", id, camera, uuid.NewString(), ext)
}

func validatePresign(req PresignRequest) error {
	if strings.TrimSpace(req.Identifier) == "" {
		return fmt.Errorf("identifier is required")
	}
	if req.Camera < 1 {
		return fmt.Errorf("cameraIndex must be 1 or greater")
	}
	return nil
}
