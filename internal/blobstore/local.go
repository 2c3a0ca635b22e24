package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
)

// MaxUploadSize caps a single capture accepted by the local backend.
const MaxUploadSize = 10 * 1024 * 1024

// Local keeps captures under a directory and accepts uploads through the
// server's own /api/uploads endpoint.
type Local struct {
	dir       string
	publicURL string
	expiry    time.Duration
}

func NewLocal(dir, publicURL string, expiry time.Duration) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &Local{dir: dir, publicURL: strings.TrimRight(publicURL, "/"), expiry: expiry}, nil
}

// path resolves key inside the upload directory, rejecting escapes.
func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.dir, clean), nil
}

func (l *Local) Fetch(ctx context.Context, key string) ([]byte, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, ingesterr.NotFound("blob.fetch", key)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil, ingesterr.NotFound("blob.fetch", key)
	}
	if err != nil {
		return nil, ingesterr.Upstream("blob.fetch", err)
	}
	return data, nil
}

// Put stores an uploaded capture. Bodies over MaxUploadSize are rejected.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	p, err := l.path(key)
	if err != nil {
		return 0, ingesterr.Validation("blob.put", "%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, fmt.Errorf("failed to create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, MaxUploadSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write upload: %w", err)
	}
	if n > MaxUploadSize {
		return 0, ingesterr.Validation("blob.put", "file too large (max %d bytes)", MaxUploadSize)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return 0, fmt.Errorf("failed to store upload: %w", err)
	}
	return n, nil
}

func (l *Local) Presign(ctx context.Context, req PresignRequest) (*Authorization, error) {
	if err := validatePresign(req); err != nil {
		return nil, ingesterr.Validation("blob.presign", "%v", err)
	}
	key := ObjectKey(req.Identifier, req.Camera, req.Filename)
	fields := map[string]string{}
	if req.ContentType != "" {
		fields["Content-Type"] = req.ContentType
	}
	return &Authorization{
		URL:      l.publicURL + "/api/uploads?key=" + url.QueryEscape(key),
		Method:   "PUT",
		Fields:   fields,
		FinalKey: key,
		Expiry:   time.Now().UTC().Add(l.expiry),
	}, nil
}
