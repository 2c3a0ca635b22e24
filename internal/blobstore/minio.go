package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/config"
	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio is an S3-compatible backend.
type Minio struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewMinio(cfg config.MinioConfig, expiry time.Duration) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Minio{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (m *Minio) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.classify(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.classify(key, err)
	}
	if len(data) == 0 {
		return nil, ingesterr.NotFound("blob.fetch", key)
	}
	return data, nil
}

func (m *Minio) classify(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ingesterr.NotFound("blob.fetch", key)
	}
	return ingesterr.Upstream("blob.fetch", fmt.Errorf("failed to get object %s: %w", key, err))
}

// Presign returns a POST policy the client can submit as a multipart form.
func (m *Minio) Presign(ctx context.Context, req PresignRequest) (*Authorization, error) {
	if err := validatePresign(req); err != nil {
		return nil, ingesterr.Validation("blob.presign", "%v", err)
	}

	key := ObjectKey(req.Identifier, req.Camera, req.Filename)
	expiry := time.Now().UTC().Add(m.expiry)

	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(m.bucket); err != nil {
		return nil, fmt.Errorf("failed to set policy bucket: %w", err)
	}
	if err := policy.SetKey(key); err != nil {
		return nil, fmt.Errorf("failed to set policy key: %w", err)
	}
	if err := policy.SetExpires(expiry); err != nil {
		return nil, fmt.Errorf("failed to set policy expiry: %w", err)
	}
	if req.ContentType != "" {
		if err := policy.SetContentType(req.ContentType); err != nil {
			return nil, fmt.Errorf("failed to set policy content type: %w", err)
		}
	}

	u, fields, err := m.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return nil, ingesterr.Upstream("blob.presign", fmt.Errorf("failed to generate presigned policy: %w", err))
	}

	return &Authorization{
		URL:      u.String(),
		Method:   "POST",
		Fields:   fields,
		FinalKey: key,
		Expiry:   expiry,
	}, nil
}
