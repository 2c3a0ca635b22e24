package cmd

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/shelfscan/internal/blobstore"
	"github.com/lehigh-university-libraries/shelfscan/internal/inference"
	"github.com/lehigh-university-libraries/shelfscan/internal/ledger"
	"github.com/lehigh-university-libraries/shelfscan/internal/merge"
	"github.com/lehigh-university-libraries/shelfscan/internal/pipeline"
	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

// components is everything the server and the in-process analyze command
// need.
type components struct {
	ledger    *ledger.Ledger
	store     storage.Store
	blobs     blobstore.Store
	presigner blobstore.Presigner
	pipeline  *pipeline.Pipeline
}

func (a *app) build(ctx context.Context) (*components, error) {
	cfg := a.cfg

	blobs, presigner, err := blobstore.New(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure blob store: %w", err)
	}
	if m, ok := blobs.(*blobstore.Minio); ok {
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}

	infer, err := inference.New(cfg.Inference)
	if err != nil {
		return nil, fmt.Errorf("failed to configure inference: %w", err)
	}

	store, err := storage.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	led := ledger.New(ledger.WithTTL(cfg.Ledger.TTL), ledger.WithCeiling(cfg.Ledger.Ceiling))

	p := pipeline.New(blobs, infer, store, merge.NewEngine(merge.SideTable(cfg.Cameras)),
		pipeline.WithLedger(led),
		pipeline.WithSerialization(cfg.Pipeline.SerializePerIdentifier),
		pipeline.WithDefaultContentType(cfg.Pipeline.DefaultContentType),
	)

	return &components{
		ledger:    led,
		store:     store,
		blobs:     blobs,
		presigner: presigner,
		pipeline:  p,
	}, nil
}
