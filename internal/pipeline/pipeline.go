// Package pipeline runs one capture through fetch, inference, parse, merge
// and persist, emitting a status event for every stage transition.
//
// Invocations for the same identifier are independent read-modify-write
// cycles against the record store. Unless serialization is enabled two
// concurrent runs for one identifier race and the last write wins.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/analysis"
	"github.com/lehigh-university-libraries/shelfscan/internal/images"
	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
	"github.com/lehigh-university-libraries/shelfscan/internal/logging"
	"github.com/lehigh-university-libraries/shelfscan/internal/merge"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"github.com/lehigh-university-libraries/shelfscan/internal/status"
	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

// Fetcher retrieves capture bytes.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Inferer submits a capture to the vision model.
type Inferer interface {
	Infer(ctx context.Context, image []byte, contentType string) (*providers.Response, error)
}

// RecordStore is the read-then-write surface the pipeline needs.
type RecordStore interface {
	Get(ctx context.Context, identifier string) (*models.Record, error)
	Put(ctx context.Context, identifier string, r *models.Record) error
}

// Request is one capture to analyze.
type Request struct {
	Identifier  string
	BlobKey     string
	ContentType string
	Camera      int
	CapturedAt  time.Time
	Filename    string
	// Extra is passed through from the client; "ocr_lines" is pooled with
	// the detected text.
	Extra map[string]any
}

// Result is the pipeline output delivered with the completed event.
type Result struct {
	Identifier  string         `json:"identifier"`
	Record      *models.Record `json:"record"`
	Parsed      map[string]any `json:"parsed"`
	RawText     string         `json:"rawText"`
	ResponseID  string         `json:"responseId"`
	Model       string         `json:"model"`
	CompletedAt time.Time      `json:"completedAt"`
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	blobs  Fetcher
	infer  Inferer
	store  RecordStore
	engine *merge.Engine

	ledger             status.Sink
	clock              func() time.Time
	locks              *keyedMutex
	defaultContentType string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLedger subscribes sink to every invocation in addition to the
// per-call sink.
func WithLedger(sink status.Sink) Option {
	return func(p *Pipeline) { p.ledger = sink }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.clock = now
		}
	}
}

// WithSerialization runs invocations for one identifier one at a time.
func WithSerialization(enabled bool) Option {
	return func(p *Pipeline) {
		if enabled {
			p.locks = newKeyedMutex()
		} else {
			p.locks = nil
		}
	}
}

// WithDefaultContentType is used when a request omits the content type and
// the bytes cannot be sniffed.
func WithDefaultContentType(ct string) Option {
	return func(p *Pipeline) {
		if ct != "" {
			p.defaultContentType = ct
		}
	}
}

func New(blobs Fetcher, infer Inferer, store RecordStore, engine *merge.Engine, opts ...Option) *Pipeline {
	if engine == nil {
		engine = merge.NewEngine(nil)
	}
	p := &Pipeline{
		blobs:              blobs,
		infer:              infer,
		store:              store,
		engine:             engine,
		clock:              time.Now,
		defaultContentType: "image/jpeg",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// emitter stamps and fans out events for one invocation.
type emitter struct {
	sink       status.Sink
	identifier string
	filename   string
	clock      func() time.Time

	mu       sync.Mutex
	terminal bool
}

func (e *emitter) emit(stage status.Stage, message string, data any) {
	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		return
	}
	e.terminal = stage.IsTerminal()
	e.mu.Unlock()

	e.sink.Emit(status.Event{
		Identifier: e.identifier,
		Filename:   e.filename,
		Stage:      stage,
		Message:    message,
		Data:       data,
		Timestamp:  e.clock(),
	})
}

// fail emits the terminal failure event and returns err.
func (e *emitter) fail(stage status.Stage, err error) error {
	e.emit(stage, err.Error(), map[string]any{"kind": string(ingesterr.KindOf(err))})
	return err
}

// Run executes one invocation. Events reach the ledger and sink in emission
// order and end in exactly one terminal stage. There is no mid-run
// cancellation: callers that must outlive a dropped connection pass a
// context without cancellation.
func (p *Pipeline) Run(ctx context.Context, req Request, sink status.Sink) (result *Result, err error) {
	ctx = logging.WithIdentifier(ctx, req.Identifier)
	log := logging.With(ctx)

	em := &emitter{
		sink:       status.Multi(p.ledger, sink),
		identifier: req.Identifier,
		filename:   req.Filename,
		clock:      p.clock,
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Pipeline panicked", "panic", r)
			result = nil
			err = em.fail(status.StageError, ingesterr.Upstream("pipeline", fmt.Errorf("unexpected failure: %v", r)))
		}
	}()

	em.emit(status.StageQueued, "Queued for analysis", map[string]any{"blobKey": req.BlobKey, "camera": req.Camera})

	if p.locks != nil {
		unlock, err := p.locks.Lock(ctx, req.Identifier)
		if err != nil {
			return nil, em.fail(status.StageError, ingesterr.Upstream("pipeline.lock", err))
		}
		defer unlock()
	}

	em.emit(status.StageFetchStart, "Fetching image", map[string]any{"blobKey": req.BlobKey})
	data, err := p.blobs.Fetch(ctx, req.BlobKey)
	if err != nil {
		log.Warn("Failed to fetch capture", "key", req.BlobKey, "error", err)
		return nil, em.fail(status.StageFetchError, ingesterr.As(ingesterr.KindUpstream, "blob.fetch", err))
	}
	if len(data) == 0 {
		return nil, em.fail(status.StageFetchError, ingesterr.NotFound("blob.fetch", req.BlobKey))
	}

	info, inspectErr := images.Inspect(data)
	if inspectErr != nil {
		log.Debug("Could not decode image dimensions", "key", req.BlobKey, "error", inspectErr)
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = images.ContentType(data, p.defaultContentType)
	}
	em.emit(status.StageFetchOK, "Image fetched", map[string]any{
		"bytes": len(data), "width": info.Width, "height": info.Height, "contentType": contentType,
	})

	em.emit(status.StageAIRequest, "Requesting analysis", nil)
	resp, err := p.infer.Infer(ctx, data, contentType)
	if err != nil {
		log.Warn("Inference failed", "error", err)
		return nil, em.fail(status.StageAIError, ingesterr.As(ingesterr.KindUpstream, "inference", err))
	}
	em.emit(status.StageAIOK, "Analysis received", map[string]any{"responseId": resp.ID, "model": resp.Model})

	parsed := analysis.Parse(resp.Parsed, resp.Text)
	log.Debug("Inference output parsed", "source", parsed.Source, "fragments", len(parsed.Observations.DetectedText))

	em.emit(status.StageMerge, "Merging observations", map[string]any{"source": string(parsed.Source)})
	existing, err := p.store.Get(ctx, req.Identifier)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		log.Error("Failed to read record", "error", err)
		return nil, em.fail(status.StageDBError, ingesterr.Persistence("store.get", err))
	}

	now := p.clock()
	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = now
	}
	record := p.engine.Merge(existing, req.Identifier, merge.Capture{
		BlobKey:     req.BlobKey,
		ContentType: contentType,
		Camera:      req.Camera,
		Filename:    req.Filename,
		CapturedAt:  capturedAt,
		Width:       info.Width,
		Height:      info.Height,
		SHA256:      info.SHA256,
		OCRLines:    ocrLines(req.Extra),
	}, parsed.Observations, merge.Envelope{
		ID:     resp.ID,
		Model:  resp.Model,
		Output: parsed.Payload,
		Text:   resp.Text,
	}, now)

	em.emit(status.StageDBWrite, "Saving record", nil)
	if err := p.store.Put(ctx, req.Identifier, record); err != nil {
		log.Error("Failed to write record", "error", err)
		return nil, em.fail(status.StageDBError, ingesterr.Persistence("store.put", err))
	}

	result = &Result{
		Identifier:  req.Identifier,
		Record:      record,
		Parsed:      parsed.Payload,
		RawText:     resp.Text,
		ResponseID:  resp.ID,
		Model:       resp.Model,
		CompletedAt: p.clock(),
	}
	em.emit(status.StageCompleted, "Analysis complete", result)
	log.Info("Capture ingested", "key", req.BlobKey, "camera", req.Camera, "media", len(record.Media))
	return result, nil
}

// ocrLines reads the optional client-side text lines from extra.
func ocrLines(extra map[string]any) []string {
	raw, ok := extra["ocr_lines"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(v, "\n")
	}
	return nil
}
