package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
	"github.com/lehigh-university-libraries/shelfscan/internal/ledger"
	"github.com/lehigh-university-libraries/shelfscan/internal/merge"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"github.com/lehigh-university-libraries/shelfscan/internal/status"
	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

var t0 = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

const frontJSON = `{
  "detected_text": [
    {"text": "HOT WHEELS", "category": "brand", "confidence": 0.98},
    {"text": "112/250", "category": "number"}
  ],
  "summary": "Red car on a blister card",
  "colors": [{"name": "Red", "role": "primary", "confidence": 0.9}]
}`

type fakeBlobs map[string][]byte

func (f fakeBlobs) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, ok := f[key]
	if !ok {
		return nil, ingesterr.NotFound("blob.fetch", key)
	}
	return data, nil
}

type inferFunc func(ctx context.Context, image []byte, contentType string) (*providers.Response, error)

func (f inferFunc) Infer(ctx context.Context, image []byte, contentType string) (*providers.Response, error) {
	return f(ctx, image, contentType)
}

func staticInfer(text string) inferFunc {
	return func(ctx context.Context, image []byte, contentType string) (*providers.Response, error) {
		return &providers.Response{
			ID:     "resp-1",
			Model:  "test-model",
			Parsed: providers.StructuredJSON(text),
			Text:   text,
		}, nil
	}
}

// failingStore reads from the embedded store but refuses writes.
type failingStore struct {
	*storage.MemoryStore
	putCalls int
}

func (f *failingStore) Put(ctx context.Context, id string, r *models.Record) error {
	f.putCalls++
	return errors.New("disk full")
}

func newPipeline(blobs Fetcher, infer Inferer, store RecordStore, opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return New(blobs, infer, store, merge.NewEngine(nil), opts...)
}

func TestRunHappyPath(t *testing.T) {
	store := storage.NewMemory()
	led := ledger.New()
	p := newPipeline(fakeBlobs{"items/H1/camera-1/a.jpg": []byte("jpeg bytes")}, staticInfer(frontJSON), store, WithLedger(led))

	rec := &status.Recorder{}
	res, err := p.Run(context.Background(), Request{
		Identifier:  "H1",
		BlobKey:     "items/H1/camera-1/a.jpg",
		ContentType: "image/jpeg",
		Camera:      1,
		Filename:    "a.jpg",
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []status.Stage{
		status.StageQueued,
		status.StageFetchStart,
		status.StageFetchOK,
		status.StageAIRequest,
		status.StageAIOK,
		status.StageMerge,
		status.StageDBWrite,
		status.StageCompleted,
	}, rec.Stages())

	for _, e := range rec.Events {
		assert.Equal(t, "H1", e.Identifier)
		assert.Equal(t, "a.jpg", e.Filename)
	}
	assert.Same(t, res, rec.Events[len(rec.Events)-1].Data)

	assert.Equal(t, "resp-1", res.ResponseID)
	assert.Equal(t, "112/250", res.Record.Packaging.AssortmentNumber)
	assert.Equal(t, "Red car on a blister card", res.Parsed["summary"])

	stored, err := store.Get(context.Background(), "H1")
	require.NoError(t, err)
	require.Len(t, stored.Media, 1)
	assert.Equal(t, models.FormatTime(t0), stored.Media[0].CapturedAt)

	entry, ok := led.Get("H1")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusCompleted, entry.Status)
	assert.Len(t, entry.Events, 8)
}

func TestRunFetchNotFound(t *testing.T) {
	store := storage.NewMemory()
	called := false
	infer := inferFunc(func(ctx context.Context, image []byte, contentType string) (*providers.Response, error) {
		called = true
		return nil, nil
	})
	p := newPipeline(fakeBlobs{}, infer, store)

	rec := &status.Recorder{}
	_, err := p.Run(context.Background(), Request{Identifier: "H2", BlobKey: "missing.jpg", Camera: 1}, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingesterr.ErrNotFound))

	assert.Equal(t, []status.Stage{status.StageQueued, status.StageFetchStart, status.StageFetchError}, rec.Stages())
	assert.False(t, called)

	_, err = store.Get(context.Background(), "H2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunInferenceErrorLeavesRecord(t *testing.T) {
	store := storage.NewMemory()
	prior := models.NewRecord("H3")
	prior.Item.Name = "Skyline"
	require.NoError(t, store.Put(context.Background(), "H3", prior))
	before, err := store.Get(context.Background(), "H3")
	require.NoError(t, err)

	infer := inferFunc(func(ctx context.Context, image []byte, contentType string) (*providers.Response, error) {
		return nil, errors.New("model overloaded")
	})
	p := newPipeline(fakeBlobs{"k": []byte("x")}, infer, store)

	rec := &status.Recorder{}
	_, err = p.Run(context.Background(), Request{Identifier: "H3", BlobKey: "k", ContentType: "image/png", Camera: 2}, rec)
	require.Error(t, err)
	assert.Equal(t, ingesterr.KindUpstream, ingesterr.KindOf(err))

	stages := rec.Stages()
	assert.Equal(t, status.StageAIError, stages[len(stages)-1])

	after, err := store.Get(context.Background(), "H3")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunWriteFailure(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemory()}
	p := newPipeline(fakeBlobs{"k": []byte("x")}, staticInfer(frontJSON), store)

	rec := &status.Recorder{}
	_, err := p.Run(context.Background(), Request{Identifier: "H4", BlobKey: "k", ContentType: "image/jpeg", Camera: 1}, rec)
	require.Error(t, err)
	assert.Equal(t, ingesterr.KindPersistence, ingesterr.KindOf(err))
	assert.Equal(t, 1, store.putCalls)

	stages := rec.Stages()
	assert.Equal(t, status.StageDBWrite, stages[len(stages)-2])
	assert.Equal(t, status.StageDBError, stages[len(stages)-1])
}

func TestRunUnparseableOutputStillCompletes(t *testing.T) {
	store := storage.NewMemory()
	p := newPipeline(fakeBlobs{"k": []byte("x")}, staticInfer("I could not read the packaging."), store)

	rec := &status.Recorder{}
	res, err := p.Run(context.Background(), Request{Identifier: "H5", BlobKey: "k", ContentType: "image/jpeg", Camera: 1}, rec)
	require.NoError(t, err)

	assert.Equal(t, status.StageCompleted, rec.Events[len(rec.Events)-1].Stage)
	assert.Empty(t, res.Parsed)
	assert.Equal(t, models.Placeholder, res.Record.Brand.Name)
	require.Len(t, res.Record.Media, 1)
}

func TestRunOCRLinesFromExtra(t *testing.T) {
	store := storage.NewMemory()
	p := newPipeline(fakeBlobs{"k": []byte("x")}, staticInfer(`{"summary": "box"}`), store)

	res, err := p.Run(context.Background(), Request{
		Identifier:  "H6",
		BlobKey:     "k",
		ContentType: "image/jpeg",
		Camera:      2,
		Extra:       map[string]any{"ocr_lines": []any{"MADE IN MALAYSIA", 7}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Malaysia", res.Record.Brand.CountryOfOrigin)
}

func TestRunSerializedPerIdentifier(t *testing.T) {
	store := storage.NewMemory()
	infer := inferFunc(func(ctx context.Context, image []byte, contentType string) (*providers.Response, error) {
		time.Sleep(20 * time.Millisecond)
		return &providers.Response{ID: "r", Text: frontJSON, Parsed: json.RawMessage(frontJSON)}, nil
	})
	p := newPipeline(fakeBlobs{"front": []byte("a"), "back": []byte("b")}, infer, store, WithSerialization(true))

	var wg sync.WaitGroup
	for i, key := range []string{"front", "back"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Run(context.Background(), Request{Identifier: "H7", BlobKey: key, ContentType: "image/jpeg", Camera: i + 1}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	r, err := store.Get(context.Background(), "H7")
	require.NoError(t, err)
	assert.Len(t, r.Media, 2)
}

func TestRunRecoversPanic(t *testing.T) {
	infer := inferFunc(func(ctx context.Context, image []byte, contentType string) (*providers.Response, error) {
		panic("boom")
	})
	p := newPipeline(fakeBlobs{"k": []byte("x")}, infer, storage.NewMemory())

	rec := &status.Recorder{}
	res, err := p.Run(context.Background(), Request{Identifier: "H8", BlobKey: "k", ContentType: "image/jpeg", Camera: 1}, rec)
	require.Error(t, err)
	assert.Nil(t, res)

	stages := rec.Stages()
	assert.Equal(t, status.StageError, stages[len(stages)-1])
	assert.Contains(t, rec.Events[len(rec.Events)-1].Message, "boom")
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock2()
	assert.Empty(t, k.locks)
}
