package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
	"github.com/lehigh-university-libraries/shelfscan/internal/ledger"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

// RecordReader is the read side of the record store.
type RecordReader interface {
	Get(ctx context.Context, identifier string) (*models.Record, error)
}

// BlobReader serves stored captures.
type BlobReader interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Uploader accepts presigned uploads for the local blob backend.
type Uploader interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
}

type Handler struct {
	ledger       *ledger.Ledger
	records      RecordReader
	blobs        BlobReader
	uploads      Uploader
	snapshotSize int
}

// New wires the HTTP endpoints. uploads may be nil when the blob backend
// takes uploads directly.
func New(led *ledger.Ledger, records RecordReader, blobs BlobReader, uploads Uploader, snapshotSize int) *Handler {
	if snapshotSize <= 0 {
		snapshotSize = ledger.DefaultCeiling
	}
	return &Handler{
		ledger:       led,
		records:      records,
		blobs:        blobs,
		uploads:      uploads,
		snapshotSize: snapshotSize,
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/operations", h.HandleOperations)
	mux.HandleFunc("/api/operations/", h.HandleOperationDetail)
	mux.HandleFunc("/api/records/", h.HandleRecordDetail)
	mux.HandleFunc("/api/uploads", h.HandleUpload)
	mux.HandleFunc("/media/", h.HandleMedia)
	mux.HandleFunc("/healthcheck", h.HandleHealthcheck)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}

// writeErr maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = http.StatusNotFound
	default:
		switch ingesterr.KindOf(err) {
		case ingesterr.KindValidation, ingesterr.KindProtocol:
			code = http.StatusBadRequest
		case ingesterr.KindNotFound:
			code = http.StatusNotFound
		case ingesterr.KindUpstream:
			code = http.StatusBadGateway
		}
	}
	h.writeError(w, err.Error(), code)
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Unable to write healthcheck", "err", err)
	}
}
