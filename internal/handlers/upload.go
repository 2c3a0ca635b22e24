package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/images"
)

// HandleUpload receives the bytes for a key issued by the local presigner.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "PUT" && r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.uploads == nil {
		h.writeError(w, "Uploads are not accepted by this blob backend", http.StatusNotFound)
		return
	}

	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		h.writeError(w, "key is required", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	size, err := h.uploads.Put(r.Context(), key, r.Body)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	slog.Info("Upload stored", "key", key, "bytes", size)
	h.writeJSON(w, map[string]any{
		"key":  key,
		"size": size,
	})
}

// HandleMedia serves a stored capture by blob key.
func (h *Handler) HandleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/media/")
	if key == "" || strings.Contains(key, "..") {
		h.writeError(w, "Invalid media key", http.StatusBadRequest)
		return
	}

	data, err := h.blobs.Fetch(r.Context(), key)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", images.ContentType(data, "application/octet-stream"))
	if _, err := w.Write(data); err != nil {
		slog.Error("Unable to write media", "key", key, "err", err)
	}
}
