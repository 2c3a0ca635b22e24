package handlers

import (
	"net/http"
	"strconv"
	"strings"
)

func (h *Handler) HandleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := h.snapshotSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	h.writeJSON(w, h.ledger.Snapshot(limit))
}

func (h *Handler) HandleOperationDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identifier := strings.TrimPrefix(r.URL.Path, "/api/operations/")
	entry, ok := h.ledger.Get(identifier)
	if !ok {
		h.writeError(w, "Operation not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, entry)
}

func (h *Handler) HandleRecordDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identifier := strings.TrimPrefix(r.URL.Path, "/api/records/")
	if identifier == "" {
		h.writeError(w, "identifier is required", http.StatusBadRequest)
		return
	}

	record, err := h.records.Get(r.Context(), identifier)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, record)
}
