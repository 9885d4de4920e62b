package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lambda-heatpumps/internal/entry"
)

// UpdateEntryRequest is the body of PATCH /entries/{id}. Keys present in
// Data or Options replace the stored ones; a null value removes the key.
type UpdateEntryRequest struct {
	Data    map[string]any `json:"data"`
	Options map[string]any `json:"options"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.integration.Entries(r.Context())
	if err != nil {
		s.logger.Error("failed to list entries", "error", err)
		writeInternalError(w, "failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := s.integration.Entries(r.Context())
	if err != nil {
		s.logger.Error("failed to list entries", "error", err)
		writeInternalError(w, "failed to load entry")
		return
	}
	for _, e := range entries {
		if e.ID == id {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeNotFound(w, "entry not found")
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Data == nil && req.Options == nil {
		writeBadRequest(w, "data or options is required")
		return
	}

	current, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeEntryError(w, id, err)
		return
	}

	updated, err := s.store.UpdateData(r.Context(), id,
		merge(current.Data, req.Data),
		merge(current.Options, req.Options),
	)
	if err != nil {
		s.writeEntryError(w, id, err)
		return
	}

	s.logger.Info("entry updated", "entry_id", id)
	writeJSON(w, http.StatusOK, updated)
}

// handleReloadEntry starts a reload and returns 202 without waiting for it.
func (s *Server) handleReloadEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.Get(r.Context(), id); err != nil {
		s.writeEntryError(w, id, err)
		return
	}

	s.reloads.Add(1)
	go func() {
		defer s.reloads.Done()
		if err := s.integration.ReloadByID(context.Background(), id); err != nil {
			s.logger.Warn("reload requested over API failed", "entry_id", id, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "reloading",
		"entry_id": id,
	})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, ok := s.integration.Snapshot(id)
	if !ok {
		writeNotFound(w, "entry not active")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.history == nil {
		writeNotFound(w, "history not available")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.List(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to list history", "entry_id", id, "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id": id,
		"records":  records,
		"count":    len(records),
	})
}

func (s *Server) writeEntryError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, entry.ErrEntryNotFound) {
		writeNotFound(w, "entry not found")
		return
	}
	s.logger.Error("entry store error", "entry_id", id, "error", err)
	writeInternalError(w, "entry store error")
}

// merge overlays patch on base. Nil values in patch delete keys.
func merge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
