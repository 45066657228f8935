package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jobstr/harvester/internal/core/keys"
	"github.com/jobstr/harvester/internal/note"
	"github.com/jobstr/harvester/internal/output"
	"github.com/jobstr/harvester/internal/store"
	"github.com/jobstr/harvester/internal/util"
)

// ListNotes serves the records of the current output file, newest first.
func (h *handlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	limit := util.ParseLimit(r, 50, 500)

	records, err := output.Load(h.cfg.OutputPath)
	if err != nil {
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to read output file")
		return
	}

	items := make([]note.Record, 0, min(limit, len(records)))
	for i := len(records) - 1; i >= 0 && len(items) < limit; i-- {
		items = append(items, records[i])
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(records),
	})
}

func (h *handlers) ListArchivedNotes(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		util.WriteError(w, http.StatusNotFound, "archive_disabled", "archive is not configured")
		return
	}
	limit := util.ParseLimit(r, 50, 200)
	cursor, err := util.ParseCursor(r)
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_cursor", err.Error())
		return
	}

	items, next, err := h.archive.ListNotes(r.Context(), limit, cursor)
	if err != nil {
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to list notes")
		return
	}

	resp := map[string]any{
		"items": items,
	}
	if next != nil {
		resp["next_cursor"] = util.EncodeCursor(next)
	}
	util.WriteJSON(w, http.StatusOK, resp)
}

func (h *handlers) GetArchivedNote(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		util.WriteError(w, http.StatusNotFound, "archive_disabled", "archive is not configured")
		return
	}
	id := chi.URLParam(r, "noteID")
	if _, err := keys.DecodeEventID(id); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "note id must be 64 hex characters")
		return
	}

	rec, err := h.archive.GetNote(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.WriteError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to get note")
		return
	}
	util.WriteJSON(w, http.StatusOK, rec)
}
