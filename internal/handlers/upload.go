package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"tenderlens/internal/ingest"
)

type uploadRequest struct {
	Data any `json:"data"`
}

// UploadHandler обрабатывает POST /api/upload, импорт JSON-набора
func (h *Handler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}

	limit := h.BodyLimit
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	var req uploadRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}

	res, err := h.Importer.Import(r.Context(), tenantID, req.Data)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidPayload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Log.WithError(err).WithField("tenant_id", tenantID).Error("upload failed")
		writeError(w, http.StatusInternalServerError, "failed to import data")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
