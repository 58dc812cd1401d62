package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/avesia/backend/internal/results"
)

type ResultsHandler struct {
	Service *results.Service
	Hub     *StreamHub
}

func NewResultsHandler(svc *results.Service, hub *StreamHub) *ResultsHandler {
	return &ResultsHandler{Service: svc, Hub: hub}
}

// maxResultBody caps ingress payloads. Model output is small; anything
// bigger is a misdirected upload.
const maxResultBody = 1 << 20

// POST /api/v1/results
//
// The vision service fires this for every inference pass and does not
// handle rejection well, so the response is a fixed ACK no matter what the
// body contains. Processing problems are our problem, not the sender's.
func (h *ResultsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxResultBody))
	if err != nil {
		// Even a broken read gets the ACK shape.
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Result received"})
		return
	}

	res := h.Service.Ingest(r.Context(), string(body))
	if h.Hub != nil {
		h.Hub.Broadcast(res)
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Result received"})
}

// GET /api/v1/results?limit=N
func (h *ResultsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	recent := h.Service.Buffer.Recent(limit)
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(recent),
		"results": recent,
	})
}

// GET /api/v1/results/latest?project_id=...
func (h *ResultsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")

	if h.Service.Cache != nil {
		latest, err := h.Service.Cache.Latest(r.Context(), projectID)
		if err == nil && latest != nil {
			respondJSON(w, http.StatusOK, latest)
			return
		}
	}

	// Cache miss or Redis down: fall back to the ring buffer.
	for _, res := range h.Service.Buffer.Recent(0) {
		if projectID == "" || res.ProjectID == projectID {
			respondJSON(w, http.StatusOK, res)
			return
		}
	}
	respondError(w, http.StatusNotFound, "No results yet")
}

// GET /api/v1/results/stream (websocket)
func (h *ResultsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.Hub.ServeWS(w, r)
}
