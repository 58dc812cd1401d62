package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/avesia/backend/internal/nodes"
	"github.com/avesia/backend/internal/vision"
)

type NodesHandler struct {
	Path     string
	Registry *nodes.Registry
	Vision   *vision.Client
}

func NewNodesHandler(path string, registry *nodes.Registry, client *vision.Client) *NodesHandler {
	return &NodesHandler{Path: path, Registry: registry, Vision: client}
}

// GET /api/v1/nodes
func (h *NodesHandler) Get(w http.ResponseWriter, r *http.Request) {
	listeners := h.Registry.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"nodes":  listeners,
		"prompt": nodes.CombinedPrompt(listeners),
	})
}

// PUT /api/v1/nodes
//
// Replaces the listener set: validates, persists to disk, swaps the
// registry, then pushes the recompiled prompt to the vision service.
// A vision push failure is reported but does not roll back the save;
// the watcher or a manual reload will retry.
func (h *NodesHandler) Put(w http.ResponseWriter, r *http.Request) {
	var listeners []*nodes.ListenerConfig
	if err := json.NewDecoder(r.Body).Decode(&listeners); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	for i, l := range listeners {
		if err := l.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid listener: "+err.Error())
			return
		}
		if l.ID == "" {
			l.ID = fmt.Sprintf("node_%d", i)
		}
	}

	raw, err := json.MarshalIndent(listeners, "", "  ")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to encode nodes")
		return
	}
	if err := os.WriteFile(h.Path, raw, 0o644); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save nodes")
		return
	}

	h.Registry.Replace(listeners)

	pushed := true
	if h.Vision != nil {
		if err := h.Vision.PushNodes(r.Context(), listeners); err != nil {
			pushed = false
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":      len(listeners),
		"visionPush": pushed,
		"prompt":     nodes.CombinedPrompt(listeners),
	})
}

// POST /api/v1/nodes/reload
//
// Re-reads the nodes file and pushes to the vision service. Useful when the
// file was edited out of band and the watcher is disabled.
func (h *NodesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	listeners, err := nodes.LoadFile(h.Path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to reload nodes: "+err.Error())
		return
	}
	h.Registry.Replace(listeners)

	pushed := true
	if h.Vision != nil {
		if err := h.Vision.PushNodes(r.Context(), listeners); err != nil {
			pushed = false
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"count": len(listeners), "visionPush": pushed})
}

// VisionHandler proxies prompt and control operations to the vision
// service, translating unreachability into 503.
type VisionHandler struct {
	Vision *vision.Client
}

func NewVisionHandler(client *vision.Client) *VisionHandler {
	return &VisionHandler{Vision: client}
}

// POST /api/v1/vision/prompt
func (h *VisionHandler) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	if err := h.Vision.UpdatePrompt(r.Context(), req.Prompt); err != nil {
		respondError(w, http.StatusServiceUnavailable, "Vision service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// POST /api/v1/vision/control
func (h *VisionHandler) Control(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Action != "start" && req.Action != "stop" {
		respondError(w, http.StatusBadRequest, "Action must be start or stop")
		return
	}
	if err := h.Vision.Control(r.Context(), req.Action); err != nil {
		respondError(w, http.StatusServiceUnavailable, "Vision service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": req.Action})
}
