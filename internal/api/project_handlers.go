package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avesia/backend/internal/data"
	"github.com/avesia/backend/internal/middleware"
)

type ProjectHandler struct {
	Projects *data.ProjectModel
	Clips    *data.ClipModel
}

func NewProjectHandler(projects *data.ProjectModel, clips *data.ClipModel) *ProjectHandler {
	return &ProjectHandler{Projects: projects, Clips: clips}
}

// POST /api/v1/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "Missing X-User-Id")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Project name is required")
		return
	}

	project := &data.Project{UserID: userID, Name: req.Name}
	if err := h.Projects.Create(r.Context(), project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}
	respondJSON(w, http.StatusCreated, project)
}

// GET /api/v1/projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "Missing X-User-Id")
		return
	}

	projects, err := h.Projects.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// GET /api/v1/projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.Projects.GetByID(r.Context(), projectID, userID)
	if err == data.ErrRecordNotFound {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch project")
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// PUT /api/v1/projects/{id}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Project name is required")
		return
	}

	project, err := h.Projects.GetByID(r.Context(), projectID, userID)
	if err == data.ErrRecordNotFound {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}

	project.Name = req.Name
	if err := h.Projects.Update(r.Context(), project); err != nil {
		if err == data.ErrRecordNotFound {
			respondError(w, http.StatusNotFound, "Project not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// DELETE /api/v1/projects/{id}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	err = h.Projects.Delete(r.Context(), projectID, userID)
	if err == data.ErrRecordNotFound {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// analyticsEvent is the timeline entry shape the dashboard renders.
type analyticsEvent struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Timestamp    string  `json:"timestamp"`
	ListenerID   string  `json:"listenerId"`
	VideoID      *string `json:"videoId,omitempty"`
	EmailSentTo  *string `json:"emailSentTo,omitempty"`
	ClipID       string  `json:"clipId"`
	ClipFilename string  `json:"clipFilename"`
}

// GET /api/v1/projects/{id}/analytics/events
//
// Newest first. Email alerts appear as upgraded entries of the same clip
// rather than separate rows.
func (h *ProjectHandler) AnalyticsEvents(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	// Ownership check before exposing the timeline.
	if _, err := h.Projects.GetByID(r.Context(), projectID, userID); err != nil {
		if err == data.ErrRecordNotFound {
			respondError(w, http.StatusNotFound, "Project not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch project")
		return
	}

	clips, err := h.Clips.ListByProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch events")
		return
	}

	events := make([]analyticsEvent, 0, len(clips))
	for _, c := range clips {
		evt := analyticsEvent{
			ID:           c.ID.String(),
			Type:         c.EventType,
			Timestamp:    c.EventTimestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			ListenerID:   c.ListenerID,
			EmailSentTo:  c.EmailSentTo,
			ClipID:       c.ID.String(),
			ClipFilename: c.Filename,
		}
		if c.VideoID != nil {
			v := c.VideoID.String()
			evt.VideoID = &v
		}
		events = append(events, evt)
	}

	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
