package api

import (
	"net/http"
	"path/filepath"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avesia/backend/internal/data"
	"github.com/avesia/backend/internal/middleware"
	"github.com/avesia/backend/internal/tokens"
)

var clipFileRegex = regexp.MustCompile(`^[a-fA-F0-9-]{36}\.mp4$`)

type ClipHandler struct {
	Clips    *data.ClipModel
	Projects *data.ProjectModel
	Tokens   *tokens.Manager
	ClipDir  string
}

func NewClipHandler(clips *data.ClipModel, projects *data.ProjectModel, mgr *tokens.Manager, clipDir string) *ClipHandler {
	return &ClipHandler{Clips: clips, Projects: projects, Tokens: mgr, ClipDir: clipDir}
}

// GET /api/v1/clips/{clip_id}/token
//
// Mints a short-lived token for the clip so the raw file URL can be shared
// (e.g. embedded in an alert email) without a dashboard session.
func (h *ClipHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "Missing X-User-Id")
		return
	}

	clipID, err := uuid.Parse(chi.URLParam(r, "clip_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid clip ID")
		return
	}

	clip, err := h.Clips.GetByID(r.Context(), clipID)
	if err == data.ErrRecordNotFound {
		respondError(w, http.StatusNotFound, "Clip not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch clip")
		return
	}

	// The requesting user must own the clip's project.
	if _, err := h.Projects.GetByID(r.Context(), clip.ProjectID, userID); err != nil {
		respondError(w, http.StatusNotFound, "Clip not found")
		return
	}

	token, err := h.Tokens.GenerateClipToken(clip.ID.String(), clip.ProjectID.String())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to mint token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"url":   "/clips/" + clip.ID.String() + "/" + clip.Filename + "?token=" + token,
	})
}

// GET /clips/{clip_id}/{file}?token=...
//
// Serves the clip file itself. The token, not a session, is the access
// grant; it must match the clip in the path.
func (h *ClipHandler) Serve(w http.ResponseWriter, r *http.Request) {
	clipID := chi.URLParam(r, "clip_id")
	file := chi.URLParam(r, "file")

	if _, err := uuid.Parse(clipID); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid clip ID")
		return
	}
	if !clipFileRegex.MatchString(file) {
		respondError(w, http.StatusBadRequest, "Invalid file name")
		return
	}

	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		respondError(w, http.StatusUnauthorized, "Missing token")
		return
	}
	claims, err := h.Tokens.ValidateClipToken(tokenStr)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if claims.ClipID != clipID {
		respondError(w, http.StatusForbidden, "Token does not match clip")
		return
	}

	// Regex already constrains file to a flat <uuid>.mp4 name, so the join
	// cannot escape the clip directory.
	http.ServeFile(w, r, filepath.Join(h.ClipDir, file))
}
