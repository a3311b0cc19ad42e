package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// CacheInvalidator drops cached derived artifacts when a source video is
// deleted. Implemented by the segment cache.
type CacheInvalidator interface {
	DeleteCacheForVideo(videoID int64) error
}

// Handler exposes catalogue CRUD endpoints using go-chi.
type Handler struct {
	svc         *Service
	invalidator CacheInvalidator
	log         *slog.Logger
}

// NewHandler returns a Handler. The invalidator may be nil (e.g. in tests).
func NewHandler(svc *Service, invalidator CacheInvalidator, log *slog.Logger) *Handler {
	return &Handler{svc: svc, invalidator: invalidator, log: log}
}

// Routes mounts the catalogue endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/videos", h.ListVideos)
	r.Get("/videos/{id}", h.GetVideo)
	r.Delete("/videos/{id}", h.DeleteVideo)
	r.Get("/videos/{id}/clips", h.ListClips)

	r.Post("/clips", h.CreateClip)
	r.Get("/clips/{id}", h.GetClip)
	r.Delete("/clips/{id}", h.DeleteClip)

	r.Post("/playlists", h.CreatePlaylist)
	r.Get("/playlists", h.ListPlaylists)
	r.Get("/playlists/{id}", h.GetPlaylist)
	r.Delete("/playlists/{id}", h.DeletePlaylist)
	r.Put("/playlists/{id}/items", h.ReorderPlaylist)
}

// ListVideos handles GET /videos.
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.svc.ListVideos(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, videos)
}

// GetVideo handles GET /videos/{id}.
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.GetVideo(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

// DeleteVideo handles DELETE /videos/{id}. The video's segment cache is
// dropped along with the row.
func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteVideo(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	if h.invalidator != nil {
		if err := h.invalidator.DeleteCacheForVideo(id); err != nil {
			h.log.Error("invalidating segment cache failed",
				slog.Int64("video_id", id),
				slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListClips handles GET /videos/{id}/clips.
func (h *Handler) ListClips(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	clips, err := h.svc.ListClipsByVideo(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, clips)
}

// CreateClip handles POST /clips.
// Body: { "video_id": 1, "title": "...", "start_seconds": 5, "end_seconds": 12 }.
func (h *Handler) CreateClip(w http.ResponseWriter, r *http.Request) {
	var c Clip
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.log.Debug("invalid clip body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	created, err := h.svc.CreateClip(r.Context(), c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// GetClip handles GET /clips/{id}.
func (h *Handler) GetClip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetClip(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// DeleteClip handles DELETE /clips/{id}.
func (h *Handler) DeleteClip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteClip(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreatePlaylist handles POST /playlists. Body: { "name": "..." }.
func (h *Handler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p, err := h.svc.CreatePlaylist(r.Context(), body.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// ListPlaylists handles GET /playlists.
func (h *Handler) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.svc.ListPlaylists(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, playlists)
}

// GetPlaylist handles GET /playlists/{id}.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.GetPlaylist(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// DeletePlaylist handles DELETE /playlists/{id}.
func (h *Handler) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeletePlaylist(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderPlaylist handles PUT /playlists/{id}/items.
// Body: { "clip_ids": [3, 1, 2] }.
func (h *Handler) ReorderPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		ClipIDs []int64 `json:"clip_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.svc.ReorderPlaylist(r.Context(), id, body.ClipIDs); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrInvalid):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	default:
		h.log.Error("catalogue request failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}
