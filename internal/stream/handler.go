package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"media-library/internal/platform/metrics"
)

// Handler is the request-facing composition layer: it validates inputs,
// resolves assets through the Library, and dispatches to the file streamer,
// clip streamer, or segment cache.
type Handler struct {
	library Library
	files   *FileStreamer
	clips   *ClipStreamer
	cache   *SegmentCache
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil.
func NewHandler(library Library, files *FileStreamer, clips *ClipStreamer, cache *SegmentCache, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{library: library, files: files, clips: clips, cache: cache, log: log, metrics: m}
}

// Routes mounts the streaming endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/videos/{id}/stream", h.StreamVideo)
	r.Head("/videos/{id}/stream", h.StreamVideo)
	r.Get("/clips/{id}/stream", h.StreamClip)
	r.Get("/videos/{id}/hls/index.m3u8", h.GetManifest)
	r.Get("/videos/{id}/hls/{segment}", h.GetSegment)
}

// StreamVideo handles GET /videos/{id}/stream with byte-range support.
func (h *Handler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	asset, err := h.resolveAvailableVideo(r, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	path, err := h.files.ResolveWithin(asset.Path)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.streamStarted()
	defer h.streamFinished()
	if err := h.files.ServeFile(w, r, path); err != nil {
		h.writeError(w, err)
	}
}

// StreamClip handles GET /clips/{id}/stream, transcoding the clip on demand.
func (h *Handler) StreamClip(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	clip, err := h.library.ResolveClip(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	asset, err := h.resolveAvailableVideo(r, clip.VideoID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	path, err := h.files.ResolveWithin(asset.Path)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.streamStarted()
	defer h.streamFinished()
	if err := h.clips.Stream(w, r, path, clip.Start, clip.End); err != nil {
		h.writeError(w, err)
	}
}

// GetManifest handles GET /videos/{id}/hls/index.m3u8.
func (h *Handler) GetManifest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	manifest, err := h.cache.GenerateManifest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", manifestContentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(manifest))
}

// GetSegment handles GET /videos/{id}/hls/{segment}.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	path, err := h.cache.SegmentPath(r.Context(), id, chi.URLParam(r, "segment"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.writeError(w, WrapErr(KindInternal, "open segment", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeError(w, WrapErr(KindInternal, "stat segment", err))
		return
	}

	w.Header().Set("Content-Type", segmentContentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	h.streamStarted()
	defer h.streamFinished()
	n, err := io.Copy(w, f)
	if h.metrics != nil {
		h.metrics.AddBytesStreamed(n)
	}
	if err != nil {
		h.log.Debug("segment stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func (h *Handler) resolveAvailableVideo(r *http.Request, id int64) (VideoAsset, error) {
	asset, err := h.library.ResolveVideo(r.Context(), id)
	if err != nil {
		return VideoAsset{}, err
	}
	if !asset.Available {
		return VideoAsset{}, Errf(KindUnavailable, "video %d is unavailable", id)
	}
	return asset, nil
}

// writeError translates a stream error into a structured response. Once a
// body has begun streaming the status line is already committed; in that case
// the connection simply terminates and this write is a no-op on the wire.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= 500 {
		h.log.Error("request failed", slog.String("error", err.Error()))
	} else {
		h.log.Debug("request rejected", slog.String("error", err.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (h *Handler) streamStarted() {
	if h.metrics != nil {
		h.metrics.StreamStarted()
	}
}

func (h *Handler) streamFinished() {
	if h.metrics != nil {
		h.metrics.StreamFinished()
	}
}

// parseID parses a path identifier, requiring a positive integer before any
// I/O happens.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, Errf(KindValidation, "invalid id %q", raw)
	}
	return id, nil
}
