package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"media-library/internal/stream"
)

// ErrInvalid marks rejected input (bad clip bounds, unknown playlist clips).
var ErrInvalid = errors.New("invalid input")

// Service applies catalogue business rules on top of the Store and implements
// the delivery subsystem's Library port.
type Service struct {
	store *Store
	log   *slog.Logger
}

// NewService returns a Service backed by store.
func NewService(store *Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// ResolveVideo implements stream.Library.
func (s *Service) ResolveVideo(ctx context.Context, id int64) (stream.VideoAsset, error) {
	v, err := s.store.GetVideo(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return stream.VideoAsset{}, stream.Errf(stream.KindNotFound, "video %d not found", id)
	}
	if err != nil {
		return stream.VideoAsset{}, stream.WrapErr(stream.KindInternal, "resolve video", err)
	}
	return stream.VideoAsset{
		ID:        v.ID,
		Path:      v.Path,
		Available: v.Available,
		Duration:  secondsToDuration(v.Duration),
	}, nil
}

// ResolveClip implements stream.Library.
func (s *Service) ResolveClip(ctx context.Context, id int64) (stream.ClipRange, error) {
	c, err := s.store.GetClip(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return stream.ClipRange{}, stream.Errf(stream.KindNotFound, "clip %d not found", id)
	}
	if err != nil {
		return stream.ClipRange{}, stream.WrapErr(stream.KindInternal, "resolve clip", err)
	}
	return stream.ClipRange{
		VideoID: c.VideoID,
		Start:   secondsToDuration(c.Start),
		End:     secondsToDuration(c.End),
	}, nil
}

// GetVideo returns a catalogued video.
func (s *Service) GetVideo(ctx context.Context, id int64) (Video, error) {
	return s.store.GetVideo(ctx, id)
}

// ListVideos returns all catalogued videos.
func (s *Service) ListVideos(ctx context.Context) ([]Video, error) {
	return s.store.ListVideos(ctx)
}

// DeleteVideo removes a video and its clips.
func (s *Service) DeleteVideo(ctx context.Context, id int64) error {
	return s.store.DeleteVideo(ctx, id)
}

// CreateClip validates bounds against the source video and stores the clip.
func (s *Service) CreateClip(ctx context.Context, c Clip) (Clip, error) {
	v, err := s.store.GetVideo(ctx, c.VideoID)
	if errors.Is(err, ErrNotFound) {
		return Clip{}, fmt.Errorf("%w: video %d not found", ErrInvalid, c.VideoID)
	}
	if err != nil {
		return Clip{}, err
	}
	if c.Start < 0 || c.Start >= c.End {
		return Clip{}, fmt.Errorf("%w: clip bounds must satisfy 0 <= start < end", ErrInvalid)
	}
	if v.Duration > 0 && c.End > v.Duration {
		return Clip{}, fmt.Errorf("%w: clip end %.3fs exceeds video duration %.3fs", ErrInvalid, c.End, v.Duration)
	}
	return s.store.CreateClip(ctx, c)
}

// GetClip returns a clip.
func (s *Service) GetClip(ctx context.Context, id int64) (Clip, error) {
	return s.store.GetClip(ctx, id)
}

// ListClipsByVideo returns a video's clips ordered by start time.
func (s *Service) ListClipsByVideo(ctx context.Context, videoID int64) ([]Clip, error) {
	return s.store.ListClipsByVideo(ctx, videoID)
}

// DeleteClip removes a clip.
func (s *Service) DeleteClip(ctx context.Context, id int64) error {
	return s.store.DeleteClip(ctx, id)
}

// CreatePlaylist creates an empty named playlist.
func (s *Service) CreatePlaylist(ctx context.Context, name string) (Playlist, error) {
	if name == "" {
		return Playlist{}, fmt.Errorf("%w: playlist name must not be empty", ErrInvalid)
	}
	return s.store.CreatePlaylist(ctx, name)
}

// GetPlaylist returns a playlist with its ordered items.
func (s *Service) GetPlaylist(ctx context.Context, id int64) (Playlist, error) {
	return s.store.GetPlaylist(ctx, id)
}

// ListPlaylists returns all playlists.
func (s *Service) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	return s.store.ListPlaylists(ctx)
}

// DeletePlaylist removes a playlist.
func (s *Service) DeletePlaylist(ctx context.Context, id int64) error {
	return s.store.DeletePlaylist(ctx, id)
}

// ReorderPlaylist replaces a playlist's item ordering. Every clip must exist
// and may appear at most once.
func (s *Service) ReorderPlaylist(ctx context.Context, playlistID int64, clipIDs []int64) error {
	if _, err := s.store.GetPlaylist(ctx, playlistID); err != nil {
		return err
	}
	seen := make(map[int64]bool, len(clipIDs))
	for _, clipID := range clipIDs {
		if seen[clipID] {
			return fmt.Errorf("%w: clip %d listed twice", ErrInvalid, clipID)
		}
		seen[clipID] = true
		if _, err := s.store.GetClip(ctx, clipID); errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: clip %d not found", ErrInvalid, clipID)
		} else if err != nil {
			return err
		}
	}
	return s.store.ReplacePlaylistItems(ctx, playlistID, clipIDs)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
