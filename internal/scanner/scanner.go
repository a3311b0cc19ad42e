package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"media-library/internal/catalog"
)

// mediaExts are the file extensions the scanner catalogues.
var mediaExts = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".mov":  true,
}

// CacheInvalidator drops cached derived artifacts for a video whose source
// changed or vanished.
type CacheInvalidator interface {
	DeleteCacheForVideo(videoID int64) error
}

// Result summarizes one library scan.
type Result struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Missing int `json:"missing"`
}

// Scanner walks the library root and reconciles the catalogue with what is
// actually on disk.
type Scanner struct {
	root        string
	store       *catalog.Store
	prober      Prober
	invalidator CacheInvalidator
	log         *slog.Logger
}

// New returns a Scanner. The invalidator may be nil.
func New(root string, store *catalog.Store, prober Prober, invalidator CacheInvalidator, log *slog.Logger) *Scanner {
	return &Scanner{root: root, store: store, prober: prober, invalidator: invalidator, log: log}
}

// Scan walks the root, adding unknown media files, re-probing changed ones,
// and marking vanished ones unavailable. It is explicitly triggered: at
// startup and via the scan endpoint.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	scanID := uuid.NewString()
	log := s.log.With(slog.String("scan_id", scanID))
	log.Info("library scan started", slog.String("root", s.root))

	var res Result
	seen := make(map[string]bool)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !mediaExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		seen[path] = true

		info, err := d.Info()
		if err != nil {
			return err
		}

		existing, err := s.store.GetVideoByPath(ctx, path)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			if err := s.addVideo(ctx, path, info.Size()); err != nil {
				log.Error("adding video failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return nil
			}
			res.Added++
		case err != nil:
			return err
		case existing.Size != info.Size() || !existing.Available:
			if err := s.refreshVideo(ctx, existing, path, info.Size()); err != nil {
				log.Error("refreshing video failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return nil
			}
			res.Updated++
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	// Anything catalogued but no longer on disk becomes unavailable; its
	// cached segments are stale by definition.
	videos, err := s.store.ListVideos(ctx)
	if err != nil {
		return res, err
	}
	for _, v := range videos {
		if seen[v.Path] || !v.Available {
			continue
		}
		if err := s.store.SetVideoAvailable(ctx, v.ID, false); err != nil {
			return res, err
		}
		s.invalidate(v.ID)
		res.Missing++
	}

	log.Info("library scan finished",
		slog.Int("added", res.Added),
		slog.Int("updated", res.Updated),
		slog.Int("missing", res.Missing))
	return res, nil
}

func (s *Scanner) addVideo(ctx context.Context, path string, size int64) error {
	md, err := s.prober.Probe(ctx, path)
	if err != nil {
		return err
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	_, err = s.store.CreateVideo(ctx, catalog.Video{
		Title:     title,
		Path:      path,
		Available: true,
		Duration:  md.Duration.Seconds(),
		Size:      size,
	})
	return err
}

func (s *Scanner) refreshVideo(ctx context.Context, v catalog.Video, path string, size int64) error {
	md, err := s.prober.Probe(ctx, path)
	if err != nil {
		return err
	}
	if err := s.store.UpdateVideoMetadata(ctx, v.ID, md.Duration.Seconds(), size); err != nil {
		return err
	}
	s.invalidate(v.ID)
	return nil
}

func (s *Scanner) invalidate(videoID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.DeleteCacheForVideo(videoID); err != nil {
		s.log.Error("invalidating segment cache failed",
			slog.Int64("video_id", videoID),
			slog.String("error", err.Error()))
	}
}
