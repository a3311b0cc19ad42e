package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"media-library/internal/catalog"
)

// Watcher reacts to filesystem changes under the library root: modified files
// are re-probed, vanished files become unavailable, and affected segment
// caches are invalidated.
type Watcher struct {
	root        string
	store       *catalog.Store
	prober      Prober
	invalidator CacheInvalidator
	log         *slog.Logger
}

// NewWatcher returns a Watcher over the same collaborators as the Scanner.
func NewWatcher(root string, store *catalog.Store, prober Prober, invalidator CacheInvalidator, log *slog.Logger) *Watcher {
	return &Watcher{root: root, store: store, prober: prober, invalidator: invalidator, log: log}
}

// Run watches the library tree until ctx is done. Subdirectories created
// while running are added to the watch.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.log.Info("library watcher started", slog.String("root", w.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", slog.String("error", err.Error()))
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, ev)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := fsw.Add(ev.Name); err != nil {
				w.log.Error("watching new directory failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			return
		}
	}

	if !mediaExts[strings.ToLower(filepath.Ext(ev.Name))] {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.markUnavailable(ctx, ev.Name)
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		w.refresh(ctx, ev.Name)
	}
}

func (w *Watcher) markUnavailable(ctx context.Context, path string) {
	v, err := w.store.GetVideoByPath(ctx, path)
	if errors.Is(err, catalog.ErrNotFound) {
		return
	}
	if err != nil {
		w.log.Error("looking up removed file failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	if err := w.store.SetVideoAvailable(ctx, v.ID, false); err != nil {
		w.log.Error("marking video unavailable failed",
			slog.Int64("video_id", v.ID),
			slog.String("error", err.Error()))
		return
	}
	w.invalidate(v.ID)
	w.log.Info("video marked unavailable", slog.Int64("video_id", v.ID), slog.String("path", path))
}

func (w *Watcher) refresh(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	md, err := w.prober.Probe(ctx, path)
	if err != nil {
		w.log.Debug("probing changed file failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	v, err := w.store.GetVideoByPath(ctx, path)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := w.store.CreateVideo(ctx, catalog.Video{
			Title:     title,
			Path:      path,
			Available: true,
			Duration:  md.Duration.Seconds(),
			Size:      info.Size(),
		}); err != nil {
			w.log.Error("adding new file failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return
		}
		w.log.Info("video added", slog.String("path", path))
	case err != nil:
		w.log.Error("looking up changed file failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	default:
		if err := w.store.UpdateVideoMetadata(ctx, v.ID, md.Duration.Seconds(), info.Size()); err != nil {
			w.log.Error("updating changed file failed",
				slog.Int64("video_id", v.ID),
				slog.String("error", err.Error()))
			return
		}
		w.invalidate(v.ID)
		w.log.Info("video refreshed", slog.Int64("video_id", v.ID), slog.String("path", path))
	}
}

func (w *Watcher) invalidate(videoID int64) {
	if w.invalidator == nil {
		return
	}
	if err := w.invalidator.DeleteCacheForVideo(videoID); err != nil {
		w.log.Error("invalidating segment cache failed",
			slog.Int64("video_id", videoID),
			slog.String("error", err.Error()))
	}
}
