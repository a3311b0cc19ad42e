package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/singleflight"

	"media-library/internal/platform/metrics"
)

const (
	manifestFileName = "index.m3u8"
	sidecarFileName  = "cache.json"
	segmentPattern   = "segment%03d.ts"

	// DefaultSegmentDuration is the fixed length of generated segments.
	DefaultSegmentDuration = 10 * time.Second
	// DefaultCacheMaxAge is how long an untouched cache entry survives.
	DefaultCacheMaxAge = 7 * 24 * time.Hour
	// DefaultGenerationTimeout caps a full-video segmenting transcode.
	DefaultGenerationTimeout = 10 * time.Minute
)

// segmentNameRe is the only shape of segment name ever served. Anything else,
// including names with path separators or dot-dot, is rejected before any
// filesystem access.
var segmentNameRe = regexp.MustCompile(`^segment\d{3}\.ts$`)

// Entry is the sidecar metadata stored next to a video's cached segments.
// SourcePath snapshots the asset path at generation time; the entry is only
// valid while the catalogue still resolves the video to the same path.
type Entry struct {
	VideoID        int64     `json:"video_id"`
	SourcePath     string    `json:"source_path"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	SegmentCount   int       `json:"segment_count"`
}

// CacheStore persists cache entries. Get returns (nil, nil) for a missing
// entry; Delete removes the entry and everything cached alongside it.
type CacheStore interface {
	Get(videoID int64) (*Entry, error)
	Put(videoID int64, e *Entry) error
	Delete(videoID int64) error
	List() ([]*Entry, error)
}

// DirStore keeps each entry as a JSON sidecar inside the per-video cache
// directory, co-located with the segment and manifest files it describes.
type DirStore struct {
	root string
}

// NewDirStore returns a DirStore rooted at the cache directory.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) dir(videoID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(videoID, 10))
}

// Get implements CacheStore. A corrupt sidecar reads as a missing entry; the
// next generation overwrites it.
func (s *DirStore) Get(videoID int64) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(videoID), sidecarFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapErr(KindInternal, "read cache sidecar", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, nil
	}
	return &e, nil
}

// Put implements CacheStore. The sidecar is written atomically so readers
// never observe a half-written entry.
func (s *DirStore) Put(videoID int64, e *Entry) error {
	dir := s.dir(videoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WrapErr(KindInternal, "create cache directory", err)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return WrapErr(KindInternal, "encode cache sidecar", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, sidecarFileName), data, 0o644); err != nil {
		return WrapErr(KindInternal, "write cache sidecar", err)
	}
	return nil
}

// Delete implements CacheStore, removing the whole per-video directory.
func (s *DirStore) Delete(videoID int64) error {
	if err := os.RemoveAll(s.dir(videoID)); err != nil {
		return WrapErr(KindInternal, "remove cache directory", err)
	}
	return nil
}

// List implements CacheStore, scanning the cache root for per-video
// directories with readable sidecars.
func (s *DirStore) List() ([]*Entry, error) {
	dirs, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapErr(KindInternal, "scan cache root", err)
	}
	var entries []*Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(d.Name(), 10, 64)
		if err != nil {
			continue
		}
		e, err := s.Get(id)
		if err != nil || e == nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SegmentCacheConfig carries the tunables of a SegmentCache. Zero values fall
// back to the package defaults.
type SegmentCacheConfig struct {
	Root              string
	SegmentDuration   time.Duration
	MaxAge            time.Duration
	GenerationTimeout time.Duration
}

// SegmentCache generates and disk-caches fixed-duration segments plus a
// manifest per video. First-time generation for a video is collapsed through
// a singleflight group so concurrent requests share one transcode instead of
// racing on the same files.
type SegmentCache struct {
	cfg     SegmentCacheConfig
	library Library
	tc      Transcoder
	store   CacheStore
	group   singleflight.Group
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewSegmentCache returns a SegmentCache. Metrics may be nil.
func NewSegmentCache(cfg SegmentCacheConfig, library Library, tc Transcoder, store CacheStore, log *slog.Logger, m *metrics.Metrics) *SegmentCache {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = DefaultSegmentDuration
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultCacheMaxAge
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	return &SegmentCache{
		cfg:     cfg,
		library: library,
		tc:      tc,
		store:   store,
		now:     time.Now,
		log:     log,
		metrics: m,
	}
}

func (c *SegmentCache) dir(videoID int64) string {
	return filepath.Join(c.cfg.Root, strconv.FormatInt(videoID, 10))
}

func (c *SegmentCache) manifestPath(videoID int64) string {
	return filepath.Join(c.dir(videoID), manifestFileName)
}

// GenerateManifest returns the manifest text for videoID, running a full
// segmenting transcode first unless a valid cache entry already exists.
// Valid means: entry present, manifest file on disk, and the path snapshot
// matching the asset's currently resolved path.
func (c *SegmentCache) GenerateManifest(ctx context.Context, videoID int64) (string, error) {
	asset, err := c.resolveAvailable(ctx, videoID)
	if err != nil {
		return "", err
	}

	entry, err := c.store.Get(videoID)
	if err != nil {
		return "", err
	}
	if c.entryValid(entry, asset) {
		c.touch(entry)
		if c.metrics != nil {
			c.metrics.IncCacheHits()
		}
		return c.readManifest(videoID)
	}

	if c.metrics != nil {
		c.metrics.IncCacheMisses()
	}
	key := strconv.FormatInt(videoID, 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.generate(asset)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// generate runs the segmenting transcode and writes segments, manifest, and
// sidecar. It re-checks entry validity first: a caller that lost the
// singleflight race arrives here after the winner already generated.
func (c *SegmentCache) generate(asset VideoAsset) (string, error) {
	entry, err := c.store.Get(asset.ID)
	if err != nil {
		return "", err
	}
	if c.entryValid(entry, asset) {
		c.touch(entry)
		return c.readManifest(asset.ID)
	}

	dir := c.dir(asset.ID)
	if err := os.RemoveAll(dir); err != nil {
		return "", WrapErr(KindInternal, "clear cache directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", WrapErr(KindInternal, "create cache directory", err)
	}

	// Generation is shared across waiting requests, so it is bounded by the
	// wall-clock ceiling rather than any single caller's context.
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.GenerationTimeout)
	defer cancel()

	start := c.now()
	c.log.Info("generating segments",
		slog.Int64("video_id", asset.ID),
		slog.String("source", asset.Path))
	if c.metrics != nil {
		c.metrics.IncTranscodesStarted()
	}

	handle, err := c.tc.Start(ctx, Job{
		Source:          asset.Path,
		OutputDir:       dir,
		SegmentDuration: c.cfg.SegmentDuration,
		SegmentPattern:  segmentPattern,
	})
	if err != nil {
		return "", err
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- handle.Wait() }()
	select {
	case err = <-waitCh:
	case <-ctx.Done():
		_ = handle.Kill()
		<-waitCh
		if c.metrics != nil {
			c.metrics.IncTranscodesFailed()
		}
		return "", Errf(KindTimeout, "segment generation for video %d exceeded %s", asset.ID, c.cfg.GenerationTimeout)
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncTranscodesFailed()
		}
		return "", WrapErr(KindTranscode, "segmenting transcode failed", err)
	}

	plan := PlanSegments(asset.Duration, c.cfg.SegmentDuration)
	manifest := BuildVODPlaylist(plan)
	if err := renameio.WriteFile(c.manifestPath(asset.ID), []byte(manifest), 0o644); err != nil {
		return "", WrapErr(KindInternal, "write manifest", err)
	}

	now := c.now()
	if err := c.store.Put(asset.ID, &Entry{
		VideoID:        asset.ID,
		SourcePath:     asset.Path,
		CreatedAt:      now,
		LastAccessedAt: now,
		SegmentCount:   len(plan),
	}); err != nil {
		return "", err
	}

	c.log.Info("segments generated",
		slog.Int64("video_id", asset.ID),
		slog.Int("segments", len(plan)),
		slog.Int64("duration_ms", c.now().Sub(start).Milliseconds()))
	return manifest, nil
}

// SegmentPath validates segmentName, refreshes the entry's access time, and
// returns the on-disk path of the segment for the caller to stream.
func (c *SegmentCache) SegmentPath(ctx context.Context, videoID int64, segmentName string) (string, error) {
	if !segmentNameRe.MatchString(segmentName) {
		return "", Errf(KindValidation, "invalid segment name %q", segmentName)
	}

	if _, err := c.resolveAvailable(ctx, videoID); err != nil {
		return "", err
	}

	entry, err := c.store.Get(videoID)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", Errf(KindNotFound, "no segment cache for video %d", videoID)
	}
	c.touch(entry)

	path := filepath.Join(c.dir(videoID), segmentName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", Errf(KindNotFound, "segment %q not cached for video %d", segmentName, videoID)
		}
		return "", WrapErr(KindInternal, "stat segment", err)
	}
	return path, nil
}

// CleanupOldCache removes every cache entry whose age, measured from its last
// access, exceeds the configured maximum, and returns the count removed. It
// is invoked by an external scheduler; the cache never sweeps on its own.
func (c *SegmentCache) CleanupOldCache() (int, error) {
	entries, err := c.store.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	now := c.now()
	for _, e := range entries {
		if now.Sub(e.LastAccessedAt) <= c.cfg.MaxAge {
			continue
		}
		if err := c.store.Delete(e.VideoID); err != nil {
			c.log.Error("evicting cache entry failed",
				slog.Int64("video_id", e.VideoID),
				slog.String("error", err.Error()))
			continue
		}
		c.log.Info("cache entry evicted",
			slog.Int64("video_id", e.VideoID),
			slog.Time("last_accessed_at", e.LastAccessedAt))
		removed++
	}
	if c.metrics != nil && removed > 0 {
		c.metrics.AddCacheEvictions(removed)
	}
	return removed, nil
}

// DeleteCacheForVideo removes the per-video cache directory outright, e.g.
// when the source video is deleted or modified.
func (c *SegmentCache) DeleteCacheForVideo(videoID int64) error {
	c.group.Forget(strconv.FormatInt(videoID, 10))
	return c.store.Delete(videoID)
}

// EntryCount reports the number of cache entries, for the metrics gauge.
func (c *SegmentCache) EntryCount() int {
	entries, err := c.store.List()
	if err != nil {
		return 0
	}
	return len(entries)
}

func (c *SegmentCache) resolveAvailable(ctx context.Context, videoID int64) (VideoAsset, error) {
	asset, err := c.library.ResolveVideo(ctx, videoID)
	if err != nil {
		return VideoAsset{}, err
	}
	if !asset.Available {
		return VideoAsset{}, Errf(KindUnavailable, "video %d is unavailable", videoID)
	}
	return asset, nil
}

func (c *SegmentCache) entryValid(entry *Entry, asset VideoAsset) bool {
	if entry == nil || entry.SourcePath != asset.Path {
		return false
	}
	_, err := os.Stat(c.manifestPath(asset.ID))
	return err == nil
}

// touch refreshes the entry's last access time. The read-modify-write can
// lose updates under concurrent access; that only shifts eviction timing,
// never served content.
func (c *SegmentCache) touch(entry *Entry) {
	entry.LastAccessedAt = c.now()
	if err := c.store.Put(entry.VideoID, entry); err != nil {
		c.log.Debug("refreshing cache access time failed",
			slog.Int64("video_id", entry.VideoID),
			slog.String("error", err.Error()))
	}
}

func (c *SegmentCache) readManifest(videoID int64) (string, error) {
	data, err := os.ReadFile(c.manifestPath(videoID))
	if err != nil {
		return "", WrapErr(KindInternal, "read manifest", err)
	}
	return string(data), nil
}
