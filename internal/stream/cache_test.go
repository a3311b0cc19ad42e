package stream

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, lib *fakeLibrary, tc *fakeTranscoder, cfg SegmentCacheConfig) *SegmentCache {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	return NewSegmentCache(cfg, lib, tc, NewDirStore(cfg.Root), testLogger(), nil)
}

func libraryWithVideo(id int64, path string, duration time.Duration) *fakeLibrary {
	return &fakeLibrary{videos: map[int64]VideoAsset{
		id: {ID: id, Path: path, Available: true, Duration: duration},
	}}
}

func TestSegmentCache_GenerateManifest_cachesSecondCall(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 120*time.Second+500*time.Millisecond)
	tc := &fakeTranscoder{segments: 13}
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{})

	first, err := cache.GenerateManifest(context.Background(), 1)
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}
	if tc.startCount() != 1 {
		t.Fatalf("expected 1 transcode, got %d", tc.startCount())
	}
	if got := strings.Count(first, "#EXTINF:"); got != 13 {
		t.Errorf("expected 13 segments in manifest, got %d", got)
	}

	second, err := cache.GenerateManifest(context.Background(), 1)
	if err != nil {
		t.Fatalf("GenerateManifest (cached): %v", err)
	}
	if second != first {
		t.Error("cached manifest must be byte-identical")
	}
	if tc.startCount() != 1 {
		t.Errorf("cached call re-invoked the transcoder (%d starts)", tc.startCount())
	}
}

func TestSegmentCache_GenerateManifest_regeneratesAfterDelete(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	tc := &fakeTranscoder{segments: 3}
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{})

	if _, err := cache.GenerateManifest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := cache.DeleteCacheForVideo(1); err != nil {
		t.Fatalf("DeleteCacheForVideo: %v", err)
	}
	if _, err := cache.GenerateManifest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if tc.startCount() != 2 {
		t.Errorf("expected regeneration after explicit delete, got %d starts", tc.startCount())
	}
}

func TestSegmentCache_GenerateManifest_pathSnapshotMismatch(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	tc := &fakeTranscoder{segments: 3}
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{})

	if _, err := cache.GenerateManifest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	// The library file moved; the snapshot no longer matches.
	lib.mu.Lock()
	lib.videos[1] = VideoAsset{ID: 1, Path: "/videos/moved.mp4", Available: true, Duration: 30 * time.Second}
	lib.mu.Unlock()

	if _, err := cache.GenerateManifest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if tc.startCount() != 2 {
		t.Errorf("expected regeneration after path change, got %d starts", tc.startCount())
	}
}

func TestSegmentCache_GenerateManifest_missingManifestFile(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	tc := &fakeTranscoder{segments: 3}
	root := t.TempDir()
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{Root: root})

	if _, err := cache.GenerateManifest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "1", manifestFileName)); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GenerateManifest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if tc.startCount() != 2 {
		t.Errorf("expected regeneration after manifest loss, got %d starts", tc.startCount())
	}
}

func TestSegmentCache_GenerateManifest_singleflight(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	release := make(chan struct{})
	tc := &fakeTranscoder{segments: 3, block: release}
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{})

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GenerateManifest(context.Background(), 1)
		}(i)
	}

	// Give every worker a chance to reach the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("worker %d saw a different manifest", i)
		}
	}
	if tc.startCount() != 1 {
		t.Errorf("concurrent first generation ran %d transcodes, want 1", tc.startCount())
	}
}

func TestSegmentCache_GenerateManifest_timeout(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	tc := &fakeTranscoder{segments: 3, block: make(chan struct{})} // never released
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{GenerationTimeout: 50 * time.Millisecond})

	_, err := cache.GenerateManifest(context.Background(), 1)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
	if tc.killCount() != 1 {
		t.Errorf("timed-out transcode was not killed (%d kills)", tc.killCount())
	}
}

func TestSegmentCache_GenerateManifest_transcodeFailure(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	tc := &fakeTranscoder{waitErr: os.ErrDeadlineExceeded}
	root := t.TempDir()
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{Root: root})

	_, err := cache.GenerateManifest(context.Background(), 1)
	if !IsKind(err, KindTranscode) {
		t.Fatalf("expected KindTranscode, got %v", err)
	}
	if e, _ := NewDirStore(root).Get(1); e != nil {
		t.Error("failed generation must not leave a sidecar behind")
	}
}

func TestSegmentCache_GenerateManifest_unavailableVideo(t *testing.T) {
	lib := &fakeLibrary{videos: map[int64]VideoAsset{
		1: {ID: 1, Path: "/videos/a.mp4", Available: false, Duration: 30 * time.Second},
	}}
	cache := newTestCache(t, lib, &fakeTranscoder{}, SegmentCacheConfig{})

	_, err := cache.GenerateManifest(context.Background(), 1)
	if !IsKind(err, KindUnavailable) {
		t.Fatalf("expected KindUnavailable, got %v", err)
	}
}

func TestSegmentCache_SegmentPath(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	tc := &fakeTranscoder{segments: 3}
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{})

	if _, err := cache.GenerateManifest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	path, err := cache.SegmentPath(context.Background(), 1, "segment001.ts")
	if err != nil {
		t.Fatalf("SegmentPath: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("returned path not on disk: %v", err)
	}

	if _, err := cache.SegmentPath(context.Background(), 1, "segment999.ts"); !IsKind(err, KindNotFound) {
		t.Errorf("ungenerated segment should be KindNotFound, got %v", err)
	}
}

func TestSegmentCache_SegmentPath_rejectsBadNames(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	cache := newTestCache(t, lib, &fakeTranscoder{segments: 3}, SegmentCacheConfig{})

	bad := []string{
		"",
		"segment1.ts",
		"segment0001.ts",
		"segment000.mp4",
		"../cache.json",
		"segment000.ts/../../etc/passwd",
		"..",
		"a/segment000.ts",
		"SEGMENT000.TS",
		"segment000.ts ",
	}
	for _, name := range bad {
		if _, err := cache.SegmentPath(context.Background(), 1, name); !IsKind(err, KindValidation) {
			t.Errorf("SegmentPath(%q) should be KindValidation, got %v", name, err)
		}
	}
}

func TestSegmentCache_SegmentPath_withoutCache(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	cache := newTestCache(t, lib, &fakeTranscoder{}, SegmentCacheConfig{})

	if _, err := cache.SegmentPath(context.Background(), 1, "segment000.ts"); !IsKind(err, KindNotFound) {
		t.Errorf("expected KindNotFound without a cache entry, got %v", err)
	}
}

func TestSegmentCache_SegmentPath_refreshesAccessTime(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	tc := &fakeTranscoder{segments: 3}
	root := t.TempDir()
	cache := newTestCache(t, lib, tc, SegmentCacheConfig{Root: root})

	if _, err := cache.GenerateManifest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	later := time.Now().Add(48 * time.Hour)
	cache.now = func() time.Time { return later }

	if _, err := cache.SegmentPath(context.Background(), 1, "segment000.ts"); err != nil {
		t.Fatal(err)
	}

	entry, err := NewDirStore(root).Get(1)
	if err != nil || entry == nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if !entry.LastAccessedAt.Equal(later) {
		t.Errorf("LastAccessedAt = %v, want %v", entry.LastAccessedAt, later)
	}
}

func TestSegmentCache_CleanupOldCache(t *testing.T) {
	lib := libraryWithVideo(1, "/videos/a.mp4", 30*time.Second)
	root := t.TempDir()
	store := NewDirStore(root)
	cache := NewSegmentCache(SegmentCacheConfig{Root: root, MaxAge: 7 * 24 * time.Hour},
		lib, &fakeTranscoder{}, store, testLogger(), nil)

	now := time.Now()
	cache.now = func() time.Time { return now }

	// Entry last accessed 6 days ago survives; 8 days ago is evicted.
	put := func(id int64, age time.Duration) {
		t.Helper()
		if err := store.Put(id, &Entry{
			VideoID:        id,
			SourcePath:     "/videos/a.mp4",
			CreatedAt:      now.Add(-age),
			LastAccessedAt: now.Add(-age),
			SegmentCount:   3,
		}); err != nil {
			t.Fatal(err)
		}
	}
	put(1, 6*24*time.Hour)
	put(2, 8*24*time.Hour)

	removed, err := cache.CleanupOldCache()
	if err != nil {
		t.Fatalf("CleanupOldCache: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if e, _ := store.Get(1); e == nil {
		t.Error("6-day-old entry should survive")
	}
	if e, _ := store.Get(2); e != nil {
		t.Error("8-day-old entry should be evicted")
	}
	if _, err := os.Stat(filepath.Join(root, "2")); !os.IsNotExist(err) {
		t.Error("evicted entry's directory should be gone")
	}
}

func TestDirStore_roundtrip(t *testing.T) {
	store := NewDirStore(t.TempDir())

	if e, err := store.Get(5); err != nil || e != nil {
		t.Fatalf("missing entry should be (nil, nil), got %v, %v", e, err)
	}

	want := &Entry{
		VideoID:        5,
		SourcePath:     "/videos/x.mp4",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		LastAccessedAt: time.Now().UTC().Truncate(time.Second),
		SegmentCount:   7,
	}
	if err := store.Put(5, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(5)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.SourcePath != want.SourcePath || got.SegmentCount != want.SegmentCount {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	entries, err := store.List()
	if err != nil || len(entries) != 1 {
		t.Fatalf("List: %v, %v", entries, err)
	}

	if err := store.Delete(5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if e, _ := store.Get(5); e != nil {
		t.Error("entry should be gone after Delete")
	}
}
