package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-library/internal/catalog"
)

type fakeProber struct {
	mu       sync.Mutex
	duration time.Duration
	probes   int
}

func (p *fakeProber) Probe(ctx context.Context, path string) (Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	return Metadata{Duration: p.duration, Container: "mov,mp4,m4a", VideoCodec: "h264"}, nil
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []int64
}

func (f *fakeInvalidator) DeleteCacheForVideo(videoID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, videoID)
	return nil
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestScanner(t *testing.T) (*Scanner, *catalog.Store, *fakeInvalidator, string) {
	t.Helper()
	root := t.TempDir()
	store, err := catalog.OpenStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	inv := &fakeInvalidator{}
	s := New(root, store, &fakeProber{duration: 90 * time.Second}, inv, testLogger())
	return s, store, inv, root
}

func writeMedia(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanner_addsNewFiles(t *testing.T) {
	s, store, _, root := newTestScanner(t)
	writeMedia(t, root, "a.mp4", "aaaa")
	writeMedia(t, root, "sub/b.mkv", "bbbb")
	writeMedia(t, root, "notes.txt", "ignored")

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Added != 2 || res.Updated != 0 || res.Missing != 0 {
		t.Errorf("result = %+v, want 2 added", res)
	}

	videos, err := store.ListVideos(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	for _, v := range videos {
		if !v.Available || v.Duration != 90 {
			t.Errorf("video %+v not probed correctly", v)
		}
	}
	if videos[0].Title != "a" && videos[1].Title != "a" {
		t.Errorf("title should come from the file name: %+v", videos)
	}
}

func TestScanner_secondScanIsIdempotent(t *testing.T) {
	s, _, _, root := newTestScanner(t)
	writeMedia(t, root, "a.mp4", "aaaa")

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 0 || res.Updated != 0 || res.Missing != 0 {
		t.Errorf("unchanged library should be a no-op, got %+v", res)
	}
}

func TestScanner_marksVanishedUnavailable(t *testing.T) {
	s, store, inv, root := newTestScanner(t)
	path := writeMedia(t, root, "a.mp4", "aaaa")

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Missing != 1 {
		t.Errorf("result = %+v, want 1 missing", res)
	}

	v, err := store.GetVideoByPath(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if v.Available {
		t.Error("vanished file should be unavailable")
	}
	if inv.count() != 1 {
		t.Errorf("stale segment cache should be invalidated, got %d invalidations", inv.count())
	}
}

func TestScanner_reprobesChangedFiles(t *testing.T) {
	s, store, inv, root := newTestScanner(t)
	path := writeMedia(t, root, "a.mp4", "aaaa")

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	writeMedia(t, root, "a.mp4", "aaaa-grew-longer")

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 {
		t.Errorf("result = %+v, want 1 updated", res)
	}

	v, _ := store.GetVideoByPath(context.Background(), path)
	if v.Size != int64(len("aaaa-grew-longer")) {
		t.Errorf("size not refreshed: %+v", v)
	}
	if inv.count() != 1 {
		t.Errorf("changed source should invalidate its cache, got %d", inv.count())
	}
}

func TestWatcher_stopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	store, err := catalog.OpenStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	w := NewWatcher(root, store, &fakeProber{duration: time.Minute}, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}
