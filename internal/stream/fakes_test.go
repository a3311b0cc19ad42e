package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// fakeLibrary is an in-memory Library for tests.
type fakeLibrary struct {
	mu     sync.Mutex
	videos map[int64]VideoAsset
	clips  map[int64]ClipRange
	calls  int
}

func (l *fakeLibrary) ResolveVideo(ctx context.Context, id int64) (VideoAsset, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	v, ok := l.videos[id]
	if !ok {
		return VideoAsset{}, Errf(KindNotFound, "video %d not found", id)
	}
	return v, nil
}

func (l *fakeLibrary) ResolveClip(ctx context.Context, id int64) (ClipRange, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	c, ok := l.clips[id]
	if !ok {
		return ClipRange{}, Errf(KindNotFound, "clip %d not found", id)
	}
	return c, nil
}

func (l *fakeLibrary) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// fakeTranscoder simulates the external process. Segment jobs write
// `segments` dummy files into the job's output dir; clip jobs expose
// clipOutput on stdout. If block is non-nil, Wait hangs until block is closed
// or the handle is killed.
type fakeTranscoder struct {
	mu         sync.Mutex
	starts     int
	kills      int
	segments   int
	waitErr    error
	block      chan struct{}
	clipOutput []byte
}

func (tc *fakeTranscoder) Start(ctx context.Context, job Job) (Handle, error) {
	tc.mu.Lock()
	tc.starts++
	tc.mu.Unlock()
	h := &fakeHandle{tc: tc, job: job, killed: make(chan struct{})}
	if job.OutputDir == "" {
		h.out = io.NopCloser(bytes.NewReader(tc.clipOutput))
	}
	return h, nil
}

func (tc *fakeTranscoder) startCount() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.starts
}

func (tc *fakeTranscoder) killCount() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.kills
}

type fakeHandle struct {
	tc       *fakeTranscoder
	job      Job
	out      io.ReadCloser
	killed   chan struct{}
	killOnce sync.Once
}

func (h *fakeHandle) Output() io.ReadCloser { return h.out }

func (h *fakeHandle) Wait() error {
	if h.tc.block != nil {
		select {
		case <-h.tc.block:
		case <-h.killed:
			return errors.New("killed")
		}
	}
	if h.tc.waitErr != nil {
		return h.tc.waitErr
	}
	if h.job.OutputDir != "" {
		for i := 0; i < h.tc.segments; i++ {
			name := fmt.Sprintf("segment%03d.ts", i)
			if err := os.WriteFile(filepath.Join(h.job.OutputDir, name), []byte("segment-data"), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.killOnce.Do(func() {
		close(h.killed)
		h.tc.mu.Lock()
		h.tc.kills++
		h.tc.mu.Unlock()
	})
	return nil
}
