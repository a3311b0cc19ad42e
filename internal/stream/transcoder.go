package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

// Job describes one invocation of the external transcoding tool.
// Exactly one of the two output modes is used: when OutputDir is empty the
// process writes a fragmented MP4 clip to stdout; otherwise it writes
// fixed-duration MPEG-TS segments into OutputDir.
type Job struct {
	Source string

	// Clip trimming (stdout mode).
	ClipStart time.Duration
	ClipEnd   time.Duration

	// Segmenting (file mode).
	OutputDir       string
	SegmentDuration time.Duration
	SegmentPattern  string
}

// Handle is a running transcode owned by the caller. The caller must call
// Wait exactly once and must Kill the handle when abandoning it early.
type Handle interface {
	// Output is the process's stdout. It is nil for file-mode jobs.
	Output() io.ReadCloser
	// Wait blocks until the process exits and returns its exit error.
	Wait() error
	// Kill forcibly terminates the process. Safe to call after exit.
	Kill() error
}

// Transcoder starts external media processes.
type Transcoder interface {
	Start(ctx context.Context, job Job) (Handle, error)
}

// FFmpeg runs jobs through an ffmpeg binary. Stderr is drained to the logger
// at debug level; it is diagnostic output, never control flow.
type FFmpeg struct {
	bin string
	log *slog.Logger
}

// NewFFmpeg returns a Transcoder invoking the given ffmpeg binary.
func NewFFmpeg(bin string, log *slog.Logger) *FFmpeg {
	return &FFmpeg{bin: bin, log: log}
}

// Start implements Transcoder.
func (f *FFmpeg) Start(ctx context.Context, job Job) (Handle, error) {
	args := buildArgs(job)
	cmd := exec.CommandContext(ctx, f.bin, args...)

	var stdout io.ReadCloser
	if job.OutputDir == "" {
		var err error
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return nil, WrapErr(KindInternal, "pipe ffmpeg stdout", err)
		}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, WrapErr(KindInternal, "pipe ffmpeg stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, WrapErr(KindTranscode, "start ffmpeg", err)
	}
	f.log.Debug("ffmpeg started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("source", job.Source))

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			f.log.Debug("ffmpeg", slog.Int("pid", cmd.Process.Pid), slog.String("line", sc.Text()))
		}
	}()

	return &process{cmd: cmd, stdout: stdout}, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (p *process) Output() io.ReadCloser { return p.stdout }

func (p *process) Wait() error { return p.cmd.Wait() }

func (p *process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// buildArgs is the argument contract with the external tool. Clips are
// stream-copied into a fragmented MP4 so players can start before the full
// container index exists; segmenting stream-copies into numbered MPEG-TS
// files with timestamps reset per segment.
func buildArgs(job Job) []string {
	args := []string{"-hide_banner", "-nostats"}

	if job.OutputDir == "" {
		return append(args,
			"-ss", formatSeconds(job.ClipStart),
			"-i", job.Source,
			"-t", formatSeconds(job.ClipEnd-job.ClipStart),
			"-c", "copy",
			"-movflags", "frag_keyframe+empty_moov",
			"-f", "mp4",
			"pipe:1",
		)
	}

	return append(args,
		"-i", job.Source,
		"-c", "copy",
		"-map", "0",
		"-f", "segment",
		"-segment_time", formatSeconds(job.SegmentDuration),
		"-segment_format", "mpegts",
		"-reset_timestamps", "1",
		filepath.Join(job.OutputDir, job.SegmentPattern),
	)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
