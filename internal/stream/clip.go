package stream

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"media-library/internal/platform/metrics"
)

// ClipStreamer transcodes [start,end) of a source file on demand and pipes
// the subprocess output straight into the HTTP response. Output is generated
// fresh per request, so ranges are not supported.
type ClipStreamer struct {
	tc      Transcoder
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewClipStreamer returns a ClipStreamer using the given Transcoder.
// Metrics may be nil.
func NewClipStreamer(tc Transcoder, log *slog.Logger, m *metrics.Metrics) *ClipStreamer {
	return &ClipStreamer{tc: tc, log: log, metrics: m}
}

// Stream serves the clip as a chunked fragmented-MP4 body. The response
// status is only committed once the first output byte arrives: a subprocess
// that dies before producing anything yields 500, one that dies mid-stream
// simply terminates the body (the status line is already on the wire).
// Client disconnects cancel the request context and force-kill the process.
func (c *ClipStreamer) Stream(w http.ResponseWriter, r *http.Request, source string, start, end time.Duration) error {
	handle, err := c.tc.Start(r.Context(), Job{
		Source:    source,
		ClipStart: start,
		ClipEnd:   end,
	})
	if err != nil {
		return err
	}
	// The context kills the process on disconnect for the real transcoder;
	// this covers early copy failures and any other implementation.
	defer handle.Kill()

	if c.metrics != nil {
		c.metrics.IncTranscodesStarted()
	}

	cw := &commitWriter{w: w, header: func() {
		w.Header().Set("Content-Type", clipContentType)
		w.Header().Set("Accept-Ranges", "none")
		w.WriteHeader(http.StatusOK)
	}}

	n, copyErr := io.Copy(cw, handle.Output())
	waitErr := handle.Wait()

	if c.metrics != nil {
		c.metrics.AddBytesStreamed(n)
		if waitErr != nil {
			c.metrics.IncTranscodesFailed()
		}
	}

	if waitErr != nil && n == 0 {
		return WrapErr(KindTranscode, "clip transcode failed before any output", waitErr)
	}
	if waitErr != nil || copyErr != nil {
		// Mid-stream failure or client disconnect; nothing left to send.
		c.log.Debug("clip stream ended early",
			slog.String("source", source),
			slog.Int64("bytes_sent", n),
			slog.Any("wait_error", waitErr),
			slog.Any("copy_error", copyErr))
	}
	return nil
}

// commitWriter defers the status line until the first body byte so pre-output
// subprocess failures can still become a clean 500. Each chunk is flushed for
// progressive playback.
type commitWriter struct {
	w         http.ResponseWriter
	header    func()
	committed bool
}

func (c *commitWriter) Write(p []byte) (int, error) {
	if !c.committed {
		c.committed = true
		c.header()
	}
	n, err := c.w.Write(p)
	if f, ok := c.w.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}
