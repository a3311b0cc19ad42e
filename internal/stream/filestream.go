package stream

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"media-library/internal/platform/metrics"
)

// FileStreamer serves byte ranges of on-disk media files. Every path it
// touches must canonicalize to a location inside the configured root.
type FileStreamer struct {
	root    string
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewFileStreamer returns a FileStreamer rooted at root. Metrics may be nil.
func NewFileStreamer(root string, log *slog.Logger, m *metrics.Metrics) *FileStreamer {
	return &FileStreamer{root: root, log: log, metrics: m}
}

// ResolveWithin canonicalizes path (resolving symlinks) and verifies the
// result lies inside the streamer's root. Escaping paths yield a validation
// error, missing ones a not-found error.
func (s *FileStreamer) ResolveWithin(path string) (string, error) {
	root, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return "", WrapErr(KindInternal, "resolve video root", err)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", Errf(KindNotFound, "source file %q does not exist", path)
		}
		return "", WrapErr(KindInternal, "resolve source path", err)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", Errf(KindValidation, "path %q escapes the video root", path)
	}
	return resolved, nil
}

// ServeFile streams the file at path to the client, honoring a single-range
// Range header. Unparsable or inverted ranges degrade to a full 200 response;
// a range starting past EOF yields 416. The path must already have passed
// ResolveWithin.
func (s *FileStreamer) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Errf(KindNotFound, "source file %q does not exist", path)
		}
		return WrapErr(KindInternal, "stat source file", err)
	}
	size := info.Size()

	rng, err := parseRange(r.Header.Get("Range"), size)
	if errors.Is(err, errUnsatisfiable) {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	if err != nil {
		// Lenient policy: fall back to the whole file.
		s.log.Debug("ignoring unusable range header",
			slog.String("range", r.Header.Get("Range")),
			slog.String("error", err.Error()))
		rng = nil
	}

	f, err := os.Open(path)
	if err != nil {
		return WrapErr(KindInternal, "open source file", err)
	}
	defer f.Close()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", ContentTypeFor(path))

	var reader io.Reader = f
	status := http.StatusOK
	length := size
	if rng != nil {
		if _, err := f.Seek(rng.start, io.SeekStart); err != nil {
			return WrapErr(KindInternal, "seek source file", err)
		}
		reader = io.LimitReader(f, rng.length())
		length = rng.length()
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", rng.contentRange(size))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}

	// A failed copy usually means the client went away; the deferred Close
	// releases the handle either way.
	n, copyErr := io.Copy(w, reader)
	if s.metrics != nil {
		s.metrics.AddBytesStreamed(n)
	}
	if copyErr != nil {
		s.log.Debug("file stream interrupted",
			slog.String("path", path),
			slog.Int64("bytes_sent", n),
			slog.String("error", copyErr.Error()))
	}
	return nil
}
