package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// byteRange is a single inclusive byte range within a file of known size.
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 { return r.end - r.start + 1 }

func (r byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.start, r.end, size)
}

// errUnsatisfiable marks a syntactically valid range that starts at or past
// the end of the file. Unlike a malformed header this cannot be served
// leniently and yields 416.
var errUnsatisfiable = errors.New("range not satisfiable")

// parseRange parses a single-range Range header against a file of the given
// size. It returns nil when header is empty. A malformed header, a multi-range
// request, or start > end returns an ordinary error; the caller degrades to a
// full 200 response (lenient policy). An end past EOF is clipped to size-1.
func parseRange(header string, size int64) (*byteRange, error) {
	if header == "" {
		return nil, nil
	}

	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("unsupported range unit in %q", header)
	}
	spec := header[len(prefix):]

	if strings.Contains(spec, ",") {
		return nil, fmt.Errorf("multiple ranges not supported: %q", header)
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return nil, fmt.Errorf("malformed range %q", header)
	}
	startPart, endPart := spec[:dash], spec[dash+1:]

	// Suffix form "-N": the last N bytes.
	if startPart == "" {
		n, err := strconv.ParseInt(endPart, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("malformed suffix range %q", header)
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		return &byteRange{start: start, end: size - 1}, nil
	}

	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("malformed range start %q", header)
	}

	end := size - 1
	if endPart != "" {
		end, err = strconv.ParseInt(endPart, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed range end %q", header)
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start >= size {
		return nil, errUnsatisfiable
	}
	if start > end {
		return nil, fmt.Errorf("inverted range %q", header)
	}

	return &byteRange{start: start, end: end}, nil
}
