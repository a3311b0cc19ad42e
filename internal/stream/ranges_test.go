package stream

import (
	"errors"
	"testing"
)

func TestParseRange_empty(t *testing.T) {
	r, err := parseRange("", 1000)
	if err != nil || r != nil {
		t.Errorf("empty header should be (nil, nil), got %v, %v", r, err)
	}
}

func TestParseRange_valid(t *testing.T) {
	tests := []struct {
		header     string
		size       int64
		start, end int64
	}{
		{"bytes=0-499", 1000, 0, 499},
		{"bytes=500-999", 1000, 500, 999},
		{"bytes=500-", 1000, 500, 999},
		{"bytes=0-0", 1000, 0, 0},
		{"bytes=0-5000", 1000, 0, 999},  // end clipped to size-1
		{"bytes=-500", 1000, 500, 999},  // suffix form
		{"bytes=-5000", 1000, 0, 999},   // suffix larger than file
		{"bytes=999-999", 1000, 999, 999},
	}
	for _, tt := range tests {
		r, err := parseRange(tt.header, tt.size)
		if err != nil {
			t.Errorf("parseRange(%q): unexpected error %v", tt.header, err)
			continue
		}
		if r.start != tt.start || r.end != tt.end {
			t.Errorf("parseRange(%q) = %d-%d, want %d-%d", tt.header, r.start, r.end, tt.start, tt.end)
		}
	}
}

func TestParseRange_lenientFallback(t *testing.T) {
	// These are malformed or unsupported; the caller serves the full file.
	headers := []string{
		"items=0-499",
		"bytes=abc-def",
		"bytes=",
		"bytes=12",
		"bytes=0-1,5-9",
		"bytes=500-200",
		"bytes=-0",
	}
	for _, h := range headers {
		r, err := parseRange(h, 1000)
		if err == nil {
			t.Errorf("parseRange(%q) should fail, got %v", h, r)
		}
		if errors.Is(err, errUnsatisfiable) {
			t.Errorf("parseRange(%q) should not be unsatisfiable", h)
		}
	}
}

func TestParseRange_unsatisfiable(t *testing.T) {
	for _, h := range []string{"bytes=1000-", "bytes=1000-2000", "bytes=5000-200"} {
		_, err := parseRange(h, 1000)
		if !errors.Is(err, errUnsatisfiable) {
			t.Errorf("parseRange(%q) should be unsatisfiable, got %v", h, err)
		}
	}
}

func TestByteRange_helpers(t *testing.T) {
	r := byteRange{start: 10, end: 19}
	if r.length() != 10 {
		t.Errorf("length = %d, want 10", r.length())
	}
	if got := r.contentRange(100); got != "bytes 10-19/100" {
		t.Errorf("contentRange = %q", got)
	}
}
