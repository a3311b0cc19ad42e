package stream

import (
	"path/filepath"
	"strings"
)

const (
	manifestContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
	clipContentType     = "video/mp4"
)

// mimeTypes maps media file extensions to Content-Type values.
var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".ts":   segmentContentType,
	".m3u8": manifestContentType,
}

// ContentTypeFor returns the Content-Type for a media file path, falling back
// to application/octet-stream for unknown extensions.
func ContentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
