package stream

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ManifestSegment is one entry of a VOD playlist: a segment file name and its
// duration in seconds.
type ManifestSegment struct {
	Name     string
	Duration float64
}

// PlanSegments splits a source of the given total duration into fixed-length
// segments, the last one partial. Names follow the zero-padded pattern the
// segmenting transcode writes (segment000.ts, segment001.ts, ...).
func PlanSegments(total, segment time.Duration) []ManifestSegment {
	if total <= 0 || segment <= 0 {
		return nil
	}
	count := int(math.Ceil(total.Seconds() / segment.Seconds()))
	segs := make([]ManifestSegment, 0, count)
	remaining := total.Seconds()
	for i := 0; i < count; i++ {
		d := segment.Seconds()
		if remaining < d {
			d = remaining
		}
		segs = append(segs, ManifestSegment{
			Name:     fmt.Sprintf("segment%03d.ts", i),
			Duration: d,
		})
		remaining -= d
	}
	return segs
}

// BuildVODPlaylist converts planned segments into a VOD playlist string
// consumable by standard HLS players. An empty plan produces a minimal valid
// playlist.
func BuildVODPlaylist(segments []ManifestSegment) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDurationFromSegments(segments)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n\n")

	for _, seg := range segments {
		b.WriteString(fmt.Sprintf("#EXTINF:%.3f,\n", seg.Duration))
		b.WriteString(seg.Name)
		b.WriteString("\n")
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// targetDurationFromSegments returns the #EXT-X-TARGETDURATION value:
// the ceiling of the maximum segment duration in seconds (integer).
func targetDurationFromSegments(segments []ManifestSegment) int {
	max := 0.0
	for _, seg := range segments {
		if seg.Duration > max {
			max = seg.Duration
		}
	}
	if max <= 0 {
		return 1
	}
	return int(math.Ceil(max))
}
