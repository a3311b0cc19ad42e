package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Metadata is what a probe extracts from a media file.
type Metadata struct {
	Duration   time.Duration
	Container  string
	VideoCodec string
}

// Prober extracts media metadata from a file on disk.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// FFProbe probes files with an ffprobe binary.
type FFProbe struct {
	bin string
}

// NewFFProbe returns a Prober invoking the given ffprobe binary.
func NewFFProbe(bin string) *FFProbe {
	return &FFProbe{bin: bin}
}

type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Probe implements Prober.
func (p *FFProbe) Probe(ctx context.Context, path string) (Metadata, error) {
	out, err := exec.CommandContext(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	md := Metadata{Container: parsed.Format.FormatName}
	if parsed.Format.Duration != "" {
		secs, err := strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return Metadata{}, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
		}
		md.Duration = time.Duration(secs * float64(time.Second))
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "video" {
			md.VideoCodec = s.CodecName
			break
		}
	}
	return md, nil
}
