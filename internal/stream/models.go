package stream

import (
	"context"
	"time"
)

// VideoAsset is the read-only view of a catalogued video that the delivery
// subsystem consumes. Path has already been resolved by the catalogue but is
// re-checked against the video root before any file is opened.
type VideoAsset struct {
	ID        int64
	Path      string
	Available bool
	Duration  time.Duration
}

// ClipRange is a time-bounded slice of a source video. The catalogue
// guarantees Start < End and both within the source duration.
type ClipRange struct {
	VideoID int64
	Start   time.Duration
	End     time.Duration
}

// Library resolves assets for the delivery subsystem. Implementations return
// stream errors of KindNotFound for unknown ids.
type Library interface {
	ResolveVideo(ctx context.Context, id int64) (VideoAsset, error)
	ResolveClip(ctx context.Context, id int64) (ClipRange, error)
}
