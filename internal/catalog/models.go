package catalog

import "time"

// Video is a catalogued media file inside the library root.
type Video struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Available bool      `json:"available"`
	Duration  float64   `json:"duration_seconds"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clip is a time-bounded slice of a video. Start and End are seconds from
// the beginning of the source, with Start < End <= Video.Duration.
type Clip struct {
	ID        int64     `json:"id"`
	VideoID   int64     `json:"video_id"`
	Title     string    `json:"title"`
	Start     float64   `json:"start_seconds"`
	End       float64   `json:"end_seconds"`
	CreatedAt time.Time `json:"created_at"`
}

// Playlist is an ordered collection of clips.
type Playlist struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	Items     []PlaylistItem `json:"items"`
}

// PlaylistItem places a clip at a position within a playlist. Positions are
// dense and zero-based.
type PlaylistItem struct {
	ClipID   int64 `json:"clip_id"`
	Position int   `json:"position"`
}
