package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by store lookups for missing rows.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	title            TEXT NOT NULL,
	path             TEXT NOT NULL UNIQUE,
	available        INTEGER NOT NULL DEFAULT 1,
	duration_seconds REAL NOT NULL DEFAULT 0,
	size_bytes       INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS clips (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id      INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	title         TEXT NOT NULL,
	start_seconds REAL NOT NULL,
	end_seconds   REAL NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS playlists (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS playlist_items (
	playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
	clip_id     INTEGER NOT NULL REFERENCES clips(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	PRIMARY KEY (playlist_id, position)
);
CREATE INDEX IF NOT EXISTS idx_clips_video_id ON clips(video_id);
`

// Store is the SQLite-backed persistence layer for the catalogue.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the catalogue database at path.
func OpenStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalogue db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalogue schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies database connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// CreateVideo inserts a video and returns it with its assigned id.
func (s *Store) CreateVideo(ctx context.Context, v Video) (Video, error) {
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (title, path, available, duration_seconds, size_bytes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.Title, v.Path, v.Available, v.Duration, v.Size, now.Unix(), now.Unix())
	if err != nil {
		return Video{}, fmt.Errorf("insert video: %w", err)
	}
	v.ID, err = res.LastInsertId()
	if err != nil {
		return Video{}, fmt.Errorf("video id: %w", err)
	}
	return v, nil
}

// GetVideo returns the video with the given id, or ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, id int64) (Video, error) {
	return s.scanVideo(s.db.QueryRowContext(ctx,
		`SELECT id, title, path, available, duration_seconds, size_bytes, created_at, updated_at
		 FROM videos WHERE id = ?`, id))
}

// GetVideoByPath returns the video with the given source path, or ErrNotFound.
func (s *Store) GetVideoByPath(ctx context.Context, path string) (Video, error) {
	return s.scanVideo(s.db.QueryRowContext(ctx,
		`SELECT id, title, path, available, duration_seconds, size_bytes, created_at, updated_at
		 FROM videos WHERE path = ?`, path))
}

// ListVideos returns all videos ordered by title.
func (s *Store) ListVideos(ctx context.Context) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, path, available, duration_seconds, size_bytes, created_at, updated_at
		 FROM videos ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := s.scanVideoRow(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// UpdateVideoMetadata refreshes the probed metadata of a video and marks it
// available again.
func (s *Store) UpdateVideoMetadata(ctx context.Context, id int64, duration float64, size int64) error {
	return s.exec(ctx,
		`UPDATE videos SET duration_seconds = ?, size_bytes = ?, available = 1, updated_at = ? WHERE id = ?`,
		duration, size, time.Now().UTC().Unix(), id)
}

// SetVideoAvailable flips the availability flag of a video.
func (s *Store) SetVideoAvailable(ctx context.Context, id int64, available bool) error {
	return s.exec(ctx,
		`UPDATE videos SET available = ?, updated_at = ? WHERE id = ?`,
		available, time.Now().UTC().Unix(), id)
}

// DeleteVideo removes a video; its clips cascade.
func (s *Store) DeleteVideo(ctx context.Context, id int64) error {
	return s.exec(ctx, `DELETE FROM videos WHERE id = ?`, id)
}

// CreateClip inserts a clip and returns it with its assigned id.
func (s *Store) CreateClip(ctx context.Context, c Clip) (Clip, error) {
	c.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clips (video_id, title, start_seconds, end_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.VideoID, c.Title, c.Start, c.End, c.CreatedAt.Unix())
	if err != nil {
		return Clip{}, fmt.Errorf("insert clip: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return Clip{}, fmt.Errorf("clip id: %w", err)
	}
	return c, nil
}

// GetClip returns the clip with the given id, or ErrNotFound.
func (s *Store) GetClip(ctx context.Context, id int64) (Clip, error) {
	var c Clip
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, video_id, title, start_seconds, end_seconds, created_at FROM clips WHERE id = ?`, id).
		Scan(&c.ID, &c.VideoID, &c.Title, &c.Start, &c.End, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Clip{}, ErrNotFound
	}
	if err != nil {
		return Clip{}, fmt.Errorf("get clip: %w", err)
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	return c, nil
}

// ListClipsByVideo returns all clips of a video ordered by start time.
func (s *Store) ListClipsByVideo(ctx context.Context, videoID int64) ([]Clip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, title, start_seconds, end_seconds, created_at
		 FROM clips WHERE video_id = ? ORDER BY start_seconds, id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	var clips []Clip
	for rows.Next() {
		var c Clip
		var created int64
		if err := rows.Scan(&c.ID, &c.VideoID, &c.Title, &c.Start, &c.End, &created); err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		c.CreatedAt = time.Unix(created, 0).UTC()
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

// DeleteClip removes a clip; playlist items referencing it cascade.
func (s *Store) DeleteClip(ctx context.Context, id int64) error {
	return s.exec(ctx, `DELETE FROM clips WHERE id = ?`, id)
}

// CreatePlaylist inserts an empty playlist and returns it with its id.
func (s *Store) CreatePlaylist(ctx context.Context, name string) (Playlist, error) {
	p := Playlist{Name: name, CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (name, created_at) VALUES (?, ?)`, p.Name, p.CreatedAt.Unix())
	if err != nil {
		return Playlist{}, fmt.Errorf("insert playlist: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return Playlist{}, fmt.Errorf("playlist id: %w", err)
	}
	return p, nil
}

// GetPlaylist returns a playlist with its items in position order, or
// ErrNotFound.
func (s *Store) GetPlaylist(ctx context.Context, id int64) (Playlist, error) {
	var p Playlist
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM playlists WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Playlist{}, ErrNotFound
	}
	if err != nil {
		return Playlist{}, fmt.Errorf("get playlist: %w", err)
	}
	p.CreatedAt = time.Unix(created, 0).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT clip_id, position FROM playlist_items WHERE playlist_id = ? ORDER BY position`, id)
	if err != nil {
		return Playlist{}, fmt.Errorf("list playlist items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it PlaylistItem
		if err := rows.Scan(&it.ClipID, &it.Position); err != nil {
			return Playlist{}, fmt.Errorf("scan playlist item: %w", err)
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

// ListPlaylists returns all playlists without their items.
func (s *Store) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM playlists ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		var p Playlist
		var created int64
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// DeletePlaylist removes a playlist; its items cascade.
func (s *Store) DeletePlaylist(ctx context.Context, id int64) error {
	return s.exec(ctx, `DELETE FROM playlists WHERE id = ?`, id)
}

// ReplacePlaylistItems atomically replaces the item ordering of a playlist.
func (s *Store) ReplacePlaylistItems(ctx context.Context, playlistID int64, clipIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_items WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("clear playlist items: %w", err)
	}
	for pos, clipID := range clipIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO playlist_items (playlist_id, clip_id, position) VALUES (?, ?, ?)`,
			playlistID, clipID, pos); err != nil {
			return fmt.Errorf("insert playlist item: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanVideo(row *sql.Row) (Video, error) {
	v, err := s.scanVideoRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	return v, err
}

func (s *Store) scanVideoRow(row rowScanner) (Video, error) {
	var v Video
	var created, updated int64
	err := row.Scan(&v.ID, &v.Title, &v.Path, &v.Available, &v.Duration, &v.Size, &created, &updated)
	if err != nil {
		return Video{}, err
	}
	v.CreatedAt = time.Unix(created, 0).UTC()
	v.UpdatedAt = time.Unix(updated, 0).UTC()
	return v, nil
}
