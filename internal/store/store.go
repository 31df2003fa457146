package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection that indexes rendered segments.
type Store struct {
	conn *pgx.Conn
}

// SegmentRow is one rendered segment as recorded in the index.
type SegmentRow struct {
	ID         int64
	VideoID    string
	VideoPath  string
	Ordinal    int
	StartTime  float64
	EndTime    float64
	FirstFrame int
	LastFrame  int
	Frames     int
	OutputPath string
	Reference  string
	CreatedAt  time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_segments (
			id BIGSERIAL PRIMARY KEY,
			video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
			ordinal INT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL,
			first_frame INT NOT NULL,
			last_frame INT NOT NULL,
			frame_count INT NOT NULL,
			output_path TEXT NOT NULL,
			reference_path TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (video_id, ordinal)
		);
		CREATE INDEX IF NOT EXISTS face_segments_video_id_idx ON face_segments (video_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureVideo registers the video and drops segments from any previous run
// over it, so re-extracting the same file never duplicates rows.
func (s *Store) EnsureVideo(ctx context.Context, videoID, path string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM face_segments WHERE video_id = $1", videoID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO videos (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertSegment records one rendered segment and returns its row id.
func (s *Store) InsertSegment(ctx context.Context, row SegmentRow) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO face_segments (video_id, ordinal, start_time, end_time, first_frame, last_frame, frame_count, output_path, reference_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, row.VideoID, row.Ordinal, row.StartTime, row.EndTime, row.FirstFrame, row.LastFrame, row.Frames, row.OutputPath, row.Reference).Scan(&id)
	return id, err
}

// ListSegments returns indexed segments ordered by video and ordinal. An empty
// videoID lists every video.
func (s *Store) ListSegments(ctx context.Context, videoID string) ([]SegmentRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT f.id, f.video_id, v.path, f.ordinal, f.start_time, f.end_time,
		       f.first_frame, f.last_frame, f.frame_count, f.output_path, f.reference_path, f.created_at
		FROM face_segments f
		JOIN videos v ON v.id = f.video_id
		WHERE $1 = '' OR f.video_id = $1
		ORDER BY v.indexed_at, f.video_id, f.ordinal
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SegmentRow
	for rows.Next() {
		var r SegmentRow
		if err := rows.Scan(&r.ID, &r.VideoID, &r.VideoPath, &r.Ordinal, &r.StartTime, &r.EndTime,
			&r.FirstFrame, &r.LastFrame, &r.Frames, &r.OutputPath, &r.Reference, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS face_segments CASCADE;
		DROP TABLE IF EXISTS videos CASCADE;
	`)
	return err
}
