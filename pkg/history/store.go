package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"catbot/pkg/models"
)

// Store keeps post and run records for the dashboard and the daily quota.
// It is observability only: the post ledger, not this store, decides what
// was already posted.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordPost stores a post record and sets its ID
func (s *Store) RecordPost(ctx context.Context, rec *models.PostRecord) error {
	if strings.TrimSpace(rec.MediaID) == "" {
		return errors.New("media_id is required")
	}
	if rec.Outcome == "" {
		return errors.New("outcome is required")
	}
	if rec.PostedAt.IsZero() {
		rec.PostedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts(posted_at, media_id, media_type, source_account, caption, outcome, error, published_id)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(rec.PostedAt), rec.MediaID, string(rec.Type), rec.Account, rec.Caption,
		string(rec.Outcome), rec.Error, rec.PublishedID,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("post id: %w", err)
	}
	rec.ID = id
	return nil
}

// RecentPosts returns up to limit post records, newest first
func (s *Store) RecentPosts(ctx context.Context, limit int) ([]models.PostRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, posted_at, media_id, media_type, source_account, caption, outcome, error, published_id
		FROM posts ORDER BY posted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var out []models.PostRecord
	for rows.Next() {
		var (
			rec      models.PostRecord
			postedAt int64
			kind     string
			outcome  string
		)
		if err := rows.Scan(&rec.ID, &postedAt, &rec.MediaID, &kind, &rec.Account, &rec.Caption,
			&outcome, &rec.Error, &rec.PublishedID); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		rec.PostedAt = fromMillis(postedAt)
		rec.Type = models.MediaType(kind)
		rec.Outcome = models.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountPostsSince counts post records at or after since with the given
// outcome.
func (s *Store) CountPostsSince(ctx context.Context, since time.Time, outcome models.Outcome) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts WHERE posted_at >= ? AND outcome = ?",
		toMillis(since), string(outcome),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// RecordRun stores a run record and sets its ID
func (s *Store) RecordRun(ctx context.Context, rec *models.RunRecord) error {
	if rec.Status == "" {
		return errors.New("status is required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs(started_at, finished_at, status, message, posted, media_id, mode, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(rec.StartedAt), toMillis(rec.FinishedAt), string(rec.Status), rec.Message,
		rec.Posted, rec.MediaID, rec.Mode, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	rec.ID = id
	return nil
}

// LastRun returns the most recent run, or nil when there is none
func (s *Store) LastRun(ctx context.Context) (*models.RunRecord, error) {
	var (
		rec        models.RunRecord
		startedAt  int64
		finishedAt int64
		status     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, message, posted, media_id, mode, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	).Scan(&rec.ID, &startedAt, &finishedAt, &status, &rec.Message, &rec.Posted, &rec.MediaID, &rec.Mode, &rec.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}

	rec.StartedAt = fromMillis(startedAt)
	rec.FinishedAt = fromMillis(finishedAt)
	rec.Status = models.RunStatus(status)
	return &rec, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
