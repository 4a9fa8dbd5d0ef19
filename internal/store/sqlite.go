package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// InitDB creates the schema.
func InitDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS enrollments (
		user_id TEXT NOT NULL,
		course_slug TEXT NOT NULL,
		pathway_slug TEXT NOT NULL DEFAULT '',
		enrolled_at TEXT NOT NULL,
		enrollment_source TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		completed_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, course_slug)
	);

	CREATE TABLE IF NOT EXISTS module_progress (
		user_id TEXT NOT NULL,
		course_slug TEXT NOT NULL,
		module_id TEXT NOT NULL,
		started INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, course_slug, module_id)
	);

	CREATE TABLE IF NOT EXISTS badges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		badge_key TEXT NOT NULL DEFAULT '',
		issued_at TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_badges_user ON badges(user_id, issued_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_badges_key ON badges(user_id, type, badge_key) WHERE badge_key != '';
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens dsn with the sqlite driver and initialises the schema.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; in-memory databases are per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping is used by the health check.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func (s *SQLiteStore) ListEnrollments(ctx context.Context, userID string) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT course_slug, pathway_slug, enrolled_at, enrollment_source, status, completed_at
		 FROM enrollments WHERE user_id = ? ORDER BY course_slug`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Enrollment{}
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.CourseSlug, &e.PathwaySlug, &e.EnrolledAt, &e.EnrollmentSource, &e.Status, &e.CompletedAt); err != nil {
			return nil, err
		}
		if e.Status == "" {
			e.Status = StatusActive
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetEnrollment(ctx context.Context, userID, courseSlug string) (Enrollment, error) {
	var e Enrollment
	err := s.db.QueryRowContext(ctx,
		`SELECT course_slug, pathway_slug, enrolled_at, enrollment_source, status, completed_at
		 FROM enrollments WHERE user_id = ? AND course_slug = ?`, userID, courseSlug,
	).Scan(&e.CourseSlug, &e.PathwaySlug, &e.EnrolledAt, &e.EnrollmentSource, &e.Status, &e.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, fmt.Errorf("enrollment %s: %w", courseSlug, ErrNotFound)
	}
	return e, err
}

// CreateEnrollment stores an active enrollment stamped with the current time.
func (s *SQLiteStore) CreateEnrollment(ctx context.Context, userID string, e Enrollment) (Enrollment, error) {
	e.EnrolledAt = s.timestamp()
	e.Status = StatusActive
	e.CompletedAt = ""
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (user_id, course_slug, pathway_slug, enrolled_at, enrollment_source, status)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(user_id, course_slug) DO NOTHING`,
		userID, e.CourseSlug, e.PathwaySlug, e.EnrolledAt, e.EnrollmentSource, e.Status)
	if err != nil {
		return Enrollment{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Enrollment{}, err
	} else if n == 0 {
		return Enrollment{}, fmt.Errorf("enrollment %s: %w", e.CourseSlug, ErrAlreadyEnrolled)
	}
	return e, nil
}

func (s *SQLiteStore) DeleteEnrollment(ctx context.Context, userID, courseSlug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enrollments WHERE user_id = ? AND course_slug = ?`, userID, courseSlug)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("enrollment %s: %w", courseSlug, ErrNotFound)
	}
	return nil
}

// CompleteEnrollment marks an enrollment completed. Missing enrollments are
// not an error.
func (s *SQLiteStore) CompleteEnrollment(ctx context.Context, userID, courseSlug string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE enrollments SET status = 'completed', completed_at = ?
		 WHERE user_id = ? AND course_slug = ? AND completed_at = ''`,
		s.timestamp(), userID, courseSlug)
	return err
}

func (s *SQLiteStore) CourseProgress(ctx context.Context, userID, courseSlug string) (map[string]ModuleProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT module_id, started, started_at, completed, completed_at
		 FROM module_progress WHERE user_id = ? AND course_slug = ?`, userID, courseSlug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]ModuleProgress{}
	for rows.Next() {
		var mp ModuleProgress
		if err := rows.Scan(&mp.ModuleID, &mp.Started, &mp.StartedAt, &mp.Completed, &mp.CompletedAt); err != nil {
			return nil, err
		}
		out[mp.ModuleID] = mp
	}
	return out, rows.Err()
}

// UpdateProgress applies ev to one module. Started keeps its first timestamp;
// completed stamps completed_at and implies started.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, userID, courseSlug, moduleID string, ev ProgressEvent) (ModuleProgress, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModuleProgress{}, err
	}
	defer tx.Rollback()

	mp := ModuleProgress{ModuleID: moduleID}
	err = tx.QueryRowContext(ctx,
		`SELECT started, started_at, completed, completed_at FROM module_progress
		 WHERE user_id = ? AND course_slug = ? AND module_id = ?`, userID, courseSlug, moduleID,
	).Scan(&mp.Started, &mp.StartedAt, &mp.Completed, &mp.CompletedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ModuleProgress{}, err
	}

	now := s.timestamp()
	switch ev {
	case ProgressStarted:
		mp.Started = true
	case ProgressCompleted:
		mp.Completed = true
		mp.CompletedAt = now
		mp.Started = true
	default:
		return ModuleProgress{}, fmt.Errorf("store: unknown progress event %q", ev)
	}
	if mp.StartedAt == "" {
		mp.StartedAt = now
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO module_progress (user_id, course_slug, module_id, started, started_at, completed, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, course_slug, module_id) DO UPDATE SET
		   started = excluded.started, started_at = excluded.started_at,
		   completed = excluded.completed, completed_at = excluded.completed_at`,
		userID, courseSlug, moduleID, mp.Started, mp.StartedAt, mp.Completed, mp.CompletedAt)
	if err != nil {
		return ModuleProgress{}, err
	}
	return mp, tx.Commit()
}

// ListBadges returns badges newest first.
func (s *SQLiteStore) ListBadges(ctx context.Context, userID string) ([]Badge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issued_at, type, metadata FROM badges WHERE user_id = ? ORDER BY issued_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Badge{}
	for rows.Next() {
		var b Badge
		var meta string
		if err := rows.Scan(&b.BadgeID, &b.IssuedAt, &b.Type, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &b.Metadata); err != nil {
			return nil, fmt.Errorf("badge %s metadata: %w", b.BadgeID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BadgeKey is the metadata field that makes a badge unique per user and type.
const BadgeKey = "slug"

// IssueBadge stores b with a fresh id and timestamp. Badges are unique per
// user, type and metadata slug; a repeat insert is silently ignored.
func (s *SQLiteStore) IssueBadge(ctx context.Context, userID string, b Badge) (Badge, error) {
	b.BadgeID = uuid.NewString()
	b.IssuedAt = s.timestamp()
	meta, err := json.Marshal(b.Metadata)
	if err != nil {
		return Badge{}, err
	}
	if b.Metadata == nil {
		meta = []byte("{}")
	}
	key, _ := b.Metadata[BadgeKey].(string)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO badges (id, user_id, type, badge_key, issued_at, metadata) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		b.BadgeID, userID, b.Type, key, b.IssuedAt, string(meta))
	if err != nil {
		return Badge{}, err
	}
	return b, nil
}

func (s *SQLiteStore) HasBadge(ctx context.Context, userID, badgeType, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM badges WHERE user_id = ? AND type = ? AND badge_key = ?`, userID, badgeType, key).Scan(&n)
	return n > 0, err
}

var _ Store = (*SQLiteStore)(nil)
