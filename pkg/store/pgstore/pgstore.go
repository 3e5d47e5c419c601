// Package pgstore keeps courses and rosters in PostgreSQL.
//
// Enroll locks the course row with SELECT ... FOR UPDATE, so concurrent
// commits for one course serialize in the database even across processes.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const backend = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS courses (
	id       TEXT PRIMARY KEY,
	code     TEXT NOT NULL DEFAULT '',
	title    TEXT NOT NULL DEFAULT '',
	capacity INTEGER NOT NULL CHECK (capacity >= 0)
);

CREATE TABLE IF NOT EXISTS enrollments (
	course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	student_id  TEXT NOT NULL,
	enrolled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (course_id, student_id)
);
`

// Store implements enrollment.Registrar and enrollment.Catalog.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on pool.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgx pool cannot be nil")
	}
	return &Store{pool: pool}
}

// Connect parses dsn, opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// UpsertCourse inserts or updates a course.
func (s *Store) UpsertCourse(ctx context.Context, course enrollment.Course) error {
	if course.ID == "" {
		return fmt.Errorf("%w: course id is required", enrollment.ErrInvalidRequest)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courses (id, code, title, capacity) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, title = EXCLUDED.title, capacity = EXCLUDED.capacity`,
		course.ID, course.Code, course.Title, course.Capacity)
	store.Observe(backend, "upsert_course", err)
	if err != nil {
		return fmt.Errorf("upsert course %s: %w", course.ID, err)
	}
	return nil
}

// Course implements enrollment.Catalog.
func (s *Store) Course(ctx context.Context, courseID string) (enrollment.Course, error) {
	c := enrollment.Course{ID: courseID}
	err := s.pool.QueryRow(ctx,
		`SELECT code, title, capacity FROM courses WHERE id = $1`, courseID,
	).Scan(&c.Code, &c.Title, &c.Capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		store.Observe(backend, "course", nil)
		return enrollment.Course{}, fmt.Errorf("%w: %s", store.ErrCourseNotFound, courseID)
	}
	store.Observe(backend, "course", err)
	if err != nil {
		return enrollment.Course{}, fmt.Errorf("query course %s: %w", courseID, err)
	}
	return c, nil
}

// EnrolledCount implements enrollment.Registrar.
func (s *Store) EnrolledCount(ctx context.Context, courseID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM enrollments WHERE course_id = $1`, courseID,
	).Scan(&n)
	store.Observe(backend, "count", err)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return n, nil
}

// IsEnrolled implements enrollment.Registrar.
func (s *Store) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)`,
		courseID, studentID,
	).Scan(&exists)
	store.Observe(backend, "is_enrolled", err)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// Enroll implements enrollment.Registrar. Unknown courses are rejected.
func (s *Store) Enroll(ctx context.Context, studentID, courseID string) (ok bool, err error) {
	defer func() { store.Observe(backend, "enroll", err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	var capacity int
	err = tx.QueryRow(ctx, `SELECT capacity FROM courses WHERE id = $1 FOR UPDATE`, courseID).Scan(&capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock course: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM enrollments WHERE course_id = $1`, courseID).Scan(&count); err != nil {
		return false, fmt.Errorf("count enrollments: %w", err)
	}
	if count >= capacity {
		store.CapacityRejections.WithLabelValues(backend).Inc()
		return false, nil
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO enrollments (course_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		courseID, studentID)
	if err != nil {
		return false, fmt.Errorf("insert enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit enrollment: %w", err)
	}
	return true, nil
}

// Roster returns the enrolled student IDs of a course in enrollment order.
func (s *Store) Roster(ctx context.Context, courseID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT student_id FROM enrollments WHERE course_id = $1 ORDER BY enrolled_at, student_id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan roster: %w", err)
	}
	return ids, nil
}
