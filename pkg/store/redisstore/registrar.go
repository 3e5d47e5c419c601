// Package redisstore keeps course rosters in Redis and publishes enrollment
// notifications over Redis pub/sub.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const backend = "redis"

// enrollScript adds a student to a roster unless the student is already in
// it or the course hash caps the roster. Returns 1 on success, 0 for a
// duplicate and -1 when full.
var enrollScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	return 0
end
local capacity = redis.call('HGET', KEYS[1], 'capacity')
if capacity and redis.call('SCARD', KEYS[2]) >= tonumber(capacity) then
	return -1
end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// Registrar implements enrollment.Registrar and enrollment.Catalog on Redis.
type Registrar struct {
	redis  *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRegistrar creates a registrar. An empty prefix uses DefaultPrefix.
func NewRegistrar(redisClient *redis.Client, prefix string, logger zerolog.Logger) *Registrar {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Registrar{
		redis:  redisClient,
		prefix: prefix,
		logger: logger,
	}
}

// UpsertCourse stores the course definition in its hash.
func (r *Registrar) UpsertCourse(ctx context.Context, course enrollment.Course) error {
	if course.ID == "" {
		return fmt.Errorf("%w: course id is required", enrollment.ErrInvalidRequest)
	}
	err := r.redis.HSet(ctx, courseKey(r.prefix, course.ID),
		"code", course.Code,
		"title", course.Title,
		"capacity", course.Capacity,
	).Err()
	store.Observe(backend, "upsert_course", err)
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Course implements enrollment.Catalog.
func (r *Registrar) Course(ctx context.Context, courseID string) (enrollment.Course, error) {
	fields, err := r.redis.HGetAll(ctx, courseKey(r.prefix, courseID)).Result()
	store.Observe(backend, "course", err)
	if err != nil {
		return enrollment.Course{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return enrollment.Course{}, fmt.Errorf("%w: %s", store.ErrCourseNotFound, courseID)
	}

	capacity, err := strconv.Atoi(fields["capacity"])
	if err != nil {
		return enrollment.Course{}, fmt.Errorf("course %s: invalid capacity %q: %w", courseID, fields["capacity"], err)
	}
	return enrollment.Course{
		ID:       courseID,
		Code:     fields["code"],
		Title:    fields["title"],
		Capacity: capacity,
	}, nil
}

// EnrolledCount implements enrollment.Registrar.
func (r *Registrar) EnrolledCount(ctx context.Context, courseID string) (int, error) {
	n, err := r.redis.SCard(ctx, rosterKey(r.prefix, courseID)).Result()
	store.Observe(backend, "count", err)
	if err != nil {
		return 0, fmt.Errorf("redis scard: %w", err)
	}
	return int(n), nil
}

// IsEnrolled implements enrollment.Registrar.
func (r *Registrar) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	ok, err := r.redis.SIsMember(ctx, rosterKey(r.prefix, courseID), studentID).Result()
	store.Observe(backend, "is_enrolled", err)
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// Enroll implements enrollment.Registrar.
func (r *Registrar) Enroll(ctx context.Context, studentID, courseID string) (bool, error) {
	keys := []string{courseKey(r.prefix, courseID), rosterKey(r.prefix, courseID)}
	code, err := enrollScript.Run(ctx, r.redis, keys, studentID).Int()
	store.Observe(backend, "enroll", err)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, fmt.Errorf("redis enroll script returned nil")
		}
		return false, fmt.Errorf("redis enroll script: %w", err)
	}

	switch code {
	case 1:
		return true, nil
	case -1:
		store.CapacityRejections.WithLabelValues(backend).Inc()
		r.logger.Warn().
			Str("student_id", studentID).
			Str("course_id", courseID).
			Msg("Redis capacity guard refused enrollment")
		return false, nil
	default:
		return false, nil
	}
}

// Roster returns the enrolled student IDs of a course.
func (r *Registrar) Roster(ctx context.Context, courseID string) ([]string, error) {
	ids, err := r.redis.SMembers(ctx, rosterKey(r.prefix, courseID)).Result()
	store.Observe(backend, "roster", err)
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	return ids, nil
}
