package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/campus-records/pkg/engine"
	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/scheduler"
	"github.com/rs/zerolog"
)

// courseFill is one row of the fill audit.
type courseFill struct {
	Course   enrollment.Course
	Enrolled int
}

// scheduleAudit periodically recounts every seeded course as a batch and
// logs courses that are full.
func scheduleAudit(eng *engine.Engine, reg enrollment.Registrar, courses []enrollment.Course, period time.Duration, logger zerolog.Logger) (*scheduler.Handle, error) {
	supplier := func(ctx context.Context) ([]courseFill, error) {
		rows := make([]courseFill, len(courses))
		for i, c := range courses {
			rows[i] = courseFill{Course: c}
		}
		return rows, nil
	}

	recount := func(ctx context.Context, row courseFill) (courseFill, error) {
		n, err := reg.EnrolledCount(ctx, row.Course.ID)
		if err != nil {
			return row, fmt.Errorf("course %s: %w", row.Course.ID, err)
		}
		row.Enrolled = n
		if n >= row.Course.Capacity {
			logger.Info().
				Str("course_id", row.Course.ID).
				Int("enrolled", n).
				Int("capacity", row.Course.Capacity).
				Msg("Course is full")
		}
		return row, nil
	}

	return engine.ScheduleBatch(eng, "course-fill-audit", supplier, recount, period, period)
}
