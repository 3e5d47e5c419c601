package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/campus-records/pkg/engine"
	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/metrics"
	"github.com/Sternrassler/campus-records/pkg/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// server is the admin HTTP API.
type server struct {
	engine         *engine.Engine
	courses        courseStore
	requestTimeout time.Duration
	logger         zerolog.Logger
}

func newServer(eng *engine.Engine, courses courseStore, requestTimeout time.Duration, logger zerolog.Logger) *server {
	return &server{
		engine:         eng,
		courses:        courses,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Put("/courses/{courseID}", s.handlePutCourse)
		r.Get("/courses/{courseID}", s.handleGetCourse)
		r.Post("/enrollments", s.handleEnroll)
	})

	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

type courseRequest struct {
	Code     string `json:"code"`
	Title    string `json:"title"`
	Capacity int    `json:"capacity"`
}

func (s *server) handlePutCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Capacity < 0 {
		writeError(w, http.StatusBadRequest, "capacity must be non-negative")
		return
	}

	course := enrollment.Course{
		ID:       chi.URLParam(r, "courseID"),
		Code:     req.Code,
		Title:    req.Title,
		Capacity: req.Capacity,
	}
	if err := s.courses.UpsertCourse(r.Context(), course); err != nil {
		s.logger.Error().Err(err).Str("course_id", course.ID).Msg("Course upsert failed")
		writeError(w, http.StatusInternalServerError, "could not store course")
		return
	}
	writeJSON(w, http.StatusOK, course)
}

type courseResponse struct {
	enrollment.Course
	Enrolled int `json:"enrolled"`
}

func (s *server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	course, ok := s.lookupCourse(w, r, chi.URLParam(r, "courseID"))
	if !ok {
		return
	}
	enrolled, err := s.courses.EnrolledCount(r.Context(), course.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("course_id", course.ID).Msg("Enrolled count failed")
		writeError(w, http.StatusBadGateway, "could not count enrollments")
		return
	}
	writeJSON(w, http.StatusOK, courseResponse{Course: course, Enrolled: enrolled})
}

type enrollRequest struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	CourseID    string `json:"course_id"`
	Priority    string `json:"priority"`
}

type enqueuedResponse struct {
	ID         string `json:"id"`
	Priority   string `json:"priority"`
	QueueDepth int    `json:"queue_depth"`
}

// handleEnroll queues a request, or with ?sync=1 runs it under the request
// timeout and returns the result.
func (s *server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.StudentID == "" || req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "student_id and course_id are required")
		return
	}
	priority, err := enrollment.ParsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	course, ok := s.lookupCourse(w, r, req.CourseID)
	if !ok {
		return
	}
	student := enrollment.Student{ID: req.StudentID, Name: req.StudentName}

	if r.URL.Query().Get("sync") == "1" {
		s.enrollSync(w, r, student, course)
		return
	}

	queued, err := s.engine.EnqueueEnrollment(student, course, priority)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine is shutting down")
		return
	}
	writeJSON(w, http.StatusAccepted, enqueuedResponse{
		ID:         queued.ID,
		Priority:   queued.Priority.String(),
		QueueDepth: s.engine.Stats().QueueDepth,
	})
}

func (s *server) enrollSync(w http.ResponseWriter, r *http.Request, student enrollment.Student, course enrollment.Course) {
	fut, err := s.engine.WithTimeout(r.Context(), student, course, s.requestTimeout)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine is shutting down")
		return
	}

	res, err := fut.Wait(r.Context())
	if err != nil {
		// Client went away; nothing to write to.
		return
	}

	writeJSON(w, statusFor(res), res)
}

func (s *server) lookupCourse(w http.ResponseWriter, r *http.Request, courseID string) (enrollment.Course, bool) {
	course, err := s.courses.Course(r.Context(), courseID)
	if errors.Is(err, store.ErrCourseNotFound) {
		writeError(w, http.StatusNotFound, "course not found")
		return enrollment.Course{}, false
	}
	if err != nil {
		s.logger.Error().Err(err).Str("course_id", courseID).Msg("Course lookup failed")
		writeError(w, http.StatusInternalServerError, "course lookup failed")
		return enrollment.Course{}, false
	}
	return course, true
}

func statusFor(res enrollment.Result) int {
	switch res.Outcome {
	case enrollment.OutcomeEnrolled:
		return http.StatusOK
	case enrollment.OutcomeTimedOut:
		return http.StatusGatewayTimeout
	case enrollment.OutcomeError:
		return http.StatusBadGateway
	case enrollment.OutcomeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
