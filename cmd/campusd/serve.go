package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/campus-records/internal/config"
	"github.com/Sternrassler/campus-records/pkg/engine"
	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/logging"
	"github.com/Sternrassler/campus-records/pkg/store/memstore"
	"github.com/Sternrassler/campus-records/pkg/store/pgstore"
	"github.com/Sternrassler/campus-records/pkg/store/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	envFile       string
	courses       []string
	auditInterval time.Duration
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and the admin HTTP API",
		Example: `  campusd serve
  CAMPUS_STORE=redis REDIS_URL=redis://localhost:6379/0 campusd serve --course cs101:30:CS101`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "optional .env file read before the environment")
	cmd.Flags().StringSliceVar(&opts.courses, "course", nil, "seed a course as id:capacity[:code] (repeatable)")
	cmd.Flags().DurationVar(&opts.auditInterval, "audit-interval", 0, "period of the course fill audit batch (0 disables)")
	return cmd
}

// courseStore is a registrar that can also define and look up courses.
type courseStore interface {
	enrollment.Registrar
	enrollment.Catalog
	UpsertCourse(ctx context.Context, course enrollment.Course) error
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.Setup(logging.Config{
		Level:   level,
		Pretty:  cfg.Log.Pretty,
		Service: "campusd",
	})

	store, notifier, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	courses, err := parseCourses(opts.courses)
	if err != nil {
		return err
	}
	for _, c := range courses {
		if err := store.UpsertCourse(ctx, c); err != nil {
			return fmt.Errorf("seed course %s: %w", c.ID, err)
		}
	}

	eng := engine.New(store, notifier, engine.Config{
		Workers:             cfg.Engine.Workers,
		ChunkSize:           cfg.Engine.ChunkSize,
		MaxConcurrentChunks: cfg.Engine.MaxConcurrentChunks,
		PollInterval:        cfg.Engine.PollInterval,
		ShutdownGrace:       cfg.Engine.ShutdownGrace,
		NotifyTimeout:       cfg.Notify.Timeout,
		Retry:               cfg.RetryConfig(),
	}, logging.NewLogger("engine"))

	if opts.auditInterval > 0 && len(courses) > 0 {
		auditLogger := logging.NewLogger("audit")
		h, err := scheduleAudit(eng, store, courses, opts.auditInterval, auditLogger)
		if err != nil {
			eng.Shutdown()
			return fmt.Errorf("schedule audit: %w", err)
		}
		auditLogger.Info().
			Str("job", h.Name()).
			Int("courses", len(courses)).
			Dur("interval", opts.auditInterval).
			Msg("Course fill audit enabled")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newServer(eng, store, cfg.Server.RequestTimeout, logging.NewLogger("http")).routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Backend).Msg("Starting campusd admin server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	// Stop the engine first so queued requests drain while the API still
	// answers /v1/stats.
	if err := eng.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Engine shutdown incomplete")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("campusd stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (courseStore, enrollment.Notifier, func(), error) {
	logNotifier := enrollment.LogNotifier{Logger: logging.NewLogger("notify")}

	switch cfg.Store.Backend {
	case config.BackendRedis:
		opt, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info().Str("addr", opt.Addr).Msg("Connected to Redis")

		reg := redisstore.NewRegistrar(client, redisstore.DefaultPrefix, logging.NewLogger("redisstore"))
		notifier := redisstore.NewNotifier(client, cfg.Notify.Channel)
		return reg, notifier, func() { client.Close() }, nil

	case config.BackendPostgres:
		pool, err := pgstore.Connect(ctx, cfg.Store.DatabaseURL, int32(cfg.Store.MaxConns))
		if err != nil {
			return nil, nil, nil, err
		}
		s := pgstore.New(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.Info().Int("max_conns", cfg.Store.MaxConns).Msg("Connected to PostgreSQL")
		return s, logNotifier, pool.Close, nil

	default:
		return memstore.New(), logNotifier, func() {}, nil
	}
}

// parseCourses reads "id:capacity[:code]" specs.
func parseCourses(specs []string) ([]enrollment.Course, error) {
	courses := make([]enrollment.Course, 0, len(specs))
	for _, arg := range specs {
		parts := strings.SplitN(arg, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid course %q: want id:capacity[:code]", arg)
		}
		capacity, err := strconv.Atoi(parts[1])
		if err != nil || capacity < 0 {
			return nil, fmt.Errorf("invalid course %q: capacity must be a non-negative integer", arg)
		}
		c := enrollment.Course{ID: parts[0], Capacity: capacity}
		if len(parts) == 3 {
			c.Code = parts[2]
		}
		courses = append(courses, c)
	}
	return courses, nil
}
