package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/config"
	"github.com/balkashynov/tally/internal/db"
)

// FileStore resolves stored screenshot names to file paths.
type FileStore interface {
	Path(name string) (string, error)
}

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Activity    *db.ActivityService
	Tracks      *db.TimeTrackService
	Screenshots *db.ScreenshotService
	Files       FileStore
}

// Server serves the accounting API and runs the stale-timer sweeper.
type Server struct {
	cfg   config.ServerConfig
	deps  Deps
	clock clock.Clock
	log   *slog.Logger
}

func New(cfg config.ServerConfig, deps Deps, clk clock.Clock, log *slog.Logger) *Server {
	return &Server{cfg: cfg, deps: deps, clock: clk, log: log}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("POST /activity-sessions", s.withUser(s.handleActivitySession))
	mux.Handle("POST /time-tracks/start", s.withUser(s.handleStart))
	mux.Handle("POST /time-tracks/{id}/stop", s.withUser(s.handleStop))
	mux.Handle("POST /time-tracks/heartbeat", s.withUser(s.handleHeartbeat))
	mux.Handle("GET /time-tracks/active", s.withUser(s.handleActive))
	mux.Handle("GET /time-tracks/remaining", s.withUser(s.handleRemaining))
	mux.Handle("GET /time-tracks", s.withUser(s.handleList))
	mux.Handle("POST /screenshots", s.withUser(s.handleScreenshotUpload))
	mux.Handle("GET /screenshots/files/{name}", s.withUser(s.handleScreenshotFile))

	return s.logRequests(mux)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis and runs the sweeper until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.sweep(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sweep finalizes stale timers on every tick until ctx is done.
func (s *Server) sweep(ctx context.Context) {
	interval := config.Seconds(s.cfg.SweepIntervalSeconds)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			n, err := s.deps.Tracks.SweepStale(ctx, nil)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Error("stale sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				s.log.Info("stale sweep finalized time tracks", "count", n)
			}
		}
	}
}

// withUser reads the caller's id from the X-User-ID header.
func (s *Server) withUser(h func(http.ResponseWriter, *http.Request, uint)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		id, err := strconv.ParseUint(raw, 10, 64)
		if raw == "" || err != nil || id == 0 {
			writeMessage(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
			return
		}
		h(w, r, uint(id))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := r.Header.Get("X-User-ID"); id != "" {
			attrs = append(attrs, "user_id", id)
		}
		if rec.status >= 500 {
			s.log.Error("request failed", attrs...)
		} else {
			s.log.Debug("request", attrs...)
		}
	})
}
