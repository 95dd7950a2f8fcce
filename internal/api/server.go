package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/cellhook/internal/auth"
	"github.com/mattjoyce/cellhook/internal/recordstore"
)

// RecordStore is the store surface the write-back API serves.
type RecordStore interface {
	BaseID() string
	Fields(ctx context.Context, tableID string) ([]recordstore.Field, error)
	CreateField(ctx context.Context, tableID, name string, typ recordstore.FieldType) (bool, error)
	SelectRecord(ctx context.Context, tableID, recordID string) (*recordstore.Record, error)
	UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]recordstore.Value) (*recordstore.Record, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	Tokens []auth.TokenConfig
	// MaxBodySize bounds request bodies (default 1 MiB).
	MaxBodySize int64
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	store     RecordStore
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, store RecordStore, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	return &Server{
		config:    config,
		store:     store,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Route("/tables/{table}", func(r chi.Router) {
			r.With(s.requireScopes(auth.ScopeRecordsRead)).Get("/fields", s.handleListFields)
			r.With(s.requireScopes(auth.ScopeRecordsWrite)).Post("/fields", s.handleCreateField)
			r.With(s.requireScopes(auth.ScopeRecordsRead)).Get("/records/{record}", s.handleGetRecord)
			r.With(s.requireScopes(auth.ScopeRecordsWrite)).Patch("/records/{record}", s.handleUpdateRecord)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
