package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/cellhook/internal/dispatch"
	"github.com/mattjoyce/cellhook/internal/recordstore"
)

// Server represents the webhook HTTP server.
type Server struct {
	config Config
	runner JobRunner
	logger *slog.Logger
	server *http.Server

	// endpoints maps URL paths to their configurations
	endpoints map[string]*EndpointConfig
}

// New creates a new webhook server instance.
func New(config Config, runner JobRunner, logger *slog.Logger) *Server {
	endpoints := make(map[string]*EndpointConfig)
	for i := range config.Endpoints {
		ep := &config.Endpoints[i]
		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		if ep.SignatureHeader == "" {
			ep.SignatureHeader = DefaultSignatureHeader
		}
		endpoints[ep.Path] = ep
	}

	return &Server{
		config:    config,
		runner:    runner,
		logger:    logger,
		endpoints: endpoints,
	}
}

// Start starts the webhook HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// Jobs run inside the request; each job carries its own timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "endpoints", len(s.endpoints))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed webhook handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for path := range s.endpoints {
		r.Post(path, s.handleWebhook)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "endpoint not found", "")
	})

	return r
}

// loggingMiddleware logs HTTP requests without their bodies.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleWebhook verifies a record-update hook and runs its job.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := s.endpoints[r.URL.Path]
	if !ok {
		s.respondError(w, http.StatusNotFound, "endpoint not found", "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, endpoint.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body", "")
		return
	}
	if int64(len(body)) > endpoint.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large", "")
		return
	}

	signature := r.Header.Get(endpoint.SignatureHeader)
	if signature == "" {
		s.logger.Warn("webhook signature missing", "path", r.URL.Path, "header", endpoint.SignatureHeader)
		s.respondError(w, http.StatusForbidden, "forbidden", "")
		return
	}
	if err := verifyHMACSignature(body, signature, endpoint.Secret); err != nil {
		s.logger.Warn("webhook signature verification failed", "path", r.URL.Path, "error", err)
		s.respondError(w, http.StatusForbidden, "forbidden", "")
		return
	}

	var trigger TriggerRequest
	if err := json.Unmarshal(body, &trigger); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	trigger.RecordID = strings.TrimSpace(trigger.RecordID)
	if trigger.RecordID == "" {
		s.respondError(w, http.StatusBadRequest, "record_id is required", "")
		return
	}

	res, err := s.runner.Run(r.Context(), endpoint.Job, trigger.RecordID)
	if err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("webhook job failed",
				"path", r.URL.Path,
				"job", endpoint.Job,
				"invocation_id", res.InvocationID,
				"error", err,
			)
		}
		s.respondError(w, status, message, res.InvocationID)
		return
	}

	s.respondJSON(w, http.StatusAccepted, TriggerResponse{
		InvocationID: res.InvocationID,
		Job:          res.Job,
		Status:       "dispatched",
	})
}

// statusFor maps a job error onto an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var verr *dispatch.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.Message
	case errors.Is(err, recordstore.ErrRecordNotFound), errors.Is(err, recordstore.ErrTableNotFound):
		return http.StatusNotFound, "record not found"
	case dispatch.IsRemote(err):
		return http.StatusBadGateway, "job service error"
	case dispatch.IsTimeout(err):
		return http.StatusGatewayTimeout, "job service timeout"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message, invocationID string) {
	s.respondJSON(w, status, ErrorResponse{Error: message, InvocationID: invocationID})
}
