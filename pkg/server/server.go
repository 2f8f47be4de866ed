// Package server exposes the HTTP API: submission intake, status and
// results retrieval, refresh, and task-queue administration.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/peruse-ai/peruse/pkg/store"
	"github.com/peruse-ai/peruse/pkg/tasks"
)

// maxUploadBytes caps multipart uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// Server wires the HTTP routes to the orchestration service and stores.
type Server struct {
	service     *tasks.Service
	submissions store.SubmissionStore
	queue       store.QueueStore
	logger      *slog.Logger
	httpServer  *http.Server
}

func New(service *tasks.Service, submissions store.SubmissionStore, queue store.QueueStore, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service:     service,
		submissions: submissions,
		queue:       queue,
		logger:      logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/submit", s.handleSubmit)
		r.Post("/upload", s.handleUpload)

		r.Route("/submission/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSubmission)
			r.Delete("/", s.handleDeleteSubmission)
			r.Get("/status", s.handleSubmissionStatus)
			r.Post("/refresh", s.handleRefresh)
		})
		r.Get("/submissions", s.handleListSubmissions)

		r.Route("/task-queue", func(r chi.Router) {
			r.Get("/", s.handleListQueue)
			r.Post("/add", s.handleQueueAdd)
			r.Delete("/{entryID}", s.handleQueueDelete)
			r.Post("/{entryID}/repeat", s.handleQueueRepeat)
		})
	})
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
