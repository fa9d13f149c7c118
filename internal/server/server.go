// Package server provides the HTTP API for Mentis.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/config"
	"github.com/hyperjump/mentis/internal/extract"
	"github.com/hyperjump/mentis/internal/retriever"
	"github.com/hyperjump/mentis/internal/vector"
)

// queryTimeout bounds read-only requests. Encoding runs without a deadline.
const queryTimeout = 60 * time.Second

// Server is the HTTP server for the Mentis API.
type Server struct {
	registry  *retriever.Registry
	store     vector.Store
	extractor *extract.Extractor
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server

	// encodeMu serializes encodes; each one replaces whole collections.
	encodeMu sync.Mutex
}

// NewServer creates a server with the given dependencies.
func NewServer(
	registry *retriever.Registry,
	store vector.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry:  registry,
		store:     store,
		extractor: extract.NewExtractor(),
		config:    cfg,
		logger:    logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(queryTimeout))
			r.Get("/retrievers", s.handleRetrievers)
			r.Post("/query", s.handleQuery)
			r.Get("/evaluations/{name}", s.handleEvaluation)
		})
		r.Post("/encode/{name}", s.handleEncode)
		r.Post("/append/{name}", s.handleAppend)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestID tags every request and response with an X-Request-ID, keeping a caller-supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
