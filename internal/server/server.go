// Package server provides the HTTP API for decora.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/decora/internal/assistant"
	"github.com/hyperjump/decora/internal/auth"
	"github.com/hyperjump/decora/internal/blobstore"
	"github.com/hyperjump/decora/internal/catalog"
	"github.com/hyperjump/decora/internal/config"
	"github.com/hyperjump/decora/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the decora API.
type Server struct {
	assistant *assistant.Assistant
	catalog   *catalog.Catalog
	uploads   *blobstore.DiskStore
	storage   storage.Storage
	auth      *auth.Authenticator
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
	startedAt time.Time
}

// NewServer creates a server with the given dependencies. uploads may be nil, in which
// case the upload routes answer 501.
func NewServer(
	asst *assistant.Assistant,
	cat *catalog.Catalog,
	uploads *blobstore.DiskStore,
	storage storage.Storage,
	authn *auth.Authenticator,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if authn == nil {
		authn = auth.New("", logger)
	}
	return &Server{
		assistant: asst,
		catalog:   cat,
		uploads:   uploads,
		storage:   storage,
		auth:      authn,
		config:    cfg,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the router with all routes and middleware mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/files/{name}", s.handleGetFile)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Patch("/sessions/{id}", s.handleRenameSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/sessions/{id}/messages", s.handleSendMessage)

		r.Get("/products", s.handleListProducts)
		r.Get("/products/search", s.handleSearchProducts)
		r.Get("/products/{id}", s.handleGetProduct)
		r.Post("/products", s.handleUpsertProduct)
		r.Delete("/products/{id}", s.handleDeleteProduct)

		r.Post("/uploads", s.handleUpload)
		r.Get("/status", s.handleStatus)
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
	s.logger.Info("Starting server",
		zap.String("addr", addr),
		zap.Bool("auth_enabled", s.auth.Enabled()))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
