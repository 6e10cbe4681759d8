package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/engram/pkg/hooks"
	"github.com/papercomputeco/engram/pkg/ingest"
	"github.com/papercomputeco/engram/pkg/storage"
)

// Server is the API server for the engram recording system.
type Server struct {
	config     Config
	dispatcher *hooks.Dispatcher
	pipeline   *ingest.Pipeline
	store      storage.EventStore
	logger     *slog.Logger
	app        *fiber.App
}

// NewServer creates a new API server. The dispatcher, pipeline, and store are
// injected to allow sharing with other components.
func NewServer(config Config, dispatcher *hooks.Dispatcher, pipeline *ingest.Pipeline, store storage.EventStore, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:     config,
		dispatcher: dispatcher,
		pipeline:   pipeline,
		store:      store,
		logger:     logger,
		app:        app,
	}

	app.Get("/healthz", s.handleHealth)
	app.Post("/v1/hooks/:id/fire", s.handleFireHook)
	app.Get("/v1/hooks/:id/stats", s.handleHookStats)
	app.Post("/v1/events/batch", s.handleBatchIngest)
	app.Get("/v1/events/:id", s.handleGetEvent)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
