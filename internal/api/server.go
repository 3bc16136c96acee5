package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hyperwatch/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	// Handlers
	ingestHandler     *IngestHandler
	filterRuleHandler *FilterRuleHandler
	alarmHandler      *AlarmHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config            *config.ServerConfig
	Logger            *slog.Logger
	IngestHandler     *IngestHandler
	FilterRuleHandler *FilterRuleHandler
	AlarmHandler      *AlarmHandler
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	// Create Fiber app with optimized settings for high throughput
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable strict routing for consistency
		StrictRouting: true,
		// Case sensitive routing
		CaseSensitive: true,
		// Read timeout from config
		ReadTimeout: deps.Config.ReadTimeout,
		// Write timeout from config
		WriteTimeout: deps.Config.WriteTimeout,
		// Idle timeout from config
		IdleTimeout: deps.Config.IdleTimeout,
		// Custom error handler
		ErrorHandler: customErrorHandler,
	})

	s := &Server{
		app:               app,
		config:            deps.Config,
		logger:            deps.Logger,
		ingestHandler:     deps.IngestHandler,
		filterRuleHandler: deps.FilterRuleHandler,
		alarmHandler:      deps.AlarmHandler,
	}

	// Register middleware
	s.registerMiddleware()

	// Register routes
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware() {
	// Recovery middleware to handle panics
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware for tracing
	s.app.Use(requestid.New())

	// Logger middleware for request logging
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// Health check endpoint (outside versioned API)
	s.app.Get("/healthz", s.healthCheck)

	// Prometheus metrics endpoint
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.app.Group("/v1")

	// Event ingestion
	v1.Post("/events", s.ingestHandler.IngestEvent)

	// Filter rules; the default action route comes before :id
	v1.Get("/filter-rules/default-action", s.filterRuleHandler.GetDefaultAction)
	v1.Put("/filter-rules/default-action", s.filterRuleHandler.SetDefaultAction)
	v1.Post("/filter-rules", s.filterRuleHandler.Create)
	v1.Get("/filter-rules", s.filterRuleHandler.List)
	v1.Get("/filter-rules/:id", s.filterRuleHandler.GetByID)
	v1.Put("/filter-rules/:id", s.filterRuleHandler.Update)
	v1.Delete("/filter-rules/:id", s.filterRuleHandler.Delete)

	// Alarms (read-only)
	v1.Get("/alarms/:id", s.alarmHandler.GetByID)
	v1.Get("/alarms/:id/history", s.alarmHandler.History)
}

// healthCheck returns the health status of the service.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return Success(c, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Serve accepts HTTP requests on ln instead of the configured address.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", "address", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler handles errors returned from handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		return Error(c, e.Code, ErrCodeInternalError, e.Message)
	}

	// Default to internal server error
	return InternalError(c, fmt.Sprintf("unexpected error: %v", err))
}
