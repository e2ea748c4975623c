package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duynguyendang/outgassing/internal/manager"
	"github.com/duynguyendang/outgassing/pkg/dataset"
	"github.com/duynguyendang/outgassing/pkg/query"
)

// Loader is the dataset handle the health check probes.
type Loader interface {
	Dataset(ctx context.Context) (*dataset.Dataset, error)
	Status() manager.Status
}

// Server holds the state for the REST API server.
type Server struct {
	engine *query.Engine
	loader Loader
	logger *slog.Logger
	router *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new Server instance.
func NewServer(engine *query.Engine, loader Loader, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		loader: loader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(s.logger))
	s.router = r
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the server on the specified address.
func (s *Server) Run(addr string) error {
	s.logger.Info("Starting REST API server", "addr", addr)
	return s.router.Run(addr)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/v1")
	v1.GET("/materials", s.handleSearchMaterials)
	v1.GET("/materials/:id", s.handleGetMaterial)
	v1.GET("/applications", s.handleApplications)
	v1.GET("/applications/search", s.handleSearchApplication)
	v1.GET("/summary", s.handleSummary)
}

// healthCheck reports 503 until the dataset is loaded, and for good once
// loading has failed.
func (s *Server) healthCheck(c *gin.Context) {
	if _, err := s.loader.Dataset(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.loader.Status())
}
