package admin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kbukum/backplane"
	"github.com/kbukum/backplane/logger"
)

// Server is the administrative HTTP surface over an orchestrator:
// status inspection, migration control, forced activation, and the
// health-override hooks. It is deliberately separate from the data
// path; deployments that manage the orchestrator programmatically
// never start it.
type Server struct {
	cfg        Config
	httpServer *http.Server
	engine     *gin.Engine
	log        *logger.Logger
}

// NewServer creates the admin server over orch.
func NewServer(cfg Config, orch *backplane.Orchestrator, log *logger.Logger) *Server {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		engine: engine,
		log:    log.WithComponent("admin"),
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      engine,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
	}
	registerRoutes(engine, orch)
	return s
}

// Engine returns the router, mainly for tests and embedding.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.log.Info("admin server listening", logger.Fields("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
