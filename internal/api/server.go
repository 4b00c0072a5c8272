package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/alarm"
	"github.com/gmsas95/medremind/internal/config"
	"github.com/gmsas95/medremind/internal/engine"
	"github.com/gmsas95/medremind/internal/metrics"
)

// Server handles the HTTP API and WebSocket
type Server struct {
	app     *fiber.App
	config  *config.Config
	engine  *engine.Engine
	metrics *metrics.Metrics
	hub     *hub
	logger  *zap.Logger
}

// New creates a new API server on top of a running engine
func New(cfg *config.Config, eng *engine.Engine, m *metrics.Metrics, logger *zap.Logger) *Server {
	if m == nil {
		m = metrics.Default()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:     app,
		config:  cfg,
		engine:  eng,
		metrics: m,
		hub:     newHub(logger.Named("ws")),
		logger:  logger,
	}

	eng.Observe(func(alarm.Transition) { s.hub.publish(s.alarmMessage()) })
	eng.OnNotice(func(n engine.Notice) { s.hub.publish(noticeMessage(n)) })

	go s.hub.run()
	s.setupRoutes()
	return s
}

// App exposes the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("HTTP server listening", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.close()
	return s.app.ShutdownWithContext(ctx)
}
