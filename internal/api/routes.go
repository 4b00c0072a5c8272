package api

import (
	"strings"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	s.app.Get("/api/metrics", s.handleMetricsJSON)

	api := s.app.Group("/api")

	api.Post("/auth/login", s.handleLogin)

	protected := api.Use(s.authMiddleware())

	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleCreateMedication)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Put("/medications/:id", s.handleUpdateMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)
	protected.Post("/medications/:id/taken", s.handleMarkTaken)
	protected.Get("/medications/:id/history", s.handleHistory)
	protected.Get("/medications/:id/adherence", s.handleAdherence)

	protected.Get("/alarm", s.handleGetAlarm)
	protected.Post("/alarm/action", s.handleAlarmAction)

	protected.Post("/activate", s.handleActivate)
	protected.Post("/reminders/reset", s.handleResetReminders)
	protected.Get("/notices", s.handleNotices)

	s.app.Use("/ws", s.upgradeMiddleware())
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}
