package api

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medremind/internal/errors"
	"github.com/gmsas95/medremind/internal/gateway"
)

const version = "0.1.0"

func (s *Server) handleHealth(c *fiber.Ctx) error {
	persistence := "ok"
	if s.engine.PersistErr() != nil {
		persistence = "failing"
	}
	now := time.Now()
	return c.JSON(healthResponse{
		Status:      "healthy",
		Version:     version,
		Timestamp:   now.Unix(),
		Running:     s.engine.IsRunning(),
		Degraded:    s.engine.Degraded(),
		Persistence: persistence,
		Now:         now,
	})
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request"})
	}

	// Without a configured password any login is accepted
	if want := s.config.Security.AdminPassword; want != "" {
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(want)) != 1 {
			s.logger.Warn("Rejected login attempt", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "invalid password"})
		}
	}

	token, err := s.issueToken(time.Now())
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to generate token"})
	}

	return c.JSON(fiber.Map{"token": token})
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	return c.JSON(s.engine.Medications())
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.Wrap(err, apperrors.ErrBadRequest.Code, "invalid request body")
	}
	fields, err := req.fields()
	if err != nil {
		return err
	}

	med, err := s.engine.CreateMedication(c.UserContext(), fields)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(med)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	id := c.Params("id")
	med, ok := s.engine.Medication(id)
	if !ok {
		return apperrors.NotFound(id)
	}
	return c.JSON(med)
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.Wrap(err, apperrors.ErrBadRequest.Code, "invalid request body")
	}
	fields, err := req.fields()
	if err != nil {
		return err
	}

	med, err := s.engine.UpdateMedication(c.UserContext(), c.Params("id"), fields)
	if err != nil {
		return err
	}
	return c.JSON(med)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	s.engine.DeleteMedication(c.UserContext(), c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMarkTaken(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.engine.Act(c.UserContext(), id, gateway.ActionTaken, "api"); err != nil {
		return err
	}
	med, _ := s.engine.Medication(id)
	return c.JSON(med)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.engine.Medication(id); !ok {
		return apperrors.NotFound(id)
	}

	entries, err := s.engine.History(c.UserContext(), id, c.QueryInt("limit", 50))
	if err != nil {
		s.logger.Error("Failed to read dose history", zap.String("medication_id", id), zap.Error(err))
		return err
	}
	return c.JSON(entries)
}

func (s *Server) handleAdherence(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.engine.Medication(id); !ok {
		return apperrors.NotFound(id)
	}

	days := c.QueryInt("days", 7)
	if days <= 0 {
		return apperrors.New(apperrors.ErrBadRequest.Code, "days must be positive")
	}

	counts, err := s.engine.Adherence(c.UserContext(), id, days)
	if err != nil {
		s.logger.Error("Failed to summarise dose history", zap.String("medication_id", id), zap.Error(err))
		return err
	}
	return c.JSON(adherenceResponse{MedicationID: id, Days: days, Counts: counts})
}

func (s *Server) handleGetAlarm(c *fiber.Ctx) error {
	return c.JSON(s.engine.Alarm())
}

func (s *Server) handleAlarmAction(c *fiber.Ctx) error {
	var req actionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.Wrap(err, apperrors.ErrBadRequest.Code, "invalid request body")
	}
	if req.MedicationID == "" {
		return apperrors.Validation("medication_id")
	}

	if err := s.engine.Act(c.UserContext(), req.MedicationID, gateway.Action(req.Action), "api"); err != nil {
		return err
	}
	return c.JSON(s.engine.Alarm())
}

func (s *Server) handleActivate(c *fiber.Ctx) error {
	s.engine.Activate(c.UserContext())
	return c.JSON(s.engine.Alarm())
}

func (s *Server) handleResetReminders(c *fiber.Ctx) error {
	if err := s.engine.ResetReminders(c.UserContext()); err != nil {
		s.logger.Error("Failed to reset reminders", zap.Error(err))
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleNotices(c *fiber.Ctx) error {
	return c.JSON(s.engine.Notices())
}
