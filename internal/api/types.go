package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gmsas95/medremind/internal/engine"
	apperrors "github.com/gmsas95/medremind/internal/errors"
	"github.com/gmsas95/medremind/internal/medication"
	"github.com/gmsas95/medremind/internal/security"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type loginRequest struct {
	Password string `json:"password"`
}

// medicationRequest is the body of create and update. Absent fields are left
// unchanged on update.
type medicationRequest struct {
	Name      *string `json:"name"`
	Dosage    *string `json:"dosage"`
	Time      *string `json:"time"`
	Frequency *string `json:"frequency"`
}

func (r medicationRequest) fields() (medication.Fields, error) {
	f := medication.Fields{Name: r.Name, Dosage: r.Dosage}
	for field, value := range map[string]*string{"name": r.Name, "dosage": r.Dosage} {
		if value == nil {
			continue
		}
		if err := security.ValidateInput(*value); err != nil {
			return f, apperrors.New(apperrors.ErrValidation.Code, fmt.Sprintf("%s: %v", field, err))
		}
	}
	if r.Time != nil {
		tod, err := medication.ParseTimeOfDay(*r.Time)
		if err != nil {
			return f, err
		}
		f.Time = &tod
	}
	if r.Frequency != nil {
		freq := medication.Frequency(*r.Frequency)
		f.Frequency = &freq
	}
	return f, nil
}

type actionRequest struct {
	MedicationID string `json:"medication_id"`
	Action       string `json:"action"`
}

type adherenceResponse struct {
	MedicationID string           `json:"medication_id"`
	Days         int              `json:"days"`
	Counts       map[string]int64 `json:"counts"`
}

type healthResponse struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	Timestamp   int64     `json:"timestamp"`
	Running     bool      `json:"running"`
	Degraded    bool      `json:"degraded"`
	Persistence string    `json:"persistence"`
	Now         time.Time `json:"now"`
}

// wsMessage is pushed to WebSocket clients and read back from them
type wsMessage struct {
	Type         string              `json:"type"` // alarm, notice, action, error
	Alarm        *engine.AlarmStatus `json:"alarm,omitempty"`
	Notice       *engine.Notice      `json:"notice,omitempty"`
	MedicationID string              `json:"medication_id,omitempty"`
	Action       string              `json:"action,omitempty"`
	Error        string              `json:"error,omitempty"`
}

func noticeMessage(n engine.Notice) wsMessage {
	return wsMessage{Type: "notice", Notice: &n}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrInvalidTime),
		errors.Is(err, apperrors.ErrInvalidEvent),
		errors.Is(err, apperrors.ErrBadRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, apperrors.ErrMedicationNotFound), errors.Is(err, apperrors.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrNoActiveAlarm):
		return fiber.StatusConflict
	case errors.Is(err, apperrors.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperrors.ErrPersistence), errors.Is(err, apperrors.ErrGatewayUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// errorHandler renders errors returned from handlers as JSON
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message})
	}
	return c.Status(statusFor(err)).JSON(errorResponse{
		Error: errorMessage(err),
		Code:  apperrors.GetCode(err),
	})
}
