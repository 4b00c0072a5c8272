// Package gateway adapts the platform notification service: permission,
// daily and one-shot triggers, and the event stream of fired triggers and
// patient actions.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/gmsas95/medremind/internal/errors"
)

// ChannelID is the notification channel reminders are posted on
const ChannelID = "medication-reminders"

// Handle identifies one scheduled trigger
type Handle string

// Kind distinguishes the recurring reminder from a snooze re-trigger
type Kind string

const (
	KindDaily  Kind = "daily"
	KindSnooze Kind = "snooze"
)

// Action is the patient's response attached to an event
type Action string

const (
	ActionNone    Action = "none"
	ActionTaken   Action = "taken"
	ActionSnooze  Action = "snooze"
	ActionDismiss Action = "dismiss"
)

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionTaken, ActionSnooze, ActionDismiss:
		return true
	}
	return false
}

// Payload travels with a trigger and comes back with its events
type Payload struct {
	MedicationID   string `json:"medicationId"`
	Kind           Kind   `json:"kind"`
	MedicationName string `json:"medicationName,omitempty"`
	Dosage         string `json:"dosage,omitempty"`
}

// Event is a fired trigger (Action none) or a patient action on a reminder
type Event struct {
	Handle  Handle    `json:"handle,omitempty"`
	Payload Payload   `json:"payload"`
	Action  Action    `json:"action"`
	At      time.Time `json:"at"`
}

// Validate rejects events that cannot be routed to a medication
func (e Event) Validate() error {
	if e.Payload.MedicationID == "" {
		return apperrors.New(apperrors.ErrInvalidEvent.Code, "event has no medication id")
	}
	if !e.Action.Valid() {
		return apperrors.New(apperrors.ErrInvalidEvent.Code, fmt.Sprintf("unknown action %q", e.Action))
	}
	switch e.Payload.Kind {
	case KindDaily, KindSnooze:
	case "":
		if e.Action == ActionNone {
			return apperrors.New(apperrors.ErrInvalidEvent.Code, "trigger event has no kind")
		}
	default:
		return apperrors.New(apperrors.ErrInvalidEvent.Code, fmt.Sprintf("unknown trigger kind %q", e.Payload.Kind))
	}
	return nil
}

// ParseEvent decodes and validates an event received from outside the process.
// A missing action is read as none.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, apperrors.Wrap(err, apperrors.ErrInvalidEvent.Code, "malformed event")
	}
	if ev.Action == "" {
		ev.Action = ActionNone
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Scheduled describes a live trigger known to the gateway
type Scheduled struct {
	Handle  Handle
	Payload Payload
	Hour    int
	Minute  int
	FireAt  *time.Time
}

// Notification is what the patient sees when a trigger fires
type Notification struct {
	Title      string
	Body       string
	ChannelID  string
	Categories []Action
	Vibration  []time.Duration
}

// Content renders the notification for a payload
func Content(p Payload) Notification {
	title := "Time to Take Medicine!"
	body := p.MedicationName
	if p.Dosage != "" {
		body = fmt.Sprintf("%s - %s", p.MedicationName, p.Dosage)
	}
	if p.Kind == KindSnooze {
		title = "Snoozed Reminder"
		body = "Time to take " + body
	}
	return Notification{
		Title:      title,
		Body:       body,
		ChannelID:  ChannelID,
		Categories: []Action{ActionTaken, ActionSnooze, ActionDismiss},
		Vibration:  []time.Duration{0, 250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond},
	}
}

// Gateway is the platform notification service
type Gateway interface {
	RequestPermission(ctx context.Context) (bool, error)
	ScheduleDaily(ctx context.Context, hour, minute int, p Payload) (Handle, error)
	ScheduleOnce(ctx context.Context, at time.Time, p Payload) (Handle, error)
	Cancel(ctx context.Context, h Handle) error
	CancelAll(ctx context.Context) error
	ListScheduled(ctx context.Context) ([]Scheduled, error)
	Events() <-chan Event
}
