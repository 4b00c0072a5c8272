// Package alarm drives a single ringing/snoozed alarm session at a time.
// Competing triggers wait in a FIFO queue.
package alarm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/gmsas95/medremind/internal/errors"
	"github.com/gmsas95/medremind/internal/medication"
)

// State of the alarm session
type State int

const (
	Idle State = iota
	Ringing
	Snoozed
)

func (s State) String() string {
	switch s {
	case Ringing:
		return "ringing"
	case Snoozed:
		return "snoozed"
	default:
		return "idle"
	}
}

// Source says where a trigger came from
type Source string

const (
	SourceTrigger Source = "trigger" // gateway daily callback
	SourcePoll    Source = "poll"    // foreground time check
	SourceSnooze  Source = "snooze"  // snooze re-trigger
)

// Result of offering a trigger to the machine
type Result int

const (
	Ignored Result = iota
	Started
	Queued
	Coalesced
)

func (r Result) String() string {
	switch r {
	case Started:
		return "started"
	case Queued:
		return "queued"
	case Coalesced:
		return "coalesced"
	default:
		return "ignored"
	}
}

// Session is the alarm currently holding the slot
type Session struct {
	MedicationID string    `json:"medicationId"`
	State        State     `json:"-"`
	StateName    string    `json:"state"`
	SnoozeUntil  time.Time `json:"snoozeUntil,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
}

// Transition is reported to observers after every state change
type Transition struct {
	MedicationID string
	From         State
	To           State
	At           time.Time
	Reason       string
}

// Observer receives transitions outside the machine's lock
type Observer func(Transition)

// Medications is the record lookup the machine reads at the moment it needs data
type Medications interface {
	Get(id string) (medication.Medication, bool)
	SetTaken(id string, taken bool, when time.Time) (*medication.Medication, error)
}

// Snoozer arms and disarms snooze re-triggers
type Snoozer interface {
	Snooze(ctx context.Context, med medication.Medication, now time.Time) (time.Time, error)
	CancelSnooze(ctx context.Context, id string)
}

// Machine is the alarm state machine
type Machine struct {
	meds        Medications
	snoozer     Snoozer
	alerter     Alerter
	pattern     []time.Duration
	logger      *zap.Logger
	soundNotice rate.Sometimes

	mu        sync.Mutex
	session   *Session
	queue     []string
	fired     map[string]string // medication id -> minute it last rang
	alert     *alertLoop
	observers []Observer
	pending   []Transition
}

// New creates an idle machine
func New(meds Medications, snoozer Snoozer, alerter Alerter, pattern []time.Duration, logger *zap.Logger) *Machine {
	return &Machine{
		meds:        meds,
		snoozer:     snoozer,
		alerter:     alerter,
		pattern:     pattern,
		logger:      logger,
		soundNotice: rate.Sometimes{First: 1},
		fired:       make(map[string]string),
	}
}

// Observe registers fn for every future transition
func (m *Machine) Observe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Trigger offers a trigger for medicationID. Daily and poll triggers only ring
// when the medication is due this minute and has not already rung in it.
func (m *Machine) Trigger(ctx context.Context, medicationID string, now time.Time, source Source) Result {
	m.mu.Lock()
	res := m.trigger(medicationID, now, source)
	m.unlock()

	if res != Ignored {
		m.logger.Info("Alarm trigger",
			zap.String("medication_id", medicationID),
			zap.String("source", string(source)),
			zap.String("result", res.String()))
	}
	return res
}

func (m *Machine) trigger(id string, now time.Time, source Source) Result {
	med, ok := m.meds.Get(id)
	if !ok {
		m.logger.Debug("Trigger for unknown medication", zap.String("medication_id", id))
		return Ignored
	}
	if med.Taken {
		return Ignored
	}

	if source != SourceSnooze && !med.Time.Matches(now) {
		return Ignored
	}
	if m.session != nil && (m.session.MedicationID == id || m.queued(id)) {
		return Coalesced
	}

	minute := minuteKey(now)
	if source != SourceSnooze && m.fired[id] == minute {
		return Ignored
	}

	if m.session != nil {
		m.queue = append(m.queue, id)
		m.fired[id] = minute
		return Queued
	}

	m.fired[id] = minute
	m.ring(id, now, Idle, "trigger")
	return Started
}

// Taken marks the medication taken. For the active alarm it also stops the
// alert and releases the slot; a queued medication is dropped from the queue.
func (m *Machine) Taken(ctx context.Context, medicationID string, now time.Time) error {
	m.mu.Lock()
	defer m.unlock()

	if _, err := m.meds.SetTaken(medicationID, true, now); err != nil {
		m.logger.Warn("Failed to mark medication taken",
			zap.String("medication_id", medicationID),
			zap.Error(err))
	}
	m.snoozer.CancelSnooze(ctx, medicationID)

	if m.active(medicationID) {
		m.release(now, "taken")
		return nil
	}
	m.dequeue(medicationID)
	return nil
}

// Dismiss silences the active alarm without marking it taken. The medication
// stays eligible to ring again in the same minute.
func (m *Machine) Dismiss(ctx context.Context, medicationID string, now time.Time) error {
	m.mu.Lock()
	defer m.unlock()

	if !m.active(medicationID) {
		return apperrors.ErrNoActiveAlarm
	}
	m.snoozer.CancelSnooze(ctx, medicationID)
	delete(m.fired, medicationID)
	m.release(now, "dismiss")
	return nil
}

// Snooze silences the ringing alarm and arms a re-trigger. The slot stays
// held while snoozed.
func (m *Machine) Snooze(ctx context.Context, medicationID string, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.unlock()

	if !m.active(medicationID) || m.session.State != Ringing {
		return time.Time{}, apperrors.ErrNoActiveAlarm
	}

	med, ok := m.meds.Get(medicationID)
	if !ok {
		m.release(now, "deleted")
		return time.Time{}, apperrors.NotFound(medicationID)
	}

	m.stopAlert()
	until, err := m.snoozer.Snooze(ctx, med, now)
	if err != nil {
		m.logger.Warn("Snooze re-trigger not scheduled, relying on poll",
			zap.String("medication_id", medicationID),
			zap.Error(err))
	}
	m.session.State = Snoozed
	m.session.SnoozeUntil = until
	m.record(medicationID, Ringing, Snoozed, now, "snooze")
	return until, nil
}

// SnoozeElapsed handles the end of a snooze: the alarm rings again unless the
// medication was taken (or deleted) in the meantime. Without a matching
// snoozed session it is treated as a snooze-sourced trigger.
func (m *Machine) SnoozeElapsed(ctx context.Context, medicationID string, now time.Time) Result {
	m.mu.Lock()
	defer m.unlock()

	if !m.active(medicationID) {
		return m.trigger(medicationID, now, SourceSnooze)
	}
	if m.session.State == Ringing {
		return Coalesced
	}

	med, ok := m.meds.Get(medicationID)
	switch {
	case !ok:
		m.release(now, "deleted")
		return Ignored
	case med.Taken:
		m.release(now, "taken during snooze")
		return Ignored
	}

	m.session.SnoozeUntil = time.Time{}
	m.ring(medicationID, now, Snoozed, "snooze elapsed")
	return Started
}

// DueSnooze returns the snoozed medication whose snooze has run out by now
func (m *Machine) DueSnooze(now time.Time) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.State != Snoozed || now.Before(m.session.SnoozeUntil) {
		return "", false
	}
	return m.session.MedicationID, true
}

// Cancel removes every trace of medicationID: the alert loop is stopped at
// once, its session released and its queue entry dropped.
func (m *Machine) Cancel(ctx context.Context, medicationID string, now time.Time) {
	m.mu.Lock()
	defer m.unlock()

	delete(m.fired, medicationID)
	m.dequeue(medicationID)
	if m.active(medicationID) {
		m.release(now, "cancelled")
	}
}

// Current returns a copy of the active session
func (m *Machine) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return Session{StateName: Idle.String()}, false
	}
	s := *m.session
	s.StateName = s.State.String()
	return s, true
}

// Queue returns the waiting medication ids in order
func (m *Machine) Queue() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queue...)
}

// Alerting reports whether the alert loop is running
func (m *Machine) Alerting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alert != nil
}

// Close tears down the alert loop and drops all state
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopAlert()
	m.session = nil
	m.queue = nil
}

func (m *Machine) ring(id string, now time.Time, from State, reason string) {
	if m.session == nil {
		m.session = &Session{MedicationID: id, StartedAt: now}
	}
	m.session.State = Ringing
	m.startAlert(id)
	m.record(id, from, Ringing, now, reason)
}

// release ends the active session and starts the next queued alarm
func (m *Machine) release(now time.Time, reason string) {
	m.stopAlert()
	prev := m.session
	m.session = nil
	m.record(prev.MedicationID, prev.State, Idle, now, reason)

	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]

		med, ok := m.meds.Get(next)
		if !ok || med.Taken {
			continue
		}
		m.ring(next, now, Idle, "queued")
		return
	}
}

func (m *Machine) active(id string) bool {
	return m.session != nil && m.session.MedicationID == id
}

func (m *Machine) queued(id string) bool {
	for _, q := range m.queue {
		if q == id {
			return true
		}
	}
	return false
}

func (m *Machine) dequeue(id string) {
	for i, q := range m.queue {
		if q == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Machine) record(id string, from, to State, at time.Time, reason string) {
	m.pending = append(m.pending, Transition{MedicationID: id, From: from, To: to, At: at, Reason: reason})
}

// unlock releases mu and then hands pending transitions to observers
func (m *Machine) unlock() {
	pending := m.pending
	m.pending = nil
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, tr := range pending {
		for _, fn := range observers {
			fn(tr)
		}
	}
}

func minuteKey(t time.Time) string {
	return t.Format("2006-01-02T15:04")
}
