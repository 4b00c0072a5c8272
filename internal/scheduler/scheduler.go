// Package scheduler keeps the gateway's triggers consistent with the
// medication list: one daily trigger per medication plus at most one
// pending snooze re-trigger.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/medremind/internal/gateway"
	"github.com/gmsas95/medremind/internal/medication"
)

// DefaultSnoozeDuration is how long a snoozed alarm stays quiet
const DefaultSnoozeDuration = 10 * time.Minute

// Notifier tells the patient that reminders fell back to in-app polling
type Notifier func(err error)

// Scheduler owns the medication id to trigger handle mapping. It only keeps
// ids, never medication records.
type Scheduler struct {
	gw        gateway.Gateway
	logger    *zap.Logger
	notify    Notifier
	notice    rate.Sometimes
	onFailure func(error)

	mu      sync.Mutex
	daily   map[string]gateway.Handle
	snoozes map[string]gateway.Handle
	snooze  time.Duration

	degraded atomic.Bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithNotifier sets the callback that tells the patient, once, that the
// gateway is unavailable
func WithNotifier(fn Notifier) Option {
	return func(s *Scheduler) { s.notify = fn }
}

// WithFailureHook sets a callback invoked on every gateway failure
func WithFailureHook(fn func(error)) Option {
	return func(s *Scheduler) { s.onFailure = fn }
}

// New creates a scheduler; a non-positive snooze uses DefaultSnoozeDuration
func New(gw gateway.Gateway, snooze time.Duration, logger *zap.Logger, opts ...Option) *Scheduler {
	if snooze <= 0 {
		snooze = DefaultSnoozeDuration
	}
	s := &Scheduler{
		gw:      gw,
		logger:  logger,
		notice:  rate.Sometimes{First: 1},
		daily:   make(map[string]gateway.Handle),
		snoozes: make(map[string]gateway.Handle),
		snooze:  snooze,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register schedules the daily trigger for med, replacing any earlier one
func (s *Scheduler) Register(ctx context.Context, med medication.Medication) (gateway.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.daily[med.ID]; ok {
		if err := s.gw.Cancel(ctx, prior); err != nil {
			s.fail("cancel previous reminder", med.ID, err)
		}
		delete(s.daily, med.ID)
	}

	h, err := s.gw.ScheduleDaily(ctx, med.Time.Hour, med.Time.Minute, payloadFor(med, gateway.KindDaily))
	if err != nil {
		s.fail("schedule reminder", med.ID, err)
		return "", err
	}
	s.daily[med.ID] = h
	s.recovered()

	s.logger.Debug("Reminder registered",
		zap.String("medication_id", med.ID),
		zap.String("time", med.Time.String()),
		zap.String("handle", string(h)))
	return h, nil
}

// Unregister cancels the daily and snooze triggers for id
func (s *Scheduler) Unregister(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, handles := range []map[string]gateway.Handle{s.daily, s.snoozes} {
		h, ok := handles[id]
		if !ok {
			continue
		}
		if err := s.gw.Cancel(ctx, h); err != nil {
			s.fail("cancel reminder", id, err)
		}
		delete(handles, id)
	}
}

// ReconcileOnStartup repairs drift between the gateway's durable triggers
// and the medication list: triggers for deleted medications or stale
// times are cancelled, matching ones are adopted and medications left
// without a daily trigger are registered.
func (s *Scheduler) ReconcileOnStartup(ctx context.Context, meds []medication.Medication) {
	scheduled, err := s.gw.ListScheduled(ctx)
	if err != nil {
		s.fail("list scheduled reminders", "", err)
		scheduled = nil
	}

	byID := make(map[string]medication.Medication, len(meds))
	for _, m := range meds {
		byID[m.ID] = m
	}

	s.mu.Lock()
	var cancelled, adopted int
	live := make(map[gateway.Handle]bool, len(scheduled))
	for _, sc := range scheduled {
		med, exists := byID[sc.Payload.MedicationID]
		owned := s.daily
		wanted := false
		switch sc.Payload.Kind {
		case gateway.KindDaily:
			wanted = exists && sc.FireAt == nil &&
				sc.Hour == med.Time.Hour && sc.Minute == med.Time.Minute &&
				sc.Payload == payloadFor(med, gateway.KindDaily)
		case gateway.KindSnooze:
			owned = s.snoozes
			wanted = exists && !med.Taken
		}

		mapped, have := owned[sc.Payload.MedicationID]
		switch {
		case have && mapped == sc.Handle && wanted:
			live[sc.Handle] = true
			continue
		case !have && wanted:
			owned[med.ID] = sc.Handle
			live[sc.Handle] = true
			adopted++
			continue
		case have && mapped == sc.Handle:
			delete(owned, sc.Payload.MedicationID)
		}

		if err := s.gw.Cancel(ctx, sc.Handle); err != nil {
			s.fail("cancel orphaned reminder", sc.Payload.MedicationID, err)
			continue
		}
		cancelled++
	}

	// mapped handles the gateway no longer knows about are forgotten so the
	// medication is registered again below
	if err == nil {
		for _, owned := range []map[string]gateway.Handle{s.daily, s.snoozes} {
			for id, h := range owned {
				if !live[h] {
					delete(owned, id)
				}
			}
		}
	}
	s.mu.Unlock()

	registered := 0
	for _, m := range meds {
		if _, ok := s.Handle(m.ID); ok {
			continue
		}
		if _, err := s.Register(ctx, m); err == nil {
			registered++
		}
	}

	s.logger.Info("Reminders reconciled",
		zap.Int("medications", len(meds)),
		zap.Int("adopted", adopted),
		zap.Int("cancelled", cancelled),
		zap.Int("registered", registered))
}

// Snooze schedules a one-shot re-trigger at now plus the snooze duration and
// returns that instant. The instant is valid even when scheduling fails; the
// poll tick then detects it.
func (s *Scheduler) Snooze(ctx context.Context, med medication.Medication, now time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until := now.Add(s.snooze)

	if prior, ok := s.snoozes[med.ID]; ok {
		if err := s.gw.Cancel(ctx, prior); err != nil {
			s.fail("cancel previous snooze", med.ID, err)
		}
		delete(s.snoozes, med.ID)
	}

	h, err := s.gw.ScheduleOnce(ctx, until, payloadFor(med, gateway.KindSnooze))
	if err != nil {
		s.fail("schedule snooze", med.ID, err)
		return until, err
	}
	s.snoozes[med.ID] = h
	s.recovered()
	return until, nil
}

// CancelSnooze cancels a pending snooze re-trigger for id, if any
func (s *Scheduler) CancelSnooze(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.snoozes[id]
	if !ok {
		return
	}
	if err := s.gw.Cancel(ctx, h); err != nil {
		s.fail("cancel snooze", id, err)
	}
	delete(s.snoozes, id)
}

// SnoozeFired forgets the snooze handle once its trigger has been delivered
func (s *Scheduler) SnoozeFired(id string, h gateway.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snoozes[id] == h {
		delete(s.snoozes, id)
	}
}

// Handle returns the daily trigger handle for id
func (s *Scheduler) Handle(id string) (gateway.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.daily[id]
	return h, ok
}

// SnoozeHandle returns the pending snooze handle for id
func (s *Scheduler) SnoozeHandle(id string) (gateway.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.snoozes[id]
	return h, ok
}

// SnoozeDuration returns the current snooze length
func (s *Scheduler) SnoozeDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snooze
}

// SetSnoozeDuration changes the snooze length for future snoozes
func (s *Scheduler) SetSnoozeDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snooze = d
}

// Degraded reports whether the gateway has failed and reminders depend on
// the poll tick alone
func (s *Scheduler) Degraded() bool {
	return s.degraded.Load()
}

// Degrade switches to polling-only detection, e.g. after permission denial
func (s *Scheduler) Degrade(err error) {
	s.fail("use notification gateway", "", err)
}

func (s *Scheduler) fail(op, medicationID string, err error) {
	s.logger.Warn("Notification gateway failed, falling back to polling",
		zap.String("operation", op),
		zap.String("medication_id", medicationID),
		zap.Error(err))

	s.degraded.Store(true)
	if s.onFailure != nil {
		s.onFailure(err)
	}
	if s.notify != nil {
		s.notice.Do(func() { s.notify(err) })
	}
}

func (s *Scheduler) recovered() {
	if s.degraded.CompareAndSwap(true, false) {
		s.logger.Info("Notification gateway recovered")
	}
}

func payloadFor(med medication.Medication, kind gateway.Kind) gateway.Payload {
	return gateway.Payload{
		MedicationID:   med.ID,
		Kind:           kind,
		MedicationName: med.Name,
		Dosage:         med.Dosage,
	}
}
