// Package engine owns the reminder core: the medication store, scheduler,
// alarm machine and daily reset. Every handler runs under one lock, so the
// poll tick, gateway events and user actions never interleave.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/alarm"
	apperrors "github.com/gmsas95/medremind/internal/errors"
	"github.com/gmsas95/medremind/internal/gateway"
	"github.com/gmsas95/medremind/internal/history"
	"github.com/gmsas95/medremind/internal/medication"
	"github.com/gmsas95/medremind/internal/metrics"
	"github.com/gmsas95/medremind/internal/reset"
	"github.com/gmsas95/medremind/internal/scheduler"
	"github.com/gmsas95/medremind/internal/store"
)

// Config holds engine settings
type Config struct {
	PollInterval     time.Duration
	SnoozeDuration   time.Duration
	VibrationPattern []time.Duration
	Location         *time.Location
}

// KV is the key-value persistence shared by the store and the reset ledger
type KV interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// Deps are the collaborators the engine is built on. History and Metrics
// are optional.
type Deps struct {
	KV      KV
	Gateway gateway.Gateway
	Alerter alarm.Alerter
	History *history.Store
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Notice is a message meant for the patient
type Notice struct {
	Kind    string    `json:"kind"` // gateway, persistence
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Engine is the process-wide reminder core
type Engine struct {
	config  Config
	gw      gateway.Gateway
	store   *medication.Store
	sched   *scheduler.Scheduler
	machine *alarm.Machine
	reset   *reset.Controller
	history *history.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	ticking atomic.Bool

	noticeMu  sync.RWMutex
	notices   []Notice
	noticeFns []func(Notice)

	runMu   sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires the core components together
func New(config Config, deps Deps) *Engine {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	e := &Engine{
		config:  config,
		gw:      deps.Gateway,
		history: deps.History,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		now:     func() time.Time { return deps.Clock().In(config.Location) },
	}

	e.store = medication.NewStore(deps.KV, deps.Logger.Named("medications"),
		medication.WithClock(e.now),
		medication.WithPersistFailureNotice(func(err error) {
			e.notice("persistence", "Could not save your medications. Changes are kept and will be saved on the next try.")
		}))
	e.sched = scheduler.New(deps.Gateway, config.SnoozeDuration, deps.Logger.Named("scheduler"),
		scheduler.WithNotifier(func(err error) {
			msg := "Notifications are unavailable. Reminders will only ring while medremind is running."
			if errors.Is(err, apperrors.ErrPermissionDenied) {
				msg = "Notification permission was denied. Reminders will only ring while medremind is running."
			}
			e.notice("gateway", msg)
		}),
		scheduler.WithFailureHook(func(error) { e.metrics.RecordGatewayFailure() }))
	e.machine = alarm.New(e.store, e.sched, deps.Alerter, config.VibrationPattern, deps.Logger.Named("alarm"))
	e.reset = reset.NewController(deps.KV, e.store, config.Location, deps.Logger.Named("reset"))

	e.machine.Observe(e.observe)
	return e
}

// Start loads the medication list, reconciles reminders and starts the poll
// loop and the gateway event pump
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		return fmt.Errorf("engine already running")
	}

	if err := e.store.Load(); err != nil {
		return fmt.Errorf("failed to load medications: %w", err)
	}

	granted, err := e.gw.RequestPermission(ctx)
	switch {
	case err != nil:
		e.sched.Degrade(err)
	case !granted:
		e.sched.Degrade(apperrors.ErrPermissionDenied)
	}

	e.mu.Lock()
	e.sched.ReconcileOnStartup(ctx, e.store.List())
	e.checkReset(e.now())
	e.mu.Unlock()

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true
	e.wg.Add(2)
	go e.run()
	go e.pump()

	e.logger.Info("Reminder engine started",
		zap.Int("medications", len(e.store.List())),
		zap.Duration("poll_interval", e.config.PollInterval),
		zap.Bool("degraded", e.sched.Degraded()))
	return nil
}

// Stop halts the loops, silences any alarm and flushes pending saves
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	e.runMu.Unlock()

	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.machine.Close()
	if err := e.store.Flush(); err != nil {
		e.logger.Error("Failed to save medications on shutdown", zap.Error(err))
	}
	e.logger.Info("Reminder engine stopped")
}

// IsRunning returns whether the loops are active
func (e *Engine) IsRunning() bool {
	e.runMu.RLock()
	defer e.runMu.RUnlock()
	return e.running
}

// run is the foreground poll loop
func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	// Check immediately on start
	e.Tick(e.ctx, e.now())

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.Tick(e.ctx, e.now())
		}
	}
}

// pump feeds gateway events to HandleEvent in arrival order
func (e *Engine) pump() {
	defer e.wg.Done()

	events := e.gw.Events()
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := e.HandleEvent(e.ctx, ev); err != nil {
				e.logger.Warn("Gateway event not handled",
					zap.String("medication_id", ev.Payload.MedicationID),
					zap.String("action", string(ev.Action)),
					zap.Error(err))
			}
		}
	}
}

// Tick is the poll check. A tick that arrives while another is still in
// flight is skipped.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	if !e.ticking.CompareAndSwap(false, true) {
		e.logger.Debug("Tick skipped, previous tick still running")
		return
	}
	defer e.ticking.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkReset(now)
	if err := e.store.Flush(); err != nil {
		e.metrics.RecordPersistFailure()
	}

	meds := e.store.List()
	for _, med := range meds {
		if med.Taken || !med.Time.Matches(now) {
			continue
		}
		e.recordTrigger(e.machine.Trigger(ctx, med.ID, now, alarm.SourcePoll))
	}

	if id, due := e.machine.DueSnooze(now); due {
		e.recordTrigger(e.machine.SnoozeElapsed(ctx, id, now))
	}
	e.metrics.SetMedications(len(meds))
}

// HandleEvent routes a gateway event: fired triggers go to the alarm,
// patient actions to Act
func (e *Engine) HandleEvent(ctx context.Context, ev gateway.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	at := ev.At
	if at.IsZero() {
		at = e.now()
	}
	at = at.In(e.config.Location)
	id := ev.Payload.MedicationID

	if ev.Action != gateway.ActionNone {
		return e.Act(ctx, id, ev.Action, "notification")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Payload.Kind {
	case gateway.KindSnooze:
		e.sched.SnoozeFired(id, ev.Handle)
		e.recordTrigger(e.machine.SnoozeElapsed(ctx, id, at))
	default:
		e.recordTrigger(e.machine.Trigger(ctx, id, at, alarm.SourceTrigger))
	}
	return nil
}

// Act applies a patient action. Snooze and dismiss only apply to the active
// alarm; taken applies to any medication.
func (e *Engine) Act(ctx context.Context, medicationID string, action gateway.Action, source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.store.Get(medicationID); !ok {
		return apperrors.NotFound(medicationID)
	}

	now := e.now()
	var err error
	switch action {
	case gateway.ActionTaken:
		err = e.machine.Taken(ctx, medicationID, now)
	case gateway.ActionSnooze:
		_, err = e.machine.Snooze(ctx, medicationID, now)
	case gateway.ActionDismiss:
		err = e.machine.Dismiss(ctx, medicationID, now)
	default:
		return apperrors.New(apperrors.ErrInvalidEvent.Code, fmt.Sprintf("unsupported action %q", action))
	}
	if err != nil {
		return err
	}

	e.metrics.RecordAction(string(action))
	e.recordHistory(ctx, medicationID, string(action), source, now)
	return nil
}

// Activate runs the foreground checks: daily reset and reminder reconciliation
func (e *Engine) Activate(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkReset(e.now())
	e.sched.ReconcileOnStartup(ctx, e.store.List())
}

// ResetReminders cancels every trigger on the gateway and registers each
// medication again
func (e *Engine) ResetReminders(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.gw.CancelAll(ctx); err != nil {
		return fmt.Errorf("failed to cancel reminders: %w", err)
	}
	meds := e.store.List()
	for _, med := range meds {
		e.sched.Unregister(ctx, med.ID)
	}
	e.sched.ReconcileOnStartup(ctx, meds)
	return nil
}

// CreateMedication adds a medication and schedules its reminder
func (e *Engine) CreateMedication(ctx context.Context, f medication.Fields) (*medication.Medication, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	med, err := e.store.Create(f)
	if err != nil {
		return nil, err
	}
	e.sched.Register(ctx, *med)
	e.metrics.SetMedications(len(e.store.List()))
	return med, nil
}

// UpdateMedication edits a medication and re-registers its reminder
func (e *Engine) UpdateMedication(ctx context.Context, id string, f medication.Fields) (*medication.Medication, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	med, err := e.store.Update(id, f)
	if err != nil {
		return nil, err
	}
	e.sched.Register(ctx, *med)
	return med, nil
}

// DeleteMedication silences any alarm for the medication, cancels its
// reminders and removes it
func (e *Engine) DeleteMedication(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.machine.Cancel(ctx, id, e.now())
	e.sched.Unregister(ctx, id)
	e.store.Delete(id)
	e.metrics.SetMedications(len(e.store.List()))

	if e.history != nil {
		if err := e.history.Purge(ctx, id); err != nil {
			e.logger.Warn("Failed to purge dose history", zap.String("medication_id", id), zap.Error(err))
		}
	}
}

// Medications returns the list in insertion order
func (e *Engine) Medications() []medication.Medication {
	return e.store.List()
}

// Medication returns one medication
func (e *Engine) Medication(id string) (medication.Medication, bool) {
	return e.store.Get(id)
}

// AlarmStatus describes the alarm slot and its queue
type AlarmStatus struct {
	Session *alarm.Session `json:"session"`
	Queue   []string       `json:"queue"`
}

// Alarm returns the current alarm session and queue
func (e *Engine) Alarm() AlarmStatus {
	status := AlarmStatus{Queue: e.machine.Queue()}
	if s, ok := e.machine.Current(); ok {
		status.Session = &s
	}
	return status
}

// Observe registers fn for alarm transitions
func (e *Engine) Observe(fn alarm.Observer) {
	e.machine.Observe(fn)
}

// OnNotice registers fn for patient notices
func (e *Engine) OnNotice(fn func(Notice)) {
	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()
	e.noticeFns = append(e.noticeFns, fn)
}

// Notices returns notices raised so far
func (e *Engine) Notices() []Notice {
	e.noticeMu.RLock()
	defer e.noticeMu.RUnlock()
	return append([]Notice(nil), e.notices...)
}

// History returns recent dose log entries for a medication
func (e *Engine) History(ctx context.Context, id string, limit int) ([]store.DoseLog, error) {
	if e.history == nil {
		return nil, nil
	}
	return e.history.List(ctx, id, time.Time{}, time.Time{}, limit)
}

// Adherence counts dose log actions for a medication over the last days
func (e *Engine) Adherence(ctx context.Context, id string, days int) (map[string]int64, error) {
	if e.history == nil {
		return map[string]int64{}, nil
	}
	return e.history.Summary(ctx, id, e.now().AddDate(0, 0, -days))
}

// Degraded reports whether reminders rely on the poll loop alone
func (e *Engine) Degraded() bool {
	return e.sched.Degraded()
}

// PersistErr reports a persistent failure to save medications
func (e *Engine) PersistErr() error {
	return e.store.Err()
}

// SetSnoozeDuration applies a new snooze length to future snoozes
func (e *Engine) SetSnoozeDuration(d time.Duration) {
	e.sched.SetSnoozeDuration(d)
}

// Scheduler exposes the scheduler for diagnostics
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.sched
}

// checkReset runs the daily reset; callers hold mu.
func (e *Engine) checkReset(now time.Time) {
	changed, err := e.reset.Check(now)
	if err != nil {
		e.logger.Error("Failed to run daily reset", zap.Error(err))
	}
	if changed {
		e.metrics.RecordReset()
	}
}

func (e *Engine) recordTrigger(res alarm.Result) {
	if res != alarm.Ignored {
		e.metrics.RecordTrigger(res.String())
	}
}

func (e *Engine) recordHistory(ctx context.Context, id, action, source string, at time.Time) {
	if e.history == nil {
		return
	}
	entry := store.DoseLog{MedicationID: id, Action: action, Source: source, At: at}
	if med, ok := e.store.Get(id); ok {
		entry.ScheduledFor = med.Time.String()
	}
	if err := e.history.Record(ctx, entry); err != nil {
		e.logger.Warn("Failed to record dose history", zap.String("medication_id", id), zap.Error(err))
	}
}

func (e *Engine) observe(tr alarm.Transition) {
	if tr.To == alarm.Ringing {
		e.metrics.RecordAlarmRung()
	}
	e.metrics.SetAlarm(int(tr.To), len(e.machine.Queue()))
}

func (e *Engine) notice(kind, message string) {
	n := Notice{Kind: kind, Message: message, At: e.now()}

	e.noticeMu.Lock()
	e.notices = append(e.notices, n)
	fns := make([]func(Notice), len(e.noticeFns))
	copy(fns, e.noticeFns)
	e.noticeMu.Unlock()

	e.logger.Warn("Patient notice", zap.String("kind", kind), zap.String("message", message))
	for _, fn := range fns {
		fn(n)
	}
}
