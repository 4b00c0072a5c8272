package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/gmsas95/medremind/internal/errors"
	"github.com/gmsas95/medremind/internal/store"
)

// LocalConfig configures the in-process gateway
type LocalConfig struct {
	PermissionGranted bool
	Location          *time.Location
	EventBuffer       int
}

// Local is an in-process gateway. Triggers run on a cron scheduler and the
// registry is kept in SQLite, so scheduled reminders survive a restart the
// way platform notifications do.
type Local struct {
	db     *gorm.DB
	logger *zap.Logger
	config LocalConfig
	cron   *cron.Cron
	events chan Event
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[Handle]cron.EntryID
	running bool
}

// NewLocal creates a gateway over the trigger table in db
func NewLocal(db *gorm.DB, config LocalConfig, logger *zap.Logger) *Local {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Local{
		db:      db,
		logger:  logger,
		config:  config,
		cron:    cron.New(cron.WithLocation(config.Location)),
		events:  make(chan Event, config.EventBuffer),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[Handle]cron.EntryID),
	}
}

// Start restores persisted triggers and starts the cron scheduler.
// One-shot triggers that came due while the process was down fire at once.
func (l *Local) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("gateway already running")
	}

	var rows []store.Trigger
	if err := l.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}

	now := l.now()
	var overdue []store.Trigger
	for _, row := range rows {
		if row.FireAt != nil && !row.FireAt.After(now) {
			overdue = append(overdue, row)
			continue
		}
		if err := l.arm(row); err != nil {
			l.logger.Error("Failed to restore trigger",
				zap.String("handle", row.Handle),
				zap.String("medication_id", row.MedicationID),
				zap.Error(err))
		}
	}

	l.cron.Start()
	l.running = true
	l.logger.Info("Notification gateway started",
		zap.Int("triggers", len(rows)),
		zap.Int("overdue", len(overdue)))

	for _, row := range overdue {
		go l.fire(Handle(row.Handle), payloadOf(row), true)
	}
	return nil
}

// Stop halts the scheduler and waits for running jobs
func (l *Local) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.mu.Unlock()

	l.cancel()
	<-l.cron.Stop().Done()
	l.logger.Info("Notification gateway stopped")
}

// RequestPermission reports the configured notification permission
func (l *Local) RequestPermission(ctx context.Context) (bool, error) {
	return l.config.PermissionGranted, nil
}

// ScheduleDaily registers a trigger that fires every day at hour:minute
func (l *Local) ScheduleDaily(ctx context.Context, hour, minute int, p Payload) (Handle, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", apperrors.New(apperrors.ErrInvalidTime.Code, fmt.Sprintf("invalid trigger time %02d:%02d", hour, minute))
	}
	p.Kind = KindDaily
	row := newTrigger(p, l.now())
	row.Hour = hour
	row.Minute = minute
	return l.add(ctx, row)
}

// ScheduleOnce registers a trigger that fires once at the given instant
func (l *Local) ScheduleOnce(ctx context.Context, at time.Time, p Payload) (Handle, error) {
	if p.Kind == "" {
		p.Kind = KindSnooze
	}
	row := newTrigger(p, l.now())
	row.FireAt = &at
	return l.add(ctx, row)
}

// Cancel removes a trigger; unknown handles are ignored
func (l *Local) Cancel(ctx context.Context, h Handle) error {
	l.mu.Lock()
	if id, ok := l.entries[h]; ok {
		l.cron.Remove(id)
		delete(l.entries, h)
	}
	l.mu.Unlock()

	if err := l.db.WithContext(ctx).Delete(&store.Trigger{}, "handle = ?", string(h)).Error; err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	return nil
}

// CancelAll removes every trigger this gateway knows about
func (l *Local) CancelAll(ctx context.Context) error {
	l.mu.Lock()
	for h, id := range l.entries {
		l.cron.Remove(id)
		delete(l.entries, h)
	}
	l.mu.Unlock()

	if err := l.db.WithContext(ctx).Where("1 = 1").Delete(&store.Trigger{}).Error; err != nil {
		return fmt.Errorf("failed to delete triggers: %w", err)
	}
	return nil
}

// ListScheduled returns all live triggers in creation order
func (l *Local) ListScheduled(ctx context.Context) ([]Scheduled, error) {
	var rows []store.Trigger
	if err := l.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	out := make([]Scheduled, 0, len(rows))
	for _, row := range rows {
		out = append(out, Scheduled{
			Handle:  Handle(row.Handle),
			Payload: payloadOf(row),
			Hour:    row.Hour,
			Minute:  row.Minute,
			FireAt:  row.FireAt,
		})
	}
	return out, nil
}

// Events streams fired triggers and delivered patient actions
func (l *Local) Events() <-chan Event {
	return l.events
}

// Deliver injects a patient action (from the API or a chat channel)
func (l *Local) Deliver(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = l.now()
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return errors.New("gateway stopped")
	}
}

func (l *Local) add(ctx context.Context, row store.Trigger) (Handle, error) {
	if !l.config.PermissionGranted {
		return "", apperrors.ErrPermissionDenied
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to save trigger: %w", err)
	}

	l.mu.Lock()
	err := l.arm(row)
	l.mu.Unlock()
	if err != nil {
		l.db.WithContext(ctx).Delete(&store.Trigger{}, "handle = ?", row.Handle)
		return "", err
	}

	l.logger.Debug("Trigger scheduled",
		zap.String("handle", row.Handle),
		zap.String("medication_id", row.MedicationID),
		zap.String("kind", row.Kind))
	return Handle(row.Handle), nil
}

// arm adds the cron entry for row; callers hold mu.
func (l *Local) arm(row store.Trigger) error {
	h := Handle(row.Handle)
	p := payloadOf(row)

	var id cron.EntryID
	if row.FireAt != nil {
		id = l.cron.Schedule(once{at: *row.FireAt}, cron.FuncJob(func() { l.fire(h, p, true) }))
	} else {
		var err error
		id, err = l.cron.AddFunc(fmt.Sprintf("%d %d * * *", row.Minute, row.Hour), func() { l.fire(h, p, false) })
		if err != nil {
			return fmt.Errorf("failed to add cron entry: %w", err)
		}
	}
	l.entries[h] = id
	return nil
}

func (l *Local) fire(h Handle, p Payload, oneShot bool) {
	if oneShot {
		if err := l.Cancel(l.ctx, h); err != nil {
			l.logger.Error("Failed to clear fired trigger", zap.String("handle", string(h)), zap.Error(err))
		}
	}

	n := Content(p)
	l.logger.Info("Notification posted",
		zap.String("channel", n.ChannelID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("medication_id", p.MedicationID))

	ev := Event{Handle: h, Payload: p, Action: ActionNone, At: l.now()}
	select {
	case l.events <- ev:
	case <-l.ctx.Done():
	}
}

func newTrigger(p Payload, now time.Time) store.Trigger {
	return store.Trigger{
		Handle:         uuid.NewString(),
		Kind:           string(p.Kind),
		MedicationID:   p.MedicationID,
		MedicationName: p.MedicationName,
		Dosage:         p.Dosage,
		CreatedAt:      now,
	}
}

func payloadOf(row store.Trigger) Payload {
	return Payload{
		MedicationID:   row.MedicationID,
		Kind:           Kind(row.Kind),
		MedicationName: row.MedicationName,
		Dosage:         row.Dosage,
	}
}

// once is a cron schedule that fires a single time
type once struct {
	at time.Time
}

// Next returns the zero time once the instant has passed, which the cron
// scheduler treats as never.
func (o once) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}
