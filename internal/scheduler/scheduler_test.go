package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/gateway"
	"github.com/gmsas95/medremind/internal/gateway/gatewaytest"
	"github.com/gmsas95/medremind/internal/medication"
)

func metformin() medication.Medication {
	return medication.Medication{
		ID:        "med-1",
		Name:      "Metformin",
		Dosage:    "500mg",
		Time:      medication.TimeOfDay{Hour: 8, Minute: 0},
		Frequency: medication.FrequencyDaily,
	}
}

func newTestScheduler(gw gateway.Gateway, notify Notifier) *Scheduler {
	return New(gw, 0, zap.NewNop(), WithNotifier(notify))
}

func TestRegister_Idempotent(t *testing.T) {
	ctx := context.Background()
	gw := gatewaytest.New()
	s := newTestScheduler(gw, nil)
	med := metformin()

	first, err := s.Register(ctx, med)
	require.NoError(t, err)
	second, err := s.Register(ctx, med)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	live := gw.Live(med.ID)
	require.Len(t, live, 1)
	assert.Equal(t, second, live[0].Handle)
	assert.Equal(t, 8, live[0].Hour)
	assert.Equal(t, "Metformin", live[0].Payload.MedicationName)
	assert.Equal(t, gateway.KindDaily, live[0].Payload.Kind)
	assert.Contains(t, gw.Cancelled, first)

	h, ok := s.Handle(med.ID)
	require.True(t, ok)
	assert.Equal(t, second, h)
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	gw := gatewaytest.New()
	s := newTestScheduler(gw, nil)
	med := metformin()

	_, err := s.Register(ctx, med)
	require.NoError(t, err)
	_, err = s.Snooze(ctx, med, time.Now())
	require.NoError(t, err)
	require.Len(t, gw.Live(med.ID), 2)

	s.Unregister(ctx, med.ID)
	s.Unregister(ctx, med.ID)
	s.Unregister(ctx, "unknown")

	assert.Empty(t, gw.Live(med.ID))
	_, ok := s.Handle(med.ID)
	assert.False(t, ok)
	_, ok = s.SnoozeHandle(med.ID)
	assert.False(t, ok)
}

func TestSnooze(t *testing.T) {
	ctx := context.Background()
	gw := gatewaytest.New()
	s := newTestScheduler(gw, nil)
	med := metformin()
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	until, err := s.Snooze(ctx, med, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 8, 10, 0, 0, time.UTC), until)

	first, ok := s.SnoozeHandle(med.ID)
	require.True(t, ok)

	_, err = s.Snooze(ctx, med, now.Add(time.Minute))
	require.NoError(t, err)
	live := gw.Live(med.ID)
	require.Len(t, live, 1)
	assert.NotEqual(t, first, live[0].Handle)
	assert.Equal(t, gateway.KindSnooze, live[0].Payload.Kind)
	require.NotNil(t, live[0].FireAt)
	assert.Equal(t, now.Add(11*time.Minute), *live[0].FireAt)

	s.CancelSnooze(ctx, med.ID)
	assert.Empty(t, gw.Live(med.ID))
}

func TestSnooze_CustomDuration(t *testing.T) {
	s := New(gatewaytest.New(), 5*time.Minute, zap.NewNop())
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	until, err := s.Snooze(context.Background(), metformin(), now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), until)

	s.SetSnoozeDuration(15 * time.Minute)
	s.SetSnoozeDuration(0)
	assert.Equal(t, 15*time.Minute, s.SnoozeDuration())
}

func TestSnoozeFired(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(gatewaytest.New(), nil)
	med := metformin()

	_, err := s.Snooze(ctx, med, time.Now())
	require.NoError(t, err)
	h, _ := s.SnoozeHandle(med.ID)

	s.SnoozeFired(med.ID, "other")
	_, ok := s.SnoozeHandle(med.ID)
	assert.True(t, ok)

	s.SnoozeFired(med.ID, h)
	_, ok = s.SnoozeHandle(med.ID)
	assert.False(t, ok)
}

func TestGatewayFailure_DegradesAndNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	gw := gatewaytest.New()
	gw.SetErr(errors.New("platform unavailable"))

	var notices, failures int
	s := New(gw, 0, zap.NewNop(),
		WithNotifier(func(error) { notices++ }),
		WithFailureHook(func(error) { failures++ }))
	med := metformin()
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	_, err := s.Register(ctx, med)
	assert.Error(t, err)
	until, err := s.Snooze(ctx, med, now)
	assert.Error(t, err)
	assert.Equal(t, now.Add(10*time.Minute), until)
	s.ReconcileOnStartup(ctx, []medication.Medication{med})

	assert.True(t, s.Degraded())
	assert.Equal(t, 1, notices)
	assert.Equal(t, 4, failures)

	gw.SetErr(nil)
	_, err = s.Register(ctx, med)
	require.NoError(t, err)
	assert.False(t, s.Degraded())
	assert.Equal(t, 1, notices)
}

func TestReconcileOnStartup(t *testing.T) {
	ctx := context.Background()
	gw := gatewaytest.New()
	s := newTestScheduler(gw, nil)

	kept := metformin()
	moved := medication.Medication{ID: "med-2", Name: "Aspirin", Time: medication.TimeOfDay{Hour: 9, Minute: 30}}
	missing := medication.Medication{ID: "med-3", Name: "Vitamin D", Time: medication.TimeOfDay{Hour: 12, Minute: 0}}
	taken := medication.Medication{ID: "med-4", Name: "Statin", Time: medication.TimeOfDay{Hour: 21, Minute: 0}, Taken: true}

	keptHandle := gw.Seed(gateway.Scheduled{Payload: payloadFor(kept, gateway.KindDaily), Hour: 8, Minute: 0})
	duplicate := gw.Seed(gateway.Scheduled{Payload: payloadFor(kept, gateway.KindDaily), Hour: 8, Minute: 0})
	stale := gw.Seed(gateway.Scheduled{Payload: payloadFor(moved, gateway.KindDaily), Hour: 9, Minute: 0})
	orphan := gw.Seed(gateway.Scheduled{Payload: gateway.Payload{MedicationID: "deleted", Kind: gateway.KindDaily}, Hour: 7})
	fireAt := time.Now().Add(5 * time.Minute)
	pendingSnooze := gw.Seed(gateway.Scheduled{Payload: payloadFor(kept, gateway.KindSnooze), FireAt: &fireAt})
	takenSnooze := gw.Seed(gateway.Scheduled{Payload: payloadFor(taken, gateway.KindSnooze), FireAt: &fireAt})
	takenDaily := gw.Seed(gateway.Scheduled{Payload: payloadFor(taken, gateway.KindDaily), Hour: 21})

	s.ReconcileOnStartup(ctx, []medication.Medication{kept, moved, missing, taken})

	h, ok := s.Handle(kept.ID)
	require.True(t, ok)
	assert.Equal(t, keptHandle, h)

	sh, ok := s.SnoozeHandle(kept.ID)
	require.True(t, ok)
	assert.Equal(t, pendingSnooze, sh)

	h, ok = s.Handle(taken.ID)
	require.True(t, ok)
	assert.Equal(t, takenDaily, h)

	assert.ElementsMatch(t, []gateway.Handle{duplicate, stale, orphan, takenSnooze}, gw.Cancelled)

	for _, m := range []medication.Medication{moved, missing} {
		live := gw.Live(m.ID)
		require.Len(t, live, 1, m.Name)
		assert.Equal(t, m.Time.Hour, live[0].Hour)
		assert.Equal(t, m.Time.Minute, live[0].Minute)
	}
	assert.Empty(t, gw.Live("deleted"))
}

func TestReconcile_KeepsOwnedTriggers(t *testing.T) {
	ctx := context.Background()
	gw := gatewaytest.New()
	s := newTestScheduler(gw, nil)
	med := metformin()

	daily, err := s.Register(ctx, med)
	require.NoError(t, err)
	_, err = s.Snooze(ctx, med, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	snooze, ok := s.SnoozeHandle(med.ID)
	require.True(t, ok)

	s.ReconcileOnStartup(ctx, []medication.Medication{med})
	s.ReconcileOnStartup(ctx, []medication.Medication{med})

	assert.Empty(t, gw.Cancelled)
	assert.Len(t, gw.Live(med.ID), 2)
	h, ok := s.Handle(med.ID)
	require.True(t, ok)
	assert.Equal(t, daily, h)
	sh, ok := s.SnoozeHandle(med.ID)
	require.True(t, ok)
	assert.Equal(t, snooze, sh)
}

func TestReconcile_ReplacesVanishedTrigger(t *testing.T) {
	ctx := context.Background()
	gw := gatewaytest.New()
	s := newTestScheduler(gw, nil)
	med := metformin()

	lost, err := s.Register(ctx, med)
	require.NoError(t, err)
	require.NoError(t, gw.Cancel(ctx, lost))

	s.ReconcileOnStartup(ctx, []medication.Medication{med})

	live := gw.Live(med.ID)
	require.Len(t, live, 1)
	assert.NotEqual(t, lost, live[0].Handle)
	h, ok := s.Handle(med.ID)
	require.True(t, ok)
	assert.Equal(t, live[0].Handle, h)
}
