package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/medremind/internal/store"
)

func newTestHistory(t *testing.T) *Store {
	t.Helper()
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewStore(st.DB())
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)
	base := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, store.DoseLog{MedicationID: "m1", Action: "snooze", At: base}))
	require.NoError(t, h.Record(ctx, store.DoseLog{MedicationID: "m1", Action: "taken", At: base.Add(10 * time.Minute)}))
	require.NoError(t, h.Record(ctx, store.DoseLog{MedicationID: "m2", Action: "dismiss", At: base}))

	logs, err := h.List(ctx, "m1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "taken", logs[0].Action)
	assert.Equal(t, "snooze", logs[1].Action)

	logs, err = h.List(ctx, "m1", base.Add(time.Minute), time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "taken", logs[0].Action)

	logs, err = h.List(ctx, "m1", time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRecord_StampsTime(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)
	fixed := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	require.NoError(t, h.Record(ctx, store.DoseLog{MedicationID: "m1", Action: "taken"}))
	logs, err := h.List(ctx, "m1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].At.Equal(fixed))
}

func TestSummaryAndPurge(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)
	base := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	for _, action := range []string{"taken", "taken", "snooze", "dismiss"} {
		require.NoError(t, h.Record(ctx, store.DoseLog{MedicationID: "m1", Action: action, At: base}))
	}

	summary, err := h.Summary(ctx, "m1", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"taken": 2, "snooze": 1, "dismiss": 1}, summary)

	require.NoError(t, h.Purge(ctx, "m1"))
	logs, err := h.List(ctx, "m1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
