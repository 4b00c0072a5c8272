package reset

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/medication"
)

type memKV struct {
	data    map[string][]byte
	failSet bool
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(key string, v any) (bool, error) {
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (m *memKV) Set(key string, v any) error {
	if m.failSet && key == StorageKey {
		return errors.New("write failed")
	}
	raw, err := json.Marshal(v)
	m.data[key] = raw
	return err
}

func TestCheckAndReset(t *testing.T) {
	meds := []medication.Medication{
		{ID: "a", Taken: true},
		{ID: "b", Taken: false},
		{ID: "c", Taken: true},
	}

	updated, date, changed := CheckAndReset(meds, "2026-10-14", "2026-10-15")
	require.True(t, changed)
	assert.Equal(t, "2026-10-15", date)
	for _, m := range updated {
		assert.False(t, m.Taken, m.ID)
	}
	assert.True(t, meds[0].Taken, "input must not be modified")

	again, date2, changed := CheckAndReset(updated, date, "2026-10-15")
	assert.False(t, changed)
	assert.Equal(t, date, date2)
	assert.Equal(t, updated, again)
}

func TestCheckAndReset_FirstRun(t *testing.T) {
	_, date, changed := CheckAndReset(nil, "", "2026-10-15")
	assert.True(t, changed)
	assert.Equal(t, "2026-10-15", date)
}

func newStore(t *testing.T) (*medication.Store, string) {
	t.Helper()
	s := medication.NewStore(newMemKV(), zap.NewNop())
	name := "Metformin"
	tod := medication.TimeOfDay{Hour: 8}
	med, err := s.Create(medication.Fields{Name: &name, Time: &tod})
	require.NoError(t, err)
	return s, med.ID
}

func TestController_ResetsOncePerDay(t *testing.T) {
	meds, id := newStore(t)
	kv := newMemKV()
	require.NoError(t, kv.Set(StorageKey, "2026-10-14"))
	c := NewController(kv, meds, time.UTC, zap.NewNop())

	_, err := meds.SetTaken(id, true, time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	changed, err := c.Check(time.Date(2026, 10, 15, 0, 0, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, changed)
	med, _ := meds.Get(id)
	assert.False(t, med.Taken)

	var stored string
	_, err = kv.Get(StorageKey, &stored)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15", stored)

	_, err = meds.SetTaken(id, true, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	changed, err = c.Check(time.Date(2026, 10, 15, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, changed)
	med, _ = meds.Get(id)
	assert.True(t, med.Taken)
}

func TestController_UsesLocation(t *testing.T) {
	meds, _ := newStore(t)
	kv := newMemKV()
	require.NoError(t, kv.Set(StorageKey, "2026-10-15"))
	loc := time.FixedZone("UTC-5", -5*3600)
	c := NewController(kv, meds, loc, zap.NewNop())

	// 03:00 UTC on the 16th is still the 15th at UTC-5
	changed, err := c.Check(time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestController_RetriesWhenLedgerWriteFails(t *testing.T) {
	meds, _ := newStore(t)
	kv := newMemKV()
	kv.failSet = true
	c := NewController(kv, meds, time.UTC, zap.NewNop())
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	changed, err := c.Check(now)
	assert.True(t, changed)
	assert.Error(t, err)

	kv.failSet = false
	changed, err = c.Check(now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "2026-10-15", c.LastResetDate())

	changed, err = c.Check(now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
}
