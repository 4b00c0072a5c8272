// Package reset clears the "taken" flags once per calendar day.
package reset

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/medication"
)

// StorageKey holds the date of the last reset
const StorageKey = "lastResetDate"

// DateLayout is the calendar date format stored under StorageKey
const DateLayout = "2006-01-02"

// CheckAndReset returns meds with every taken flag cleared when
// lastResetDate is not today. changed is false, and meds is returned as is,
// when the reset already ran today.
func CheckAndReset(meds []medication.Medication, lastResetDate, today string) ([]medication.Medication, string, bool) {
	if lastResetDate == today {
		return meds, lastResetDate, false
	}

	updated := make([]medication.Medication, len(meds))
	for i, m := range meds {
		m.Taken = false
		updated[i] = m
	}
	return updated, today, true
}

// KV is the persistence for the reset ledger
type KV interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// Store is the medication list the controller resets
type Store interface {
	List() []medication.Medication
	ApplyTaken(updated []medication.Medication)
}

// Controller runs CheckAndReset against the live store and the persisted ledger
type Controller struct {
	kv     KV
	meds   Store
	loc    *time.Location
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

// NewController creates a controller that judges calendar days in loc
func NewController(kv KV, meds Store, loc *time.Location, logger *zap.Logger) *Controller {
	if loc == nil {
		loc = time.Local
	}
	return &Controller{kv: kv, meds: meds, loc: loc, logger: logger}
}

// Check clears the taken flags if the day has changed since the last reset
// and reports whether it did. The ledger is written after the flags, so a
// failed write means the reset runs again on the next check.
func (c *Controller) Check(now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := now.In(c.loc).Format(DateLayout)
	if c.last == "" {
		if _, err := c.kv.Get(StorageKey, &c.last); err != nil {
			return false, fmt.Errorf("failed to read last reset date: %w", err)
		}
	}

	updated, newDate, changed := CheckAndReset(c.meds.List(), c.last, today)
	if !changed {
		return false, nil
	}

	c.meds.ApplyTaken(updated)
	if err := c.kv.Set(StorageKey, newDate); err != nil {
		return true, fmt.Errorf("failed to save last reset date: %w", err)
	}

	c.logger.Info("Daily reset applied",
		zap.String("previous", c.last),
		zap.String("today", newDate),
		zap.Int("medications", len(updated)))
	c.last = newDate
	return true, nil
}

// LastResetDate returns the cached ledger value
func (c *Controller) LastResetDate() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
