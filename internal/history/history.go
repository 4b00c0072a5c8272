// Package history keeps the log of patient actions on reminders.
package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gmsas95/medremind/internal/store"
)

// Store records and queries dose logs
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a history store on db; the table is created by store.New
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record appends an entry, stamping it with the current time when At is zero
func (s *Store) Record(ctx context.Context, entry store.DoseLog) error {
	if entry.At.IsZero() {
		entry.At = s.now()
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record dose log: %w", err)
	}
	return nil
}

// List returns entries for a medication, newest first. Zero bounds are open.
func (s *Store) List(ctx context.Context, medicationID string, start, end time.Time, limit int) ([]store.DoseLog, error) {
	query := s.db.WithContext(ctx).Where("medication_id = ?", medicationID)
	if !start.IsZero() {
		query = query.Where("at >= ?", start)
	}
	if !end.IsZero() {
		query = query.Where("at < ?", end)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []store.DoseLog
	if err := query.Order("at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list dose logs: %w", err)
	}
	return logs, nil
}

// Summary counts entries per action for a medication since the given time
func (s *Store) Summary(ctx context.Context, medicationID string, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Action string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&store.DoseLog{}).
		Select("action, count(*) as count").
		Where("medication_id = ? AND at >= ?", medicationID, since).
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarise dose logs: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Action] = r.Count
	}
	return out, nil
}

// Purge drops every entry for a medication
func (s *Store) Purge(ctx context.Context, medicationID string) error {
	if err := s.db.WithContext(ctx).Where("medication_id = ?", medicationID).Delete(&store.DoseLog{}).Error; err != nil {
		return fmt.Errorf("failed to purge dose logs: %w", err)
	}
	return nil
}
