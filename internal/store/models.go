package store

import (
	"time"
)

// Trigger is a notification trigger the local gateway keeps across restarts.
// Daily triggers carry Hour/Minute; one-shot triggers carry FireAt.
type Trigger struct {
	Handle         string     `gorm:"primaryKey" json:"handle"`
	Kind           string     `gorm:"index" json:"kind"` // daily, snooze
	MedicationID   string     `gorm:"index" json:"medication_id"`
	MedicationName string     `json:"medication_name"`
	Dosage         string     `json:"dosage"`
	Hour           int        `json:"hour"`
	Minute         int        `json:"minute"`
	FireAt         *time.Time `json:"fire_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DoseLog records one patient action on a reminder
type DoseLog struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MedicationID string    `gorm:"index:idx_dose_med_at" json:"medication_id"`
	Action       string    `json:"action"` // taken, snooze, dismiss
	Source       string    `json:"source"` // alarm, api, telegram
	ScheduledFor string    `json:"scheduled_for,omitempty"`
	At           time.Time `gorm:"index:idx_dose_med_at" json:"at"`
}
