package medication

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/gmsas95/medremind/internal/errors"
)

// Frequency is the prescribed dosing frequency. Only one daily trigger is
// scheduled whatever the value; it is kept for display.
type Frequency string

const (
	FrequencyDaily           Frequency = "daily"
	FrequencyTwiceDaily      Frequency = "twiceDaily"
	FrequencyThreeTimesDaily Frequency = "threeTimesDaily"
)

// Valid reports whether f is one of the known frequencies
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyTwiceDaily, FrequencyThreeTimesDaily:
		return true
	}
	return false
}

// TimeOfDay is a wall-clock hour and minute
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a single-digit hour is accepted)
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 || !digits(hh) || !digits(mm) {
		return TimeOfDay{}, invalidTime(s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, invalidTime(s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, invalidTime(s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func invalidTime(s string) error {
	return apperrors.New(apperrors.ErrInvalidTime.Code, fmt.Sprintf("invalid time of day %q, expected HH:MM", s))
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Matches reports whether now falls in the same hour and minute
func (t TimeOfDay) Matches(now time.Time) bool {
	return now.Hour() == t.Hour && now.Minute() == t.Minute
}

// On returns the instant at this time of day on the date of day
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Medication is a single prescribed medicine with its daily reminder time
type Medication struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Dosage      string     `json:"dosage"`
	Time        TimeOfDay  `json:"time"`
	Frequency   Frequency  `json:"frequency"`
	Taken       bool       `json:"taken"`
	LastTakenAt *time.Time `json:"lastTakenAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Fields holds user-supplied values for create and update.
// Nil pointers leave the existing value untouched on update.
type Fields struct {
	Name      *string
	Dosage    *string
	Time      *TimeOfDay
	Frequency *Frequency
}

func (f Fields) apply(m *Medication) {
	if f.Name != nil {
		m.Name = strings.TrimSpace(*f.Name)
	}
	if f.Dosage != nil {
		m.Dosage = strings.TrimSpace(*f.Dosage)
	}
	if f.Time != nil {
		m.Time = *f.Time
	}
	if f.Frequency != nil {
		m.Frequency = *f.Frequency
	}
}

func (f Fields) validate(creating bool) error {
	if creating || f.Name != nil {
		if f.Name == nil || strings.TrimSpace(*f.Name) == "" {
			return apperrors.Validation("name")
		}
	}
	if creating && f.Time == nil {
		return apperrors.Validation("time")
	}
	if f.Frequency != nil && !f.Frequency.Valid() {
		return apperrors.New(apperrors.ErrValidation.Code, fmt.Sprintf("unknown frequency %q", *f.Frequency))
	}
	return nil
}

func (m Medication) clone() Medication {
	if m.LastTakenAt != nil {
		at := *m.LastTakenAt
		m.LastTakenAt = &at
	}
	return m
}
