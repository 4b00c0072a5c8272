package medication

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medremind/internal/errors"
)

// StorageKey is the persistence key holding the whole medication list
const StorageKey = "medications"

// persistFailureThreshold is how many consecutive failed saves it takes
// before the patient is told that changes could not be saved.
const persistFailureThreshold = 3

// KV is the key-value persistence the store writes through to
type KV interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// Store is the ordered, in-memory list of medications. The in-memory list is
// authoritative; every mutation writes the whole list through to the KV and a
// failed write is retried by the next mutation.
type Store struct {
	kv     KV
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	meds     []Medication
	dirty    bool
	failures int

	onPersistFailure func(error)
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for CreatedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersistFailureNotice sets the callback invoked once when saving has
// failed persistFailureThreshold times in a row. It fires again only after
// a save has succeeded in between.
func WithPersistFailureNotice(fn func(error)) Option {
	return func(s *Store) { s.onPersistFailure = fn }
}

// NewStore creates an empty store; call Load to read persisted records
func NewStore(kv KV, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory list with the persisted one
func (s *Store) Load() error {
	var meds []Medication
	if _, err := s.kv.Get(StorageKey, &meds); err != nil {
		return apperrors.Wrap(err, apperrors.ErrPersistence.Code, "failed to load medications")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.meds = meds
	s.dirty = false
	s.failures = 0
	return nil
}

// Create validates f, appends a new medication and persists the list
func (s *Store) Create(f Fields) (*Medication, error) {
	if err := f.validate(true); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	med := Medication{
		ID:        s.newID(),
		Frequency: FrequencyDaily,
		CreatedAt: s.now(),
	}
	f.apply(&med)
	s.meds = append(s.meds, med)
	s.persist()

	out := med.clone()
	return &out, nil
}

// Update merges f into the medication with the given id
func (s *Store) Update(id string, f Fields) (*Medication, error) {
	if err := f.validate(false); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, apperrors.NotFound(id)
	}
	f.apply(&s.meds[i])
	s.persist()

	out := s.meds[i].clone()
	return &out, nil
}

// Delete removes the medication; unknown ids are ignored.
// It does not touch scheduled reminders.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.meds = append(s.meds[:i], s.meds[i+1:]...)
	s.persist()
}

// SetTaken sets the taken flag; marking taken also records when
func (s *Store) SetTaken(id string, taken bool, when time.Time) (*Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, apperrors.NotFound(id)
	}
	s.meds[i].Taken = taken
	if taken {
		at := when
		s.meds[i].LastTakenAt = &at
	}
	s.persist()

	out := s.meds[i].clone()
	return &out, nil
}

// ApplyTaken copies the taken flag from updated onto the stored records with
// matching ids and persists once. Ids not in the store are skipped.
func (s *Store) ApplyTaken(updated []Medication) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, u := range updated {
		if i := s.indexOf(u.ID); i >= 0 && s.meds[i].Taken != u.Taken {
			s.meds[i].Taken = u.Taken
			changed = true
		}
	}
	if changed || s.dirty {
		s.persist()
	}
}

// List returns copies of all medications in insertion order
func (s *Store) List() []Medication {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Medication, len(s.meds))
	for i, m := range s.meds {
		out[i] = m.clone()
	}
	return out
}

// Get returns a copy of the medication with the given id
func (s *Store) Get(id string) (Medication, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return Medication{}, false
	}
	return s.meds[i].clone(), true
}

// Flush retries a pending save, if any
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persist()
}

// Err reports ErrPersistence while saving keeps failing
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dirty && s.failures >= persistFailureThreshold {
		return apperrors.ErrPersistence
	}
	return nil
}

// persist writes the whole list; callers hold mu.
func (s *Store) persist() error {
	snapshot := make([]Medication, len(s.meds))
	copy(snapshot, s.meds)

	if err := s.kv.Set(StorageKey, snapshot); err != nil {
		s.dirty = true
		s.failures++
		s.logger.Error("Failed to save medications",
			zap.Int("consecutive_failures", s.failures),
			zap.Error(err))
		if s.failures == persistFailureThreshold && s.onPersistFailure != nil {
			s.onPersistFailure(apperrors.Wrap(err, apperrors.ErrPersistence.Code, apperrors.ErrPersistence.Message))
		}
		return fmt.Errorf("failed to save medications: %w", err)
	}

	if s.dirty {
		s.logger.Info("Saved medications after earlier failure", zap.Int("failed_attempts", s.failures))
	}
	s.dirty = false
	s.failures = 0
	return nil
}

func (s *Store) newID() string {
	for {
		id := uuid.NewString()
		if s.indexOf(id) < 0 {
			return id
		}
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.meds {
		if s.meds[i].ID == id {
			return i
		}
	}
	return -1
}
