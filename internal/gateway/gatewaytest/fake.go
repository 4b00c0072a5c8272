// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/medremind/internal/gateway"
)

// Fake is an in-memory gateway. Triggers never fire on their own; tests
// call Fire to deliver one.
type Fake struct {
	mu        sync.Mutex
	seq       int
	scheduled map[gateway.Handle]gateway.Scheduled
	order     []gateway.Handle
	events    chan gateway.Event

	Granted    bool
	Err        error // returned by every scheduling call while set
	Cancelled  []gateway.Handle
	Permission int
}

// New creates a fake gateway with permission granted
func New() *Fake {
	return &Fake{
		scheduled: make(map[gateway.Handle]gateway.Scheduled),
		events:    make(chan gateway.Event, 64),
		Granted:   true,
	}
}

func (f *Fake) RequestPermission(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Permission++
	return f.Granted, nil
}

func (f *Fake) ScheduleDaily(ctx context.Context, hour, minute int, p gateway.Payload) (gateway.Handle, error) {
	p.Kind = gateway.KindDaily
	return f.add(gateway.Scheduled{Payload: p, Hour: hour, Minute: minute})
}

func (f *Fake) ScheduleOnce(ctx context.Context, at time.Time, p gateway.Payload) (gateway.Handle, error) {
	if p.Kind == "" {
		p.Kind = gateway.KindSnooze
	}
	return f.add(gateway.Scheduled{Payload: p, FireAt: &at})
}

func (f *Fake) Cancel(ctx context.Context, h gateway.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.remove(h)
	f.Cancelled = append(f.Cancelled, h)
	return nil
}

func (f *Fake) CancelAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for _, h := range append([]gateway.Handle(nil), f.order...) {
		f.remove(h)
		f.Cancelled = append(f.Cancelled, h)
	}
	return nil
}

func (f *Fake) ListScheduled(ctx context.Context) ([]gateway.Scheduled, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]gateway.Scheduled, 0, len(f.order))
	for _, h := range f.order {
		out = append(out, f.scheduled[h])
	}
	return out, nil
}

func (f *Fake) Events() <-chan gateway.Event {
	return f.events
}

// SetErr makes subsequent calls fail with err (nil restores success)
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Live returns the live triggers for a medication
func (f *Fake) Live(medicationID string) []gateway.Scheduled {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.Scheduled
	for _, h := range f.order {
		if sc := f.scheduled[h]; sc.Payload.MedicationID == medicationID {
			out = append(out, sc)
		}
	}
	return out
}

// Seed adds a trigger as if it had survived a restart
func (f *Fake) Seed(sc gateway.Scheduled) gateway.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sc.Handle == "" {
		f.seq++
		sc.Handle = gateway.Handle(fmt.Sprintf("seed-%d", f.seq))
	}
	f.scheduled[sc.Handle] = sc
	f.order = append(f.order, sc.Handle)
	return sc.Handle
}

// Fire delivers the trigger as an event; one-shot triggers are removed
func (f *Fake) Fire(h gateway.Handle, at time.Time) bool {
	f.mu.Lock()
	sc, ok := f.scheduled[h]
	if ok && sc.FireAt != nil {
		f.remove(h)
	}
	f.mu.Unlock()
	if !ok {
		return false
	}
	f.events <- gateway.Event{Handle: h, Payload: sc.Payload, Action: gateway.ActionNone, At: at}
	return true
}

// Send pushes an arbitrary event onto the stream
func (f *Fake) Send(ev gateway.Event) {
	f.events <- ev
}

func (f *Fake) add(sc gateway.Scheduled) (gateway.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.seq++
	sc.Handle = gateway.Handle(fmt.Sprintf("%s-%d", sc.Payload.Kind, f.seq))
	f.scheduled[sc.Handle] = sc
	f.order = append(f.order, sc.Handle)
	return sc.Handle, nil
}

func (f *Fake) remove(h gateway.Handle) {
	if _, ok := f.scheduled[h]; !ok {
		return
	}
	delete(f.scheduled, h)
	for i, o := range f.order {
		if o == h {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}
