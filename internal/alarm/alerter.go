package alarm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Alerter is the device that makes noise while an alarm rings
type Alerter interface {
	// Vibrate plays one pass of the pattern (alternating pause and pulse).
	Vibrate(pattern []time.Duration)
	// StartSound starts the looping alarm sound.
	StartSound() error
	StopSound()
}

// LogAlerter stands in for a handset: pulses and sound are written to the log.
// The sound is considered available when the configured file exists.
type LogAlerter struct {
	SoundPath string
	Logger    *zap.Logger
}

func (a *LogAlerter) Vibrate(pattern []time.Duration) {
	a.Logger.Debug("Vibrate", zap.Durations("pattern", pattern))
}

func (a *LogAlerter) StartSound() error {
	if a.SoundPath == "" {
		return fmt.Errorf("no alarm sound configured")
	}
	if _, err := os.Stat(a.SoundPath); err != nil {
		return fmt.Errorf("alarm sound unavailable: %w", err)
	}
	a.Logger.Debug("Alarm sound started", zap.String("path", a.SoundPath))
	return nil
}

func (a *LogAlerter) StopSound() {
	a.Logger.Debug("Alarm sound stopped")
}

// minRepeat keeps a pattern of zeros from spinning the loop
const minRepeat = 100 * time.Millisecond

// alertLoop repeats the vibration pattern and holds the sound until stopped
type alertLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (m *Machine) startAlert(medicationID string) {
	m.stopAlert()

	ctx, cancel := context.WithCancel(context.Background())
	loop := &alertLoop{cancel: cancel, done: make(chan struct{})}
	m.alert = loop

	pattern := m.pattern
	every := time.Duration(0)
	for _, d := range pattern {
		every += d
	}
	if every < minRepeat {
		every = minRepeat
	}

	go func() {
		defer close(loop.done)

		if err := m.alerter.StartSound(); err != nil {
			m.soundNotice.Do(func() {
				m.logger.Warn("Alarm sound unavailable, using vibration only", zap.Error(err))
			})
		} else {
			defer m.alerter.StopSound()
		}

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			m.alerter.Vibrate(pattern)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	m.logger.Debug("Alert loop started", zap.String("medication_id", medicationID))
}

// stopAlert cancels the running loop and waits for it to exit
func (m *Machine) stopAlert() {
	if m.alert == nil {
		return
	}
	m.alert.cancel()
	<-m.alert.done
	m.alert = nil
}
