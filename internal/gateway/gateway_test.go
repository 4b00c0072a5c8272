package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/medremind/internal/errors"
)

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"daily trigger", Event{Payload: Payload{MedicationID: "m1", Kind: KindDaily}, Action: ActionNone}, false},
		{"snooze trigger", Event{Payload: Payload{MedicationID: "m1", Kind: KindSnooze}, Action: ActionNone}, false},
		{"taken action without kind", Event{Payload: Payload{MedicationID: "m1"}, Action: ActionTaken}, false},
		{"missing medication id", Event{Payload: Payload{Kind: KindDaily}, Action: ActionNone}, true},
		{"unknown action", Event{Payload: Payload{MedicationID: "m1"}, Action: "skip"}, true},
		{"empty action", Event{Payload: Payload{MedicationID: "m1", Kind: KindDaily}}, true},
		{"trigger without kind", Event{Payload: Payload{MedicationID: "m1"}, Action: ActionNone}, true},
		{"unknown kind", Event{Payload: Payload{MedicationID: "m1", Kind: "weekly"}, Action: ActionNone}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"payload":{"medicationId":"m1","kind":"daily"}}`))
	require.NoError(t, err)
	assert.Equal(t, ActionNone, ev.Action)
	assert.Equal(t, "m1", ev.Payload.MedicationID)

	ev, err = ParseEvent([]byte(`{"payload":{"medicationId":"m1"},"action":"snooze"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionSnooze, ev.Action)

	_, err = ParseEvent([]byte(`{"payload":{},"action":"taken"}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidEvent)

	_, err = ParseEvent([]byte(`{not json`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidEvent)
}

func TestContent(t *testing.T) {
	n := Content(Payload{MedicationID: "m1", Kind: KindDaily, MedicationName: "Metformin", Dosage: "500mg"})
	assert.Equal(t, "Time to Take Medicine!", n.Title)
	assert.Equal(t, "Metformin - 500mg", n.Body)
	assert.Equal(t, "medication-reminders", n.ChannelID)
	assert.Equal(t, []Action{ActionTaken, ActionSnooze, ActionDismiss}, n.Categories)
	assert.Equal(t, []time.Duration{0, 250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}, n.Vibration)

	n = Content(Payload{MedicationID: "m1", Kind: KindSnooze, MedicationName: "Metformin"})
	assert.Equal(t, "Snoozed Reminder", n.Title)
	assert.Equal(t, "Time to take Metformin", n.Body)

	n = Content(Payload{MedicationID: "m1", Kind: KindSnooze, MedicationName: "Metformin", Dosage: "500mg"})
	assert.Equal(t, "Time to take Metformin - 500mg", n.Body)
}
