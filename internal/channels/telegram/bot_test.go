package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/alarm"
	"github.com/gmsas95/medremind/internal/engine"
	"github.com/gmsas95/medremind/internal/gateway"
	"github.com/gmsas95/medremind/internal/medication"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeReminders struct {
	meds      []medication.Medication
	status    engine.AlarmStatus
	observers []alarm.Observer
	notices   []func(engine.Notice)
}

func (f *fakeReminders) Medications() []medication.Medication { return f.meds }

func (f *fakeReminders) Medication(id string) (medication.Medication, bool) {
	for _, m := range f.meds {
		if m.ID == id {
			return m, true
		}
	}
	return medication.Medication{}, false
}

func (f *fakeReminders) Alarm() engine.AlarmStatus       { return f.status }
func (f *fakeReminders) Observe(fn alarm.Observer)       { f.observers = append(f.observers, fn) }
func (f *fakeReminders) OnNotice(fn func(engine.Notice)) { f.notices = append(f.notices, fn) }

type fakeDeliverer struct {
	events []gateway.Event
	err    error
}

func (f *fakeDeliverer) Deliver(_ context.Context, ev gateway.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func newTestBot(t *testing.T, cfg Config) (*Bot, *fakeAPI, *fakeReminders, *fakeDeliverer) {
	t.Helper()
	api := &fakeAPI{}
	rem := &fakeReminders{meds: []medication.Medication{
		{ID: "med-1", Name: "Metformin", Dosage: "500mg", Time: medication.TimeOfDay{Hour: 8}},
		{ID: "med-2", Name: "Aspirin", Time: medication.TimeOfDay{Hour: 20, Minute: 30}, Taken: true},
	}}
	del := &fakeDeliverer{}
	b := newBot(api, cfg, rem, del, zap.NewNop())
	b.now = func() time.Time { return time.Date(2026, 10, 15, 8, 1, 0, 0, time.UTC) }
	t.Cleanup(b.cancel)
	return b, api, rem, del
}

func command(userID, chatID int64, text string) tgbotapi.Update {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data    string
		action  gateway.Action
		id      string
		wantErr bool
	}{
		{data: "taken:med-1", action: gateway.ActionTaken, id: "med-1"},
		{data: "snooze:med-1", action: gateway.ActionSnooze, id: "med-1"},
		{data: "dismiss:abc:def", action: gateway.ActionDismiss, id: "abc:def"},
		{data: "none:med-1", wantErr: true},
		{data: "taken:", wantErr: true},
		{data: "taken", wantErr: true},
		{data: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, id, err := parseCallback(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestAlarmText(t *testing.T) {
	med := medication.Medication{ID: "m", Name: "Metformin", Dosage: "500mg", Time: medication.TimeOfDay{Hour: 8}}

	assert.Equal(t, "⏰ Time to Take Medicine!\nMetformin - 500mg (08:00)", alarmText(med, gateway.KindDaily))
	assert.Contains(t, alarmText(med, gateway.KindSnooze), "Snoozed Reminder")

	kb := alarmKeyboard("m")
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 3)
	for i, want := range []string{"taken:m", "snooze:m", "dismiss:m"} {
		require.NotNil(t, kb.InlineKeyboard[0][i].CallbackData)
		assert.Equal(t, want, *kb.InlineKeyboard[0][i].CallbackData)
	}
}

func TestFindMedication(t *testing.T) {
	meds := []medication.Medication{{ID: "a", Name: "Metformin"}, {ID: "b", Name: "Aspirin"}}

	med, ok := findMedication(meds, " metformin ")
	require.True(t, ok)
	assert.Equal(t, "a", med.ID)

	med, ok = findMedication(meds, "b")
	require.True(t, ok)
	assert.Equal(t, "Aspirin", med.Name)

	_, ok = findMedication(meds, "")
	assert.False(t, ok)
	_, ok = findMedication(meds, "Ibuprofen")
	assert.False(t, ok)
}

func TestCallbackDeliversAction(t *testing.T) {
	b, api, _, del := newTestBot(t, Config{ChatID: 42})

	err := b.handleUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q1",
		From:    &tgbotapi.User{ID: 7},
		Data:    "snooze:med-1",
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 42}, Text: "⏰ Time to Take Medicine!"},
	}})
	require.NoError(t, err)

	require.Len(t, del.events, 1)
	ev := del.events[0]
	assert.Equal(t, "med-1", ev.Payload.MedicationID)
	assert.Equal(t, gateway.ActionSnooze, ev.Action)
	assert.NoError(t, ev.Validate())

	require.Len(t, api.requests, 1)
	require.Len(t, api.sent, 1)
	edit, ok := api.sent[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 9, edit.MessageID)
	assert.Contains(t, edit.Text, "Snoozed")
}

func TestCallbackRejectsUnknownUser(t *testing.T) {
	b, api, _, del := newTestBot(t, Config{ChatID: 42, AllowList: []int64{1}})

	err := b.handleUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "q1",
		From: &tgbotapi.User{ID: 7},
		Data: "taken:med-1",
	}})
	require.NoError(t, err)
	assert.Empty(t, del.events)
	assert.Len(t, api.requests, 1)
}

func TestCommands(t *testing.T) {
	b, api, _, del := newTestBot(t, Config{})

	require.NoError(t, b.handleUpdate(command(7, 42, "/start")))
	assert.Equal(t, int64(42), b.chatID.Load())

	require.NoError(t, b.handleUpdate(command(7, 42, "/list")))
	require.NoError(t, b.handleUpdate(command(7, 42, "/status")))
	require.NoError(t, b.handleUpdate(command(7, 42, "/taken aspirin")))
	require.NoError(t, b.handleUpdate(command(7, 42, "/taken Ibuprofen")))

	texts := api.texts()
	require.Len(t, texts, 5)
	assert.Contains(t, texts[1], "⬜ 08:00 Metformin - 500mg")
	assert.Contains(t, texts[1], "✅ 20:30 Aspirin")
	assert.Equal(t, "🔕 No alarm is active.", texts[2])
	assert.Contains(t, texts[3], "Aspirin marked as taken")
	assert.Contains(t, texts[4], "Ibuprofen")

	require.Len(t, del.events, 1)
	assert.Equal(t, "med-2", del.events[0].Payload.MedicationID)
	assert.Equal(t, gateway.ActionTaken, del.events[0].Action)
}

func TestStatusShowsSnoozeAndQueue(t *testing.T) {
	b, _, rem, _ := newTestBot(t, Config{})
	rem.status = engine.AlarmStatus{
		Session: &alarm.Session{
			MedicationID: "med-1",
			StateName:    "snoozed",
			SnoozeUntil:  time.Date(2026, 10, 15, 8, 10, 0, 0, time.UTC),
		},
		Queue: []string{"med-2"},
	}

	assert.Equal(t, "😴 Metformin is snoozed until 08:10.\n1 more waiting.", b.formatStatus(rem.status))
}

func TestRingingTransitionQueuesReminder(t *testing.T) {
	b, _, _, _ := newTestBot(t, Config{ChatID: 42})

	b.onTransition(alarm.Transition{MedicationID: "med-1", From: alarm.Idle, To: alarm.Snoozed})
	b.onTransition(alarm.Transition{MedicationID: "missing", From: alarm.Idle, To: alarm.Ringing})
	assert.Empty(t, b.outbox)

	b.onTransition(alarm.Transition{MedicationID: "med-1", From: alarm.Snoozed, To: alarm.Ringing})
	require.Len(t, b.outbox, 1)
	msg, ok := (<-b.outbox).(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "Snoozed Reminder")
	assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, msg.ReplyMarkup)

	b.onNotice(engine.Notice{Message: "Notifications are unavailable."})
	require.Len(t, b.outbox, 1)
}

func TestNoChatNoReminder(t *testing.T) {
	b, _, _, _ := newTestBot(t, Config{})

	b.onTransition(alarm.Transition{MedicationID: "med-1", To: alarm.Ringing})
	b.onNotice(engine.Notice{Message: "x"})
	assert.Empty(t, b.outbox)
}

func TestStartRegistersHooksAndDrains(t *testing.T) {
	b, api, rem, _ := newTestBot(t, Config{ChatID: 42})
	require.NoError(t, b.Start())
	defer b.Stop()

	require.Len(t, rem.observers, 1)
	require.Len(t, rem.notices, 1)

	rem.observers[0](alarm.Transition{MedicationID: "med-1", From: alarm.Idle, To: alarm.Ringing})
	assert.Eventually(t, func() bool { return len(api.texts()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestDisabledBot(t *testing.T) {
	b, err := NewBot(Config{}, nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, b.Enabled())
	assert.NoError(t, b.Start())
	b.Stop()
	assert.Equal(t, false, b.GetBotInfo()["enabled"])
}
