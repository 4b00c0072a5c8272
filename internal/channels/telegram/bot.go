// Package telegram mirrors reminders to a Telegram chat. Alarm messages carry
// Taken/Snooze/Dismiss buttons whose presses are delivered back through the
// notification gateway like any other notification action.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/medremind/internal/alarm"
	"github.com/gmsas95/medremind/internal/engine"
	"github.com/gmsas95/medremind/internal/gateway"
	"github.com/gmsas95/medremind/internal/medication"
	"github.com/gmsas95/medremind/internal/security"
)

const outboxSize = 32

// Config holds Telegram bot configuration
type Config struct {
	Token     string
	Enabled   bool
	ChatID    int64   // chat that receives reminders; learned from /start when zero
	AllowList []int64 // allowed user IDs (empty = allow all)
}

// Reminders is the part of the engine the bot reads from
type Reminders interface {
	Medications() []medication.Medication
	Medication(id string) (medication.Medication, bool)
	Alarm() engine.AlarmStatus
	Observe(fn alarm.Observer)
	OnNotice(fn func(engine.Notice))
}

// Deliverer hands patient actions to the notification gateway
type Deliverer interface {
	Deliver(ctx context.Context, ev gateway.Event) error
}

// botAPI is the subset of *tgbotapi.BotAPI the bot calls
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot represents a Telegram bot integration
type Bot struct {
	api       botAPI
	username  string
	reminders Reminders
	deliver   Deliverer
	logger    *zap.Logger
	allowList map[int64]bool
	chatID    atomic.Int64
	limiter   *rate.Limiter
	outbox    chan tgbotapi.Chattable
	now       func() time.Time

	hookOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	enabled  bool
}

// NewBot creates a new Telegram bot
func NewBot(cfg Config, reminders Reminders, deliver Deliverer, logger *zap.Logger) (*Bot, error) {
	if !cfg.Enabled || cfg.Token == "" {
		return &Bot{enabled: false}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %s", security.RedactSecrets(err.Error()))
	}
	api.Debug = false
	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	b := newBot(api, cfg, reminders, deliver, logger)
	b.username = api.Self.UserName
	return b, nil
}

func newBot(api botAPI, cfg Config, reminders Reminders, deliver Deliverer, logger *zap.Logger) *Bot {
	ctx, cancel := context.WithCancel(context.Background())

	allowList := make(map[int64]bool)
	for _, id := range cfg.AllowList {
		allowList[id] = true
	}

	b := &Bot{
		api:       api,
		reminders: reminders,
		deliver:   deliver,
		logger:    logger,
		allowList: allowList,
		// Telegram allows roughly one message per second per chat
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		outbox:  make(chan tgbotapi.Chattable, outboxSize),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
	}
	b.chatID.Store(cfg.ChatID)
	return b
}

// Start starts the bot
func (b *Bot) Start() error {
	if !b.enabled {
		return nil
	}

	b.hookOnce.Do(func() {
		b.reminders.Observe(b.onTransition)
		b.reminders.OnNotice(b.onNotice)
	})

	b.wg.Add(2)
	go b.run()
	go b.drain()

	return nil
}

// Stop stops the bot
func (b *Bot) Stop() {
	if !b.enabled {
		return
	}

	b.cancel()
	b.api.StopReceivingUpdates()
	b.wg.Wait()
}

// Enabled reports whether the bot is configured
func (b *Bot) Enabled() bool {
	return b.enabled
}

func (b *Bot) run() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.handleUpdate(update); err != nil {
				b.logger.Error("Failed to handle update", zap.String("error", security.RedactSecrets(err.Error())))
			}
		}
	}
}

// drain sends queued reminder messages within the rate limit
func (b *Bot) drain() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg := <-b.outbox:
			if err := b.limiter.Wait(b.ctx); err != nil {
				return
			}
			if _, err := b.send(msg); err != nil {
				b.logger.Warn("Failed to send reminder message", zap.String("error", security.RedactSecrets(err.Error())))
			}
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if q := update.CallbackQuery; q != nil {
		if q.From == nil || !b.allowed(q.From.ID) {
			_, err := b.api.Request(tgbotapi.NewCallback(q.ID, "Not authorized"))
			return err
		}
		return b.handleCallback(q)
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil
	}

	if !b.allowed(msg.From.ID) {
		_, err := b.sendMessage(msg.Chat.ID, "⛔ You are not authorized to use this bot.")
		return err
	}

	if msg.IsCommand() {
		return b.handleCommand(msg)
	}
	return nil
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.chatID.CompareAndSwap(0, chatID)
		_, err := b.sendMessage(chatID, "💊 *medremind*\n\nReminders will be posted here. Use /help to see commands.")
		return err

	case "help":
		_, err := b.sendMessage(chatID, `*Available Commands:*

/list - Show today's medications
/status - Show the current alarm
/taken <name> - Mark a medication as taken`)
		return err

	case "list":
		_, err := b.sendMessage(chatID, formatList(b.reminders.Medications()))
		return err

	case "status":
		_, err := b.sendMessage(chatID, b.formatStatus(b.reminders.Alarm()))
		return err

	case "taken":
		return b.handleTaken(chatID, msg.CommandArguments())

	default:
		_, err := b.sendMessage(chatID, "❓ Unknown command. Use /help for available commands.")
		return err
	}
}

func (b *Bot) handleTaken(chatID int64, arg string) error {
	med, ok := findMedication(b.reminders.Medications(), arg)
	if !ok {
		_, err := b.sendMessage(chatID, fmt.Sprintf("❓ No medication named %q.", strings.TrimSpace(arg)))
		return err
	}

	ev := gateway.Event{
		Payload: gateway.Payload{MedicationID: med.ID, MedicationName: med.Name, Dosage: med.Dosage},
		Action:  gateway.ActionTaken,
		At:      b.now(),
	}
	if err := b.deliver.Deliver(b.ctx, ev); err != nil {
		b.logger.Error("Failed to deliver action", zap.String("medication_id", med.ID), zap.Error(err))
		_, sendErr := b.sendMessage(chatID, "❌ Could not record that, please try again.")
		return sendErr
	}

	_, err := b.sendMessage(chatID, fmt.Sprintf("✅ %s marked as taken.", med.Name))
	return err
}

func (b *Bot) handleCallback(q *tgbotapi.CallbackQuery) error {
	action, id, err := parseCallback(q.Data)
	if err != nil {
		_, reqErr := b.api.Request(tgbotapi.NewCallback(q.ID, "Unknown button"))
		return reqErr
	}

	ev := gateway.Event{
		Payload: gateway.Payload{MedicationID: id},
		Action:  action,
		At:      b.now(),
	}
	if err := b.deliver.Deliver(b.ctx, ev); err != nil {
		b.logger.Error("Failed to deliver action", zap.String("medication_id", id), zap.Error(err))
		_, reqErr := b.api.Request(tgbotapi.NewCallback(q.ID, "Could not record that"))
		return reqErr
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, actionLabel(action))); err != nil {
		return err
	}

	// Drop the buttons so the same reminder cannot be answered twice
	if q.Message != nil && q.Message.Chat != nil {
		text := q.Message.Text + "\n\n" + actionLabel(action)
		if _, err := b.send(tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, text)); err != nil {
			b.logger.Debug("Failed to edit reminder message", zap.Error(err))
		}
	}
	return nil
}

func (b *Bot) onTransition(tr alarm.Transition) {
	if tr.To != alarm.Ringing {
		return
	}
	chatID := b.chatID.Load()
	if chatID == 0 {
		return
	}
	med, ok := b.reminders.Medication(tr.MedicationID)
	if !ok {
		return
	}

	kind := gateway.KindDaily
	if tr.From == alarm.Snoozed {
		kind = gateway.KindSnooze
	}
	msg := tgbotapi.NewMessage(chatID, alarmText(med, kind))
	msg.ReplyMarkup = alarmKeyboard(med.ID)
	b.enqueue(msg)
}

func (b *Bot) onNotice(n engine.Notice) {
	chatID := b.chatID.Load()
	if chatID == 0 {
		return
	}
	b.enqueue(tgbotapi.NewMessage(chatID, "⚠️ "+n.Message))
}

// enqueue never blocks the engine; a full outbox drops the message
func (b *Bot) enqueue(msg tgbotapi.Chattable) {
	select {
	case b.outbox <- msg:
	default:
		b.logger.Warn("Telegram outbox full, dropping message")
	}
}

func (b *Bot) allowed(userID int64) bool {
	return len(b.allowList) == 0 || b.allowList[userID]
}

func (b *Bot) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return b.api.Send(c)
}

func (b *Bot) sendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := b.api.Send(msg)
	if err != nil {
		// Retry as plain text in case the markdown was rejected
		msg.ParseMode = ""
		sent, err = b.api.Send(msg)
		if err != nil {
			return 0, err
		}
	}

	return sent.MessageID, nil
}

func (b *Bot) formatStatus(status engine.AlarmStatus) string {
	if status.Session == nil {
		return "🔕 No alarm is active."
	}
	name := status.Session.MedicationID
	if med, ok := b.reminders.Medication(name); ok {
		name = med.Name
	}

	var sb strings.Builder
	switch status.Session.StateName {
	case alarm.Snoozed.String():
		fmt.Fprintf(&sb, "😴 %s is snoozed until %s.", name, status.Session.SnoozeUntil.Format("15:04"))
	default:
		fmt.Fprintf(&sb, "⏰ %s is ringing.", name)
	}
	if n := len(status.Queue); n > 0 {
		fmt.Fprintf(&sb, "\n%d more waiting.", n)
	}
	return sb.String()
}

// GetBotInfo returns basic details for diagnostics
func (b *Bot) GetBotInfo() map[string]interface{} {
	if !b.enabled {
		return map[string]interface{}{
			"enabled": false,
		}
	}

	return map[string]interface{}{
		"enabled":  true,
		"username": b.username,
		"chat_id":  b.chatID.Load(),
	}
}
