package onboarding

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/config"
)

func runWizard(t *testing.T, dataDir string, answers ...string) (*Wizard, string) {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(answers, "\n") + "\n")
	w := NewWizard(in, &out, dataDir, zap.NewNop())
	require.NoError(t, w.Run())
	return w, out.String()
}

func TestWizardDefaults(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, CheckFirstRun(dir))

	w, out := runWizard(t, dir,
		"",  // welcome
		"",  // data dir
		"",  // timezone
		"",  // snooze
		"",  // sound
		"",  // port
		"",  // admin password
		"n", // telegram
	)

	assert.False(t, CheckFirstRun(dir))
	assert.Contains(t, out, "Setup complete")
	assert.Contains(t, out, filepath.Join(dir, ConfigFileName))
	assert.NotContains(t, out, "{{.")
	assert.Equal(t, 10, w.Config().SnoozeMinutes)

	cfg, err := config.Load(filepath.Join(dir, ConfigFileName), dir)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Reminder.SnoozeMinutes)
	assert.False(t, cfg.Channels.Telegram.Enabled)
	assert.Len(t, cfg.Security.JWTSecret, 64)
}

func TestWizardCustomAnswers(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "meds")

	w, _ := runWizard(t, dir,
		"",
		target,
		"Europe/Berlin",
		"15",
		"/tmp/bell.wav",
		"9090",
		"s3cret",
		"y",
		"123:abc",
		"42",
	)

	got := w.Config()
	assert.Equal(t, "Europe/Berlin", got.Timezone)
	assert.Equal(t, 15, got.SnoozeMinutes)
	assert.Equal(t, 9090, got.Port)
	assert.True(t, got.EnableTelegram)
	assert.Equal(t, int64(42), got.TelegramChatID)

	raw, err := os.ReadFile(filepath.Join(target, ConfigFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "timezone: Europe/Berlin")
	assert.Contains(t, string(raw), "snooze_minutes: 15")
	assert.Contains(t, string(raw), "chat_id: 42")
	assert.NotContains(t, string(raw), "123:abc")

	env, err := os.ReadFile(filepath.Join(target, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "MEDREMIND_ADMIN_PASSWORD=s3cret\n")
	assert.Contains(t, string(env), "TELEGRAM_BOT_TOKEN=123:abc\n")
}

func TestWizardRejectsBadAnswers(t *testing.T) {
	dir := t.TempDir()

	w, out := runWizard(t, dir,
		"",
		"",
		"Mars/Olympus",
		"soon",
		"",
		"70000",
		"",
		"",
	)

	got := w.Config()
	assert.Empty(t, got.Timezone)
	assert.Equal(t, 10, got.SnoozeMinutes)
	assert.Equal(t, 8080, got.Port)
	assert.Contains(t, out, `Unknown timezone "Mars/Olympus"`)
	assert.Contains(t, out, `Invalid snooze length "soon"`)
}
