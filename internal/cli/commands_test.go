package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelStatus(t *testing.T) {
	tests := []struct {
		enabled  bool
		expected string
	}{
		{true, "✅ enabled"},
		{false, "❌ disabled"},
	}

	for _, tt := range tests {
		result := channelStatus(tt.enabled)
		if result != tt.expected {
			t.Errorf("channelStatus(%v) = %q, want %q", tt.enabled, result, tt.expected)
		}
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"1234567890", "1234...7890"},
		{"123456:ABC-DEF1234ghIkl", "1234...hIkl"},
		{"short", "***"},
		{"", "***"},
		{"1234567", "***"},
	}

	for _, tt := range tests {
		result := maskToken(tt.token)
		if result != tt.expected {
			t.Errorf("maskToken(%q) = %q, want %q", tt.token, result, tt.expected)
		}
	}
}

func TestPrintFunctions(t *testing.T) {
	var buf bytes.Buffer
	PrintExtendedHelp(&buf)
	PrintConfigHelp(&buf)
	PrintChannelsHelp(&buf)
	PrintRemindersHelp(&buf)
	assert.Contains(t, buf.String(), "medremind reminders reset")
}

func TestHandleCommandsNoArgs(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Out: &buf}

	assert.NoError(t, HandleConfigCommand(opts, nil))
	assert.NoError(t, HandleChannelsCommand(opts, nil))
	assert.NoError(t, HandleRemindersCommand(opts, nil, nil))
	assert.Contains(t, buf.String(), "Usage: medremind config")
	assert.Contains(t, buf.String(), "Usage: medremind reminders")
}

func writeConfig(t *testing.T, body string) Options {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "medremind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return Options{ConfigPath: path, DataDir: dir, Out: &bytes.Buffer{}}
}

func output(opts Options) string {
	return opts.Out.(*bytes.Buffer).String()
}

func TestConfigGet(t *testing.T) {
	opts := writeConfig(t, "reminder:\n  snooze_minutes: 15\n")

	require.NoError(t, HandleConfigCommand(opts, []string{"get", "reminder.snooze_minutes"}))
	assert.Equal(t, "15\n", output(opts))

	assert.Error(t, HandleConfigCommand(opts, []string{"get", "llm.default_provider"}))
	assert.Error(t, HandleConfigCommand(opts, []string{"get"}))
}

func TestConfigPathAndShow(t *testing.T) {
	opts := writeConfig(t, "server:\n  port: 9000\n")

	require.NoError(t, HandleConfigCommand(opts, []string{"path"}))
	require.NoError(t, HandleConfigCommand(opts, []string{"show"}))

	lines := strings.SplitN(output(opts), "\n", 2)
	assert.Equal(t, opts.ConfigPath, lines[0])
	assert.Contains(t, lines[1], "port: 9000")
}

func TestDoctor(t *testing.T) {
	t.Setenv("MEDREMIND_JWT_SECRET", "")
	t.Setenv("MEDREMIND_SECURITY_JWT_SECRET", "")
	t.Setenv("MEDREMIND_SECURITY_ADMIN_PASSWORD", "")
	t.Setenv("MEDREMIND_ADMIN_PASSWORD", "")

	sound := filepath.Join(t.TempDir(), "alarm.wav")
	require.NoError(t, os.WriteFile(sound, []byte("RIFF"), 0644))

	healthy := writeConfig(t, "reminder:\n  sound_path: "+sound+"\nsecurity:\n  jwt_secret: s3cret\n  admin_password: pw\n")
	assert.Equal(t, 0, HandleDoctorCommand(healthy))
	assert.Contains(t, output(healthy), "All checks passed")

	bare := writeConfig(t, "gateway:\n  permission_granted: false\n")
	// permission, sound, secret, password
	assert.Equal(t, 4, HandleDoctorCommand(bare))
}

func TestStatus(t *testing.T) {
	opts := writeConfig(t, "reminder:\n  timezone: UTC\n")

	require.NoError(t, HandleStatusCommand(opts))
	out := output(opts)
	assert.Contains(t, out, "Timezone: UTC")
	assert.Contains(t, out, "Snooze: 10m0s")
}

func TestChannelsStatus(t *testing.T) {
	opts := writeConfig(t, "channels:\n  telegram:\n    enabled: true\n    bot_token: 123456:ABCDEFGH\n")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("MEDREMIND_CHANNELS_TELEGRAM_BOT_TOKEN", "")

	require.NoError(t, HandleChannelsCommand(opts, []string{"status"}))
	assert.Contains(t, output(opts), "Bot Token: 1234...EFGH")
}
