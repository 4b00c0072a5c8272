package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gmsas95/medremind/internal/app"
	"github.com/gmsas95/medremind/internal/config"
)

var Version = "dev"

// Options carries the global flags every command loads config with
type Options struct {
	ConfigPath string
	DataDir    string
	Out        io.Writer
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o Options) configFile(cfg *config.Config) string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return filepath.Join(cfg.Storage.DataDir, "medremind.yaml")
}

func HandleConfigCommand(opts Options, args []string) error {
	w := opts.out()
	if len(args) == 0 {
		PrintConfigHelp(w)
		return nil
	}

	cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch args[0] {
	case "get":
		if len(args) < 2 {
			fmt.Fprintln(w, "Usage: medremind config get <key>")
			fmt.Fprintln(w, "Example: medremind config get reminder.snooze_minutes")
			return fmt.Errorf("missing key")
		}
		return printConfigValue(w, cfg, args[1])

	case "path":
		fmt.Fprintln(w, opts.configFile(cfg))

	case "show", "view":
		data, err := os.ReadFile(opts.configFile(cfg))
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		fmt.Fprintln(w, string(data))

	default:
		PrintConfigHelp(w)
	}
	return nil
}

func printConfigValue(w io.Writer, cfg *config.Config, key string) error {
	switch key {
	case "server.port":
		fmt.Fprintln(w, cfg.Server.Port)
	case "server.address":
		fmt.Fprintln(w, cfg.Server.Address)
	case "storage.data_dir":
		fmt.Fprintln(w, cfg.Storage.DataDir)
	case "reminder.snooze_minutes":
		fmt.Fprintln(w, cfg.Reminder.SnoozeMinutes)
	case "reminder.poll_interval_seconds":
		fmt.Fprintln(w, cfg.Reminder.PollIntervalSeconds)
	case "reminder.timezone":
		fmt.Fprintln(w, cfg.Reminder.Location())
	case "gateway.permission_granted":
		fmt.Fprintln(w, cfg.Gateway.PermissionGranted)
	case "channels.telegram.enabled":
		fmt.Fprintln(w, cfg.Channels.Telegram.Enabled)
	default:
		fmt.Fprintf(w, "Unknown key: %s\n", key)
		fmt.Fprintln(w, "Available keys: server.port, server.address, storage.data_dir, reminder.snooze_minutes,")
		fmt.Fprintln(w, "  reminder.poll_interval_seconds, reminder.timezone, gateway.permission_granted, channels.telegram.enabled")
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

func HandleChannelsCommand(opts Options, args []string) error {
	w := opts.out()
	if len(args) == 0 {
		PrintChannelsHelp(w)
		return nil
	}

	cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch args[0] {
	case "status":
		fmt.Fprintln(w, "Channel Status:")
		fmt.Fprintln(w, "===============")
		fmt.Fprintf(w, "Telegram: %s\n", channelStatus(cfg.Channels.Telegram.Enabled))
		if cfg.Channels.Telegram.Enabled {
			fmt.Fprintf(w, "  Bot Token: %s\n", maskToken(cfg.Channels.Telegram.BotToken))
			fmt.Fprintf(w, "  Chat ID: %d\n", cfg.Channels.Telegram.ChatID)
		}

	default:
		PrintChannelsHelp(w)
	}
	return nil
}

func channelStatus(enabled bool) string {
	if enabled {
		return "✅ enabled"
	}
	return "❌ disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// HandleRemindersCommand manages the scheduled reminder triggers
func HandleRemindersCommand(opts Options, args []string, application *app.App) error {
	w := opts.out()
	if len(args) == 0 || application == nil {
		PrintRemindersHelp(w)
		return nil
	}

	switch args[0] {
	case "reset":
		if err := application.ResetReminders(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(w, "✅ Reminders rescheduled")
	case "export":
		return application.ExportMedications(w)
	default:
		PrintRemindersHelp(w)
	}
	return nil
}

func HandleStatusCommand(opts Options) error {
	w := opts.out()
	cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintln(w, "medremind Status")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Version: %s\n", Version)
	fmt.Fprintf(w, "Config:  %s\n", opts.configFile(cfg))
	fmt.Fprintf(w, "Data:    %s\n", cfg.Storage.DataDir)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server Configuration:")
	fmt.Fprintf(w, "  Address: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Fprintf(w, "  URL: http://localhost:%d\n", cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Reminders:")
	fmt.Fprintf(w, "  Timezone: %s\n", cfg.Reminder.Location())
	fmt.Fprintf(w, "  Poll interval: %s\n", cfg.Reminder.PollInterval())
	fmt.Fprintf(w, "  Snooze: %s\n", cfg.Reminder.SnoozeDuration())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Channels:")
	fmt.Fprintf(w, "  Telegram: %s\n", channelStatus(cfg.Channels.Telegram.Enabled))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'medremind doctor' for diagnostics")
	return nil
}

// HandleDoctorCommand runs diagnostics and returns the number of issues found
func HandleDoctorCommand(opts Options) int {
	w := opts.out()
	fmt.Fprintln(w, "medremind Diagnostics")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
	if err != nil {
		fmt.Fprintln(w, "❌ Config: Error loading configuration")
		fmt.Fprintf(w, "   %v\n", err)
		return 1
	}
	fmt.Fprintln(w, "✅ Config: Loaded successfully")

	issues := 0

	if _, err := os.Stat(cfg.Storage.DataDir); os.IsNotExist(err) {
		fmt.Fprintln(w, "❌ Data Directory: Does not exist")
		issues++
	} else {
		fmt.Fprintln(w, "✅ Data Directory: Exists")
	}

	if !cfg.Gateway.PermissionGranted {
		fmt.Fprintln(w, "⚠️  Notifications: Permission not granted, reminders only ring while running")
		issues++
	} else {
		fmt.Fprintln(w, "✅ Notifications: Permission granted")
	}

	if path := cfg.Reminder.SoundPath; path != "" {
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(w, "⚠️  Alarm Sound: %s not found, alarms will vibrate only\n", path)
			issues++
		} else {
			fmt.Fprintln(w, "✅ Alarm Sound: Found")
		}
	} else {
		fmt.Fprintln(w, "⚠️  Alarm Sound: Not configured, alarms will vibrate only")
		issues++
	}

	if config.ResolveEnvWithAliases("MEDREMIND_SECURITY_JWT_SECRET") == "" && !fileSetsSecret(opts.configFile(cfg)) {
		fmt.Fprintln(w, "⚠️  JWT Secret: Not set, API tokens are invalidated on every restart")
		issues++
	} else {
		fmt.Fprintln(w, "✅ JWT Secret: Configured")
	}

	if cfg.Security.AdminPassword == "" {
		fmt.Fprintln(w, "⚠️  Admin Password: Not set, any password is accepted at login")
		issues++
	} else {
		fmt.Fprintln(w, "✅ Admin Password: Configured")
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.ChatID == 0 {
		fmt.Fprintln(w, "⚠️  Telegram: No chat ID, send /start to the bot to receive reminders")
		issues++
	}

	fmt.Fprintln(w)
	if issues == 0 {
		fmt.Fprintln(w, "✅ All checks passed!")
	} else {
		fmt.Fprintf(w, "⚠️  Found %d issue(s). Run 'medremind config path' to locate the config file.\n", issues)
	}
	return issues
}

// fileSetsSecret reports whether the config file pins a JWT secret
func fileSetsSecret(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var doc struct {
		Security struct {
			JWTSecret string `yaml:"jwt_secret"`
		} `yaml:"security"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false
	}
	return doc.Security.JWTSecret != ""
}
