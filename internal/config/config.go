package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for medremind
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// ReminderConfig holds alarm engine settings
type ReminderConfig struct {
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	SnoozeMinutes       int    `mapstructure:"snooze_minutes"`
	VibrationPatternMs  []int  `mapstructure:"vibration_pattern_ms"`
	SoundPath           string `mapstructure:"sound_path"`
	Timezone            string `mapstructure:"timezone"`
}

// GatewayConfig holds notification gateway settings
type GatewayConfig struct {
	PermissionGranted  bool   `mapstructure:"permission_granted"`
	ChannelID          string `mapstructure:"channel_id"`
	BreakerMaxFailures int    `mapstructure:"breaker_max_failures"`
	BreakerTimeoutSecs int    `mapstructure:"breaker_timeout_seconds"`
}

// ChannelsConfig holds integration settings
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AdminPassword string   `mapstructure:"admin_password"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
}

// PollInterval returns the foreground time-check period
func (r ReminderConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// SnoozeDuration returns how long a snoozed alarm stays quiet
func (r ReminderConfig) SnoozeDuration() time.Duration {
	return time.Duration(r.SnoozeMinutes) * time.Minute
}

// VibrationPattern converts the configured pattern into durations
func (r ReminderConfig) VibrationPattern() []time.Duration {
	pattern := make([]time.Duration, 0, len(r.VibrationPatternMs))
	for _, ms := range r.VibrationPatternMs {
		pattern = append(pattern, time.Duration(ms)*time.Millisecond)
	}
	return pattern
}

// Location resolves the configured timezone, falling back to local time
func (r ReminderConfig) Location() *time.Location {
	if r.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath, dataDir string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	dataDir = ResolveDataDir(dataDir)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "medremind.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medremind.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (MEDREMIND_SERVER_PORT, MEDREMIND_REMINDER_SNOOZE_MINUTES, etc.)
	v.SetEnvPrefix("MEDREMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Watch reloads the config file whenever it changes on disk and hands the
// freshly decoded config to onChange. Decode errors are passed along with a
// nil config so the caller can log them and keep the previous settings.
func Watch(configPath, dataDir string, onChange func(*Config, error)) error {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Reminder defaults
	v.SetDefault("reminder.poll_interval_seconds", 60)
	v.SetDefault("reminder.snooze_minutes", 10)
	v.SetDefault("reminder.vibration_pattern_ms", []int{0, 250, 250, 250})
	v.SetDefault("reminder.sound_path", "")

	// Gateway defaults
	v.SetDefault("gateway.permission_granted", true)
	v.SetDefault("gateway.channel_id", "medication-reminders")
	v.SetDefault("gateway.breaker_max_failures", 3)
	v.SetDefault("gateway.breaker_timeout_seconds", 60)

	// Security defaults
	v.SetDefault("security.allow_origins", []string{"*"})
}

// ResolveDataDir returns dir with ~ expanded, or the default data directory
// when dir is empty.
func ResolveDataDir(dir string) string {
	if dir == "" {
		dir = getDefaultDataDir()
	}
	return expandPath(dir)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medremind")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medremind")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// loadEnvOverrides loads specific env vars that Viper doesn't pick up through
// AutomaticEnv because they are never read by key, plus the short aliases.
func loadEnvOverrides(cfg *Config) {
	if token := ResolveEnvWithAliases("MEDREMIND_CHANNELS_TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Channels.Telegram.BotToken = token
	}
	if chatID := ResolveEnvWithAliases("MEDREMIND_CHANNELS_TELEGRAM_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Channels.Telegram.ChatID = id
		}
	}

	cfg.Server.Address = GetEnvDefault("MEDREMIND_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("MEDREMIND_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if secret := ResolveEnvWithAliases("MEDREMIND_SECURITY_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}
	cfg.Security.AdminPassword = GetEnvDefault("MEDREMIND_SECURITY_ADMIN_PASSWORD", cfg.Security.AdminPassword)
}

func validate(cfg *Config) error {
	if cfg.Reminder.PollIntervalSeconds <= 0 {
		return fmt.Errorf("reminder.poll_interval_seconds must be positive, got %d", cfg.Reminder.PollIntervalSeconds)
	}
	if cfg.Reminder.SnoozeMinutes <= 0 {
		return fmt.Errorf("reminder.snooze_minutes must be positive, got %d", cfg.Reminder.SnoozeMinutes)
	}
	if cfg.Reminder.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Reminder.Timezone); err != nil {
			return fmt.Errorf("reminder.timezone %q: %w", cfg.Reminder.Timezone, err)
		}
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.BotToken == "" {
		return fmt.Errorf("channels.telegram.bot_token is required when telegram is enabled")
	}

	// Generate JWT secret if not provided
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

func generateRandomString(n int) string {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return strings.Repeat("x", n)
	}
	return hex.EncodeToString(b)
}
