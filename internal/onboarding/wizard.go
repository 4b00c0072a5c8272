package onboarding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the config file the wizard writes into the data directory
const ConfigFileName = "medremind.yaml"

// Wizard handles the interactive setup process
type Wizard struct {
	reader  *bufio.Reader
	in      io.Reader
	out     io.Writer
	logger  *zap.Logger
	dataDir string
	config  *WizardConfig
}

// WizardConfig holds the configuration collected during setup
type WizardConfig struct {
	Port           int
	Timezone       string
	SnoozeMinutes  int
	SoundPath      string
	AdminPassword  string
	EnableTelegram bool
	TelegramToken  string
	TelegramChatID int64
}

// NewWizard creates a new setup wizard writing into dataDir
func NewWizard(in io.Reader, out io.Writer, dataDir string, logger *zap.Logger) *Wizard {
	return &Wizard{
		reader:  bufio.NewReader(in),
		in:      in,
		out:     out,
		logger:  logger,
		dataDir: dataDir,
		config: &WizardConfig{
			Port:          8080,
			SnoozeMinutes: 10,
		},
	}
}

// Config returns the answers collected so far
func (w *Wizard) Config() WizardConfig {
	return *w.config
}

// DataDir returns the data directory chosen during setup
func (w *Wizard) DataDir() string {
	return w.dataDir
}

// Run runs the interactive setup wizard
func (w *Wizard) Run() error {
	w.clearScreen()
	fmt.Fprint(w.out, SetupWizardWelcome)
	w.readLine()

	if err := w.setupDataDir(); err != nil {
		return fmt.Errorf("data directory setup failed: %w", err)
	}

	if err := w.setupReminders(); err != nil {
		return fmt.Errorf("reminder setup failed: %w", err)
	}

	if err := w.setupSecurity(); err != nil {
		return fmt.Errorf("security setup failed: %w", err)
	}

	if err := w.setupIntegrations(); err != nil {
		return fmt.Errorf("integrations setup failed: %w", err)
	}

	if err := w.createConfiguration(); err != nil {
		return fmt.Errorf("configuration creation failed: %w", err)
	}

	w.showCompletion()
	return nil
}

func (w *Wizard) step(title string) {
	w.clearScreen()
	fmt.Fprintln(w.out, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w.out, "║  %-62s║\n", title)
	fmt.Fprintln(w.out, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w.out)
}

func (w *Wizard) setupDataDir() error {
	w.step("Step 1: Data Directory")

	fmt.Fprintf(w.out, "Where should medremind store its data? [default: %s]: ", w.dataDir)
	if dir := w.readLine(); dir != "" {
		w.dataDir = dir
	}

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	fmt.Fprintln(w.out, "✓ Data directory ready")
	return nil
}

func (w *Wizard) setupReminders() error {
	w.step("Step 2: Reminders")

	fmt.Fprint(w.out, "Timezone for reminder times (e.g. Europe/Berlin) [default: system]: ")
	if tz := w.readLine(); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			fmt.Fprintf(w.out, "Unknown timezone %q, using the system timezone\n", tz)
		} else {
			w.config.Timezone = tz
		}
	}

	fmt.Fprintf(w.out, "Snooze length in minutes [default: %d]: ", w.config.SnoozeMinutes)
	if s := w.readLine(); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			w.config.SnoozeMinutes = n
		} else {
			fmt.Fprintf(w.out, "Invalid snooze length %q, keeping %d\n", s, w.config.SnoozeMinutes)
		}
	}

	fmt.Fprint(w.out, "Alarm sound file (leave empty to vibrate only): ")
	w.config.SoundPath = w.readLine()

	fmt.Fprintln(w.out, "\n✓ Reminders configured")
	return nil
}

func (w *Wizard) setupSecurity() error {
	w.step("Step 3: API Access")

	fmt.Fprintf(w.out, "HTTP port [default: %d]: ", w.config.Port)
	if s := w.readLine(); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n < 65536 {
			w.config.Port = n
		}
	}

	fmt.Fprint(w.out, "Admin password for the API (leave empty to accept any): ")
	w.config.AdminPassword = w.readSecret()

	fmt.Fprintln(w.out, "\n✓ API access configured")
	return nil
}

func (w *Wizard) setupIntegrations() error {
	w.step("Step 4: Optional Integrations")

	fmt.Fprintln(w.out, "Would you like reminders mirrored to Telegram?")
	fmt.Fprint(w.out, "Enable Telegram? (y/n) [default: n]: ")
	answer := strings.ToLower(w.readLine())

	if answer == "y" || answer == "yes" {
		w.config.EnableTelegram = true
		fmt.Fprintln(w.out)
		fmt.Fprintln(w.out, "To set up Telegram:")
		fmt.Fprintln(w.out, "1. Message @BotFather on Telegram")
		fmt.Fprintln(w.out, "2. Create a new bot with /newbot")
		fmt.Fprintln(w.out, "3. Copy the bot token")
		fmt.Fprintln(w.out)
		fmt.Fprint(w.out, "Enter your Telegram Bot Token: ")
		w.config.TelegramToken = w.readSecret()

		fmt.Fprint(w.out, "Chat ID for reminders (leave empty and send /start to the bot): ")
		if s := w.readLine(); s != "" {
			if id, err := strconv.ParseInt(s, 10, 64); err == nil {
				w.config.TelegramChatID = id
			}
		}
	}

	fmt.Fprintln(w.out, "\n✓ Integrations configured")
	return nil
}

type fileConfig struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`
	Reminder struct {
		SnoozeMinutes int    `yaml:"snooze_minutes"`
		Timezone      string `yaml:"timezone,omitempty"`
		SoundPath     string `yaml:"sound_path,omitempty"`
	} `yaml:"reminder"`
	Channels struct {
		Telegram struct {
			Enabled bool  `yaml:"enabled"`
			ChatID  int64 `yaml:"chat_id,omitempty"`
		} `yaml:"telegram"`
	} `yaml:"channels"`
	Security struct {
		JWTSecret    string   `yaml:"jwt_secret"`
		AllowOrigins []string `yaml:"allow_origins"`
	} `yaml:"security"`
}

// createConfiguration writes medremind.yaml and keeps secrets in .env
func (w *Wizard) createConfiguration() error {
	var fc fileConfig
	fc.Server.Address = "127.0.0.1"
	fc.Server.Port = w.config.Port
	fc.Storage.DataDir = w.dataDir
	fc.Reminder.SnoozeMinutes = w.config.SnoozeMinutes
	fc.Reminder.Timezone = w.config.Timezone
	fc.Reminder.SoundPath = w.config.SoundPath
	fc.Channels.Telegram.Enabled = w.config.EnableTelegram
	fc.Channels.Telegram.ChatID = w.config.TelegramChatID
	fc.Security.AllowOrigins = []string{"*"}

	secret, err := randomSecret()
	if err != nil {
		return err
	}
	fc.Security.JWTSecret = secret

	body, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	header := fmt.Sprintf("# medremind configuration\n# Generated on %s\n\n", time.Now().Format("2006-01-02"))

	configPath := filepath.Join(w.dataDir, ConfigFileName)
	if err := os.WriteFile(configPath, append([]byte(header), body...), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	var env strings.Builder
	fmt.Fprintf(&env, "# medremind environment variables\n# Generated on %s\n\n", time.Now().Format("2006-01-02"))
	if w.config.AdminPassword != "" {
		fmt.Fprintf(&env, "MEDREMIND_ADMIN_PASSWORD=%s\n", w.config.AdminPassword)
	}
	if w.config.EnableTelegram && w.config.TelegramToken != "" {
		fmt.Fprintf(&env, "TELEGRAM_BOT_TOKEN=%s\n", w.config.TelegramToken)
	}

	envPath := filepath.Join(w.dataDir, ".env")
	if err := os.WriteFile(envPath, []byte(env.String()), 0600); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}

	w.logger.Info("Configuration written", zap.String("path", configPath))
	return nil
}

func (w *Wizard) showCompletion() {
	w.clearScreen()

	message := SetupCompleteMessage
	message = strings.ReplaceAll(message, "{{.DataDir}}", w.dataDir)
	message = strings.ReplaceAll(message, "{{.ConfigPath}}", filepath.Join(w.dataDir, ConfigFileName))
	message = strings.ReplaceAll(message, "{{.Port}}", strconv.Itoa(w.config.Port))

	fmt.Fprint(w.out, message)
}

func (w *Wizard) clearScreen() {
	if w.interactive() {
		fmt.Fprint(w.out, "\033[H\033[2J")
	}
}

func (w *Wizard) readLine() string {
	line, _ := w.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// readSecret reads without echo when attached to a terminal
func (w *Wizard) readSecret() string {
	if f, ok := w.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w.out)
		if err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return w.readLine()
}

func (w *Wizard) interactive() bool {
	f, ok := w.in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// CheckFirstRun reports whether dataDir has no config file yet
func CheckFirstRun(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, ConfigFileName))
	return os.IsNotExist(err)
}
