package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultEnvPaths lists the .env files LoadEnvFiles reads, in order.
func DefaultEnvPaths() []string {
	paths := []string{"./.env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".medremind", ".env"),
			filepath.Join(home, ".config", "medremind", ".env"),
		)
	}
	return paths
}

// LoadEnvFiles exports KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped and existing variables win.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := loadEnvFile(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, key != ""
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

var envAliases = map[string][]string{
	"MEDREMIND_CHANNELS_TELEGRAM_BOT_TOKEN": {"TELEGRAM_BOT_TOKEN"},
	"MEDREMIND_CHANNELS_TELEGRAM_CHAT_ID":   {"TELEGRAM_CHAT_ID"},
	"MEDREMIND_SECURITY_JWT_SECRET":         {"MEDREMIND_JWT_SECRET"},
	"MEDREMIND_SECURITY_ADMIN_PASSWORD":     {"MEDREMIND_ADMIN_PASSWORD"},
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	for _, alias := range envAliases[canonicalKey] {
		if val := os.Getenv(alias); val != "" {
			return val
		}
	}

	return ""
}
