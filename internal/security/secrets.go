package security

import (
	"regexp"
)

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

// Telegram API errors embed the request URL, bot token included
var defaultSecretPatterns = []struct {
	name       string
	pattern    string
	redactWith string
}{
	{"Telegram Bot Token", `[0-9]{8,10}:[a-zA-Z0-9_-]{35}`, "****:****"},
	{"JWT Token", `eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`, "eyJ****"},
	{"Bearer Header", `(?i)bearer\s+[a-zA-Z0-9\-_.=]{16,}`, "Bearer ****"},
	{"Generic Secret", `(?i)(secret|password|passwd|token)(["']?\s*[:=]\s*["']?)[^\s"']{8,}`, "${1}${2}****"},
}

type SecretScanner struct {
	patterns []*secretPattern
}

func NewSecretScanner() *SecretScanner {
	scanner := &SecretScanner{
		patterns: make([]*secretPattern, 0, len(defaultSecretPatterns)),
	}
	for _, p := range defaultSecretPatterns {
		scanner.patterns = append(scanner.patterns, &secretPattern{
			name:       p.name,
			regex:      regexp.MustCompile(p.pattern),
			redactWith: p.redactWith,
		})
	}
	return scanner
}

// Find returns the names of the secret kinds present in input
func (s *SecretScanner) Find(input string) []string {
	var names []string
	for _, p := range s.patterns {
		if p.regex.MatchString(input) {
			names = append(names, p.name)
		}
	}
	return names
}

func (s *SecretScanner) HasSecrets(input string) bool {
	return len(s.Find(input)) > 0
}

func (s *SecretScanner) Redact(input string) string {
	result := input
	for _, p := range s.patterns {
		result = p.regex.ReplaceAllString(result, p.redactWith)
	}
	return result
}

var defaultScanner = NewSecretScanner()

func HasSecrets(input string) bool {
	return defaultScanner.HasSecrets(input)
}

func RedactSecrets(input string) string {
	return defaultScanner.Redact(input)
}
