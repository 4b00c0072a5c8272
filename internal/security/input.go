// Package security holds the checks applied to text coming from outside the
// process and the redaction used before such text reaches a log.
package security

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInputTooLarge     = errors.New("input exceeds maximum size")
	ErrNullByteDetected  = errors.New("null byte detected in input")
	ErrControlCharacter  = errors.New("control character in input")
	ErrInvalidUTF8       = errors.New("input is not valid UTF-8")
	ErrRepetitiveContent = errors.New("excessive repetition detected")
)

// InputValidator checks short free-text fields such as a medication name or
// dosage
type InputValidator struct {
	MaxSize       int
	MaxRepetition int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxSize:       200,
		MaxRepetition: 32,
	}
}

func (v *InputValidator) Validate(input string) error {
	if len(input) > v.MaxSize {
		return ErrInputTooLarge
	}
	if !utf8.ValidString(input) {
		return ErrInvalidUTF8
	}

	for _, r := range input {
		if r == 0 {
			return ErrNullByteDetected
		}
		if unicode.IsControl(r) {
			return ErrControlCharacter
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}

func ValidateInput(input string) error {
	return NewInputValidator().Validate(input)
}
