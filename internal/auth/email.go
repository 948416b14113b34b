package auth

import (
	"fmt"
	"regexp"
	"strings"
)

const maxEmailLength = 255

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail lowercases and trims an email address. Normalization is the
// join key between OAuth logins and password logins for the same address;
// this account-linking behavior is intentional.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes the address and checks its shape.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" || len(normalized) > maxEmailLength {
		return "", fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	if !emailPattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return normalized, nil
}
