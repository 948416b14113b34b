package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the hashing cost used when none is configured.
const DefaultBcryptCost = 12

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// ValidatePasswordStrength checks the password policy and reports every
// violated rule in one error, wrapped with ErrWeakPassword.
func ValidatePasswordStrength(password string) error {
	var violations []string
	if len(password) < 8 {
		violations = append(violations, "at least 8 characters")
	}
	// bcrypt truncates input past 72 bytes.
	if len(password) > 72 {
		violations = append(violations, "at most 72 characters")
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, "an uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "a lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "a digit")
	}
	if !hasSpecial {
		violations = append(violations, "a special character")
	}
	if len(violations) > 0 {
		return fmt.Errorf("%w: needs %s", ErrWeakPassword, strings.Join(violations, ", "))
	}
	return nil
}
