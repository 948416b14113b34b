package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecret", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "Sup3r$ecret" {
		t.Fatal("hash equals plaintext")
	}
	if err := VerifyPassword(hash, "Sup3r$ecret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "Sup3r$ecret", true},
		{"too short", "S3c$et", false},
		{"no uppercase", "sup3r$ecret", false},
		{"no lowercase", "SUP3R$ECRET", false},
		{"no digit", "Super$ecret", false},
		{"no special", "Sup3rSecret", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tc.password)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrWeakPassword) {
					t.Fatalf("expected ErrWeakPassword, got %v", err)
				}
			}
		})
	}
}

func TestValidatePasswordStrengthReportsAllViolations(t *testing.T) {
	err := ValidatePasswordStrength("abc")
	if err == nil {
		t.Fatal("expected error")
	}
	// One pass over the password collects every failed rule, so the
	// caller can surface the full list at once.
	for _, want := range []string{"8 characters", "uppercase", "digit", "special"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err.Error(), want)
		}
	}
}
