package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"User@Example.COM", "user@example.com", true},
		{"  padded@example.com  ", "padded@example.com", true},
		{"no-at-sign", "", false},
		{"two@@example.com", "", false},
		{"spaces in@example.com", "", false},
		{"missing-tld@example", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ValidateEmail(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("ValidateEmail(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ValidateEmail(%q) = %q, want %q", tc.in, got, tc.want)
			}
			continue
		}
		if err == nil {
			t.Fatalf("ValidateEmail(%q): expected error", tc.in)
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ValidateEmail(%q): expected ErrInvalidInput, got %v", tc.in, err)
		}
	}
}

func TestValidateEmailLength(t *testing.T) {
	long := strings.Repeat("a", 250) + "@example.com"
	if _, err := ValidateEmail(long); err == nil {
		t.Fatal("expected length error")
	}
}
