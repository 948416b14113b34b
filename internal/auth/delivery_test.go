package auth

import (
	"net/http"
	"testing"
	"time"
)

func TestDeliveryPolicyCookies(t *testing.T) {
	policy := NewDeliveryPolicy(DeliverBoth, true, http.SameSiteStrictMode,
		TokenPolicy{AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		SessionPolicy{InactivityTimeout: 30 * time.Minute, MaxDuration: 48 * time.Hour},
	)
	result := AuthResult{
		Tokens:    TokenPair{AccessToken: "at", RefreshToken: "rt"},
		SessionID: "sess_1",
	}

	cookies := policy.Cookies(result)
	if len(cookies) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(cookies))
	}
	byName := make(map[string]*http.Cookie, len(cookies))
	for _, c := range cookies {
		byName[c.Name] = c
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
			t.Fatalf("cookie %s missing hardening flags: %+v", c.Name, c)
		}
	}
	if byName[CookieAccessToken].MaxAge != 3600 {
		t.Fatalf("access cookie max-age: %d", byName[CookieAccessToken].MaxAge)
	}
	if byName[CookieRefreshToken].MaxAge != 86400 {
		t.Fatalf("refresh cookie max-age: %d", byName[CookieRefreshToken].MaxAge)
	}
	if !policy.UseBody() {
		t.Fatal("both strategy must include body delivery")
	}
}

func TestDeliveryPolicyBodyOnly(t *testing.T) {
	policy := NewDeliveryPolicy(DeliverBody, false, 0, TokenPolicy{}, SessionPolicy{})
	if policy.UseCookies() {
		t.Fatal("body strategy must not set cookies")
	}
	if cookies := policy.Cookies(AuthResult{}); cookies != nil {
		t.Fatalf("expected no cookies, got %d", len(cookies))
	}
}

func TestDeliveryPolicyUnknownFallsBack(t *testing.T) {
	policy := NewDeliveryPolicy("sideways", false, 0, TokenPolicy{}, SessionPolicy{})
	if policy.Strategy != DeliverBoth {
		t.Fatalf("expected fallback to both, got %s", policy.Strategy)
	}
}

func TestClearCookies(t *testing.T) {
	policy := NewDeliveryPolicy(DeliverCookie, false, 0,
		TokenPolicy{AccessTTL: time.Hour, RefreshTTL: time.Hour},
		SessionPolicy{MaxDuration: time.Hour},
	)
	for _, c := range policy.ClearCookies() {
		if c.MaxAge != -1 || c.Value != "" {
			t.Fatalf("cookie %s not cleared: %+v", c.Name, c)
		}
	}
}
