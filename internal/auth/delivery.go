package auth

import (
	"net/http"
	"time"
)

// Token delivery strategies. Cookie delivery sets httpOnly cookies and
// omits the tokens from the response body; body delivery does the reverse;
// both does both so migrating clients keep working.
type DeliveryStrategy string

const (
	DeliverCookie DeliveryStrategy = "cookie"
	DeliverBody   DeliveryStrategy = "body"
	DeliverBoth   DeliveryStrategy = "both"
)

// Cookie names used for cookie-based delivery.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieSessionID    = "session_id"
)

// DeliveryPolicy decides how issued credentials reach the client.
type DeliveryPolicy struct {
	Strategy DeliveryStrategy
	Secure   bool
	SameSite http.SameSite
	tokens   TokenPolicy
	sessions SessionPolicy
}

// NewDeliveryPolicy builds a DeliveryPolicy; unknown strategies fall back
// to both.
func NewDeliveryPolicy(strategy DeliveryStrategy, secure bool, sameSite http.SameSite, tokens TokenPolicy, sessions SessionPolicy) DeliveryPolicy {
	switch strategy {
	case DeliverCookie, DeliverBody, DeliverBoth:
	default:
		strategy = DeliverBoth
	}
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return DeliveryPolicy{
		Strategy: strategy,
		Secure:   secure,
		SameSite: sameSite,
		tokens:   tokens,
		sessions: sessions,
	}
}

// UseCookies reports whether tokens should be set as cookies.
func (p DeliveryPolicy) UseCookies() bool {
	return p.Strategy == DeliverCookie || p.Strategy == DeliverBoth
}

// UseBody reports whether tokens should appear in the response body.
func (p DeliveryPolicy) UseBody() bool {
	return p.Strategy == DeliverBody || p.Strategy == DeliverBoth
}

// Cookies renders the set-cookie values for an auth result. Lifetimes come
// from the token and session policies, never hardcoded.
func (p DeliveryPolicy) Cookies(result AuthResult) []*http.Cookie {
	if !p.UseCookies() {
		return nil
	}
	base := func(name, value string, maxAge time.Duration) *http.Cookie {
		return &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   int(maxAge / time.Second),
			HttpOnly: true,
			Secure:   p.Secure,
			SameSite: p.SameSite,
		}
	}
	cookies := []*http.Cookie{
		base(CookieAccessToken, result.Tokens.AccessToken, p.tokens.AccessTTL),
		base(CookieRefreshToken, result.Tokens.RefreshToken, p.tokens.RefreshTTL),
	}
	if result.SessionID != "" {
		cookies = append(cookies, base(CookieSessionID, result.SessionID, p.sessions.MaxDuration))
	}
	return cookies
}

// ClearCookies renders expired cookies for logout.
func (p DeliveryPolicy) ClearCookies() []*http.Cookie {
	if !p.UseCookies() {
		return nil
	}
	clear := func(name string) *http.Cookie {
		return &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   p.Secure,
			SameSite: p.SameSite,
		}
	}
	return []*http.Cookie{
		clear(CookieAccessToken),
		clear(CookieRefreshToken),
		clear(CookieSessionID),
	}
}
