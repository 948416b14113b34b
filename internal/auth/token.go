package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer   = "reviewhub"
	defaultAudience = "reviewhub-users"

	defaultAccessTTL        = 7 * 24 * time.Hour
	defaultRefreshTTL       = 30 * 24 * time.Hour
	defaultRefreshThreshold = 24 * time.Hour
)

// TokenType distinguishes access from refresh tokens. The claim is enforced
// on verification so one kind can never be replayed as the other.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims are the signed token contents.
type Claims struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPolicy holds lifetimes injected as configuration. RefreshThreshold is
// the "refresh proactively if less than this remains" advisory exposed to
// middleware.
type TokenPolicy struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	RefreshThreshold time.Duration
}

// TokenPair bundles the two tokens issued together on login/register.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService issues and verifies signed access and refresh tokens using
// HS256 with distinct secrets per token kind.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	policy        TokenPolicy
	now           func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService) error

// WithTokenPolicy overrides the default lifetimes.
func WithTokenPolicy(policy TokenPolicy) TokenOption {
	return func(s *TokenService) error {
		if policy.AccessTTL > 0 {
			s.policy.AccessTTL = policy.AccessTTL
		}
		if policy.RefreshTTL > 0 {
			s.policy.RefreshTTL = policy.RefreshTTL
		}
		if policy.RefreshThreshold > 0 {
			s.policy.RefreshThreshold = policy.RefreshThreshold
		}
		return nil
	}
}

// WithTokenIssuer overrides the issuer claim.
func WithTokenIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithTokenAudience overrides the audience claim.
func WithTokenAudience(audience string) TokenOption {
	return func(s *TokenService) error {
		if v := strings.TrimSpace(audience); v != "" {
			s.audience = v
		}
		return nil
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService constructs a TokenService. Access and refresh secrets must
// both be set and must differ.
func NewTokenService(accessSecret, refreshSecret string, opts ...TokenOption) (*TokenService, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	s := &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		audience:      defaultAudience,
		policy: TokenPolicy{
			AccessTTL:        defaultAccessTTL,
			RefreshTTL:       defaultRefreshTTL,
			RefreshThreshold: defaultRefreshThreshold,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Policy returns the configured lifetimes so middleware can advise clients to
// refresh before hard expiry.
func (s *TokenService) Policy() TokenPolicy {
	return s.policy
}

// ShouldRefresh reports whether an access token expiring at the given instant
// is inside the proactive-refresh window.
func (s *TokenService) ShouldRefresh(expiresAt time.Time) bool {
	return expiresAt.Sub(s.now()) < s.policy.RefreshThreshold
}

// IssuePair issues an access and a refresh token for the user in one call.
func (s *TokenService) IssuePair(userID, email string) (TokenPair, error) {
	access, accessExp, err := s.issue(userID, email, TokenAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.issue(userID, email, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccess issues a new access token only. Used by the refresh flow, which
// does not rotate the refresh token.
func (s *TokenService) IssueAccess(userID, email string) (string, time.Time, error) {
	return s.issue(userID, email, TokenAccess)
}

func (s *TokenService) issue(userID, email string, typ TokenType) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	secret := s.accessSecret
	ttl := s.policy.AccessTTL
	if typ == TokenRefresh {
		secret = s.refreshSecret
		ttl = s.policy.RefreshTTL
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:    userID,
		Email:     email,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

// VerifyAccess verifies signature, expiry and type of an access token.
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	return s.verify(token, TokenAccess, s.accessSecret)
}

// VerifyRefresh verifies signature, expiry and type of a refresh token.
func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return s.verify(token, TokenRefresh, s.refreshSecret)
}

func (s *TokenService) verify(token string, typ TokenType, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != typ {
		return nil, ErrWrongTokenType
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// DecodeUnverified reads the claims without checking the signature. It exists
// only for revocation bookkeeping (reading exp/iat of a presented token) and
// must never be used to authorize a request.
func (s *TokenService) DecodeUnverified(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
