package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reviewhub.org/internal/ids"
	"reviewhub.org/internal/obs"
)

// AuthResult is what a successful register, login, or OAuth login yields.
type AuthResult struct {
	User      User
	Tokens    TokenPair
	SessionID string
}

// OAuthOutcome is the result of a completed OAuth callback. Connected is
// set for repo-connect flows; Auth is set for login flows.
type OAuthOutcome struct {
	Purpose   Purpose
	Provider  string
	Connected bool
	Auth      *AuthResult
}

// Service is the identity orchestrator. It composes the relational store,
// token service, session registry, revocation store, and the OAuth
// federation manager into the operations callers actually invoke.
type Service struct {
	store       Store
	tokens      *TokenService
	sessions    *SessionRegistry
	revocations *RevocationStore
	oauth       *FederationManager
	states      *StateStore
	limiter     *LoginLimiter
	bcryptCost  int
	now         func() time.Time
	log         *slog.Logger
	audit       func(ctx context.Context, event string, fields map[string]any)
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithServiceLogger overrides the logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLoginLimiter attaches a per-email login throttle.
func WithLoginLimiter(limiter *LoginLimiter) ServiceOption {
	return func(s *Service) {
		s.limiter = limiter
	}
}

// WithAuditHook attaches a sink for security-relevant events.
func WithAuditHook(fn func(ctx context.Context, event string, fields map[string]any)) ServiceOption {
	return func(s *Service) {
		s.audit = fn
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// NewService wires the orchestrator. All collaborators are required except
// oauth and states, which may be nil when no provider is configured.
func NewService(store Store, tokens *TokenService, sessions *SessionRegistry, revocations *RevocationStore, oauth *FederationManager, states *StateStore, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if sessions == nil {
		return nil, errors.New("auth: session registry is required")
	}
	if revocations == nil {
		return nil, errors.New("auth: revocation store is required")
	}
	s := &Service{
		store:       store,
		tokens:      tokens,
		sessions:    sessions,
		revocations: revocations,
		oauth:       oauth,
		states:      states,
		bcryptCost:  DefaultBcryptCost,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, email, password string, meta ClientMeta) (*AuthResult, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	result, err := s.establish(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	obs.RegistrationsTotal.Inc()
	s.log.Info("user registered", "user_id", user.ID)
	return result, nil
}

// Login verifies credentials and signs the user in. Every failure mode a
// caller can trigger with bad input collapses to ErrInvalidCredentials so
// the response does not reveal whether the account exists.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if s.limiter != nil && !s.limiter.Allow(email) {
		obs.LoginsTotal.WithLabelValues("throttled").Inc()
		return nil, ErrTooManyAttempts
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.LoginsTotal.WithLabelValues("failure").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		obs.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}
	result, err := s.establish(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	obs.LoginsTotal.WithLabelValues("success").Inc()
	s.log.Info("user logged in", "user_id", user.ID)
	return result, nil
}

// RefreshAccessToken validates a refresh token and mints a new access
// token. The refresh token itself is not rotated; its original expiry
// bounds the sign-in.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		obs.TokenRefreshesTotal.WithLabelValues("invalid").Inc()
		return "", time.Time{}, err
	}
	valid, err := s.isRefreshTokenValid(ctx, refreshToken, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	if !valid {
		obs.TokenRefreshesTotal.WithLabelValues("revoked").Inc()
		return "", time.Time{}, ErrTokenRevoked
	}
	user, err := s.store.Users().Find(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.TokenRefreshesTotal.WithLabelValues("invalid").Inc()
			return "", time.Time{}, ErrTokenInvalid
		}
		return "", time.Time{}, fmt.Errorf("find user: %w", err)
	}
	access, expiresAt, err := s.tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		return "", time.Time{}, err
	}
	obs.TokenRefreshesTotal.WithLabelValues("success").Inc()
	return access, expiresAt, nil
}

// isRefreshTokenValid is the single place both revocation mechanisms meet:
// the per-token blacklist and the per-user revocation timestamp. A token
// issued at or before the user's revocation time is dead.
func (s *Service) isRefreshTokenValid(ctx context.Context, token string, claims *Claims) (bool, error) {
	revoked, err := s.revocations.IsBlacklisted(ctx, token)
	if err != nil {
		return false, fmt.Errorf("check token blacklist: %w", err)
	}
	if revoked {
		return false, nil
	}
	revTime, ok, err := s.revocations.UserRevocationTime(ctx, claims.UserID)
	if err != nil {
		return false, fmt.Errorf("check user revocation: %w", err)
	}
	if ok && claims.IssuedAt != nil && !claims.IssuedAt.Time.After(revTime) {
		return false, nil
	}
	return true, nil
}

// Logout revokes the presented tokens and tears down the session. It is
// best effort: a malformed token is skipped rather than failing the
// logout, since the client is discarding its credentials either way.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken, sessionID string) error {
	s.blacklistRemaining(ctx, accessToken)
	s.blacklistRemaining(ctx, refreshToken)
	if sessionID != "" {
		if err := s.sessions.Revoke(ctx, sessionID); err != nil {
			s.log.Warn("session revoke on logout failed", "error", err)
		}
	}
	obs.RevocationsTotal.WithLabelValues("logout").Inc()
	return nil
}

func (s *Service) blacklistRemaining(ctx context.Context, token string) {
	if token == "" {
		return
	}
	claims, err := s.tokens.DecodeUnverified(token)
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.revocations.Blacklist(ctx, token, ttl); err != nil {
		s.log.Warn("token blacklist on logout failed", "error", err)
	}
}

// LogoutAll kills every sign-in for the user: outstanding refresh tokens
// through the revocation timestamp and every live session.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	err := errors.Join(
		s.revocations.RevokeAllForUser(ctx, userID),
		s.sessions.RevokeAll(ctx, userID),
	)
	if err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	obs.RevocationsTotal.WithLabelValues("logout_all").Inc()
	s.log.Info("all sessions revoked", "user_id", userID)
	s.auditEvent(ctx, "sessions.revoked", map[string]any{"user_id": userID})
	return nil
}

func (s *Service) auditEvent(ctx context.Context, event string, fields map[string]any) {
	if s.audit != nil {
		s.audit(ctx, event, fields)
	}
}

// ChangePassword verifies the current password, applies the new one, and
// revokes every existing sign-in.
func (s *Service) ChangePassword(ctx context.Context, userID, current, updated string) error {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	if err := ValidatePasswordStrength(updated); err != nil {
		return err
	}
	hash, err := HashPassword(updated, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.auditEvent(ctx, "password.changed", map[string]any{"user_id": userID})
	return s.LogoutAll(ctx, userID)
}

// GitProviders lists the code-hosting providers the user has connected.
func (s *Service) GitProviders(ctx context.Context, userID string) ([]string, error) {
	return s.store.GitConnections().ListProviders(ctx, userID)
}

// DisconnectGit removes the user's stored credentials for a provider.
func (s *Service) DisconnectGit(ctx context.Context, userID, provider string) error {
	if err := s.store.GitConnections().Delete(ctx, userID, provider); err != nil {
		return err
	}
	s.auditEvent(ctx, "git.disconnected", map[string]any{"user_id": userID, "provider": provider})
	return nil
}

// ListSessions returns the user's live sessions, most recently active
// first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	return s.sessions.List(ctx, userID)
}

// RevokeSession revokes one of the user's sessions. A session belonging to
// another user is reported as not found, not forbidden, so the id space
// cannot be probed.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}
	return s.sessions.Revoke(ctx, sessionID)
}

// TouchSession records activity on a session, extending its inactivity
// window.
func (s *Service) TouchSession(ctx context.Context, sessionID string) error {
	return s.sessions.Touch(ctx, sessionID)
}

// BeginOAuth starts a login flow with the provider. The returned state is
// stored server-side so the callback can prove the flow originated here.
func (s *Service) BeginOAuth(ctx context.Context, provider string) (authorizeURL, state string, err error) {
	if s.oauth == nil || s.states == nil {
		return "", "", ErrProviderNotConfigured
	}
	state, err = NewState()
	if err != nil {
		return "", "", err
	}
	if err := s.states.Put(ctx, state, StatePayload{Purpose: PurposeLogin, Provider: provider}); err != nil {
		return "", "", err
	}
	authorizeURL, err = s.oauth.AuthorizeURL(provider, PurposeLogin, state)
	if err != nil {
		return "", "", err
	}
	return authorizeURL, state, nil
}

// BeginRepoConnect starts a repository-connect flow for an authenticated
// user. The state binds the callback to this user and provider.
func (s *Service) BeginRepoConnect(ctx context.Context, userID, provider string) (authorizeURL, state string, err error) {
	if s.oauth == nil || s.states == nil {
		return "", "", ErrProviderNotConfigured
	}
	if userID == "" {
		return "", "", ErrInvalidInput
	}
	state, err = NewState()
	if err != nil {
		return "", "", err
	}
	payload := StatePayload{UserID: userID, Purpose: PurposeRepoConnect, Provider: provider}
	if err := s.states.Put(ctx, state, payload); err != nil {
		return "", "", err
	}
	authorizeURL, err = s.oauth.AuthorizeURL(provider, PurposeRepoConnect, state)
	if err != nil {
		return "", "", err
	}
	return authorizeURL, state, nil
}

// CompleteOAuth finishes a provider callback. The consumed state decides
// which flow this is: repo-connect stores the provider tokens against the
// originating user; login resolves or creates an account and signs it in.
func (s *Service) CompleteOAuth(ctx context.Context, provider, code, state string, meta ClientMeta) (*OAuthOutcome, error) {
	if s.oauth == nil || s.states == nil {
		return nil, ErrProviderNotConfigured
	}
	payload, err := s.states.Consume(ctx, state)
	if err != nil {
		obs.OAuthCallbacksTotal.WithLabelValues(provider, "unknown", "invalid_state").Inc()
		return nil, err
	}
	if payload.Provider != provider {
		obs.OAuthCallbacksTotal.WithLabelValues(provider, string(payload.Purpose), "provider_mismatch").Inc()
		return nil, ErrInvalidOAuthState
	}
	switch payload.Purpose {
	case PurposeRepoConnect:
		return s.completeRepoConnect(ctx, provider, code, payload)
	case PurposeLogin:
		return s.completeLogin(ctx, provider, code, meta)
	default:
		return nil, ErrInvalidOAuthState
	}
}

func (s *Service) completeRepoConnect(ctx context.Context, provider, code string, payload StatePayload) (*OAuthOutcome, error) {
	token, err := s.oauth.Exchange(ctx, provider, code)
	if err != nil {
		obs.OAuthCallbacksTotal.WithLabelValues(provider, string(PurposeRepoConnect), "exchange_failed").Inc()
		return nil, err
	}
	conn := &GitConnection{
		UserID:       payload.UserID,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}
	if err := s.store.GitConnections().Upsert(ctx, conn); err != nil {
		return nil, fmt.Errorf("store git connection: %w", err)
	}
	obs.OAuthCallbacksTotal.WithLabelValues(provider, string(PurposeRepoConnect), "success").Inc()
	s.log.Info("git provider connected", "user_id", payload.UserID, "provider", provider)
	s.auditEvent(ctx, "git.connected", map[string]any{"user_id": payload.UserID, "provider": provider})
	return &OAuthOutcome{Purpose: PurposeRepoConnect, Provider: provider, Connected: true}, nil
}

func (s *Service) completeLogin(ctx context.Context, provider, code string, meta ClientMeta) (*OAuthOutcome, error) {
	token, err := s.oauth.Exchange(ctx, provider, code)
	if err != nil {
		obs.OAuthCallbacksTotal.WithLabelValues(provider, string(PurposeLogin), "exchange_failed").Inc()
		return nil, err
	}
	identity, err := s.oauth.FetchIdentity(ctx, provider, token.AccessToken)
	if err != nil {
		obs.OAuthCallbacksTotal.WithLabelValues(provider, string(PurposeLogin), "identity_failed").Inc()
		return nil, err
	}
	email, err := ValidateEmail(identity.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: provider email rejected", ErrProviderNoEmail)
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		user, err = s.createFederatedUser(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	result, err := s.establish(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	obs.OAuthCallbacksTotal.WithLabelValues(provider, string(PurposeLogin), "success").Inc()
	obs.LoginsTotal.WithLabelValues("oauth").Inc()
	s.log.Info("oauth login", "user_id", user.ID, "provider", provider)
	return &OAuthOutcome{Purpose: PurposeLogin, Provider: provider, Auth: result}, nil
}

// createFederatedUser provisions an account for a first-time OAuth login.
// The account gets an unguessable random password so it can only be
// entered through the provider until the user sets one explicitly.
func (s *Service) createFederatedUser(ctx context.Context, email string) (*User, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate placeholder password: %w", err)
	}
	hash, err := HashPassword(base64.RawURLEncoding.EncodeToString(buf), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	obs.RegistrationsTotal.Inc()
	return user, nil
}

func (s *Service) createUser(ctx context.Context, email, passwordHash string) (*User, error) {
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// establish issues a token pair and opens a session for the user.
func (s *Service) establish(ctx context.Context, user *User, meta ClientMeta) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	sessionID, err := s.sessions.Create(ctx, user.ID, user.Email, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:      *user,
		Tokens:    pair,
		SessionID: sessionID,
	}, nil
}
