package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"reviewhub.org/internal/kv"
	"reviewhub.org/internal/obs"
)

const (
	sessionKeyPrefix      = "session:"
	userSessionsKeyPrefix = "user_sessions:"
	sessionIDBytes        = 24
)

// SessionPolicy holds the two session lifetimes: the sliding inactivity
// window and the hard ceiling measured from creation.
type SessionPolicy struct {
	InactivityTimeout time.Duration
	MaxDuration       time.Duration
}

// SessionRegistry tracks active login sessions per user in the key-value
// store. Session records carry a sliding TTL; a reverse index set per user
// allows listing and bulk revocation.
type SessionRegistry struct {
	kv     kv.Store
	policy SessionPolicy
	now    func() time.Time
	log    *slog.Logger
}

// SessionOption configures SessionRegistry.
type SessionOption func(*SessionRegistry)

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(r *SessionRegistry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithSessionLogger sets the logger for best-effort cleanup warnings.
func WithSessionLogger(log *slog.Logger) SessionOption {
	return func(r *SessionRegistry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewSessionRegistry constructs a SessionRegistry.
func NewSessionRegistry(store kv.Store, policy SessionPolicy, opts ...SessionOption) *SessionRegistry {
	if policy.InactivityTimeout <= 0 {
		policy.InactivityTimeout = 30 * time.Minute
	}
	if policy.MaxDuration <= 0 {
		policy.MaxDuration = 90 * 24 * time.Hour
	}
	r := &SessionRegistry{
		kv:     store,
		policy: policy,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured session lifetimes.
func (r *SessionRegistry) Policy() SessionPolicy {
	return r.policy
}

// Create generates an unguessable session id, stores the record with the
// inactivity TTL and indexes it under the user's session set.
func (r *SessionRegistry) Create(ctx context.Context, userID, email string, meta ClientMeta) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	now := r.now().UTC()
	sess := Session{
		UserID:       userID,
		Email:        email,
		CreatedAt:    now,
		LastActivity: now,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	}
	if err := r.write(ctx, id, sess); err != nil {
		return "", err
	}
	if err := r.kv.SAdd(ctx, userSessionsKeyPrefix+userID, id); err != nil {
		return "", err
	}
	// The index must outlive every session it references; cap it at the
	// hard session ceiling.
	if err := r.kv.Expire(ctx, userSessionsKeyPrefix+userID, r.policy.MaxDuration); err != nil {
		r.log.Warn("session index expire failed", "user_id", userID, "error", err)
	}
	return id, nil
}

// Get returns the session record, or ErrSessionNotFound.
func (r *SessionRegistry) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, ok, err := r.kv.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.ID = sessionID
	return &sess, nil
}

// Touch refreshes lastActivity and resets the TTL, making the inactivity
// window sliding. Sessions past the hard ceiling are removed instead.
func (r *SessionRegistry) Touch(ctx context.Context, sessionID string) error {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !r.alive(*sess) {
		r.remove(ctx, sessionID, sess.UserID)
		return ErrSessionExpired
	}
	sess.LastActivity = r.now().UTC()
	return r.write(ctx, sessionID, *sess)
}

// IsActive reports whether the session exists and is inside both windows.
// A stale record found here is deleted as a side effect (lazy expiry).
func (r *SessionRegistry) IsActive(ctx context.Context, sessionID string) (bool, error) {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		if err == ErrSessionNotFound {
			return false, nil
		}
		return false, err
	}
	if !r.alive(*sess) {
		r.remove(ctx, sessionID, sess.UserID)
		return false, nil
	}
	return true, nil
}

// List returns the user's active sessions sorted most-recent-activity-first,
// pruning stale entries it encounters.
func (r *SessionRegistry) List(ctx context.Context, userID string) ([]Session, error) {
	ids, err := r.kv.SMembers(ctx, userSessionsKeyPrefix+userID)
	if err != nil {
		return nil, err
	}
	var sessions []Session
	for _, id := range ids {
		sess, err := r.Get(ctx, id)
		if err != nil {
			if err == ErrSessionNotFound {
				if rmErr := r.kv.SRem(ctx, userSessionsKeyPrefix+userID, id); rmErr != nil {
					r.log.Warn("session index prune failed", "session_id", id, "error", rmErr)
				}
				continue
			}
			return nil, err
		}
		if !r.alive(*sess) {
			r.remove(ctx, id, sess.UserID)
			continue
		}
		sessions = append(sessions, *sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions, nil
}

// Revoke removes one session and its reverse-index entry.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID string) error {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := r.kv.Del(ctx, sessionKeyPrefix+sessionID); err != nil {
		return err
	}
	return r.kv.SRem(ctx, userSessionsKeyPrefix+sess.UserID, sessionID)
}

// RevokeAll removes every session record for the user and the index itself.
// Callers revoking for security reasons must also hit the RevocationStore;
// deleting sessions alone leaves already-issued tokens valid.
func (r *SessionRegistry) RevokeAll(ctx context.Context, userID string) error {
	ids, err := r.kv.SMembers(ctx, userSessionsKeyPrefix+userID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, userSessionsKeyPrefix+userID)
	return r.kv.Del(ctx, keys...)
}

// Sweep scans for stale session records and deletes them. Cooperative
// cleanup only; reads already apply lazy expiry.
func (r *SessionRegistry) Sweep(ctx context.Context) (int, error) {
	keys, err := r.kv.Keys(ctx, sessionKeyPrefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		id := strings.TrimPrefix(key, sessionKeyPrefix)
		active, err := r.IsActive(ctx, id)
		if err != nil {
			r.log.Warn("session sweep check failed", "session_id", id, "error", err)
			continue
		}
		if !active {
			removed++
		}
	}
	if removed > 0 {
		obs.ActiveSessionSweeps.Add(float64(removed))
	}
	return removed, nil
}

func (r *SessionRegistry) alive(sess Session) bool {
	now := r.now()
	if now.Sub(sess.LastActivity) >= r.policy.InactivityTimeout {
		return false
	}
	if now.Sub(sess.CreatedAt) >= r.policy.MaxDuration {
		return false
	}
	return true
}

func (r *SessionRegistry) write(ctx context.Context, id string, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.kv.Set(ctx, sessionKeyPrefix+id, string(raw), r.policy.InactivityTimeout)
}

// remove is best-effort cleanup of a record already known to be stale.
func (r *SessionRegistry) remove(ctx context.Context, id, userID string) {
	if err := r.kv.Del(ctx, sessionKeyPrefix+id); err != nil {
		r.log.Warn("stale session delete failed", "session_id", id, "error", err)
	}
	if err := r.kv.SRem(ctx, userSessionsKeyPrefix+userID, id); err != nil {
		r.log.Warn("stale session unindex failed", "session_id", id, "error", err)
	}
}

func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return "sess_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
