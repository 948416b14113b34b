package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"reviewhub.org/internal/kv"
)

const (
	blacklistKeyPrefix  = "blacklist:token:"
	userRevokeKeyPrefix = "blacklist:user:"
)

// RevocationStore records individually blacklisted tokens and per-user
// "revoke everything issued before T" markers in the key-value store.
type RevocationStore struct {
	kv        kv.Store
	retention time.Duration
	now       func() time.Time
}

// NewRevocationStore constructs a RevocationStore. retention bounds how long
// per-user revocation markers are kept; it must exceed the refresh token
// lifetime or old refresh tokens outlive the marker meant to kill them.
func NewRevocationStore(store kv.Store, retention time.Duration) *RevocationStore {
	if retention <= 0 {
		retention = defaultRefreshTTL + 24*time.Hour
	}
	return &RevocationStore{kv: store, retention: retention, now: time.Now}
}

// WithRevocationClock overrides the time source. Test use only.
func (s *RevocationStore) WithRevocationClock(fn func() time.Time) *RevocationStore {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Blacklist marks one token unusable for its remaining lifetime. A
// non-positive ttl means the token already expired and nothing is stored.
func (s *RevocationStore) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		return nil
	}
	return s.kv.Set(ctx, blacklistKeyPrefix+token, "1", ttl)
}

// IsBlacklisted reports whether the token was individually revoked.
func (s *RevocationStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	_, ok, err := s.kv.Get(ctx, blacklistKeyPrefix+token)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// RevokeAllForUser stores the current instant under the user's revocation
// key. Any token issued before it is rejected on refresh.
func (s *RevocationStore) RevokeAllForUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	ts := strconv.FormatInt(s.now().UTC().UnixNano(), 10)
	return s.kv.Set(ctx, userRevokeKeyPrefix+userID, ts, s.retention)
}

// UserRevocationTime returns the user's revocation marker if one exists.
func (s *RevocationStore) UserRevocationTime(ctx context.Context, userID string) (time.Time, bool, error) {
	raw, ok, err := s.kv.Get(ctx, userRevokeKeyPrefix+userID)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse revocation marker: %w", err)
	}
	return time.Unix(0, nanos).UTC(), true, nil
}
