package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"reviewhub.org/internal/kv"
)

const (
	stateKeyPrefix  = "oauth:state:"
	defaultStateTTL = 10 * time.Minute
)

// StatePayload is what a minted OAuth state parameter stands for. Login
// states carry no user; repo-connect states bind the callback to the user
// who started the flow and the provider they chose.
type StatePayload struct {
	UserID   string  `json:"user_id,omitempty"`
	Purpose  Purpose `json:"purpose"`
	Provider string  `json:"provider"`
}

// NewState mints an unguessable state parameter.
func NewState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint oauth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// StateStore persists OAuth state payloads with a short TTL. Consume is
// strictly single-use: the first read removes the entry, so a replayed
// callback fails.
type StateStore struct {
	store kv.Store
	ttl   time.Duration
}

// StateOption configures StateStore.
type StateOption func(*StateStore)

// WithStateTTL overrides the state lifetime.
func WithStateTTL(ttl time.Duration) StateOption {
	return func(s *StateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewStateStore constructs a StateStore over the kv store.
func NewStateStore(store kv.Store, opts ...StateOption) *StateStore {
	s := &StateStore{store: store, ttl: defaultStateTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores the payload under the state key.
func (s *StateStore) Put(ctx context.Context, state string, payload StatePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode oauth state: %w", err)
	}
	if err := s.store.Set(ctx, stateKeyPrefix+state, string(raw), s.ttl); err != nil {
		return fmt.Errorf("store oauth state: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes the payload for a state. A missing
// or already-consumed state yields ErrInvalidOAuthState.
func (s *StateStore) Consume(ctx context.Context, state string) (StatePayload, error) {
	raw, ok, err := s.store.GetDel(ctx, stateKeyPrefix+state)
	if err != nil {
		return StatePayload{}, fmt.Errorf("consume oauth state: %w", err)
	}
	if !ok {
		return StatePayload{}, ErrInvalidOAuthState
	}
	var payload StatePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return StatePayload{}, fmt.Errorf("decode oauth state: %w", err)
	}
	return payload, nil
}
