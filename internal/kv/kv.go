// Package kv abstracts the ephemeral key-value store backing sessions, the
// token blacklist and OAuth state. Each operation is individually atomic.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned after Close when the backend cannot serve requests.
var ErrClosed = errors.New("kv: store is closed")

// Store describes the key-value operations the identity subsystem needs.
// A ttl of zero means the key does not expire.
type Store interface {
	// Set writes value under key with an optional expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get reads a key. The boolean reports whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)
	// GetDel atomically reads and removes a key, guaranteeing single use
	// even under concurrent readers.
	GetDel(ctx context.Context, key string) (string, bool, error)
	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// Expire resets the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SAdd adds members to the set stored at key.
	SAdd(ctx context.Context, key string, members ...string) error
	// SRem removes members from the set stored at key.
	SRem(ctx context.Context, key string, members ...string) error
	// SMembers returns all members of the set stored at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Keys returns keys matching the given prefix. Used only by the
	// cooperative session sweep, never on a request path.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}
