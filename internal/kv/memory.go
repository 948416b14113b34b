package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

// Memory implements Store in process memory. It backs tests and single-node
// development runs; expiry is enforced lazily on access.
type Memory struct {
	mu      sync.Mutex
	values  map[string]memoryEntry
	sets    map[string]map[string]struct{}
	setExps map[string]time.Time
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the time source (useful for TTL tests).
func WithMemoryClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory constructs an in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		values:  make(map[string]memoryEntry),
		sets:    make(map[string]map[string]struct{}),
		setExps: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	m.values[key] = memoryEntry{value: value, expiresAt: exp}
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.liveLocked(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) GetDel(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.liveLocked(key)
	if !ok {
		return "", false, nil
	}
	delete(m.values, key)
	return entry.value, true, nil
}

func (m *Memory) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
		delete(m.sets, key)
		delete(m.setExps, key)
	}
	return nil
}

// Expire covers both value and set keys, matching the Redis command.
func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.liveLocked(key); ok {
		entry.expiresAt = m.now().Add(ttl)
		m.values[key] = entry
		return nil
	}
	if _, ok := m.liveSetLocked(key); ok {
		m.setExps[key] = m.now().Add(ttl)
	}
	return nil
}

func (m *Memory) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.liveSetLocked(key)
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.liveSetLocked(key)
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		delete(m.sets, key)
		delete(m.setExps, key)
	}
	return nil
}

func (m *Memory) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.liveSetLocked(key)
	if !ok {
		return nil, nil
	}
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	return members, nil
}

func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.values {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := m.liveLocked(key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// liveLocked returns the entry for key if it exists and has not expired,
// deleting it when stale. Caller must hold mu.
func (m *Memory) liveLocked(key string) (memoryEntry, bool) {
	entry, ok := m.values[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.values, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// liveSetLocked returns the set stored at key if it has not expired,
// deleting it when stale. Caller must hold mu.
func (m *Memory) liveSetLocked(key string) (map[string]struct{}, bool) {
	set, ok := m.sets[key]
	if !ok {
		return nil, false
	}
	if exp, ok := m.setExps[key]; ok && !m.now().Before(exp) {
		delete(m.sets, key)
		delete(m.setExps, key)
		return nil, false
	}
	return set, true
}
