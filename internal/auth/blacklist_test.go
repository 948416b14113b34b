package auth

import (
	"context"
	"testing"
	"time"

	"reviewhub.org/internal/kv"
)

func TestBlacklistExpiresWithToken(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	clock := func() time.Time { return current }
	store := kv.NewMemory(kv.WithMemoryClock(clock))
	rev := NewRevocationStore(store, time.Hour).WithRevocationClock(clock)
	ctx := context.Background()

	if err := rev.Blacklist(ctx, "tok-1", 30*time.Minute); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	revoked, err := rev.IsBlacklisted(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if !revoked {
		t.Fatal("expected token to be blacklisted")
	}

	// The marker outlives its purpose once the token itself expires.
	current = base.Add(31 * time.Minute)
	revoked, err = rev.IsBlacklisted(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if revoked {
		t.Fatal("expected marker to expire with the token")
	}
}

func TestBlacklistSkipsExpiredTokens(t *testing.T) {
	store := kv.NewMemory()
	rev := NewRevocationStore(store, time.Hour)
	ctx := context.Background()

	// A token already past its expiry needs no marker.
	if err := rev.Blacklist(ctx, "tok-dead", -time.Minute); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	revoked, err := rev.IsBlacklisted(ctx, "tok-dead")
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if revoked {
		t.Fatal("expired token should not be stored")
	}
}

func TestRevokeAllForUser(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return base }
	store := kv.NewMemory(kv.WithMemoryClock(clock))
	rev := NewRevocationStore(store, time.Hour).WithRevocationClock(clock)
	ctx := context.Background()

	_, ok, err := rev.UserRevocationTime(ctx, "user-1")
	if err != nil {
		t.Fatalf("UserRevocationTime: %v", err)
	}
	if ok {
		t.Fatal("expected no marker before revocation")
	}

	if err := rev.RevokeAllForUser(ctx, "user-1"); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	revTime, ok, err := rev.UserRevocationTime(ctx, "user-1")
	if err != nil {
		t.Fatalf("UserRevocationTime: %v", err)
	}
	if !ok {
		t.Fatal("expected marker after revocation")
	}
	if !revTime.Equal(base) {
		t.Fatalf("unexpected revocation time: %v", revTime)
	}
}
