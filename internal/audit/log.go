// Package audit writes security-relevant events as structured log entries.
// Revocations, password changes, and break-glass overrides go through here
// so they are greppable under one shape.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"reviewhub.org/internal/auth"
	"reviewhub.org/internal/obs"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Event names recorded by the identity subsystem.
const (
	EventPasswordChanged = "password.changed"
	EventSessionsRevoked = "sessions.revoked"
	EventAdminOverride   = "admin.override"
	EventGitConnected    = "git.connected"
	EventGitDisconnected = "git.disconnected"
)

// logOutput is swappable in tests.
var logOutput = obs.Logger

// LogEvent writes an audit entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "event", event)
	if rid := requestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, "request_id", rid)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		attrs = append(attrs, "user_id", userID)
	}
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	logOutput().LogAttrs(ctx, slog.LevelInfo, "audit", toAttrs(attrs)...)
	return nil
}

func toAttrs(kv []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}
