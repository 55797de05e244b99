package principalctx

import (
	"context"
	"strings"
)

// PrincipalKey is the request context key for the authenticated principal ID.
type PrincipalKey struct{}

// SessionKey is the request context key for the session ID.
type SessionKey struct{}

// WithPrincipalID stores the principal ID in the context.
func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, PrincipalKey{}, strings.TrimSpace(principalID))
}

// PrincipalIDFromContext returns the principal ID from context, if set.
func PrincipalIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(PrincipalKey{}).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// WithSessionID stores the session ID in the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionKey{}, strings.TrimSpace(sessionID))
}

// SessionIDFromContext returns the session ID from context, if set.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(SessionKey{}).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
