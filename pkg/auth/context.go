package auth

import (
	"context"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is who a request acts as: a guest session or a logged-in user.
type Identity struct {
	SessionID string
	Username  string
}

// IsUser reports whether the identity belongs to a logged-in user.
func (id Identity) IsUser() bool {
	return id.Username != ""
}

// Owner is the key stored programs are filed under.
// Guests own their programs only for the lifetime of their session.
func (id Identity) Owner() string {
	if id.IsUser() {
		return id.Username
	}
	return "guest:" + id.SessionID
}

// NewContextWithIdentity returns a context carrying the identity.
func NewContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the identity stored by RequireToken.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// SessionIDFromContext returns the session id, or "guest" when there is none.
func SessionIDFromContext(ctx context.Context) string {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.SessionID == "" {
		return "guest"
	}
	return id.SessionID
}
