// ABOUTME: Authenticated identity carried through request handlers
// ABOUTME: Provides WithUser/FromContext and the subject check used by handlers

package auth

import (
	"context"
	"errors"
)

// ErrForbidden is returned when a request acts for a different user than
// the one authenticated.
var ErrForbidden = errors.New("user_id does not match the authenticated user")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

type identityKey struct{}

// WithUser returns a context carrying id.
func WithUser(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the authenticated identity, or nil when the request
// was not authenticated (auth disabled).
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// CheckSubject allows the request when auth is disabled or userID is the
// authenticated user.
func CheckSubject(ctx context.Context, userID string) error {
	id := FromContext(ctx)
	if id == nil || id.UserID == userID {
		return nil
	}
	return ErrForbidden
}
