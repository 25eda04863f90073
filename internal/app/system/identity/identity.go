// Package identity carries the current caller (user and/or session) through
// a unit of work.
//
// The binding lives in a context.Context, so it is scoped to whatever the
// context is passed to and cannot leak into unrelated work. Binding is not
// nested: the last With wins, and Clear always resets to "no identity"
// rather than restoring an earlier binding.
package identity

import (
	"context"

	"github.com/dalemusser/stratalog/internal/domain/models"
)

type ctxKey string

const identityKey ctxKey = "identity"

// With returns a context carrying the given user and session.
// Empty strings mean absent.
func With(ctx context.Context, user, session string) context.Context {
	return context.WithValue(ctx, identityKey, models.Identity{User: user, Session: session})
}

// WithIdentity is With for an already-built Identity.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity bound to ctx, or the zero Identity.
func FromContext(ctx context.Context) models.Identity {
	if ctx == nil {
		return models.Identity{}
	}
	id, _ := ctx.Value(identityKey).(models.Identity)
	return id
}

// Current returns the user and session bound to ctx.
func Current(ctx context.Context) (user, session string) {
	id := FromContext(ctx)
	return id.User, id.Session
}

// Clear returns a context with no identity bound.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, identityKey, models.Identity{})
}

// Do runs fn with id bound. The binding is visible only inside fn, so it
// ends on every exit path, including a panic unwinding through fn.
func Do(ctx context.Context, id models.Identity, fn func(ctx context.Context) error) error {
	return fn(WithIdentity(ctx, id))
}
