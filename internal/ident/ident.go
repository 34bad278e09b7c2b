// Package ident carries the request-scoped caller identity through a
// context.Context.
//
// The identity is established once at the edge of a request and travels
// explicitly with the call chain. It is never stored in shared mutable
// state, so concurrent requests cannot observe each other's identity.
package ident

import (
	"context"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/fault"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   uuid.UUID
	DeviceID uuid.UUID
	TraceID  uuid.UUID
}

type ctxKey struct{}

// NewContext returns a child context carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the identity from ctx.
// The second return is false when no identity was attached.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Require extracts the identity and rejects structurally invalid ones.
// A missing identity or a nil user/device id yields a Forbidden fault.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, fault.Forbidden("no caller identity in context")
	}
	if id.UserID == uuid.Nil {
		return Identity{}, fault.Forbidden("caller identity has empty user id")
	}
	if id.DeviceID == uuid.Nil {
		return Identity{}, fault.Forbidden("caller identity has empty device id")
	}
	return id, nil
}
