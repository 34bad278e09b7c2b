package ident

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-app/daybook/internal/fault"
)

// TestRequire_RoundTrip tests attaching and extracting an identity.
func TestRequire_RoundTrip(t *testing.T) {
	want := Identity{
		UserID:   uuid.New(),
		DeviceID: uuid.New(),
		TraceID:  uuid.New(),
	}
	ctx := NewContext(context.Background(), want)

	got, err := Require(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestRequire_MissingIdentity tests the forbidden fault for a bare context.
func TestRequire_MissingIdentity(t *testing.T) {
	_, err := Require(context.Background())
	assert.True(t, fault.IsForbidden(err))
}

// TestRequire_EmptyIDs tests rejection of nil user and device ids.
func TestRequire_EmptyIDs(t *testing.T) {
	ctx := NewContext(context.Background(), Identity{DeviceID: uuid.New()})
	_, err := Require(ctx)
	assert.True(t, fault.IsForbidden(err))

	ctx = NewContext(context.Background(), Identity{UserID: uuid.New()})
	_, err = Require(ctx)
	assert.True(t, fault.IsForbidden(err))
}

// TestFromContext_NoLeakBetweenContexts tests that identities stay scoped
// to the context they were attached to.
func TestFromContext_NoLeakBetweenContexts(t *testing.T) {
	a := NewContext(context.Background(), Identity{UserID: uuid.New(), DeviceID: uuid.New()})

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	idA, ok := FromContext(a)
	require.True(t, ok)

	b := NewContext(context.Background(), Identity{UserID: uuid.New(), DeviceID: uuid.New()})
	idB, ok := FromContext(b)
	require.True(t, ok)
	assert.NotEqual(t, idA.UserID, idB.UserID)
}
