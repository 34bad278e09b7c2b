package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-app/daybook/internal/fault"
)

// TestCanonicalEmail tests trimming, lowercasing, and Unicode
// normalization against a few representative inputs.
func TestCanonicalEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain@example.com", "plain@example.com"},
		{"  Spaced@Example.COM ", "spaced@example.com"},
		{"MiXeD@ExAmPlE.com", "mixed@example.com"},
		// NFD e + combining acute composes to the NFC form.
		{"résumé@example.com", "résumé@example.com"},
	}
	for _, tc := range cases {
		got, err := CanonicalEmail(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

// TestCanonicalEmail_Rejects tests the malformed-address guard.
func TestCanonicalEmail_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "no-at-sign", "@example.com", "user@"} {
		_, err := CanonicalEmail(in)
		assert.True(t, fault.IsInput(err), "input %q", in)
	}
}

// TestTokenIssuer_RoundTrip tests that a minted token parses back to the
// pair it was bound to.
func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), "daybook-test", time.Hour)
	userID, deviceID := uuid.New(), uuid.New()

	token, err := issuer.Issue(userID, deviceID)
	require.NoError(t, err)

	gotUser, gotDevice, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, deviceID, gotDevice)
}

// TestTokenIssuer_RejectsForeignSignature tests that tokens signed with a
// different secret do not parse.
func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	a := NewTokenIssuer([]byte("secret-a"), "daybook-test", time.Hour)
	b := NewTokenIssuer([]byte("secret-b"), "daybook-test", time.Hour)

	token, err := a.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, _, err = b.Parse(token)
	assert.True(t, fault.IsUnauthorized(err))
}

// TestTokenIssuer_RejectsExpired tests expiry enforcement.
func TestTokenIssuer_RejectsExpired(t *testing.T) {
	issuer := &jwtIssuer{secret: []byte("secret"), issuer: "daybook-test", ttl: -time.Minute}

	token, err := issuer.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, _, err = issuer.Parse(token)
	assert.True(t, fault.IsUnauthorized(err))
}

// TestSandboxProvider tests the configured-triple contract.
func TestSandboxProvider(t *testing.T) {
	p := &SandboxProvider{
		Emails: []string{"dev@example.com"},
		Handle: "h-1",
		Code:   "42",
	}

	handle, err := p.Send(context.Background(), "dev@example.com")
	require.NoError(t, err)
	assert.Equal(t, "h-1", handle)

	_, err = p.Send(context.Background(), "stranger@example.com")
	assert.True(t, fault.IsInput(err))

	status, err := p.Check(context.Background(), "dev@example.com", "h-1", "42")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, status)

	status, err = p.Check(context.Background(), "dev@example.com", "h-1", "41")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
}
