package identity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-app/daybook/internal/fault"
	"github.com/daybook-app/daybook/internal/ident"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/order"
	"github.com/daybook-app/daybook/internal/quota"
	"github.com/daybook-app/daybook/internal/store"
)

var sandbox = &SandboxProvider{
	Emails: []string{"x@example.com", "y@example.com"},
	Handle: "sandbox-handle",
	Code:   "123456",
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	tokens := NewTokenIssuer([]byte("test-secret"), "daybook-test", time.Hour)
	return NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, sandbox, tokens)
}

func sessionContext(s *Session) context.Context {
	return ident.NewContext(context.Background(), ident.Identity{
		UserID:   s.UserID,
		DeviceID: s.DeviceID,
		TraceID:  uuid.New(),
	})
}

func seedPlans(t *testing.T, s *Service, userID uuid.UUID, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.st.WithTx(ctx, func(tx store.DBTX) error {
		for i := 0; i < n; i++ {
			title := fmt.Sprintf("plan %d", i)
			if _, err := s.st.Plans.Create(ctx, tx, model.Plan{
				UserID:    userID,
				Title:     &title,
				Type:      model.PlanTypeMain,
				SortOrder: i,
			}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func seedDevices(t *testing.T, s *Service, userID uuid.UUID, n int) []uuid.UUID {
	t.Helper()
	ctx := context.Background()
	ids := make([]uuid.UUID, n)
	require.NoError(t, s.st.WithTx(ctx, func(tx store.DBTX) error {
		for i := range ids {
			var err error
			ids[i], err = s.st.Devices.Create(ctx, tx, model.Device{
				UserID:      userID,
				Platform:    "test",
				Fingerprint: uuid.NewString(),
			})
			if err != nil {
				return err
			}
			// created_at resolution is coarse; keep insertion order
			// observable through distinct timestamps.
			time.Sleep(2 * time.Millisecond)
		}
		return nil
	}))
	return ids
}

// verify runs the sandbox passcode flow for an enrolled session.
func verify(t *testing.T, s *Service, session *Session, email string) *Session {
	t.Helper()
	ctx := sessionContext(session)
	handle, err := s.SendPasscode(ctx, email)
	require.NoError(t, err)
	out, err := s.VerifyPasscode(ctx, email, handle, sandbox.Code)
	require.NoError(t, err)
	return out
}

// TestEnroll_MintsAnonymousSession tests that enrollment creates an
// anonymous user, a device, and a token that parses back to the pair.
func TestEnroll_MintsAnonymousSession(t *testing.T) {
	s := newTestService(t)

	session, err := s.Enroll(context.Background(), DeviceIn{
		Platform:    "ios",
		Fingerprint: "fp-1",
		Info:        "test phone",
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)

	userID, deviceID, err := s.tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, userID)
	assert.Equal(t, session.DeviceID, deviceID)

	user, err := s.User(sessionContext(session))
	require.NoError(t, err)
	assert.True(t, user.Anonymous())
}

// TestEnroll_PurgesFingerprint tests that re-enrolling the same
// fingerprint replaces the old device row instead of colliding.
func TestEnroll_PurgesFingerprint(t *testing.T) {
	s := newTestService(t)

	first, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-same"})
	require.NoError(t, err)
	second, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-same"})
	require.NoError(t, err)

	gone, err := s.st.Devices.Get(context.Background(), s.st.DB(), first.DeviceID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := s.st.Devices.Get(context.Background(), s.st.DB(), second.DeviceID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, second.UserID, kept.UserID)
}

// TestEnroll_RequiresFingerprint tests the fingerprint guard.
func TestEnroll_RequiresFingerprint(t *testing.T) {
	s := newTestService(t)

	_, err := s.Enroll(context.Background(), DeviceIn{Platform: "ios"})
	assert.True(t, fault.IsInput(err))
}

// TestVerifyPasscode_FirstTimeClaim tests that verifying an unclaimed
// address attaches it to the current anonymous user.
func TestVerifyPasscode_FirstTimeClaim(t *testing.T) {
	s := newTestService(t)

	session, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-claim"})
	require.NoError(t, err)

	out := verify(t, s, session, "x@example.com")
	assert.Equal(t, session.UserID, out.UserID)
	assert.Equal(t, session.DeviceID, out.DeviceID)

	user, err := s.User(sessionContext(out))
	require.NoError(t, err)
	require.NotNil(t, user.Email)
	assert.Equal(t, "x@example.com", *user.Email)
}

// TestVerifyPasscode_WrongCode tests that an unapproved check mints
// nothing and changes nothing.
func TestVerifyPasscode_WrongCode(t *testing.T) {
	s := newTestService(t)

	session, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-wrong"})
	require.NoError(t, err)
	ctx := sessionContext(session)

	handle, err := s.SendPasscode(ctx, "x@example.com")
	require.NoError(t, err)

	_, err = s.VerifyPasscode(ctx, "x@example.com", handle, "000000")
	assert.True(t, fault.IsUnauthorized(err))

	user, err := s.User(ctx)
	require.NoError(t, err)
	assert.True(t, user.Anonymous())
}

// TestVerifyPasscode_MergesIntoExistingAccount tests the full merge: an
// anonymous user with 2 plans and 1 device folds into an account holding
// 3 plans and 5 devices. The account ends with 5 plans ordered 0..4, the
// device cap intact with the oldest device evicted, and the anonymous
// user gone.
func TestVerifyPasscode_MergesIntoExistingAccount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// Y: the existing account behind the address.
	ySession, err := s.Enroll(ctx, DeviceIn{Fingerprint: "fp-y"})
	require.NoError(t, err)
	verify(t, s, ySession, "y@example.com")
	seedPlans(t, s, ySession.UserID, 3)
	yDevices := seedDevices(t, s, ySession.UserID, 4) // plus the enrolled one: 5 total

	// X: the anonymous session about to claim the same address.
	xSession, err := s.Enroll(ctx, DeviceIn{Fingerprint: "fp-x"})
	require.NoError(t, err)
	seedPlans(t, s, xSession.UserID, 2)

	out := verify(t, s, xSession, "y@example.com")
	assert.Equal(t, ySession.UserID, out.UserID)
	assert.Equal(t, xSession.DeviceID, out.DeviceID)

	// Y's Main partition absorbed X's plans after its own, staying dense.
	orders, err := s.st.Plans.SortOrders(ctx, s.st.DB(), ySession.UserID, model.PlanTypeMain)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, orders)
	assert.True(t, order.Dense(orders))

	// The device cap held: the enrolled device, Y's oldest, was evicted
	// to make room for X's.
	devices, err := s.st.Devices.ListByUser(ctx, s.st.DB(), ySession.UserID)
	require.NoError(t, err)
	require.Len(t, devices, quota.MaxDevicesPerUser)
	ids := make(map[uuid.UUID]bool, len(devices))
	for _, d := range devices {
		ids[d.ID] = true
	}
	assert.False(t, ids[ySession.DeviceID])
	assert.True(t, ids[xSession.DeviceID])
	for _, id := range yDevices {
		assert.True(t, ids[id])
	}

	// X is gone.
	xUser, err := s.st.Users.Get(ctx, s.st.DB(), xSession.UserID)
	require.NoError(t, err)
	assert.Nil(t, xUser)
}

// TestVerifyPasscode_ReverifySameAccount tests that verifying the address
// already attached to the caller is a plain token refresh.
func TestVerifyPasscode_ReverifySameAccount(t *testing.T) {
	s := newTestService(t)

	session, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-re"})
	require.NoError(t, err)
	verify(t, s, session, "x@example.com")

	out := verify(t, s, session, "x@example.com")
	assert.Equal(t, session.UserID, out.UserID)
}

// TestRefreshToken tests re-issue for a live device and rejection once
// the device is gone.
func TestRefreshToken(t *testing.T) {
	s := newTestService(t)

	session, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-refresh"})
	require.NoError(t, err)
	ctx := sessionContext(session)

	token, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	userID, _, err := s.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, userID)

	require.NoError(t, s.Logout(ctx, session.DeviceID))
	_, err = s.RefreshToken(ctx)
	assert.True(t, fault.IsUnauthorized(err))
}

// TestLogout_OwnershipChecked tests that a caller cannot log out another
// user's device.
func TestLogout_OwnershipChecked(t *testing.T) {
	s := newTestService(t)

	mine, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-mine"})
	require.NoError(t, err)
	theirs, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-theirs"})
	require.NoError(t, err)

	ctx := sessionContext(mine)
	assert.True(t, fault.IsUnauthorized(s.Logout(ctx, theirs.DeviceID)))
	assert.True(t, fault.IsNotFound(s.Logout(ctx, uuid.New())))
}

// TestRenameUser tests the rename path and its guard.
func TestRenameUser(t *testing.T) {
	s := newTestService(t)

	session, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-name"})
	require.NoError(t, err)
	ctx := sessionContext(session)

	require.NoError(t, s.RenameUser(ctx, "Alex"))
	user, err := s.User(ctx)
	require.NoError(t, err)
	require.NotNil(t, user.Name)
	assert.Equal(t, "Alex", *user.Name)

	assert.True(t, fault.IsInput(s.RenameUser(ctx, "")))
}

// TestDeleteAccount tests passcode-gated deletion: the user, its rows,
// and its address in other users' suggestions all go away.
func TestDeleteAccount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	session, err := s.Enroll(ctx, DeviceIn{Fingerprint: "fp-del"})
	require.NoError(t, err)
	verify(t, s, session, "x@example.com")
	seedPlans(t, s, session.UserID, 2)

	other, err := s.Enroll(ctx, DeviceIn{Fingerprint: "fp-other"})
	require.NoError(t, err)
	require.NoError(t, s.st.Suggestions.Upsert(ctx, s.st.DB(), other.UserID, "x@example.com"))

	sctx := sessionContext(session)
	assert.True(t, fault.IsUnauthorized(s.DeleteAccount(sctx, sandbox.Handle, "000000")))

	require.NoError(t, s.DeleteAccount(sctx, sandbox.Handle, sandbox.Code))

	gone, err := s.st.Users.Get(ctx, s.st.DB(), session.UserID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	suggestions, err := s.st.Suggestions.List(ctx, s.st.DB(), other.UserID)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

// TestDeleteAccount_AnonymousRejected tests that an account with no email
// cannot run the passcode-gated deletion.
func TestDeleteAccount_AnonymousRejected(t *testing.T) {
	s := newTestService(t)

	session, err := s.Enroll(context.Background(), DeviceIn{Fingerprint: "fp-anon"})
	require.NoError(t, err)

	err = s.DeleteAccount(sessionContext(session), sandbox.Handle, sandbox.Code)
	assert.True(t, fault.IsInput(err))
}

// TestSuggestedEmails tests listing and ownership-checked removal.
func TestSuggestedEmails(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	session, err := s.Enroll(ctx, DeviceIn{Fingerprint: "fp-sugg"})
	require.NoError(t, err)
	other, err := s.Enroll(ctx, DeviceIn{Fingerprint: "fp-sugg-2"})
	require.NoError(t, err)

	require.NoError(t, s.st.Suggestions.Upsert(ctx, s.st.DB(), session.UserID, "a@example.com"))

	sctx := sessionContext(session)
	listed, err := s.SuggestedEmails(sctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// Someone else cannot remove it.
	err = s.RemoveSuggestedEmail(sessionContext(other), listed[0].ID)
	assert.True(t, fault.IsNotFound(err))

	require.NoError(t, s.RemoveSuggestedEmail(sctx, listed[0].ID))
	listed, err = s.SuggestedEmails(sctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
