package sharing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

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

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

// seedAccount creates a user with an email and one device, returning the
// identity context and the email.
func seedAccount(t *testing.T, s *Service, email string) (context.Context, string) {
	t.Helper()
	ctx := context.Background()
	var userID, deviceID uuid.UUID
	require.NoError(t, s.st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		userID, err = s.st.Users.Create(ctx, tx)
		if err != nil {
			return err
		}
		if email != "" {
			if err := s.st.Users.SetEmail(ctx, tx, userID, email); err != nil {
				return err
			}
		}
		deviceID, err = s.st.Devices.Create(ctx, tx, model.Device{
			UserID:      userID,
			Platform:    "test",
			Fingerprint: uuid.NewString(),
		})
		return err
	}))
	return ident.NewContext(ctx, ident.Identity{
		UserID:   userID,
		DeviceID: deviceID,
		TraceID:  uuid.New(),
	}), email
}

func seedPlan(t *testing.T, s *Service, ctx context.Context) uuid.UUID {
	t.Helper()
	caller, err := ident.Require(ctx)
	require.NoError(t, err)
	var id uuid.UUID
	title := "plan"
	require.NoError(t, s.st.WithTx(ctx, func(tx store.DBTX) error {
		n, err := s.st.Plans.Count(ctx, tx, caller.UserID, model.PlanTypeMain)
		if err != nil {
			return err
		}
		id, err = s.st.Plans.Create(ctx, tx, model.Plan{
			UserID:    caller.UserID,
			Title:     &title,
			Type:      model.PlanTypeMain,
			SortOrder: order.Append(n),
		})
		return err
	}))
	return id
}

// TestShare_GrantsMembership tests the happy path: the recipient gains
// access and both parties get the other's address suggested.
func TestShare_GrantsMembership(t *testing.T) {
	s := newTestService(t)
	owner, ownerEmail := seedAccount(t, s, "owner@example.com")
	recipientCtx, recipientEmail := seedAccount(t, s, "friend@example.com")
	planID := seedPlan(t, s, owner)

	recipient, err := s.Share(owner, planID, recipientEmail)
	require.NoError(t, err)
	require.NotNil(t, recipient)
	require.NotNil(t, recipient.Email)
	assert.Equal(t, recipientEmail, *recipient.Email)

	ownerIdent, err := ident.Require(owner)
	require.NoError(t, err)
	member, err := s.st.Members.IsMember(context.Background(), s.st.DB(), planID, recipient.ID)
	require.NoError(t, err)
	assert.True(t, member)

	ownerSugg, err := s.st.Suggestions.List(context.Background(), s.st.DB(), ownerIdent.UserID)
	require.NoError(t, err)
	require.Len(t, ownerSugg, 1)
	assert.Equal(t, recipientEmail, ownerSugg[0].Email)

	recipientIdent, err := ident.Require(recipientCtx)
	require.NoError(t, err)
	recipientSugg, err := s.st.Suggestions.List(context.Background(), s.st.DB(), recipientIdent.UserID)
	require.NoError(t, err)
	require.Len(t, recipientSugg, 1)
	assert.Equal(t, ownerEmail, recipientSugg[0].Email)
}

// TestShare_CanonicalEmail tests that case and whitespace differences in
// the recipient's address still find the account.
func TestShare_CanonicalEmail(t *testing.T) {
	s := newTestService(t)
	owner, _ := seedAccount(t, s, "owner@example.com")
	_, _ = seedAccount(t, s, "friend@example.com")
	planID := seedPlan(t, s, owner)

	recipient, err := s.Share(owner, planID, "  Friend@Example.COM ")
	require.NoError(t, err)
	require.NotNil(t, recipient.Email)
	assert.Equal(t, "friend@example.com", *recipient.Email)
}

// TestShare_UnknownRecipient tests that sharing with an address that has
// no account is not found.
func TestShare_UnknownRecipient(t *testing.T) {
	s := newTestService(t)
	owner, _ := seedAccount(t, s, "owner@example.com")
	planID := seedPlan(t, s, owner)

	_, err := s.Share(owner, planID, "nobody@example.com")
	assert.True(t, fault.IsNotFound(err))
}

// TestShare_SelfShare tests the owner-shares-with-self rule key.
func TestShare_SelfShare(t *testing.T) {
	s := newTestService(t)
	owner, ownerEmail := seedAccount(t, s, "owner@example.com")
	planID := seedPlan(t, s, owner)

	_, err := s.Share(owner, planID, ownerEmail)
	assert.True(t, fault.IsRule(err, "not_allowed_to_share_with_creator"))
}

// TestShare_NotOwner tests that only the owner may share a plan.
func TestShare_NotOwner(t *testing.T) {
	s := newTestService(t)
	owner, _ := seedAccount(t, s, "owner@example.com")
	other, _ := seedAccount(t, s, "other@example.com")
	planID := seedPlan(t, s, owner)

	_, err := s.Share(other, planID, "owner@example.com")
	assert.True(t, fault.IsUnauthorized(err))
}

// TestShare_MemberCapBoundary tests the per-plan member cap: the 20th
// member is accepted, the 21st fails with max_is_20.
func TestShare_MemberCapBoundary(t *testing.T) {
	s := newTestService(t)
	owner, _ := seedAccount(t, s, "owner@example.com")
	planID := seedPlan(t, s, owner)

	for i := 0; i < quota.MaxPlanMembers; i++ {
		_, email := seedAccount(t, s, fmt.Sprintf("member%d@example.com", i))
		_, err := s.Share(owner, planID, email)
		require.NoError(t, err)
	}

	_, email := seedAccount(t, s, "overflow@example.com")
	_, err := s.Share(owner, planID, email)
	assert.True(t, fault.IsRule(err, "max_is_20"))
}

// TestShare_SharedPlanCapBoundary tests the per-owner cap on distinct
// shared plans. Adding a second member to an already-shared plan does
// not consume the cap.
func TestShare_SharedPlanCapBoundary(t *testing.T) {
	s := newTestService(t)
	owner, _ := seedAccount(t, s, "owner@example.com")
	_, friend := seedAccount(t, s, "friend@example.com")
	_, second := seedAccount(t, s, "second@example.com")

	plans := make([]uuid.UUID, 0, quota.MaxSharedPlansPerOwner+1)
	for i := 0; i <= quota.MaxSharedPlansPerOwner; i++ {
		plans = append(plans, seedPlan(t, s, owner))
	}
	for i := 0; i < quota.MaxSharedPlansPerOwner; i++ {
		_, err := s.Share(owner, plans[i], friend)
		require.NoError(t, err)
	}

	_, err := s.Share(owner, plans[quota.MaxSharedPlansPerOwner], friend)
	assert.True(t, fault.IsRule(err, "max_is_20"))

	// An existing shared plan still accepts members.
	_, err = s.Share(owner, plans[0], second)
	require.NoError(t, err)
}

// TestUnshare tests revocation and the exactness check on unknown
// members.
func TestUnshare(t *testing.T) {
	s := newTestService(t)
	owner, _ := seedAccount(t, s, "owner@example.com")
	memberCtx, memberEmail := seedAccount(t, s, "friend@example.com")
	planID := seedPlan(t, s, owner)

	recipient, err := s.Share(owner, planID, memberEmail)
	require.NoError(t, err)

	require.NoError(t, s.Unshare(owner, planID, recipient.ID))

	memberIdent, err := ident.Require(memberCtx)
	require.NoError(t, err)
	still, err := s.st.Members.IsMember(context.Background(), s.st.DB(), planID, memberIdent.UserID)
	require.NoError(t, err)
	assert.False(t, still)

	assert.True(t, fault.IsInput(s.Unshare(owner, planID, recipient.ID)))
}

// TestLeave tests that a member can leave exactly once and a stranger
// cannot leave at all.
func TestLeave(t *testing.T) {
	s := newTestService(t)
	owner, _ := seedAccount(t, s, "owner@example.com")
	member, memberEmail := seedAccount(t, s, "friend@example.com")
	stranger, _ := seedAccount(t, s, "stranger@example.com")
	planID := seedPlan(t, s, owner)

	_, err := s.Share(owner, planID, memberEmail)
	require.NoError(t, err)

	assert.True(t, fault.IsInput(s.Leave(stranger, planID)))
	require.NoError(t, s.Leave(member, planID))
	assert.True(t, fault.IsInput(s.Leave(member, planID)))
}

// TestMembers_OwnerOnly tests the owner guard on the member listing.
func TestMembers_OwnerOnly(t *testing.T) {
	s := newTestService(t)
	owner, _ := seedAccount(t, s, "owner@example.com")
	member, memberEmail := seedAccount(t, s, "friend@example.com")
	planID := seedPlan(t, s, owner)

	_, err := s.Share(owner, planID, memberEmail)
	require.NoError(t, err)

	users, err := s.Members(owner, planID)
	require.NoError(t, err)
	require.Len(t, users, 1)

	_, err = s.Members(member, planID)
	assert.True(t, fault.IsUnauthorized(err))
}
