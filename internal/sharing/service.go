// Package sharing grants and revokes plan access between accounts.
//
// A share is a membership row. The caps are asymmetric: a plan holds at
// most quota.MaxPlanMembers members, and an owner may have at most
// quota.MaxSharedPlansPerOwner distinct plans shared out at once. Sharing
// an already-shared plan only consumes the member cap.
package sharing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/audit"
	"github.com/daybook-app/daybook/internal/fault"
	"github.com/daybook-app/daybook/internal/ident"
	"github.com/daybook-app/daybook/internal/identity"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/quota"
	"github.com/daybook-app/daybook/internal/store"
)

// Service orchestrates share, unshare, and leave.
type Service struct {
	st  *store.Store
	log *slog.Logger
	rec *audit.Recorder
}

// NewService wires the sharing service. rec may be nil when auditing is
// not configured.
func NewService(st *store.Store, logger *slog.Logger, rec *audit.Recorder) *Service {
	return &Service{st: st, log: logger, rec: rec}
}

func (s *Service) record(actorID uuid.UUID, action, detail string) {
	if s.rec != nil {
		s.rec.Record(actorID, action, detail)
	}
}

// Share grants the account behind email access to the caller's plan.
// The recipient must already exist; sharing with oneself is a rule
// violation. After the membership commits, both sides get the other's
// address recorded as a suggestion.
func (s *Service) Share(ctx context.Context, planID uuid.UUID, email string) (*model.User, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}
	canonical, err := identity.CanonicalEmail(email)
	if err != nil {
		return nil, err
	}

	var recipient *model.User
	var selfEmail *string
	err = s.st.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.requireOwner(ctx, tx, caller.UserID, planID); err != nil {
			return err
		}
		recipient, err = s.st.Users.GetByEmail(ctx, tx, canonical)
		if err != nil {
			return err
		}
		if recipient == nil {
			return fault.NotFound("no account for %s", canonical)
		}
		if recipient.ID == caller.UserID {
			return fault.Rule("not_allowed_to_share_with_creator", "cannot share a plan with its owner")
		}
		already, err := s.st.Members.IsMember(ctx, tx, planID, recipient.ID)
		if err != nil {
			return err
		}
		if already {
			return nil
		}

		members, err := s.st.Members.CountMembers(ctx, tx, planID)
		if err != nil {
			return err
		}
		if err := quota.CheckMemberCount(members); err != nil {
			return err
		}
		if members == 0 {
			// First member makes this a newly shared plan, which
			// consumes the owner's shared-plan cap.
			sharedPlans, err := s.st.Members.CountSharedPlans(ctx, tx, caller.UserID)
			if err != nil {
				return err
			}
			if err := quota.CheckSharedPlanCount(sharedPlans); err != nil {
				return err
			}
		}
		if err := s.st.Members.Create(ctx, tx, planID, recipient.ID); err != nil {
			return err
		}

		sharer, err := s.st.Users.Get(ctx, tx, caller.UserID)
		if err != nil {
			return err
		}
		if sharer != nil {
			selfEmail = sharer.Email
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.suggestBoth(ctx, caller.UserID, canonical, recipient.ID, selfEmail)
	s.record(caller.UserID, "plan.share", fmt.Sprintf("plan=%s with=%s", planID, recipient.ID))
	return recipient, nil
}

// Unshare revokes a member's access to the caller's plan.
func (s *Service) Unshare(ctx context.Context, planID, memberID uuid.UUID) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}

	err = s.st.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.requireOwner(ctx, tx, caller.UserID, planID); err != nil {
			return err
		}
		n, err := s.st.Members.Delete(ctx, tx, planID, memberID)
		if err != nil {
			return err
		}
		if n != 1 {
			return fault.Input("user %s is not a member of plan %s", memberID, planID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(caller.UserID, "plan.unshare", fmt.Sprintf("plan=%s member=%s", planID, memberID))
	return nil
}

// Leave removes the caller's own membership on someone else's plan.
// Leaving a plan the caller never joined is an input fault.
func (s *Service) Leave(ctx context.Context, planID uuid.UUID) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}

	n, err := s.st.Members.Delete(ctx, s.st.DB(), planID, caller.UserID)
	if err != nil {
		return err
	}
	if n != 1 {
		return fault.Input("caller is not a member of plan %s", planID)
	}

	s.record(caller.UserID, "plan.leave", fmt.Sprintf("plan=%s", planID))
	return nil
}

// Members lists the users a plan is shared with. Owner only.
func (s *Service) Members(ctx context.Context, planID uuid.UUID) ([]model.User, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireOwner(ctx, s.st.DB(), caller.UserID, planID); err != nil {
		return nil, err
	}
	return s.st.Members.ListMembers(ctx, s.st.DB(), planID)
}

// suggestBoth records each party's address in the other's suggestions.
// Best effort after the share committed: an anonymous sharer has no
// address to offer, and a failed upsert only costs a future suggestion.
func (s *Service) suggestBoth(ctx context.Context, sharerID uuid.UUID, recipientEmail string, recipientID uuid.UUID, sharerEmail *string) {
	if err := s.st.Suggestions.Upsert(ctx, s.st.DB(), sharerID, recipientEmail); err != nil {
		s.log.Warn("suggestion upsert failed", "user", sharerID, "err", err)
	}
	if sharerEmail == nil {
		return
	}
	if err := s.st.Suggestions.Upsert(ctx, s.st.DB(), recipientID, *sharerEmail); err != nil {
		s.log.Warn("suggestion upsert failed", "user", recipientID, "err", err)
	}
}

func (s *Service) requireOwner(ctx context.Context, q store.DBTX, userID, planID uuid.UUID) (*model.Plan, error) {
	plan, err := s.st.Plans.Get(ctx, q, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fault.NotFound("plan %s not found", planID)
	}
	if plan.UserID != userID {
		return nil, fault.Unauthorized("user does not own this plan")
	}
	return plan, nil
}
