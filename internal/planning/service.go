// Package planning implements plan and task operations: ordered creation,
// deletion with compaction, retype across partitions, and reorders. Every
// mutation runs inside a single unit of work so the density invariant
// holds at each committed state.
package planning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/audit"
	"github.com/daybook-app/daybook/internal/fault"
	"github.com/daybook-app/daybook/internal/ident"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/order"
	"github.com/daybook-app/daybook/internal/quota"
	"github.com/daybook-app/daybook/internal/store"
)

// PlanIn carries caller-supplied plan fields.
type PlanIn struct {
	ID     uuid.UUID
	Title  *string
	Starts *time.Time
	Ends   *time.Time
}

// Service orchestrates plan and task mutations.
type Service struct {
	st  *store.Store
	log *slog.Logger
	rec *audit.Recorder
}

// NewService wires the planning service. rec may be nil when auditing is
// not configured.
func NewService(st *store.Store, logger *slog.Logger, rec *audit.Recorder) *Service {
	return &Service{st: st, log: logger, rec: rec}
}

func (s *Service) record(actorID uuid.UUID, action, detail string) {
	if s.rec != nil {
		s.rec.Record(actorID, action, detail)
	}
}

// Create appends a new plan to the caller's Main partition.
// Requires a title or a time range; enforces the per-partition cap.
func (s *Service) Create(ctx context.Context, in PlanIn) (uuid.UUID, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if in.Title == nil && (in.Starts == nil || in.Ends == nil) {
		return uuid.Nil, fault.Input("a plan needs a title or a time range")
	}

	var planID uuid.UUID
	err = s.st.WithTx(ctx, func(tx store.DBTX) error {
		count, err := s.st.Plans.Count(ctx, tx, caller.UserID, model.PlanTypeMain)
		if err != nil {
			return err
		}
		if err := quota.CheckPlanCount(count); err != nil {
			return err
		}
		planID, err = s.st.Plans.Create(ctx, tx, model.Plan{
			UserID:    caller.UserID,
			Title:     in.Title,
			Starts:    in.Starts,
			Ends:      in.Ends,
			Type:      model.PlanTypeMain,
			SortOrder: order.Append(count),
		})
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.log.Debug("plan created", "plan", planID, "user", caller.UserID)
	s.record(caller.UserID, "plan.create", fmt.Sprintf("plan=%s", planID))
	return planID, nil
}

// Get returns one plan the caller can see, with members loaded when the
// plan is shared.
func (s *Service) Get(ctx context.Context, planID uuid.UUID) (*model.Plan, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := s.requireAccess(ctx, s.st.DB(), caller.UserID, planID)
	if err != nil {
		return nil, err
	}
	if plan.Shared {
		members, err := s.st.Members.ListMembers(ctx, s.st.DB(), planID)
		if err != nil {
			return nil, err
		}
		plan.Members = members
	}
	return plan, nil
}

// List returns the caller's own plans of the given type followed by plans
// shared with the caller.
func (s *Service) List(ctx context.Context, t model.PlanType) ([]model.Plan, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, fault.Input("unknown plan type %q", t)
	}

	own, err := s.st.Plans.ListByOwner(ctx, s.st.DB(), caller.UserID, t)
	if err != nil {
		return nil, err
	}
	shared, err := s.st.Members.ListSharedWith(ctx, s.st.DB(), caller.UserID)
	if err != nil {
		return nil, err
	}
	return append(own, shared...), nil
}

// Update rewrites the plan's caller-editable fields.
func (s *Service) Update(ctx context.Context, in PlanIn) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}
	if _, err := s.requireOwner(ctx, s.st.DB(), caller.UserID, in.ID); err != nil {
		return err
	}
	_, err = s.st.Plans.Update(ctx, s.st.DB(), in.ID, in.Title, in.Starts, in.Ends)
	return err
}

// Delete removes a plan, compacting its partition in the same unit of
// work. Tasks and memberships cascade away with the row.
func (s *Service) Delete(ctx context.Context, planID uuid.UUID) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}

	err = s.st.WithTx(ctx, func(tx store.DBTX) error {
		plan, err := s.requireOwner(ctx, tx, caller.UserID, planID)
		if err != nil {
			return err
		}
		if err := s.st.Plans.ApplyShift(ctx, tx, caller.UserID, plan.Type, order.CompactionShift(plan.SortOrder)); err != nil {
			return err
		}
		return s.st.Plans.Delete(ctx, tx, planID)
	})
	if err != nil {
		return err
	}

	s.record(caller.UserID, "plan.delete", fmt.Sprintf("plan=%s", planID))
	return nil
}

// Retype moves a plan to the caller's partition of the other type:
// appended at the destination's end, source partition compacted.
func (s *Service) Retype(ctx context.Context, planID uuid.UUID, t model.PlanType) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}
	if !t.Valid() {
		return fault.Input("unknown plan type %q", t)
	}

	return s.st.WithTx(ctx, func(tx store.DBTX) error {
		plan, err := s.requireOwner(ctx, tx, caller.UserID, planID)
		if err != nil {
			return err
		}
		if plan.Type == t {
			return nil
		}
		destCount, err := s.st.Plans.Count(ctx, tx, caller.UserID, t)
		if err != nil {
			return err
		}
		if err := quota.CheckPlanCount(destCount); err != nil {
			return err
		}
		if err := s.st.Plans.ApplyShift(ctx, tx, caller.UserID, plan.Type, order.CompactionShift(plan.SortOrder)); err != nil {
			return err
		}
		return s.st.Plans.SetType(ctx, tx, planID, t, order.Append(destCount))
	})
}

// Reorder moves the caller's plan from oldOrder to newOrder within the
// (caller, type) partition.
func (s *Service) Reorder(ctx context.Context, t model.PlanType, oldOrder, newOrder int) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}
	if !t.Valid() {
		return fault.Input("unknown plan type %q", t)
	}

	return s.st.WithTx(ctx, func(tx store.DBTX) error {
		count, err := s.st.Plans.Count(ctx, tx, caller.UserID, t)
		if err != nil {
			return err
		}
		m, err := order.PlanMove(oldOrder, newOrder, count)
		if err != nil {
			return err
		}
		return s.st.Plans.ApplyMove(ctx, tx, caller.UserID, t, m)
	})
}

// requireOwner loads the plan and rejects callers who do not own it.
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

// requireAccess loads the plan and rejects callers who neither own it nor
// hold a membership on it.
func (s *Service) requireAccess(ctx context.Context, q store.DBTX, userID, planID uuid.UUID) (*model.Plan, error) {
	plan, err := s.st.Plans.Get(ctx, q, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fault.NotFound("plan %s not found", planID)
	}
	if plan.UserID == userID {
		return plan, nil
	}
	member, err := s.st.Members.IsMember(ctx, q, planID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fault.Unauthorized("user has no access to this plan")
	}
	return plan, nil
}
