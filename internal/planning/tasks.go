package planning

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/fault"
	"github.com/daybook-app/daybook/internal/ident"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/order"
	"github.com/daybook-app/daybook/internal/quota"
	"github.com/daybook-app/daybook/internal/store"
)

// CreateTask appends a task to the plan and refreshes the plan's
// done/total summary in the same unit of work.
func (s *Service) CreateTask(ctx context.Context, planID uuid.UUID, title string) (uuid.UUID, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if title == "" {
		return uuid.Nil, fault.Input("task title must not be empty")
	}

	var taskID uuid.UUID
	err = s.st.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.requireAccess(ctx, tx, caller.UserID, planID); err != nil {
			return err
		}
		count, err := s.st.Tasks.Count(ctx, tx, planID)
		if err != nil {
			return err
		}
		if err := quota.CheckTaskCount(count); err != nil {
			return err
		}
		taskID, err = s.st.Tasks.Create(ctx, tx, planID, title, order.Append(count))
		if err != nil {
			return err
		}
		return s.refreshDonePercent(ctx, tx, planID)
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.record(caller.UserID, "task.create", fmt.Sprintf("plan=%s task=%s", planID, taskID))
	return taskID, nil
}

// Tasks lists the plan's tasks in partition order.
func (s *Service) Tasks(ctx context.Context, planID uuid.UUID) ([]model.Task, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireAccess(ctx, s.st.DB(), caller.UserID, planID); err != nil {
		return nil, err
	}
	return s.st.Tasks.List(ctx, s.st.DB(), planID)
}

// DeleteTask removes a task, compacts the plan's partition, and refreshes
// the done/total summary - one unit of work.
func (s *Service) DeleteTask(ctx context.Context, planID, taskID uuid.UUID) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}

	return s.st.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.requireAccess(ctx, tx, caller.UserID, planID); err != nil {
			return err
		}
		task, err := s.requireTask(ctx, tx, planID, taskID)
		if err != nil {
			return err
		}
		if err := s.st.Tasks.ApplyShift(ctx, tx, planID, order.CompactionShift(task.SortOrder)); err != nil {
			return err
		}
		if err := s.st.Tasks.Delete(ctx, tx, taskID); err != nil {
			return err
		}
		return s.refreshDonePercent(ctx, tx, planID)
	})
}

// ToggleTask flips a task's done flag, refreshes the plan summary, and
// repositions the task: a completed task moves to the top of the index
// (the front of the newest-first display), an uncompleted one moves to
// index zero, below the remaining open tasks. Three dependent steps, one
// unit of work.
func (s *Service) ToggleTask(ctx context.Context, planID, taskID uuid.UUID, done bool) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}

	return s.st.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.requireAccess(ctx, tx, caller.UserID, planID); err != nil {
			return err
		}
		task, err := s.requireTask(ctx, tx, planID, taskID)
		if err != nil {
			return err
		}
		if _, err := s.st.Tasks.SetDone(ctx, tx, taskID, done); err != nil {
			return err
		}
		if err := s.refreshDonePercent(ctx, tx, planID); err != nil {
			return err
		}

		count, err := s.st.Tasks.Count(ctx, tx, planID)
		if err != nil {
			return err
		}
		newOrder := 0
		if done {
			newOrder = count - 1
		}
		m, err := order.PlanMove(task.SortOrder, newOrder, count)
		if err != nil {
			return err
		}
		return s.st.Tasks.ApplyMove(ctx, tx, planID, m)
	})
}

// RenameTask rewrites a task's title.
func (s *Service) RenameTask(ctx context.Context, planID, taskID uuid.UUID, title string) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}
	if title == "" {
		return fault.Input("task title must not be empty")
	}
	if _, err := s.requireAccess(ctx, s.st.DB(), caller.UserID, planID); err != nil {
		return err
	}
	if _, err := s.requireTask(ctx, s.st.DB(), planID, taskID); err != nil {
		return err
	}
	_, err = s.st.Tasks.SetTitle(ctx, s.st.DB(), taskID, title)
	return err
}

// ReorderTasks moves a task from oldOrder to newOrder within its plan.
func (s *Service) ReorderTasks(ctx context.Context, planID uuid.UUID, oldOrder, newOrder int) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}

	return s.st.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.requireAccess(ctx, tx, caller.UserID, planID); err != nil {
			return err
		}
		count, err := s.st.Tasks.Count(ctx, tx, planID)
		if err != nil {
			return err
		}
		m, err := order.PlanMove(oldOrder, newOrder, count)
		if err != nil {
			return err
		}
		return s.st.Tasks.ApplyMove(ctx, tx, planID, m)
	})
}

// refreshDonePercent recomputes the plan's "done/total" summary from its
// tasks. Must run in the same unit of work as the task mutation it
// follows.
func (s *Service) refreshDonePercent(ctx context.Context, q store.DBTX, planID uuid.UUID) error {
	done, total, err := s.st.Tasks.CountDone(ctx, q, planID)
	if err != nil {
		return err
	}
	return s.st.Plans.SetDonePercent(ctx, q, planID, fmt.Sprintf("%d/%d", done, total))
}

func (s *Service) requireTask(ctx context.Context, q store.DBTX, planID, taskID uuid.UUID) (*model.Task, error) {
	task, err := s.st.Tasks.Get(ctx, q, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.PlanID != planID {
		return nil, fault.NotFound("task %s not found in plan %s", taskID, planID)
	}
	return task, nil
}
