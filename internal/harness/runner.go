package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/app"
	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/fault"
	"github.com/daybook-app/daybook/internal/ident"
	"github.com/daybook-app/daybook/internal/identity"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/planning"
)

// Snapshot is the deterministic final state of a scenario run.
type Snapshot struct {
	Scenario string       `json:"scenario"`
	Actors   []ActorState `json:"actors"`
}

// ActorState is what one actor's account looks like after the run.
// MergedInto is set instead of the account fields when the actor's
// session was absorbed into an earlier actor's account.
type ActorState struct {
	Name       string      `json:"name"`
	Email      string      `json:"email,omitempty"`
	MergedInto string      `json:"merged_into,omitempty"`
	Plans      []PlanState `json:"plans,omitempty"`
}

// PlanState snapshots one plan with its tasks.
type PlanState struct {
	Title       string      `json:"title"`
	Type        string      `json:"type"`
	SortOrder   int         `json:"sort_order"`
	DonePercent string      `json:"done_percent"`
	Shared      bool        `json:"shared,omitempty"`
	Members     []string    `json:"members,omitempty"`
	Tasks       []TaskState `json:"tasks,omitempty"`
}

// TaskState snapshots one task.
type TaskState struct {
	Title     string `json:"title"`
	Done      bool   `json:"done,omitempty"`
	SortOrder int    `json:"sort_order"`
}

// runner executes one scenario against a wired app.
type runner struct {
	app      *app.App
	cfg      *config.Config
	scenario *Scenario

	contexts map[string]context.Context // actor -> session context
	plans    map[string]uuid.UUID       // plan title -> id
	tasks    map[string]uuid.UUID       // plan title + "/" + task title -> id
}

// Run wires a fresh app from cfg, enrolls every actor, executes the
// steps, and returns the final state snapshot. A step whose outcome does
// not match its expectation fails the whole run.
func Run(scenario *Scenario, cfg *config.Config, logger *slog.Logger) (*Snapshot, error) {
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	r := &runner{
		app:      a,
		cfg:      cfg,
		scenario: scenario,
		contexts: make(map[string]context.Context, len(scenario.Actors)),
		plans:    make(map[string]uuid.UUID),
		tasks:    make(map[string]uuid.UUID),
	}

	for _, actor := range scenario.Actors {
		session, err := a.Identity.Enroll(context.Background(), identity.DeviceIn{
			Platform:    "harness",
			Fingerprint: scenario.Name + "/" + actor,
		})
		if err != nil {
			return nil, fmt.Errorf("enroll actor %s: %w", actor, err)
		}
		r.contexts[actor] = sessionContext(session)
	}

	for i, step := range scenario.Steps {
		if err := r.step(step); err != nil {
			return nil, fmt.Errorf("step %d (%s %s): %w", i, step.Actor, step.Op, err)
		}
	}

	return r.snapshot()
}

func sessionContext(s *identity.Session) context.Context {
	return ident.NewContext(context.Background(), ident.Identity{
		UserID:   s.UserID,
		DeviceID: s.DeviceID,
		TraceID:  uuid.New(),
	})
}

// step executes one step and checks its outcome against Expect.
func (r *runner) step(step Step) error {
	err := r.execute(step)
	if step.Expect == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("expected fault %q, step succeeded", step.Expect)
	}
	if !matchesExpect(err, step.Expect) {
		return fmt.Errorf("expected fault %q, got: %v", step.Expect, err)
	}
	return nil
}

func matchesExpect(err error, expect string) bool {
	switch expect {
	case "input":
		return fault.IsInput(err)
	case "unauthorized":
		return fault.IsUnauthorized(err)
	case "forbidden":
		return fault.IsForbidden(err)
	case "not_found":
		return fault.IsNotFound(err)
	}
	if key, ok := strings.CutPrefix(expect, "rule:"); ok {
		return fault.IsRule(err, key)
	}
	return false
}

func (r *runner) execute(step Step) error {
	ctx, ok := r.contexts[step.Actor]
	if !ok {
		return fmt.Errorf("unknown actor %q", step.Actor)
	}

	switch step.Op {
	case "verify":
		email, err := step.stringArg("email")
		if err != nil {
			return err
		}
		handle, err := r.app.Identity.SendPasscode(ctx, email)
		if err != nil {
			return err
		}
		session, err := r.app.Identity.VerifyPasscode(ctx, email, handle, r.cfg.SandboxCode)
		if err != nil {
			return err
		}
		r.contexts[step.Actor] = sessionContext(session)
		return nil

	case "create_plan":
		title, err := step.stringArg("title")
		if err != nil {
			return err
		}
		id, err := r.app.Planning.Create(ctx, planning.PlanIn{Title: &title})
		if err != nil {
			return err
		}
		r.plans[title] = id
		return nil

	case "delete_plan":
		planID, err := r.planArg(step)
		if err != nil {
			return err
		}
		return r.app.Planning.Delete(ctx, planID)

	case "retype_plan":
		planID, err := r.planArg(step)
		if err != nil {
			return err
		}
		t, err := step.stringArg("type")
		if err != nil {
			return err
		}
		return r.app.Planning.Retype(ctx, planID, model.PlanType(t))

	case "reorder_plans":
		t, err := step.stringArg("type")
		if err != nil {
			return err
		}
		from, err := step.intArg("from")
		if err != nil {
			return err
		}
		to, err := step.intArg("to")
		if err != nil {
			return err
		}
		return r.app.Planning.Reorder(ctx, model.PlanType(t), from, to)

	case "create_task":
		planID, err := r.planArg(step)
		if err != nil {
			return err
		}
		title, err := step.stringArg("title")
		if err != nil {
			return err
		}
		plan, _ := step.stringArg("plan")
		id, err := r.app.Planning.CreateTask(ctx, planID, title)
		if err != nil {
			return err
		}
		r.tasks[plan+"/"+title] = id
		return nil

	case "delete_task":
		planID, taskID, err := r.taskArgs(step)
		if err != nil {
			return err
		}
		return r.app.Planning.DeleteTask(ctx, planID, taskID)

	case "toggle_task":
		planID, taskID, err := r.taskArgs(step)
		if err != nil {
			return err
		}
		done, err := step.boolArg("done")
		if err != nil {
			return err
		}
		return r.app.Planning.ToggleTask(ctx, planID, taskID, done)

	case "rename_task":
		planID, taskID, err := r.taskArgs(step)
		if err != nil {
			return err
		}
		title, err := step.stringArg("title")
		if err != nil {
			return err
		}
		return r.app.Planning.RenameTask(ctx, planID, taskID, title)

	case "reorder_tasks":
		planID, err := r.planArg(step)
		if err != nil {
			return err
		}
		from, err := step.intArg("from")
		if err != nil {
			return err
		}
		to, err := step.intArg("to")
		if err != nil {
			return err
		}
		return r.app.Planning.ReorderTasks(ctx, planID, from, to)

	case "share":
		planID, err := r.planArg(step)
		if err != nil {
			return err
		}
		email, err := step.stringArg("email")
		if err != nil {
			return err
		}
		_, err = r.app.Sharing.Share(ctx, planID, email)
		return err

	case "unshare":
		planID, err := r.planArg(step)
		if err != nil {
			return err
		}
		email, err := step.stringArg("email")
		if err != nil {
			return err
		}
		member, err := r.app.Store.Users.GetByEmail(ctx, r.app.Store.DB(), email)
		if err != nil {
			return err
		}
		if member == nil {
			return fault.NotFound("no account for %s", email)
		}
		return r.app.Sharing.Unshare(ctx, planID, member.ID)

	case "leave":
		planID, err := r.planArg(step)
		if err != nil {
			return err
		}
		return r.app.Sharing.Leave(ctx, planID)

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

func (r *runner) planArg(step Step) (uuid.UUID, error) {
	title, err := step.stringArg("plan")
	if err != nil {
		return uuid.Nil, err
	}
	id, ok := r.plans[title]
	if !ok {
		return uuid.Nil, fmt.Errorf("no plan created with title %q", title)
	}
	return id, nil
}

func (r *runner) taskArgs(step Step) (uuid.UUID, uuid.UUID, error) {
	planID, err := r.planArg(step)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	plan, _ := step.stringArg("plan")
	title, err := step.stringArg("task")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, ok := r.tasks[plan+"/"+title]
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("no task created with title %q in plan %q", title, plan)
	}
	return planID, id, nil
}

// snapshot reads back every actor's final account state.
func (r *runner) snapshot() (*Snapshot, error) {
	ctx := context.Background()
	db := r.app.Store.DB()
	out := &Snapshot{Scenario: r.scenario.Name}

	seen := make(map[uuid.UUID]string) // user id -> first actor name
	for _, actor := range r.scenario.Actors {
		id, err := ident.Require(r.contexts[actor])
		if err != nil {
			return nil, err
		}
		if first, ok := seen[id.UserID]; ok {
			out.Actors = append(out.Actors, ActorState{Name: actor, MergedInto: first})
			continue
		}
		seen[id.UserID] = actor

		state := ActorState{Name: actor}
		user, err := r.app.Store.Users.Get(ctx, db, id.UserID)
		if err != nil {
			return nil, err
		}
		if user != nil && user.Email != nil {
			state.Email = *user.Email
		}

		for _, t := range []model.PlanType{model.PlanTypeMain, model.PlanTypeArchived} {
			plans, err := r.app.Store.Plans.ListByOwner(ctx, db, id.UserID, t)
			if err != nil {
				return nil, err
			}
			for _, plan := range plans {
				ps, err := r.planState(ctx, plan)
				if err != nil {
					return nil, err
				}
				state.Plans = append(state.Plans, ps)
			}
		}
		out.Actors = append(out.Actors, state)
	}
	return out, nil
}

func (r *runner) planState(ctx context.Context, plan model.Plan) (PlanState, error) {
	db := r.app.Store.DB()
	ps := PlanState{
		Type:        string(plan.Type),
		SortOrder:   plan.SortOrder,
		DonePercent: plan.DonePercent,
		Shared:      plan.Shared,
	}
	if plan.Title != nil {
		ps.Title = *plan.Title
	}

	if plan.Shared {
		members, err := r.app.Store.Members.ListMembers(ctx, db, plan.ID)
		if err != nil {
			return ps, err
		}
		for _, m := range members {
			if m.Email != nil {
				ps.Members = append(ps.Members, *m.Email)
			}
		}
		sort.Strings(ps.Members)
	}

	tasks, err := r.app.Store.Tasks.List(ctx, db, plan.ID)
	if err != nil {
		return ps, err
	}
	for _, task := range tasks {
		ps.Tasks = append(ps.Tasks, TaskState{
			Title:     task.Title,
			Done:      task.Done,
			SortOrder: task.SortOrder,
		})
	}
	return ps, nil
}
