package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/model"
)

// MemberRepo persists plan memberships: (plan, user) pairs granting a
// non-owner access to a plan.
type MemberRepo interface {
	Create(ctx context.Context, q DBTX, planID, userID uuid.UUID) error
	// Delete removes one membership and reports how many rows went away;
	// callers use the count to detect leaving a plan one never joined.
	Delete(ctx context.Context, q DBTX, planID, userID uuid.UUID) (int64, error)
	// CountMembers returns how many users a plan is shared with.
	CountMembers(ctx context.Context, q DBTX, planID uuid.UUID) (int, error)
	// IsMember reports whether the user holds a membership on the plan.
	IsMember(ctx context.Context, q DBTX, planID, userID uuid.UUID) (bool, error)
	// CountSharedPlans returns how many of the owner's plans currently
	// have at least one member.
	CountSharedPlans(ctx context.Context, q DBTX, ownerID uuid.UUID) (int, error)
	// ListMembers returns the users a plan is shared with.
	ListMembers(ctx context.Context, q DBTX, planID uuid.UUID) ([]model.User, error)
	// ListSharedWith returns plans other users have shared with userID.
	ListSharedWith(ctx context.Context, q DBTX, userID uuid.UUID) ([]model.Plan, error)
}

type memberRepo struct{}

var _ MemberRepo = (*memberRepo)(nil)

func (*memberRepo) Create(ctx context.Context, q DBTX, planID, userID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO plan_members (plan_id, user_id, created_at) VALUES (?, ?, ?)
	`, planID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert plan member: %w", err)
	}
	return nil
}

func (*memberRepo) Delete(ctx context.Context, q DBTX, planID, userID uuid.UUID) (int64, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM plan_members WHERE plan_id = ? AND user_id = ?
	`, planID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete plan member: %w", err)
	}
	return res.RowsAffected()
}

func (*memberRepo) CountMembers(ctx context.Context, q DBTX, planID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM plan_members WHERE plan_id = ?
	`, planID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count plan members: %w", err)
	}
	return n, nil
}

func (*memberRepo) IsMember(ctx context.Context, q DBTX, planID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM plan_members WHERE plan_id = ? AND user_id = ?)
	`, planID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check plan member: %w", err)
	}
	return exists, nil
}

func (*memberRepo) CountSharedPlans(ctx context.Context, q DBTX, ownerID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT m.plan_id)
		FROM plan_members m
		JOIN plans p ON m.plan_id = p.id
		WHERE p.user_id = ?
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count shared plans: %w", err)
	}
	return n, nil
}

func (*memberRepo) ListMembers(ctx context.Context, q DBTX, planID uuid.UUID) ([]model.User, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, u.created_at
		FROM plan_members m
		JOIN users u ON m.user_id = u.id
		WHERE m.plan_id = ?
		ORDER BY m.created_at DESC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query plan members: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan member: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (*memberRepo) ListSharedWith(ctx context.Context, q DBTX, userID uuid.UUID) ([]model.Plan, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM plan_members m
		JOIN plans p ON m.plan_id = p.id
		LEFT JOIN users u ON p.user_id = u.id
		WHERE m.user_id = ?
		ORDER BY p.sort_order ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query shared plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}
