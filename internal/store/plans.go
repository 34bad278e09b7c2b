package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/order"
)

// PlanRepo persists plans. Ordering updates are single statements so a
// reorder cannot interleave with a concurrent reorder mid-update.
type PlanRepo interface {
	Create(ctx context.Context, q DBTX, p model.Plan) (uuid.UUID, error)
	Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.Plan, error)
	// ListByOwner returns the user's own plans of one type, ordered by
	// position in the partition.
	ListByOwner(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType) ([]model.Plan, error)
	Update(ctx context.Context, q DBTX, id uuid.UUID, title *string, starts, ends *time.Time) (int64, error)
	Delete(ctx context.Context, q DBTX, id uuid.UUID) error
	Count(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType) (int, error)
	// SetType moves the plan to another (user, type) partition at the
	// given position.
	SetType(ctx context.Context, q DBTX, id uuid.UUID, t model.PlanType, sortOrder int) error
	SetDonePercent(ctx context.Context, q DBTX, id uuid.UUID, donePercent string) error
	// ApplyShift shifts every plan of the partition whose sort_order the
	// shift covers. Used for removal compaction and retype.
	ApplyShift(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType, s order.Shift) error
	// ApplyMove relocates one plan within its partition in a single
	// statement.
	ApplyMove(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType, m order.Move) error
	// Reassign folds every plan of (fromUser, t) into toUser's partition,
	// offsetting sort_order so the moved plans land after the
	// destination's existing ones.
	Reassign(ctx context.Context, q DBTX, fromUser, toUser uuid.UUID, t model.PlanType, offset int) error
	// SortOrders returns the raw sort_order values of a partition, for
	// invariant auditing.
	SortOrders(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType) ([]int, error)
}

type planRepo struct{}

var _ PlanRepo = (*planRepo)(nil)

const planColumns = `
	p.id, p.user_id, p.title, p.starts, p.ends, p.type, p.done_percent, p.sort_order, p.created_at,
	EXISTS(SELECT 1 FROM plan_members m WHERE m.plan_id = p.id) AS shared,
	u.id, u.email, u.name`

func (*planRepo) Create(ctx context.Context, q DBTX, p model.Plan) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.ExecContext(ctx, `
		INSERT INTO plans (id, user_id, title, starts, ends, type, done_percent, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, '0/0', ?, ?)
	`, id, p.UserID, p.Title, p.Starts, p.Ends, p.Type, p.SortOrder, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert plan: %w", err)
	}
	return id, nil
}

func (*planRepo) Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.Plan, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM plans p
		LEFT JOIN users u ON p.user_id = u.id
		WHERE p.id = ?
	`, id)

	p, err := scanPlan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (*planRepo) ListByOwner(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType) ([]model.Plan, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM plans p
		LEFT JOIN users u ON p.user_id = u.id
		WHERE p.user_id = ? AND p.type = ?
		ORDER BY p.sort_order ASC
	`, userID, t)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

func (*planRepo) Update(ctx context.Context, q DBTX, id uuid.UUID, title *string, starts, ends *time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE plans SET title = ?, starts = ?, ends = ?, updated_at = ? WHERE id = ?
	`, title, starts, ends, time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("update plan: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes the plan; tasks and memberships follow through cascade.
func (*planRepo) Delete(ctx context.Context, q DBTX, id uuid.UUID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}

func (*planRepo) Count(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM plans WHERE user_id = ? AND type = ?
	`, userID, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count plans: %w", err)
	}
	return n, nil
}

func (*planRepo) SetType(ctx context.Context, q DBTX, id uuid.UUID, t model.PlanType, sortOrder int) error {
	_, err := q.ExecContext(ctx, `
		UPDATE plans SET type = ?, sort_order = ?, updated_at = ? WHERE id = ?
	`, t, sortOrder, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("retype plan: %w", err)
	}
	return nil
}

func (*planRepo) SetDonePercent(ctx context.Context, q DBTX, id uuid.UUID, donePercent string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE plans SET done_percent = ? WHERE id = ?
	`, donePercent, id)
	if err != nil {
		return fmt.Errorf("update plan done_percent: %w", err)
	}
	return nil
}

func (*planRepo) ApplyShift(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType, s order.Shift) error {
	if s.Delta == 0 {
		return nil
	}
	query := `UPDATE plans SET sort_order = sort_order + ? WHERE user_id = ? AND type = ? AND sort_order >= ?`
	args := []any{s.Delta, userID, t, s.Lo}
	if s.Hi != order.Unbounded {
		query += ` AND sort_order <= ?`
		args = append(args, s.Hi)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("shift plans: %w", err)
	}
	return nil
}

func (*planRepo) ApplyMove(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType, m order.Move) error {
	if m.NoOp() {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		UPDATE plans SET sort_order = CASE
			WHEN sort_order = ? THEN ?
			WHEN sort_order > ? AND sort_order <= ? THEN sort_order - 1
			WHEN sort_order >= ? AND sort_order < ? THEN sort_order + 1
			ELSE sort_order
		END
		WHERE user_id = ? AND type = ?
	`, m.From, m.To, m.From, m.To, m.To, m.From, userID, t)
	if err != nil {
		return fmt.Errorf("move plan: %w", err)
	}
	return nil
}

func (*planRepo) Reassign(ctx context.Context, q DBTX, fromUser, toUser uuid.UUID, t model.PlanType, offset int) error {
	_, err := q.ExecContext(ctx, `
		UPDATE plans
		SET user_id = ?, sort_order = sort_order + ?, updated_at = ?
		WHERE user_id = ? AND type = ?
	`, toUser, offset, time.Now().UTC(), fromUser, t)
	if err != nil {
		return fmt.Errorf("reassign plans: %w", err)
	}
	return nil
}

func (*planRepo) SortOrders(ctx context.Context, q DBTX, userID uuid.UUID, t model.PlanType) ([]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sort_order FROM plans WHERE user_id = ? AND type = ? ORDER BY sort_order ASC
	`, userID, t)
	if err != nil {
		return nil, fmt.Errorf("query plan orders: %w", err)
	}
	defer rows.Close()

	var orders []int
	for rows.Next() {
		var o int
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan plan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanPlan(scan func(dest ...any) error) (*model.Plan, error) {
	var p model.Plan
	var ownerID uuid.NullUUID
	var ownerEmail, ownerName sql.NullString
	err := scan(
		&p.ID, &p.UserID, &p.Title, &p.Starts, &p.Ends, &p.Type, &p.DonePercent,
		&p.SortOrder, &p.CreatedAt, &p.Shared,
		&ownerID, &ownerEmail, &ownerName,
	)
	if err != nil {
		return nil, err
	}
	if ownerID.Valid {
		p.Owner = model.User{ID: ownerID.UUID}
		if ownerEmail.Valid {
			p.Owner.Email = &ownerEmail.String
		}
		if ownerName.Valid {
			p.Owner.Name = &ownerName.String
		}
	}
	return &p, nil
}

func collectPlans(rows *sql.Rows) ([]model.Plan, error) {
	var plans []model.Plan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}
