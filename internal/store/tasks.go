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

// TaskRepo persists tasks. The partition key is the owning plan.
type TaskRepo interface {
	Create(ctx context.Context, q DBTX, planID uuid.UUID, title string, sortOrder int) (uuid.UUID, error)
	Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.Task, error)
	// List returns the plan's tasks ordered by position.
	List(ctx context.Context, q DBTX, planID uuid.UUID) ([]model.Task, error)
	Count(ctx context.Context, q DBTX, planID uuid.UUID) (int, error)
	// CountDone returns (done, total) for the plan's done_percent summary.
	CountDone(ctx context.Context, q DBTX, planID uuid.UUID) (done, total int, err error)
	Delete(ctx context.Context, q DBTX, id uuid.UUID) error
	SetDone(ctx context.Context, q DBTX, id uuid.UUID, done bool) (int64, error)
	SetTitle(ctx context.Context, q DBTX, id uuid.UUID, title string) (int64, error)
	ApplyShift(ctx context.Context, q DBTX, planID uuid.UUID, s order.Shift) error
	ApplyMove(ctx context.Context, q DBTX, planID uuid.UUID, m order.Move) error
	SortOrders(ctx context.Context, q DBTX, planID uuid.UUID) ([]int, error)
}

type taskRepo struct{}

var _ TaskRepo = (*taskRepo)(nil)

func (*taskRepo) Create(ctx context.Context, q DBTX, planID uuid.UUID, title string, sortOrder int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (id, plan_id, title, done, sort_order, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, id, planID, title, sortOrder, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

func (*taskRepo) Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.Task, error) {
	var t model.Task
	err := q.QueryRowContext(ctx, `
		SELECT id, plan_id, title, done, sort_order, created_at FROM tasks WHERE id = ?
	`, id).Scan(&t.ID, &t.PlanID, &t.Title, &t.Done, &t.SortOrder, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

func (*taskRepo) List(ctx context.Context, q DBTX, planID uuid.UUID) ([]model.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, plan_id, title, done, sort_order, created_at
		FROM tasks WHERE plan_id = ?
		ORDER BY sort_order ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.PlanID, &t.Title, &t.Done, &t.SortOrder, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (*taskRepo) Count(ctx context.Context, q DBTX, planID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE plan_id = ?`, planID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (*taskRepo) CountDone(ctx context.Context, q DBTX, planID uuid.UUID) (int, int, error) {
	var done, total int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(CASE WHEN done THEN 1 END), COUNT(1) FROM tasks WHERE plan_id = ?
	`, planID).Scan(&done, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count done tasks: %w", err)
	}
	return done, total, nil
}

func (*taskRepo) Delete(ctx context.Context, q DBTX, id uuid.UUID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (*taskRepo) SetDone(ctx context.Context, q DBTX, id uuid.UUID, done bool) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE tasks SET done = ?, updated_at = ? WHERE id = ?
	`, done, time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("update task done: %w", err)
	}
	return res.RowsAffected()
}

func (*taskRepo) SetTitle(ctx context.Context, q DBTX, id uuid.UUID, title string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE tasks SET title = ?, updated_at = ? WHERE id = ?
	`, title, time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("update task title: %w", err)
	}
	return res.RowsAffected()
}

func (*taskRepo) ApplyShift(ctx context.Context, q DBTX, planID uuid.UUID, s order.Shift) error {
	if s.Delta == 0 {
		return nil
	}
	query := `UPDATE tasks SET sort_order = sort_order + ? WHERE plan_id = ? AND sort_order >= ?`
	args := []any{s.Delta, planID, s.Lo}
	if s.Hi != order.Unbounded {
		query += ` AND sort_order <= ?`
		args = append(args, s.Hi)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("shift tasks: %w", err)
	}
	return nil
}

func (*taskRepo) ApplyMove(ctx context.Context, q DBTX, planID uuid.UUID, m order.Move) error {
	if m.NoOp() {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		UPDATE tasks SET sort_order = CASE
			WHEN sort_order = ? THEN ?
			WHEN sort_order > ? AND sort_order <= ? THEN sort_order - 1
			WHEN sort_order >= ? AND sort_order < ? THEN sort_order + 1
			ELSE sort_order
		END
		WHERE plan_id = ?
	`, m.From, m.To, m.From, m.To, m.To, m.From, planID)
	if err != nil {
		return fmt.Errorf("move task: %w", err)
	}
	return nil
}

func (*taskRepo) SortOrders(ctx context.Context, q DBTX, planID uuid.UUID) ([]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sort_order FROM tasks WHERE plan_id = ? ORDER BY sort_order ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query task orders: %w", err)
	}
	defer rows.Close()

	var orders []int
	for rows.Next() {
		var o int
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan task order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
