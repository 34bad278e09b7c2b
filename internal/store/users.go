package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/model"
)

// UserRepo persists users.
type UserRepo interface {
	Create(ctx context.Context, q DBTX) (uuid.UUID, error)
	Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, q DBTX, email string) (*model.User, error)
	// ListIDs returns every user id, for store-wide conformance sweeps.
	ListIDs(ctx context.Context, q DBTX) ([]uuid.UUID, error)
	SetEmail(ctx context.Context, q DBTX, id uuid.UUID, email string) error
	SetName(ctx context.Context, q DBTX, id uuid.UUID, name string) (int64, error)
	Delete(ctx context.Context, q DBTX, id uuid.UUID) error
}

type userRepo struct{}

var _ UserRepo = (*userRepo)(nil)

func (*userRepo) Create(ctx context.Context, q DBTX) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, created_at) VALUES (?, ?)
	`, id, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (*userRepo) Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.User, error) {
	return scanUser(q.QueryRowContext(ctx, `
		SELECT id, email, name, created_at FROM users WHERE id = ?
	`, id))
}

func (*userRepo) GetByEmail(ctx context.Context, q DBTX, email string) (*model.User, error) {
	return scanUser(q.QueryRowContext(ctx, `
		SELECT id, email, name, created_at FROM users WHERE email = ?
	`, email))
}

func (*userRepo) ListIDs(ctx context.Context, q DBTX) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (*userRepo) SetEmail(ctx context.Context, q DBTX, id uuid.UUID, email string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE users SET email = ?, updated_at = ? WHERE id = ?
	`, email, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update user email: %w", err)
	}
	return nil
}

func (*userRepo) SetName(ctx context.Context, q DBTX, id uuid.UUID, name string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE users SET name = ?, updated_at = ? WHERE id = ?
	`, name, time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("update user name: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes the user; devices, plans, memberships, and suggestions
// follow through the schema's cascade rules.
func (*userRepo) Delete(ctx context.Context, q DBTX, id uuid.UUID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
