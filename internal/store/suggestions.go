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

// SuggestionRepo persists suggested contacts. Upsert is a no-op on
// duplicates, so recording the same contact twice is harmless.
type SuggestionRepo interface {
	Upsert(ctx context.Context, q DBTX, userID uuid.UUID, email string) error
	Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.SuggestedEmail, error)
	List(ctx context.Context, q DBTX, userID uuid.UUID) ([]model.SuggestedEmail, error)
	Delete(ctx context.Context, q DBTX, id uuid.UUID) (int64, error)
	// DeleteByEmail removes the email from every user's suggestions,
	// used when the account owning that email is deleted.
	DeleteByEmail(ctx context.Context, q DBTX, email string) error
}

type suggestionRepo struct{}

var _ SuggestionRepo = (*suggestionRepo)(nil)

func (*suggestionRepo) Upsert(ctx context.Context, q DBTX, userID uuid.UUID, email string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO suggested_emails (id, user_id, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, email) DO NOTHING
	`, uuid.New(), userID, email, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert suggested email: %w", err)
	}
	return nil
}

func (*suggestionRepo) Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.SuggestedEmail, error) {
	var s model.SuggestedEmail
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, email, created_at FROM suggested_emails WHERE id = ?
	`, id).Scan(&s.ID, &s.UserID, &s.Email, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan suggested email: %w", err)
	}
	return &s, nil
}

func (*suggestionRepo) List(ctx context.Context, q DBTX, userID uuid.UUID) ([]model.SuggestedEmail, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, email, created_at
		FROM suggested_emails WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query suggested emails: %w", err)
	}
	defer rows.Close()

	var suggestions []model.SuggestedEmail
	for rows.Next() {
		var s model.SuggestedEmail
		if err := rows.Scan(&s.ID, &s.UserID, &s.Email, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggested email: %w", err)
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

func (*suggestionRepo) Delete(ctx context.Context, q DBTX, id uuid.UUID) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM suggested_emails WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete suggested email: %w", err)
	}
	return res.RowsAffected()
}

func (*suggestionRepo) DeleteByEmail(ctx context.Context, q DBTX, email string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM suggested_emails WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("delete suggested emails by address: %w", err)
	}
	return nil
}
