package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/model"
)

// TrafficRepo persists audit records. Writes arrive from the background
// audit worker, never from the request path.
type TrafficRepo interface {
	Insert(ctx context.Context, q DBTX, t model.Traffic) error
	CountSince(ctx context.Context, q DBTX, since time.Time) (int, error)
}

type trafficRepo struct{}

var _ TrafficRepo = (*trafficRepo)(nil)

func (*trafficRepo) Insert(ctx context.Context, q DBTX, t model.Traffic) error {
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO traffic (id, actor_id, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, t.ActorID, t.Action, t.Detail, created)
	if err != nil {
		return fmt.Errorf("insert traffic: %w", err)
	}
	return nil
}

func (*trafficRepo) CountSince(ctx context.Context, q DBTX, since time.Time) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM traffic WHERE created_at >= ?
	`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count traffic: %w", err)
	}
	return n, nil
}
