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

// DeviceRepo persists devices. Fingerprints are unique store-wide; callers
// purge the previous holder before inserting a duplicate.
type DeviceRepo interface {
	Create(ctx context.Context, q DBTX, d model.Device) (uuid.UUID, error)
	Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.Device, error)
	// ListByUser returns the user's devices newest-first.
	ListByUser(ctx context.Context, q DBTX, userID uuid.UUID) ([]model.Device, error)
	Delete(ctx context.Context, q DBTX, id uuid.UUID) (int64, error)
	DeleteByFingerprint(ctx context.Context, q DBTX, fingerprint string) error
	// Reassign re-points a device to another user.
	Reassign(ctx context.Context, q DBTX, deviceID, userID uuid.UUID) error
}

type deviceRepo struct{}

var _ DeviceRepo = (*deviceRepo)(nil)

func (*deviceRepo) Create(ctx context.Context, q DBTX, d model.Device) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.ExecContext(ctx, `
		INSERT INTO devices (id, user_id, platform, fingerprint, info, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, d.UserID, d.Platform, d.Fingerprint, d.Info, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert device: %w", err)
	}
	return id, nil
}

func (*deviceRepo) Get(ctx context.Context, q DBTX, id uuid.UUID) (*model.Device, error) {
	var d model.Device
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, platform, fingerprint, info, created_at
		FROM devices WHERE id = ?
	`, id).Scan(&d.ID, &d.UserID, &d.Platform, &d.Fingerprint, &d.Info, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}
	return &d, nil
}

func (*deviceRepo) ListByUser(ctx context.Context, q DBTX, userID uuid.UUID) ([]model.Device, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, platform, fingerprint, info, created_at
		FROM devices WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Platform, &d.Fingerprint, &d.Info, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (*deviceRepo) Delete(ctx context.Context, q DBTX, id uuid.UUID) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete device: %w", err)
	}
	return res.RowsAffected()
}

func (*deviceRepo) DeleteByFingerprint(ctx context.Context, q DBTX, fingerprint string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM devices WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("delete device by fingerprint: %w", err)
	}
	return nil
}

func (*deviceRepo) Reassign(ctx context.Context, q DBTX, deviceID, userID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `
		UPDATE devices SET user_id = ? WHERE id = ?
	`, userID, deviceID)
	if err != nil {
		return fmt.Errorf("reassign device: %w", err)
	}
	return nil
}
