package store

import (
	"context"
	"fmt"
)

// WithTx runs fn inside a single unit of work.
//
// The transaction commits when fn returns nil and rolls back entirely when
// fn returns an error or panics; nothing partial is ever committed. Nested
// operations that need transactional participation receive the open tx
// through fn's argument instead of opening their own.
//
// Transactions begin IMMEDIATE (set at Open time through the DSN), so every
// read fn performs - partition counts, quota counts, merge offsets - is
// already serialized against other writers.
func (s *Store) WithTx(ctx context.Context, fn func(tx DBTX) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
