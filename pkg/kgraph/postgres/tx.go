package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Every mutating method in this package goes
// through withTx so the versioning protocol's multi-statement sequence is
// atomic — per §4.1's failure model, any step failing rolls back the whole
// mutation.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
