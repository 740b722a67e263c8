// Package txscope wraps every mutating catalog batch in a scoped
// transaction that rolls back on all exit paths unless explicitly
// committed (Design Note §9, "Manual transaction management via
// string SQL"). The shape is modeled on the teacher's
// pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error) callback, adapted
// from a pooled network connection to a single *sql.DB representing
// the catalog's one exclusive writer (spec §5).
package txscope

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Do runs fn inside a transaction opened on db. If fn returns a
// non-nil error, or panics, the transaction is rolled back and the
// panic re-raised; otherwise it is committed. A rollback error that
// occurs only because the transaction already closed itself (for
// example on a driver-level error) is swallowed, since it carries no
// information beyond what fn already reported.
func Do(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("txscope: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("txscope: rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("txscope: commit: %w", err)
	}
	return nil
}
