package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/MidnightBSD/mport"
)

// MovedLookup returns the moved entry for origin, if any, sourced from
// the index's `moved` table (spec §3, §4.7 step 2). ErrNotFound means
// the origin has not moved or expired.
func (s *Store) MovedLookup(ctx context.Context, origin string) (mport.MovedEntry, error) {
	defer observe(ctx, "MovedLookup", time.Now())
	q, args, err := dialect.From("moved").
		Select("origin", "moved_to", "moved_to_pkg", "expiry_date", "reason").
		Where(goqu.C("origin").Eq(origin)).Prepared(true).ToSQL()
	if err != nil {
		return mport.MovedEntry{}, fmt.Errorf("catalog: build moved lookup: %w", err)
	}
	var e mport.MovedEntry
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&e.Origin, &e.MovedTo, &e.MovedToPkg, &e.ExpiryDate, &e.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mport.MovedEntry{}, ErrNotFound
		}
		return mport.MovedEntry{}, fmt.Errorf("catalog: moved lookup %s: %w", origin, err)
	}
	return e, nil
}

// ReplaceMoved replaces the entire `moved` table with entries, as
// refreshed from the remote index (`mport index`). The index fetcher
// that produces entries is an external collaborator (spec §1); this
// method only owns persisting its output.
func (s *Store) ReplaceMoved(ctx context.Context, entries []mport.MovedEntry) error {
	defer observe(ctx, "ReplaceMoved", time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin replace moved: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM moved"); err != nil {
		return fmt.Errorf("catalog: clear moved: %w", err)
	}
	for _, e := range entries {
		q, args, err := dialect.Insert("moved").Rows(goqu.Record{
			"origin": e.Origin, "moved_to": e.MovedTo, "moved_to_pkg": e.MovedToPkg,
			"expiry_date": e.ExpiryDate, "reason": e.Reason,
		}).Prepared(true).ToSQL()
		if err != nil {
			return fmt.Errorf("catalog: build insert moved: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("catalog: insert moved %s: %w", e.Origin, err)
		}
	}
	return tx.Commit()
}
