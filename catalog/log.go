package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/MidnightBSD/mport"
)

// AppendLog appends one log row. The log is append-only (spec §3):
// there is no update or delete method for it.
func (s *Store) AppendLog(ctx context.Context, tx *sql.Tx, entry mport.LogEntry) error {
	defer observe(ctx, "AppendLog", time.Now())
	q, args, err := dialect.Insert("log").Rows(goqu.Record{
		"pkg":     entry.Pkg,
		"version": entry.Version,
		"at":      timeToCol(entry.At),
		"message": entry.Message,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build append log: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: append log for %s: %w", entry.Pkg, err)
	}
	return nil
}

// LogsForPackage returns pkg's log entries, oldest first.
func (s *Store) LogsForPackage(ctx context.Context, pkg string) ([]mport.LogEntry, error) {
	defer observe(ctx, "LogsForPackage", time.Now())
	q, args, err := dialect.From("log").Select("pkg", "version", "at", "message").
		Where(goqu.C("pkg").Eq(pkg)).Order(goqu.C("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build logs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: logs for %s: %w", pkg, err)
	}
	defer rows.Close()

	var out []mport.LogEntry
	for rows.Next() {
		var e mport.LogEntry
		var at string
		if err := rows.Scan(&e.Pkg, &e.Version, &at, &e.Message); err != nil {
			return nil, fmt.Errorf("catalog: scan log entry: %w", err)
		}
		e.At = colToTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
