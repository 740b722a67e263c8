package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// InsertService binds one service name a package registers (SPEC_FULL
// §3 "Service entry"), started at the end of install and stopped at
// the start of delete.
func (s *Store) InsertService(ctx context.Context, tx *sql.Tx, pkg, name string) error {
	defer observe(ctx, "InsertService", time.Now())
	q, args, err := dialect.Insert("services").Rows(goqu.Record{"pkg": pkg, "name": name}).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build insert service: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: insert service %s for %s: %w", name, pkg, err)
	}
	return nil
}

// ServicesForPackage returns every service pkg registered.
func (s *Store) ServicesForPackage(ctx context.Context, pkg string) ([]string, error) {
	defer observe(ctx, "ServicesForPackage", time.Now())
	q, args, err := dialect.From("services").Select("name").
		Where(goqu.C("pkg").Eq(pkg)).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build services query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: services for %s: %w", pkg, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteServicesForPackage removes every service row for pkg.
func (s *Store) DeleteServicesForPackage(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "DeleteServicesForPackage", time.Now())
	q, args, err := dialect.Delete("services").Where(goqu.C("pkg").Eq(pkg)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build delete services: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: delete services for %s: %w", pkg, err)
	}
	return nil
}
