package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// InsertCategory binds one category tag to pkg.
func (s *Store) InsertCategory(ctx context.Context, tx *sql.Tx, pkg, category string) error {
	defer observe(ctx, "InsertCategory", time.Now())
	q, args, err := dialect.Insert("categories").Rows(goqu.Record{
		"pkg": pkg, "category": category,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build insert category: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: insert category %s for %s: %w", category, pkg, err)
	}
	return nil
}

// CategoriesForPackage returns pkg's category tags.
func (s *Store) CategoriesForPackage(ctx context.Context, pkg string) ([]string, error) {
	defer observe(ctx, "CategoriesForPackage", time.Now())
	q, args, err := dialect.From("categories").Select("category").
		Where(goqu.C("pkg").Eq(pkg)).Order(goqu.C("category").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build categories query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: categories for %s: %w", pkg, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("catalog: scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategoriesForPackage removes every category row for pkg.
func (s *Store) DeleteCategoriesForPackage(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "DeleteCategoriesForPackage", time.Now())
	q, args, err := dialect.Delete("categories").Where(goqu.C("pkg").Eq(pkg)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build delete categories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: delete categories for %s: %w", pkg, err)
	}
	return nil
}
