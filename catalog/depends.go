package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/MidnightBSD/mport"
)

// InsertDepend records one dependency edge.
func (s *Store) InsertDepend(ctx context.Context, tx *sql.Tx, d mport.Dependency) error {
	defer observe(ctx, "InsertDepend", time.Now())
	q, args, err := dialect.Insert("depends").Rows(goqu.Record{
		"pkg":            d.Pkg,
		"depend_pkg":     d.DependPkg,
		"depend_version": d.DependVersion,
		"depend_origin":  d.DependOrigin,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build insert depend: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: insert depend %s->%s: %w", d.Pkg, d.DependPkg, err)
	}
	return nil
}

// InsertConflict records one conflict edge.
func (s *Store) InsertConflict(ctx context.Context, tx *sql.Tx, c mport.Conflict) error {
	defer observe(ctx, "InsertConflict", time.Now())
	q, args, err := dialect.Insert("conflicts").Rows(goqu.Record{
		"pkg":              c.Pkg,
		"conflict_pkg":     c.ConflictPkg,
		"conflict_version": c.ConflictVersion,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build insert conflict: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: insert conflict %s<->%s: %w", c.Pkg, c.ConflictPkg, err)
	}
	return nil
}

// DependsForPackage returns pkg's direct (downward) dependencies.
func (s *Store) DependsForPackage(ctx context.Context, pkg string) ([]mport.Dependency, error) {
	defer observe(ctx, "DependsForPackage", time.Now())
	return s.queryDepends(ctx, goqu.C("pkg").Eq(pkg))
}

// ReverseDepends returns every package that directly depends on pkg
// ("updepends" — queried as often as the forward direction per spec
// §3).
func (s *Store) ReverseDepends(ctx context.Context, pkg string) ([]mport.Dependency, error) {
	defer observe(ctx, "ReverseDepends", time.Now())
	return s.queryDepends(ctx, goqu.C("depend_pkg").Eq(pkg))
}

func (s *Store) queryDepends(ctx context.Context, where goqu.Expression) ([]mport.Dependency, error) {
	q, args, err := dialect.From("depends").
		Select("pkg", "depend_pkg", "depend_version", "depend_origin").
		Where(where).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build depends query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query depends: %w", err)
	}
	defer rows.Close()

	var out []mport.Dependency
	for rows.Next() {
		var d mport.Dependency
		if err := rows.Scan(&d.Pkg, &d.DependPkg, &d.DependVersion, &d.DependOrigin); err != nil {
			return nil, fmt.Errorf("catalog: scan depend: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ConflictsForPackage returns every conflict edge touching pkg on
// either side.
func (s *Store) ConflictsForPackage(ctx context.Context, pkg string) ([]mport.Conflict, error) {
	defer observe(ctx, "ConflictsForPackage", time.Now())
	q, args, err := dialect.From("conflicts").
		Select("pkg", "conflict_pkg", "conflict_version").
		Where(goqu.Or(goqu.C("pkg").Eq(pkg), goqu.C("conflict_pkg").Eq(pkg))).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build conflicts query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query conflicts: %w", err)
	}
	defer rows.Close()

	var out []mport.Conflict
	for rows.Next() {
		var c mport.Conflict
		if err := rows.Scan(&c.Pkg, &c.ConflictPkg, &c.ConflictVersion); err != nil {
			return nil, fmt.Errorf("catalog: scan conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TransitiveDepends returns the full set of packages reachable from
// root by following downward dependency edges, using SQLite's
// recursive common table expression so the walk happens in the
// database rather than as N+1 round trips (spec §4.3's O(log n)
// queries compose into a single linear-in-edges statement here).
func (s *Store) TransitiveDepends(ctx context.Context, root string) ([]string, error) {
	defer observe(ctx, "TransitiveDepends", time.Now())
	const q = `
WITH RECURSIVE closure(name) AS (
	SELECT depend_pkg FROM depends WHERE pkg = ?
	UNION
	SELECT d.depend_pkg FROM depends d JOIN closure c ON d.pkg = c.name
)
SELECT name FROM closure;`
	rows, err := s.db.QueryContext(ctx, q, root)
	if err != nil {
		return nil, fmt.Errorf("catalog: transitive depends for %s: %w", root, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scan transitive depend: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DeleteDependsForPackage removes every depends row where pkg is the
// dependent side.
func (s *Store) DeleteDependsForPackage(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "DeleteDependsForPackage", time.Now())
	q, args, err := dialect.Delete("depends").Where(goqu.C("pkg").Eq(pkg)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build delete depends: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: delete depends for %s: %w", pkg, err)
	}
	return nil
}

// DeleteConflictsForPackage removes every conflicts row touching pkg.
func (s *Store) DeleteConflictsForPackage(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "DeleteConflictsForPackage", time.Now())
	q, args, err := dialect.Delete("conflicts").
		Where(goqu.Or(goqu.C("pkg").Eq(pkg), goqu.C("conflict_pkg").Eq(pkg))).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build delete conflicts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: delete conflicts for %s: %w", pkg, err)
	}
	return nil
}
