package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
)

// AttachStub attaches the bundle's stub metadata database — extracted
// by package bundle to a temporary file — to the catalog connection
// under the name "stub", read-only for the span of one install/update
// (spec §3 "Stub database", §4.3 "transient attachable 'stub'
// database"). Call DetachStub when done, on every exit path.
func (s *Store) AttachStub(ctx context.Context, path string) error {
	defer observe(ctx, "AttachStub", time.Now())
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	q := fmt.Sprintf("ATTACH DATABASE %s AS stub", quoteLiteral(dsn))
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("catalog: attach stub %s: %w", path, err)
	}
	return nil
}

// DetachStub detaches the stub database attached by AttachStub.
func (s *Store) DetachStub(ctx context.Context) error {
	defer observe(ctx, "DetachStub", time.Now())
	if _, err := s.db.ExecContext(ctx, "DETACH DATABASE stub"); err != nil {
		return fmt.Errorf("catalog: detach stub: %w", err)
	}
	return nil
}

// CopyStubDepends copies the stub database's dependency rows for pkg
// into the live depends table (spec §4.5 Phase B.3).
func (s *Store) CopyStubDepends(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "CopyStubDepends", time.Now())
	const q = `
INSERT INTO depends (pkg, depend_pkg, depend_version, depend_origin)
SELECT pkg, depend_pkg, depend_version, depend_origin FROM stub.depends WHERE pkg = ?`
	if _, err := tx.ExecContext(ctx, q, pkg); err != nil {
		return fmt.Errorf("catalog: copy stub depends for %s: %w", pkg, err)
	}
	return nil
}

// CopyStubConflicts copies the stub database's conflict rows for pkg.
func (s *Store) CopyStubConflicts(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "CopyStubConflicts", time.Now())
	const q = `
INSERT INTO conflicts (pkg, conflict_pkg, conflict_version)
SELECT pkg, conflict_pkg, conflict_version FROM stub.conflicts WHERE pkg = ?`
	if _, err := tx.ExecContext(ctx, q, pkg); err != nil {
		return fmt.Errorf("catalog: copy stub conflicts for %s: %w", pkg, err)
	}
	return nil
}

// CopyStubServices copies the stub database's service registrations
// for pkg into the live services table.
func (s *Store) CopyStubServices(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "CopyStubServices", time.Now())
	const q = `
INSERT INTO services (pkg, name)
SELECT pkg, name FROM stub.services WHERE pkg = ?`
	if _, err := tx.ExecContext(ctx, q, pkg); err != nil {
		return fmt.Errorf("catalog: copy stub services for %s: %w", pkg, err)
	}
	return nil
}

// CopyStubCategories copies the stub database's category rows for pkg.
func (s *Store) CopyStubCategories(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "CopyStubCategories", time.Now())
	const q = `
INSERT INTO categories (pkg, category)
SELECT pkg, category FROM stub.categories WHERE pkg = ?`
	if _, err := tx.ExecContext(ctx, q, pkg); err != nil {
		return fmt.Errorf("catalog: copy stub categories for %s: %w", pkg, err)
	}
	return nil
}

// StubDepends returns the dependency edges the stub database declares
// for pkg, read ahead of CopyStubDepends so the install engine can
// evaluate preconditions before committing Phase B.
func (s *Store) StubDepends(ctx context.Context, pkg string) ([]mport.Dependency, error) {
	defer observe(ctx, "StubDepends", time.Now())
	const q = `SELECT pkg, depend_pkg, depend_version, depend_origin FROM stub.depends WHERE pkg = ?`
	rows, err := s.db.QueryContext(ctx, q, pkg)
	if err != nil {
		return nil, fmt.Errorf("catalog: stub depends for %s: %w", pkg, err)
	}
	defer rows.Close()

	var out []mport.Dependency
	for rows.Next() {
		var d mport.Dependency
		if err := rows.Scan(&d.Pkg, &d.DependPkg, &d.DependVersion, &d.DependOrigin); err != nil {
			return nil, fmt.Errorf("catalog: scan stub depend: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// StubConflicts returns the conflict edges the stub database declares
// for pkg.
func (s *Store) StubConflicts(ctx context.Context, pkg string) ([]mport.Conflict, error) {
	defer observe(ctx, "StubConflicts", time.Now())
	const q = `SELECT pkg, conflict_pkg, conflict_version FROM stub.conflicts WHERE pkg = ?`
	rows, err := s.db.QueryContext(ctx, q, pkg)
	if err != nil {
		return nil, fmt.Errorf("catalog: stub conflicts for %s: %w", pkg, err)
	}
	defer rows.Close()

	var out []mport.Conflict
	for rows.Next() {
		var c mport.Conflict
		if err := rows.Scan(&c.Pkg, &c.ConflictPkg, &c.ConflictVersion); err != nil {
			return nil, fmt.Errorf("catalog: scan stub conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// StubAsset is one plist directive as published by the stub database,
// before install resolves it to an absolute path (spec §4.4's stub
// schema mirrors the live `assets` table, but keeps the directive's
// raw, possibly-relative `data` argument instead of a resolved path).
type StubAsset struct {
	Kind     asset.Kind
	Data     string
	Checksum string
	Owner    string
	Group    string
	Mode     string
	Seq      int
}

// StubAssets returns every plist directive for pkg from the attached
// stub database, in plist order. Grounded on
// bundle_read_install_pkg.c's mport_bundle_read_get_assetlist, adapted
// from that function's three near-duplicate phase-filtered queries to
// a single ordered fetch — the install engine partitions the result
// by asset.Kind for each phase instead.
func (s *Store) StubAssets(ctx context.Context, pkg string) ([]StubAsset, error) {
	defer observe(ctx, "StubAssets", time.Now())
	const q = `SELECT kind, data, checksum, owner, grp, mode, seq FROM stub.assets WHERE pkg = ? ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, q, pkg)
	if err != nil {
		return nil, fmt.Errorf("catalog: stub assets for %s: %w", pkg, err)
	}
	defer rows.Close()

	var out []StubAsset
	for rows.Next() {
		var a StubAsset
		var kind string
		if err := rows.Scan(&kind, &a.Data, &a.Checksum, &a.Owner, &a.Group, &a.Mode, &a.Seq); err != nil {
			return nil, fmt.Errorf("catalog: scan stub asset: %w", err)
		}
		a.Kind = asset.Kind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// StubPackage reads the bundle's own package metadata row — the stub
// database's `packages` table carries exactly one row, self-describing
// the bundle, in the same column layout as the live catalog's table —
// letting a caller that only has a bundle file path and a name/version
// pair (bundle.PeekIdentity's output) discover origin, prefix, cpe, and
// the rest before building the mport.Package install.InstallPkg needs.
func (s *Store) StubPackage(ctx context.Context, name string) (mport.Package, error) {
	defer observe(ctx, "StubPackage", time.Now())
	cols := make([]string, len(packageColumns))
	for i, c := range packageColumns {
		cols[i] = c.(string)
	}
	q := fmt.Sprintf("SELECT %s FROM stub.packages WHERE name = ?", joinColumns(cols))
	row := s.db.QueryRowContext(ctx, q, name)
	p, err := scanPackage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return mport.Package{}, ErrNotFound
		}
		return mport.Package{}, fmt.Errorf("catalog: stub package %s: %w", name, err)
	}
	return p, nil
}

func joinColumns(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

// quoteLiteral single-quotes a SQLite string literal, doubling any
// embedded quote. ATTACH DATABASE takes a filename expression, not a
// bind parameter, so this is the one place the catalog package builds
// SQL by hand rather than through goqu or a placeholder.
func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
