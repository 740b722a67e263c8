package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/quay/zlog"

	"github.com/MidnightBSD/mport"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("catalog: not found")

const timeLayout = time.RFC3339Nano

func timeToCol(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func colToTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

func observe(ctx context.Context, method string, start time.Time) {
	queryCounter.WithLabelValues(method).Inc()
	queryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// InsertPackage inserts pkg's row with status Dirty; callers commit
// the row as Clean only once Phase C finishes (spec §4.5 Phase B.2),
// so an interrupted install leaves a Dirty row behind.
func (s *Store) InsertPackage(ctx context.Context, tx *sql.Tx, pkg mport.Package) error {
	defer observe(ctx, "InsertPackage", time.Now())

	automatic := 0
	if pkg.Automatic {
		automatic = 1
	}
	locked := 0
	if pkg.Locked {
		locked = 1
	}
	noShlib := 0
	if pkg.NoProvideShlib {
		noShlib = 1
	}
	expiry := ""
	if pkg.ExpirationDate != nil {
		expiry = timeToCol(*pkg.ExpirationDate)
	}
	status := pkg.Status
	if status == "" {
		status = mport.StatusDirty
	}

	ds := dialect.Insert("packages").Rows(goqu.Record{
		"name":             pkg.Name,
		"version":          pkg.Version,
		"origin":           pkg.Origin,
		"prefix":           pkg.Prefix,
		"os_release":       pkg.OSRelease,
		"cpe":              pkg.CPE,
		"flavor":           pkg.Flavor,
		"automatic":        automatic,
		"locked":           locked,
		"no_provide_shlib": noShlib,
		"deprecated":       pkg.Deprecated,
		"expiration_date":  expiry,
		"install_date":     timeToCol(pkg.InstallDate),
		"type":             string(pkg.Type),
		"flatsize":         pkg.FlatSize,
		"status":           string(status),
	}).Prepared(true)

	q, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: insert package %s: %w", pkg.Name, err)
	}
	return nil
}

// SetStatus is the single atomic write that marks a package's row
// Clean at the end of Phase C, alongside its "Installed" log entry.
func (s *Store) SetStatus(ctx context.Context, tx *sql.Tx, name string, status mport.Status) error {
	defer observe(ctx, "SetStatus", time.Now())
	q, args, err := dialect.Update("packages").
		Set(goqu.Record{"status": string(status)}).
		Where(goqu.C("name").Eq(name)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build status update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: set status for %s: %w", name, err)
	}
	return nil
}

// UpdatePackageVersion rewrites version, flatsize, and install_date on
// an `update` (spec §S2), leaving automatic/locked/origin/prefix
// untouched.
func (s *Store) UpdatePackageVersion(ctx context.Context, tx *sql.Tx, name, newVersion string, flatsize int64, when time.Time) error {
	defer observe(ctx, "UpdatePackageVersion", time.Now())
	q, args, err := dialect.Update("packages").
		Set(goqu.Record{
			"version":      newVersion,
			"flatsize":     flatsize,
			"install_date": timeToCol(when),
			"status":       string(mport.StatusDirty),
		}).
		Where(goqu.C("name").Eq(name)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build version update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: update version for %s: %w", name, err)
	}
	return nil
}

// DeletePackage removes pkg's row. Callers must delete dependent rows
// (assets, depends, conflicts, categories) in the same transaction;
// see remove.Engine.
func (s *Store) DeletePackage(ctx context.Context, tx *sql.Tx, name string) error {
	defer observe(ctx, "DeletePackage", time.Now())
	q, args, err := dialect.Delete("packages").Where(goqu.C("name").Eq(name)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: delete package %s: %w", name, err)
	}
	return nil
}

func scanPackage(row interface {
	Scan(dest ...any) error
}) (mport.Package, error) {
	var p mport.Package
	var automatic, locked, noShlib int
	var expiry, installDate, typ, status string

	err := row.Scan(
		&p.Name, &p.Version, &p.Origin, &p.Prefix, &p.OSRelease, &p.CPE, &p.Flavor,
		&automatic, &locked, &noShlib, &p.Deprecated, &expiry, &installDate, &typ,
		&p.FlatSize, &status,
	)
	if err != nil {
		return p, err
	}
	p.Automatic = automatic != 0
	p.Locked = locked != 0
	p.NoProvideShlib = noShlib != 0
	p.Type = mport.PackageType(typ)
	p.Status = mport.Status(status)
	p.InstallDate = colToTime(installDate)
	if expiry != "" {
		t := colToTime(expiry)
		p.ExpirationDate = &t
	}
	return p, nil
}

var packageColumns = []any{
	"name", "version", "origin", "prefix", "os_release", "cpe", "flavor",
	"automatic", "locked", "no_provide_shlib", "deprecated", "expiration_date",
	"install_date", "type", "flatsize", "status",
}

// GetPackage looks up an installed package by exact name. Returns
// ErrNotFound if no such package is installed.
func (s *Store) GetPackage(ctx context.Context, name string) (mport.Package, error) {
	defer observe(ctx, "GetPackage", time.Now())
	q, args, err := dialect.From("packages").Select(packageColumns...).
		Where(goqu.C("name").Eq(name)).Prepared(true).ToSQL()
	if err != nil {
		return mport.Package{}, fmt.Errorf("catalog: build get: %w", err)
	}
	row := s.db.QueryRowContext(ctx, q, args...)
	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mport.Package{}, ErrNotFound
		}
		return mport.Package{}, fmt.Errorf("catalog: get package %s: %w", name, err)
	}
	return p, nil
}

// FindByOrigin looks up an installed package by its origin, the
// identifier that survives renames (spec §3).
func (s *Store) FindByOrigin(ctx context.Context, origin string) (mport.Package, error) {
	defer observe(ctx, "FindByOrigin", time.Now())
	q, args, err := dialect.From("packages").Select(packageColumns...).
		Where(goqu.C("origin").Eq(origin)).Prepared(true).ToSQL()
	if err != nil {
		return mport.Package{}, fmt.Errorf("catalog: build find-by-origin: %w", err)
	}
	row := s.db.QueryRowContext(ctx, q, args...)
	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mport.Package{}, ErrNotFound
		}
		return mport.Package{}, fmt.Errorf("catalog: find by origin %s: %w", origin, err)
	}
	return p, nil
}

// FindByNameFold looks up an installed package case-insensitively,
// spec §4.3's "LOWER(name) = LOWER(q)" query, served here by a
// NOCASE-collated index rather than a LOWER() scalar function call, so
// the lookup stays index-backed.
func (s *Store) FindByNameFold(ctx context.Context, q string) (mport.Package, error) {
	defer observe(ctx, "FindByNameFold", time.Now())
	query, args, err := dialect.From("packages").Select(packageColumns...).
		Where(goqu.L("name = ? COLLATE NOCASE", q)).Prepared(true).ToSQL()
	if err != nil {
		return mport.Package{}, fmt.Errorf("catalog: build find-by-name-fold: %w", err)
	}
	row := s.db.QueryRowContext(ctx, query, args...)
	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mport.Package{}, ErrNotFound
		}
		return mport.Package{}, fmt.Errorf("catalog: find by name fold %s: %w", q, err)
	}
	return p, nil
}

// ListPackages returns every installed package, ordered by name.
func (s *Store) ListPackages(ctx context.Context) ([]mport.Package, error) {
	defer observe(ctx, "ListPackages", time.Now())
	q, args, err := dialect.From("packages").Select(packageColumns...).Order(goqu.C("name").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list packages: %w", err)
	}
	defer rows.Close()

	var out []mport.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan package: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Search returns every installed package whose name or origin contains
// query, case-insensitively (CLI `search`).
func (s *Store) Search(ctx context.Context, query string) ([]mport.Package, error) {
	defer observe(ctx, "Search", time.Now())
	like := "%" + query + "%"
	q, args, err := dialect.From("packages").Select(packageColumns...).
		Where(goqu.Or(
			goqu.L("name LIKE ? COLLATE NOCASE", like),
			goqu.L("origin LIKE ? COLLATE NOCASE", like),
		)).Order(goqu.C("name").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build search: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: search %s: %w", query, err)
	}
	defer rows.Close()

	var out []mport.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan package: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetLocked toggles a package's lock flag (CLI `lock`/`unlock`).
// Locking or unlocking a package that doesn't exist is ErrNotFound.
func (s *Store) SetLocked(ctx context.Context, name string, locked bool) error {
	defer observe(ctx, "SetLocked", time.Now())
	v := 0
	if locked {
		v = 1
	}
	q, args, err := dialect.Update("packages").
		Set(goqu.Record{"locked": v}).
		Where(goqu.C("name").Eq(name)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build lock update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("catalog: set locked for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	zlog.Debug(ctx).Str("pkg", name).Bool("locked", locked).Msg("lock state changed")
	return nil
}

// ListLocked returns the names of every locked package (CLI `locks`).
func (s *Store) ListLocked(ctx context.Context) ([]string, error) {
	defer observe(ctx, "ListLocked", time.Now())
	q, args, err := dialect.From("packages").Select("name").
		Where(goqu.C("locked").Eq(1)).Order(goqu.C("name").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build list-locked: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list locked: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scan locked name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// formatBool renders a catalog boolean column back as Go-idiomatic
// text.
func formatBool(b bool) string { return strconv.FormatBool(b) }
