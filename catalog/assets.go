package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/MidnightBSD/mport/asset"
)

// InsertAsset binds one asset that created a filesystem artifact to
// pkg, in plist order (seq). File assets store absolute paths with the
// catalog's chroot root already stripped by the caller (spec §4.3,
// §4.5 Phase B.5); directory and exec rows carry an empty checksum and
// no owner/group/mode (spec §4.3 "directories receive a null
// checksum").
func (s *Store) InsertAsset(ctx context.Context, tx *sql.Tx, pkg string, seq int, a asset.Asset, path string) error {
	defer observe(ctx, "InsertAsset", time.Now())
	q, args, err := dialect.Insert("assets").Rows(goqu.Record{
		"pkg":      pkg,
		"kind":     string(a.Kind),
		"path":     path,
		"checksum": a.Checksum,
		"owner":    a.Owner,
		"grp":      a.Group,
		"mode":     a.Mode,
		"seq":      seq,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build insert asset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: insert asset for %s: %w", pkg, err)
	}
	return nil
}

// StoredAsset is one catalog-persisted asset row, in plist order.
type StoredAsset struct {
	Kind     asset.Kind
	Path     string
	Checksum string
	Owner    string
	Group    string
	Mode     string
	Seq      int
}

// AssetsForPackage returns every asset row for pkg, in ascending plist
// order — the order the remove engine must walk in reverse (spec
// §4.6, §5 "Ordering guarantees").
func (s *Store) AssetsForPackage(ctx context.Context, pkg string) ([]StoredAsset, error) {
	defer observe(ctx, "AssetsForPackage", time.Now())
	q, args, err := dialect.From("assets").
		Select("kind", "path", "checksum", "owner", "grp", "mode", "seq").
		Where(goqu.C("pkg").Eq(pkg)).
		Order(goqu.C("seq").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build assets-for-package: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: assets for %s: %w", pkg, err)
	}
	defer rows.Close()

	var out []StoredAsset
	for rows.Next() {
		var a StoredAsset
		var kind string
		if err := rows.Scan(&kind, &a.Path, &a.Checksum, &a.Owner, &a.Group, &a.Mode, &a.Seq); err != nil {
			return nil, fmt.Errorf("catalog: scan asset: %w", err)
		}
		a.Kind = asset.Kind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAssetsForPackage removes every asset row bound to pkg.
func (s *Store) DeleteAssetsForPackage(ctx context.Context, tx *sql.Tx, pkg string) error {
	defer observe(ctx, "DeleteAssetsForPackage", time.Now())
	q, args, err := dialect.Delete("assets").Where(goqu.C("pkg").Eq(pkg)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build delete assets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: delete assets for %s: %w", pkg, err)
	}
	return nil
}

// UpdateAssetChecksum overwrites the stored checksum for pkg's asset
// at plist position seq — the `verify -r` CLI verb's write path after
// recomputing a file's digest from what's actually on disk.
func (s *Store) UpdateAssetChecksum(ctx context.Context, pkg string, seq int, checksum string) error {
	defer observe(ctx, "UpdateAssetChecksum", time.Now())
	q, args, err := dialect.Update("assets").
		Set(goqu.Record{"checksum": checksum}).
		Where(goqu.C("pkg").Eq(pkg), goqu.C("seq").Eq(seq)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("catalog: build update asset checksum: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("catalog: update checksum for %s seq %d: %w", pkg, seq, err)
	}
	return nil
}

// WhichFile reverse-looks-up the package owning path (CLI `which`).
func (s *Store) WhichFile(ctx context.Context, path string) (string, error) {
	defer observe(ctx, "WhichFile", time.Now())
	q, args, err := dialect.From("assets").Select("pkg").
		Where(goqu.C("path").Eq(path)).Limit(1).Prepared(true).ToSQL()
	if err != nil {
		return "", fmt.Errorf("catalog: build which: %w", err)
	}
	var pkg string
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&pkg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("catalog: which %s: %w", path, err)
	}
	return pkg, nil
}
