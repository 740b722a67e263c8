package remove

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/internal/checksum"
)

func setupInstalledPkg(t *testing.T, ctx context.Context, store *catalog.Store, root string) mport.Package {
	t.Helper()
	pkg := mport.Package{Name: "hello", Version: "1.0", Origin: "misc/hello", Prefix: "/usr/local"}

	binPath := filepath.Join(root, "usr/local/bin/hello")
	if err := os.MkdirAll(filepath.Dir(binPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(binPath, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("write file: %v", err)
	}
	sum, err := checksum.SHA256File(binPath)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}

	err = sqlTx(ctx, store, func(tx *sql.Tx) error {
		if err := store.InsertPackage(ctx, tx, pkg); err != nil {
			return err
		}
		if err := store.InsertAsset(ctx, tx, pkg.Name, 0, asset.Asset{Kind: asset.KindDirectory}, "usr/local/bin"); err != nil {
			return err
		}
		if err := store.InsertAsset(ctx, tx, pkg.Name, 1, asset.Asset{Kind: asset.KindFile, Checksum: sum}, "usr/local/bin/hello"); err != nil {
			return err
		}
		return store.SetStatus(ctx, tx, pkg.Name, mport.StatusClean)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return pkg
}

// sqlTx is a tiny test-local helper mirroring txscope.Do, avoiding an
// import cycle on the install package's test helpers.
func sqlTx(ctx context.Context, store *catalog.Store, fn func(tx *sql.Tx) error) error {
	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TestEngineDeletePkg(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	root := t.TempDir()
	pkg := setupInstalledPkg(t, ctx, store, root)

	engine := NewEngine(store, root)
	if err := engine.DeletePkg(ctx, pkg, Options{}); err != nil {
		t.Fatalf("DeletePkg: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "usr/local/bin/hello")); !os.IsNotExist(err) {
		t.Errorf("expected file removed, stat err = %v", err)
	}

	if _, err := store.GetPackage(ctx, pkg.Name); err != catalog.ErrNotFound {
		t.Errorf("GetPackage after delete = %v, want ErrNotFound", err)
	}

	assets, err := store.AssetsForPackage(ctx, pkg.Name)
	if err != nil {
		t.Fatalf("AssetsForPackage: %v", err)
	}
	if len(assets) != 0 {
		t.Errorf("len(assets) after delete = %d, want 0", len(assets))
	}
}

func TestEngineDeletePkgLockedRefused(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	root := t.TempDir()
	pkg := setupInstalledPkg(t, ctx, store, root)
	pkg.Locked = true

	engine := NewEngine(store, root)
	err = engine.DeletePkg(ctx, pkg, Options{})
	if !mport.IsWarn(err) {
		t.Fatalf("DeletePkg on locked pkg error = %v, want Warn", err)
	}
}
