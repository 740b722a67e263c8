package autoremove

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/internal/checksum"
)

func installFixture(t *testing.T, ctx context.Context, store *catalog.Store, root string, pkg mport.Package, dependsOn ...string) {
	t.Helper()
	binPath := filepath.Join(root, pkg.Prefix, "bin", pkg.Name)
	if err := os.MkdirAll(filepath.Dir(binPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(binPath, []byte("x"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum, err := checksum.SHA256File(binPath)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}

	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := store.InsertPackage(ctx, tx, pkg); err != nil {
		t.Fatalf("insert package: %v", err)
	}
	if err := store.InsertAsset(ctx, tx, pkg.Name, 0, asset.Asset{Kind: asset.KindFile, Checksum: sum}, filepath.Join(pkg.Prefix, "bin", pkg.Name)[1:]); err != nil {
		t.Fatalf("insert asset: %v", err)
	}
	for _, dep := range dependsOn {
		if err := store.InsertDepend(ctx, tx, mport.Dependency{Pkg: pkg.Name, DependPkg: dep}); err != nil {
			t.Fatalf("insert depend: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestSweepRemovesOrphanChainToFixedPoint(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()
	root := t.TempDir()

	// mid depends on leaf; both are automatic and no explicit package
	// depends on either (as after the explicit package that pulled them
	// in was deleted). One Sweep must remove both.
	installFixture(t, ctx, store, root, mport.Package{Name: "mid", Version: "1.0", Origin: "x/mid", Prefix: "/usr/local", Automatic: mport.InstalledAsDep}, "leaf")
	installFixture(t, ctx, store, root, mport.Package{Name: "leaf", Version: "1.0", Origin: "x/leaf", Prefix: "/usr/local", Automatic: mport.InstalledAsDep})

	e := NewEngine(store, root)
	removed, err := e.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed = %v, want 2 packages", removed)
	}

	if _, err := store.GetPackage(ctx, "mid"); err != catalog.ErrNotFound {
		t.Errorf("GetPackage(mid) = %v, want ErrNotFound", err)
	}
	if _, err := store.GetPackage(ctx, "leaf"); err != catalog.ErrNotFound {
		t.Errorf("GetPackage(leaf) = %v, want ErrNotFound", err)
	}
}

func TestSweepKeepsPackageDependedOnByExplicit(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()
	root := t.TempDir()

	installFixture(t, ctx, store, root, mport.Package{Name: "top", Version: "1.0", Origin: "x/top", Prefix: "/usr/local", Automatic: mport.Explicit}, "lib")
	installFixture(t, ctx, store, root, mport.Package{Name: "lib", Version: "1.0", Origin: "x/lib", Prefix: "/usr/local", Automatic: mport.InstalledAsDep})

	e := NewEngine(store, root)
	removed, err := e.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}

	if _, err := store.GetPackage(ctx, "lib"); err != nil {
		t.Errorf("GetPackage(lib) = %v, want still installed", err)
	}
}
