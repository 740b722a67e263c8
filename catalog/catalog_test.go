package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetPackage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pkg := mport.Package{
		Name: "hello", Version: "1.0", Origin: "misc/hello", Prefix: "/usr/local",
		Automatic: mport.Explicit, InstallDate: time.Now().UTC().Truncate(time.Second),
		Type: mport.TypeApplication, FlatSize: 1024, Status: mport.StatusDirty,
	}

	err := s.DB().QueryRowContext(ctx, "SELECT 1").Err()
	if err != nil {
		t.Fatalf("sanity query: %v", err)
	}

	tx, err := s.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.InsertPackage(ctx, tx, pkg); err != nil {
		t.Fatalf("InsertPackage: %v", err)
	}
	if err := s.InsertAsset(ctx, tx, "hello", 0, asset.Asset{Kind: asset.KindFile, Data: "bin/hello"}, "/usr/local/bin/hello"); err != nil {
		t.Fatalf("InsertAsset: %v", err)
	}
	if err := s.SetStatus(ctx, tx, "hello", mport.StatusClean); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetPackage(ctx, "hello")
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	got.Status = mport.StatusClean // already clean post-commit

	want := pkg
	want.Status = mport.StatusClean
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("GetPackage mismatch (-want +got):\n%s", diff)
	}

	assets, err := s.AssetsForPackage(ctx, "hello")
	if err != nil {
		t.Fatalf("AssetsForPackage: %v", err)
	}
	if len(assets) != 1 || assets[0].Path != "/usr/local/bin/hello" {
		t.Fatalf("assets = %+v", assets)
	}
}

func TestGetPackageNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetPackage(context.Background(), "nope")
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetLockedMarksPackageLocked(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, _ := s.DB().BeginTx(ctx, nil)
	pkg := mport.Package{Name: "locked-pkg", Version: "1.0", Origin: "x/locked-pkg", Prefix: "/usr/local", InstallDate: time.Now()}
	if err := s.InsertPackage(ctx, tx, pkg); err != nil {
		t.Fatalf("InsertPackage: %v", err)
	}
	tx.Commit()

	if err := s.SetLocked(ctx, "locked-pkg", true); err != nil {
		t.Fatalf("SetLocked: %v", err)
	}
	got, err := s.GetPackage(ctx, "locked-pkg")
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if !got.Locked {
		t.Fatal("expected package to be locked")
	}
}

func TestExportParseRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, _ := s.DB().BeginTx(ctx, nil)
	for _, name := range []string{"a", "b"} {
		pkg := mport.Package{Name: name, Version: "1.0", Origin: "x/" + name, Prefix: "/usr/local", InstallDate: time.Now(), Automatic: mport.InstalledAsDep}
		if err := s.InsertPackage(ctx, tx, pkg); err != nil {
			t.Fatalf("InsertPackage(%s): %v", name, err)
		}
	}
	tx.Commit()

	data, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	entries, err := ParseExport(data)
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	for _, e := range entries {
		if !e.Automatic {
			t.Errorf("entry %s: automatic flag lost in round trip", e.Name)
		}
	}
}
