package install

import (
	"archive/tar"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
)

// buildStubDB creates a throwaway SQLite database with the schema the
// stub-database producer is assumed to publish (catalog/stub.go),
// populated with one package's plist.
func buildStubDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	defer db.Close()

	const schema = `
CREATE TABLE assets (pkg TEXT, kind TEXT, data TEXT, checksum TEXT, owner TEXT, grp TEXT, mode TEXT, seq INTEGER);
CREATE TABLE depends (pkg TEXT, depend_pkg TEXT, depend_version TEXT, depend_origin TEXT);
CREATE TABLE conflicts (pkg TEXT, conflict_pkg TEXT, conflict_version TEXT);
CREATE TABLE services (pkg TEXT, name TEXT);
CREATE TABLE categories (pkg TEXT, category TEXT);
`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("apply stub schema: %v", err)
	}

	rows := []struct {
		kind, data, checksum, owner, grp, mode string
		seq                                    int
	}{
		{"cwd", "", "", "", "", "", 0},
		{"directory", "share/doc/hello", "", "", "", "0755", 1},
		{"file", "bin/hello", "", "", "", "0755", 2},
		{"file", "share/doc/hello/README", "", "", "", "0644", 3},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO assets (pkg, kind, data, checksum, owner, grp, mode, seq) VALUES (?,?,?,?,?,?,?,?)`,
			"hello", r.kind, r.data, r.checksum, r.owner, r.grp, r.mode, r.seq); err != nil {
			t.Fatalf("insert asset: %v", err)
		}
	}
}

func writeInstallBundle(t *testing.T, bundlePath, stubPath string) {
	t.Helper()
	stubBytes, err := os.ReadFile(stubPath)
	if err != nil {
		t.Fatalf("read stub bytes: %v", err)
	}

	f, err := os.Create(bundlePath)
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	defer tw.Close()

	addEntry := func(name string, body []byte) {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write(body); err != nil {
			t.Fatalf("write body %s: %v", name, err)
		}
	}

	addEntry("+STUB.sqlite", stubBytes)
	addEntry("+INFRA/hello-1.0/pkg-message", []byte("welcome to hello"))
	addEntry("bin/hello", []byte("#!/bin/sh\necho hi\n"))
	addEntry("share/doc/hello/README", []byte("readme contents"))
}

func TestEngineInstallPkg(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	stubPath := filepath.Join(dir, "stub.sqlite")
	buildStubDB(t, stubPath)

	bundlePath := filepath.Join(dir, "hello-1.0.mport")
	writeInstallBundle(t, bundlePath, stubPath)

	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	root := filepath.Join(dir, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}

	engine := NewEngine(store, root)
	engine.MtreeBin = "" // skip mtree verification in this unit test

	r, err := bundle.Open(bundlePath, "hello", "1.0")
	if err != nil {
		t.Fatalf("bundle.Open: %v", err)
	}
	defer r.Close()

	pkg := mport.Package{
		Name:    "hello",
		Version: "1.0",
		Origin:  "misc/hello",
		Prefix:  "/usr/local",
	}

	if err := engine.InstallPkg(ctx, r, pkg, Options{}); err != nil {
		t.Fatalf("InstallPkg: %v", err)
	}

	got, err := store.GetPackage(ctx, "hello")
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if got.Status != mport.StatusClean {
		t.Errorf("status = %s, want clean", got.Status)
	}

	for _, p := range []string{"usr/local/bin/hello", "usr/local/share/doc/hello/README"} {
		if _, err := os.Stat(filepath.Join(root, p)); err != nil {
			t.Errorf("expected file %s on disk: %v", p, err)
		}
	}

	assets, err := store.AssetsForPackage(ctx, "hello")
	if err != nil {
		t.Fatalf("AssetsForPackage: %v", err)
	}
	if len(assets) != 3 { // cwd directive leaves no row; directory + 2 files do
		t.Errorf("len(assets) = %d, want 3", len(assets))
	}
}

func TestEngineInstallPkgAlreadyInstalledIsWarn(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	stubPath := filepath.Join(dir, "stub.sqlite")
	buildStubDB(t, stubPath)
	bundlePath := filepath.Join(dir, "hello-1.0.mport")
	writeInstallBundle(t, bundlePath, stubPath)

	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	root := filepath.Join(dir, "root")
	os.MkdirAll(root, 0o755)
	engine := NewEngine(store, root)
	engine.MtreeBin = ""

	pkg := mport.Package{Name: "hello", Version: "1.0", Origin: "misc/hello", Prefix: "/usr/local"}

	r1, err := bundle.Open(bundlePath, "hello", "1.0")
	if err != nil {
		t.Fatalf("bundle.Open: %v", err)
	}
	if err := engine.InstallPkg(ctx, r1, pkg, Options{}); err != nil {
		t.Fatalf("first InstallPkg: %v", err)
	}
	r1.Close()

	r2, err := bundle.Open(bundlePath, "hello", "1.0")
	if err != nil {
		t.Fatalf("bundle.Open: %v", err)
	}
	defer r2.Close()

	err = engine.InstallPkg(ctx, r2, pkg, Options{})
	if !mport.IsWarn(err) {
		t.Fatalf("second InstallPkg error = %v, want a Warn error", err)
	}
}
