package catalog

import (
	"context"
	"testing"

	"github.com/MidnightBSD/mport"
)

func TestGetInfoAndList(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	explicit := mport.Package{Name: "top", Version: "1.0", Origin: "x/top", Prefix: "/usr/local", Automatic: mport.Explicit, CPE: "cpe:2.3:a:x:top:1.0"}
	dep := mport.Package{Name: "lib", Version: "2.0", Origin: "x/lib", Prefix: "/usr/local", Automatic: mport.InstalledAsDep}
	if err := store.InsertPackage(ctx, tx, explicit); err != nil {
		t.Fatalf("insert top: %v", err)
	}
	if err := store.InsertPackage(ctx, tx, dep); err != nil {
		t.Fatalf("insert lib: %v", err)
	}
	if err := store.InsertDepend(ctx, tx, mport.Dependency{Pkg: "top", DependPkg: "lib"}); err != nil {
		t.Fatalf("insert depend: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	info, err := store.GetInfo(ctx, "top")
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if len(info.Depends) != 1 || info.Depends[0].DependPkg != "lib" {
		t.Errorf("info.Depends = %+v, want one edge to lib", info.Depends)
	}

	prime, err := store.List(ctx, ListPrime)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(prime) != 1 || prime[0].Name != "top" {
		t.Errorf("List(prime) = %+v, want only top", prime)
	}

	cpes, err := store.CPEs(ctx)
	if err != nil {
		t.Fatalf("CPEs: %v", err)
	}
	if len(cpes) != 1 || cpes[0] != explicit.CPE {
		t.Errorf("CPEs = %v, want [%s]", cpes, explicit.CPE)
	}

	purls, err := store.PURLs(ctx)
	if err != nil {
		t.Fatalf("PURLs: %v", err)
	}
	if len(purls) != 2 {
		t.Errorf("len(purls) = %d, want 2", len(purls))
	}
}
