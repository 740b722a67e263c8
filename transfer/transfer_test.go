package transfer

import (
	"context"
	"testing"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/install"
)

type fakeIndex struct {
	entries map[string]mport.IndexEntry
}

func (f *fakeIndex) Lookup(_ context.Context, name string) (mport.IndexEntry, bool, error) {
	e, ok := f.entries[name]
	return e, ok, nil
}

// fakeFetcher is never actually asked to fetch in these tests: both
// cases are resolved (or skipped) before a fetch would happen.
type fakeFetcher struct {
	bundles map[string]string // index entry name -> bundle file path
}

func (f *fakeFetcher) Fetch(_ context.Context, entry mport.IndexEntry) (*bundle.Reader, error) {
	return bundle.Open(f.bundles[entry.PkgName], entry.PkgName, entry.Version)
}

func TestImportSkipsAlreadyInstalled(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := store.InsertPackage(ctx, tx, mport.Package{Name: "hello", Version: "1.0", Origin: "misc/hello", Prefix: "/usr/local"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	im := &Importer{
		Install: install.NewEngine(store, t.TempDir()),
		Index:   &fakeIndex{entries: map[string]mport.IndexEntry{}},
		Fetch:   &fakeFetcher{bundles: map[string]string{}},
	}

	payload := []byte(`[{"name":"hello","version":"1.0","origin":"misc/hello","automatic":false}]`)
	result, err := im.Import(ctx, store, payload)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Installed != 0 {
		t.Errorf("Installed = %d, want 0 (already present)", result.Installed)
	}
}

func TestImportSkipsMissingFromIndex(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	im := &Importer{
		Install: install.NewEngine(store, t.TempDir()),
		Index:   &fakeIndex{entries: map[string]mport.IndexEntry{}},
		Fetch:   &fakeFetcher{bundles: map[string]string{}},
	}

	payload := []byte(`[{"name":"ghost","version":"1.0","origin":"misc/ghost","automatic":true}]`)
	result, err := im.Import(ctx, store, payload)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Installed != 0 || len(result.Skipped) != 1 {
		t.Errorf("result = %+v, want 0 installed, 1 skipped", result)
	}
}
