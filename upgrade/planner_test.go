package upgrade

import (
	"context"
	"errors"
	"testing"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/install"
)

type fakeIndex struct {
	byName   map[string]mport.IndexEntry
	byOrigin map[string]mport.IndexEntry
}

func (f *fakeIndex) Lookup(_ context.Context, name string) (mport.IndexEntry, bool, error) {
	e, ok := f.byName[name]
	return e, ok, nil
}

func (f *fakeIndex) LookupByOrigin(_ context.Context, origin string) (mport.IndexEntry, bool, error) {
	e, ok := f.byOrigin[origin]
	return e, ok, nil
}

// fakeFetcher always fails; these tests exercise the planner's
// bookkeeping (memoized checks, processed set, totals), not a real
// bundle-driven replace.
type fakeFetcher struct{}

var errNoFetch = errors.New("fetch not wired in this test")

func (fakeFetcher) Fetch(context.Context, mport.IndexEntry) (*bundle.Reader, error) {
	return nil, errNoFetch
}

func seedPackage(t *testing.T, ctx context.Context, store *catalog.Store, pkg mport.Package) {
	t.Helper()
	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := store.InsertPackage(ctx, tx, pkg); err != nil {
		tx.Rollback()
		t.Fatalf("insert package: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestPlanNoUpdatesAvailable(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	seedPackage(t, ctx, store, mport.Package{Name: "hello", Version: "1.0", Origin: "misc/hello", Prefix: "/usr/local"})

	idx := &fakeIndex{
		byName:   map[string]mport.IndexEntry{"hello": {PkgName: "hello", Version: "1.0"}},
		byOrigin: map[string]mport.IndexEntry{},
	}
	p := &Planner{
		Store:   store,
		Install: install.NewEngine(store, t.TempDir()),
		Index:   idx,
		Fetch:   fakeFetcher{},
	}

	result, err := p.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.Updated != 0 || result.Total != 1 {
		t.Errorf("result = %+v, want Updated=0 Total=1", result)
	}
}

func TestPlanDetectsUpgrade(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	seedPackage(t, ctx, store, mport.Package{Name: "hello", Version: "1.0", Origin: "misc/hello", Prefix: "/usr/local"})

	idx := &fakeIndex{
		byName:   map[string]mport.IndexEntry{"hello": {PkgName: "hello", Version: "2.0"}},
		byOrigin: map[string]mport.IndexEntry{},
	}
	p := &Planner{
		Store:   store,
		Install: install.NewEngine(store, t.TempDir()),
		Index:   idx,
		Fetch:   fakeFetcher{},
	}

	result, err := p.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("result.Total = %d, want 1", result.Total)
	}

	res, _, err := p.indexCheck(ctx, mport.Package{Name: "hello", Version: "1.0"})
	if err != nil {
		t.Fatalf("indexCheck: %v", err)
	}
	if res != Upgrade {
		t.Errorf("indexCheck result = %v, want Upgrade", res)
	}
}
