// Package transfer drives the Import side of SPEC_FULL.md §4.10's
// Import/Export addition: given a previously exported package list, it
// resolves each entry against the remote index and reinstalls it,
// preserving the automatic flag captured at export time.
//
// Grounded on original_source/mport/mport.c's `import`/`export` CLI
// verbs (mport_import/mport_export) — the CLI parsing itself is out of
// scope, but the underlying re-resolve-and-install operation is
// implemented here, driven by the catalog's Export/ParseExport pair
// and an Index/Fetcher pair of its own, shaped like the Upgrade
// Planner's.
package transfer

import (
	"context"
	"fmt"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/install"
)

// Index is the subset of upgrade.Index transfer needs: resolving an
// exported package name to a current index entry. Declared separately
// (rather than importing upgrade.Index) so transfer has no dependency
// on the upgrade package's postorder planning logic.
type Index interface {
	Lookup(ctx context.Context, name string) (mport.IndexEntry, bool, error)
}

// Fetcher opens a bundle for a resolved index entry.
type Fetcher interface {
	Fetch(ctx context.Context, entry mport.IndexEntry) (*bundle.Reader, error)
}

// Importer reinstalls an exported package list against a live index.
type Importer struct {
	Install *install.Engine
	Index   Index
	Fetch   Fetcher
}

// Result summarizes one Import run.
type Result struct {
	Installed int
	Skipped   []string // names with no index entry, or whose fetch or install failed
}

// Import parses an Export payload and reinstalls every entry not
// already present in the catalog, defaulting newly-installed packages
// to prefix "/usr/local" since the exported record carries no prefix
// (spec §4.10 Testable Property 4 only requires names and automatic
// flags to round-trip, not install prefixes).
func (im *Importer) Import(ctx context.Context, store *catalog.Store, data []byte) (Result, error) {
	cb := mport.CallbacksFrom(ctx)

	entries, err := catalog.ParseExport(data)
	if err != nil {
		return Result{}, mport.Fatalf("transfer.Import", "", err, "parse export payload")
	}

	var result Result
	for _, exp := range entries {
		if _, err := store.GetPackage(ctx, exp.Name); err == nil {
			continue // already installed
		}

		entry, ok, err := im.Index.Lookup(ctx, exp.Name)
		if err != nil {
			return result, mport.Fatalf("transfer.Import", exp.Name, err, "index lookup")
		}
		if !ok {
			cb.Message("warning: %s not found in index, skipping", exp.Name)
			result.Skipped = append(result.Skipped, exp.Name)
			continue
		}

		r, err := im.Fetch.Fetch(ctx, entry)
		if err != nil {
			cb.Message("warning: could not fetch %s: %v", exp.Name, err)
			result.Skipped = append(result.Skipped, exp.Name)
			continue
		}

		pkg := mport.Package{
			Name:      entry.PkgName,
			Version:   entry.Version,
			Origin:    exp.Origin,
			Prefix:    "/usr/local",
			Automatic: mport.Automatic(exp.Automatic),
			Type:      mport.TypeApplication,
		}
		err = im.Install.InstallPkg(ctx, r, pkg, install.Options{})
		r.Close()
		if err != nil {
			cb.Message("warning: could not install %s: %v", exp.Name, err)
			result.Skipped = append(result.Skipped, exp.Name)
			continue
		}
		result.Installed++
	}

	cb.Message("Imported %d packages, skipped %d", result.Installed, len(result.Skipped))
	return result, nil
}

// Export serializes the store's installed set via catalog.Export,
// naming the thin wrapper transfer exposes alongside Import so callers
// driving the CLI `import`/`export` verbs use one package for both
// directions.
func Export(ctx context.Context, store *catalog.Store) ([]byte, error) {
	data, err := store.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("transfer: export: %w", err)
	}
	return data, nil
}
