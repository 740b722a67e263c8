// Package upgrade implements the Upgrade Planner (spec §4.7): the
// migration pass over the `moved` table followed by a postorder
// dependency-first upgrade pass, grounded on
// original_source/libmport/upgrade.c's mport_upgrade/mport_update_down.
//
// The original's processed-name set is an ohash (MidnightBSD) or a
// linear scan (everywhere else); here it's a plain map[string]bool, and
// its index_check/moved_lookup memoization tables are plain
// map[string]T rather than the original's parallel ohash handles
// (Design Note §9).
package upgrade

import (
	"context"
	"fmt"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/install"
	"github.com/MidnightBSD/mport/remove"
	"github.com/MidnightBSD/mport/version"
)

// CheckResult is the outcome of comparing an installed package against
// the remote index (spec §4.7 step 3).
type CheckResult int

const (
	NoUpdate CheckResult = iota
	Upgrade
	OriginRename
)

// Index is the remote package index the planner consults. A real
// implementation resolves entries from a fetched, parsed catalog feed;
// tests can supply a map-backed stub.
type Index interface {
	// Lookup returns the current index entry for name, if any.
	Lookup(ctx context.Context, name string) (mport.IndexEntry, bool, error)
	// LookupByOrigin returns the current index entry published under
	// origin, if any (used to detect an origin rename).
	LookupByOrigin(ctx context.Context, origin string) (mport.IndexEntry, bool, error)
}

// Fetcher opens a bundle given its index URL, returning a reader the
// caller must Close.
type Fetcher interface {
	Fetch(ctx context.Context, entry mport.IndexEntry) (*bundle.Reader, error)
}

// Planner runs the upgrade algorithm over the installed set.
type Planner struct {
	Store   *catalog.Store
	Install *install.Engine
	Index   Index
	Fetch   Fetcher

	processed map[string]bool
	checkMemo map[string]checkMemoEntry
	movedMemo map[string]mport.MovedEntry
	hasMoved  map[string]bool
}

type checkMemoEntry struct {
	result CheckResult
	entry  mport.IndexEntry
}

// Result is the best-effort summary the planner returns once done
// (spec §4.7 "best-effort count (updated, total)").
type Result struct {
	Updated int
	Total   int
}

func (p *Planner) reset() {
	p.processed = make(map[string]bool)
	p.checkMemo = make(map[string]checkMemoEntry)
	p.movedMemo = make(map[string]mport.MovedEntry)
	p.hasMoved = make(map[string]bool)
}

// Plan runs the full two-pass algorithm over every installed package
// (spec §4.7).
func (p *Planner) Plan(ctx context.Context) (Result, error) {
	cb := mport.CallbacksFrom(ctx)
	p.reset()

	packages, err := p.Store.ListPackages(ctx)
	if err != nil {
		return Result{}, mport.Fatalf("upgrade.Plan", "", err, "list installed packages")
	}

	if err := p.migrationPass(ctx, cb, packages); err != nil {
		return Result{}, err
	}

	var result Result
	for _, pkg := range packages {
		if p.processed[pkg.Name] {
			continue
		}
		result.Total++

		res, entry, err := p.indexCheck(ctx, pkg)
		if err != nil {
			cb.Message("warning: index check failed for %s: %v", pkg.Name, err)
			continue
		}

		switch res {
		case Upgrade:
			n, err := p.updateDown(ctx, cb, pkg)
			if err != nil {
				cb.Message("warning: upgrade of %s failed: %v", pkg.Name, err)
				continue
			}
			result.Updated += n

		case OriginRename:
			if !cb.Confirm(
				fmt.Sprintf("The package you have installed %s appears to have been replaced by %s. Do you want to update?", pkg.Name, entry.PkgName),
				"Update", "Don't Update", true) {
				continue
			}
			if err := p.replaceWithEntry(ctx, pkg, entry, pkg.Automatic); err != nil {
				cb.Message("warning: rename migration of %s failed: %v", pkg.Name, err)
				continue
			}
			p.processed[pkg.Name] = true
			result.Updated++
		}
	}

	cb.Message("Packages updated: %d\nTotal: %d\n", result.Updated, result.Total)
	return result, nil
}

// migrationPass handles deprecated/retired and moved origins ahead of
// the ordinary upgrade pass (spec §4.7 step 2).
func (p *Planner) migrationPass(ctx context.Context, cb mport.Callbacks, packages []mport.Package) error {
	for _, pkg := range packages {
		if p.processed[pkg.Name] {
			continue
		}

		moved, ok, err := p.lookupMoved(ctx, pkg.Origin)
		if err != nil {
			return mport.Fatalf("upgrade.migrationPass", pkg.Name, err, "moved lookup")
		}
		if !ok {
			continue
		}

		if moved.ExpiryDate != "" {
			prompt := fmt.Sprintf("Package %s is deprecated with expiration date %s. Do you want to remove it?", pkg.Name, moved.ExpiryDate)
			if cb.Confirm(prompt, "Delete", "Don't delete", true) {
				if err := p.removePkg(ctx, pkg); err != nil {
					cb.Message("warning: could not remove deprecated %s: %v", pkg.Name, err)
				} else {
					p.processed[pkg.Name] = true
				}
			}
			continue
		}

		if moved.MovedToPkg != "" {
			cb.Message("Package %s has moved to %s. Migrating.", pkg.Name, moved.MovedToPkg)
			entry, ok, err := p.Index.Lookup(ctx, moved.MovedToPkg)
			if err != nil {
				return mport.Fatalf("upgrade.migrationPass", pkg.Name, err, "lookup moved-to %s", moved.MovedToPkg)
			}
			if !ok {
				cb.Message("warning: moved-to package %s not found in index", moved.MovedToPkg)
				continue
			}
			if err := p.replaceWithEntry(ctx, pkg, entry, pkg.Automatic); err != nil {
				cb.Message("warning: could not migrate %s to %s: %v", pkg.Name, moved.MovedToPkg, err)
				continue
			}
			p.processed[pkg.Name] = true
			p.processed[moved.MovedToPkg] = true
		}
	}
	return nil
}

// updateDown is mport_update_down: dependencies are updated before
// their dependents (postorder), each name visited at most once.
func (p *Planner) updateDown(ctx context.Context, cb mport.Callbacks, pkg mport.Package) (int, error) {
	if p.processed[pkg.Name] {
		return 0, nil
	}

	depends, err := p.Store.DependsForPackage(ctx, pkg.Name)
	if err != nil {
		return 0, mport.Fatalf("upgrade.updateDown", pkg.Name, err, "load depends")
	}

	count := 0
	for _, d := range depends {
		if p.processed[d.DependPkg] {
			continue
		}
		dep, err := p.Store.GetPackage(ctx, d.DependPkg)
		if err != nil {
			continue // dependency not installed; nothing to recurse into
		}
		n, err := p.updateDown(ctx, cb, dep)
		if err != nil {
			cb.Message("warning: upgrade of dependency %s failed: %v", dep.Name, err)
			continue
		}
		count += n
	}

	res, _, err := p.indexCheck(ctx, pkg)
	if err != nil {
		return count, err
	}
	if res != Upgrade {
		return count, nil
	}

	cb.Message("Updating %s", pkg.Name)
	if err := p.updatePkg(ctx, pkg); err != nil {
		return count, mport.Fatalf("upgrade.updateDown", pkg.Name, err, "update")
	}
	p.processed[pkg.Name] = true
	return count + 1, nil
}

// indexCheck is mport_index_check, memoized per package name.
func (p *Planner) indexCheck(ctx context.Context, pkg mport.Package) (CheckResult, mport.IndexEntry, error) {
	if m, ok := p.checkMemo[pkg.Name]; ok {
		return m.result, m.entry, nil
	}

	entry, ok, err := p.Index.Lookup(ctx, pkg.Name)
	if err != nil {
		return NoUpdate, mport.IndexEntry{}, err
	}
	if ok {
		res := NoUpdate
		if version.Compare(entry.Version, pkg.Version) > 0 {
			res = Upgrade
		}
		p.checkMemo[pkg.Name] = checkMemoEntry{result: res, entry: entry}
		return res, entry, nil
	}

	renamed, ok, err := p.Index.LookupByOrigin(ctx, pkg.Origin)
	if err != nil {
		return NoUpdate, mport.IndexEntry{}, err
	}
	if ok && renamed.PkgName != pkg.Name {
		p.checkMemo[pkg.Name] = checkMemoEntry{result: OriginRename, entry: renamed}
		return OriginRename, renamed, nil
	}

	p.checkMemo[pkg.Name] = checkMemoEntry{result: NoUpdate}
	return NoUpdate, mport.IndexEntry{}, nil
}

// lookupMoved is mport_moved_lookup, memoized per origin.
func (p *Planner) lookupMoved(ctx context.Context, origin string) (mport.MovedEntry, bool, error) {
	if ok, seen := p.hasMoved[origin]; seen {
		return p.movedMemo[origin], ok, nil
	}
	m, err := p.Store.MovedLookup(ctx, origin)
	if err != nil {
		if err == catalog.ErrNotFound {
			p.hasMoved[origin] = false
			return mport.MovedEntry{}, false, nil
		}
		return mport.MovedEntry{}, false, err
	}
	p.movedMemo[origin] = m
	p.hasMoved[origin] = true
	return m, true, nil
}

// updatePkg implements spec §4.7's `update(pkg)`: it downloads the
// bundle, retains automatic/locked, checks preconditions, rewrites the
// catalog's prefix onto the fetched package, and replaces the old
// install with the new one.
func (p *Planner) updatePkg(ctx context.Context, pkg mport.Package) error {
	entry, ok, err := p.Index.Lookup(ctx, pkg.Name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", pkg.Name, err)
	}
	if !ok {
		return fmt.Errorf("no index entry for %s", pkg.Name)
	}
	return p.replaceWithEntry(ctx, pkg, entry, pkg.Automatic)
}

// replaceWithEntry deletes the currently installed pkg (if present)
// and installs entry in its place, preserving automatic, pkg's locked
// flag and the catalog's existing prefix rather than the bundle's own.
func (p *Planner) replaceWithEntry(ctx context.Context, pkg mport.Package, entry mport.IndexEntry, automatic mport.Automatic) error {
	r, err := p.Fetch.Fetch(ctx, entry)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", entry.PkgName, err)
	}
	defer r.Close()

	if err := p.removePkg(ctx, pkg); err != nil {
		return fmt.Errorf("remove previous %s: %w", pkg.Name, err)
	}

	newPkg := mport.Package{
		Name:      entry.PkgName,
		Version:   entry.Version,
		Origin:    pkg.Origin,
		Prefix:    pkg.Prefix, // catalog's existing prefix, never the bundle's
		Automatic: automatic,
		Locked:    pkg.Locked,
		Type:      pkg.Type,
	}
	return p.Install.InstallPkg(ctx, r, newPkg, install.Options{PreviousVersion: pkg.Version})
}

// removePkg deletes pkg via the same Delete Engine the `delete` verb
// uses, forcing past a checksum mismatch since a migration's goal is
// to land the new version regardless.
func (p *Planner) removePkg(ctx context.Context, pkg mport.Package) error {
	return remove.NewEngine(p.Store, p.Install.Root).DeletePkg(ctx, pkg, remove.Options{Force: true})
}
