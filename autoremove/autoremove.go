// Package autoremove implements the orphan sweep (spec §4.8): a
// package qualifies for removal iff it was installed automatically and
// no explicitly-installed package transitively depends on it.
//
// Grounded on original_source/libmport/autoremove.c's mport_autoremove,
// but resolves the Open Question it leaves open (see DESIGN.md): the
// original makes one linear pass over the installed set, so a chain of
// automatic-only dependencies only has its leaf collected per run. This
// package instead iterates passes to a fixed point — removing one
// orphan may expose another — per spec.md §4.8's explicit instruction
// to "iterate to fixed point".
package autoremove

import (
	"context"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/remove"
)

// Engine sweeps orphaned automatic packages from a catalog rooted at a
// filesystem prefix.
type Engine struct {
	Store *catalog.Store
	Root  string
}

// NewEngine returns an Engine rooted at root.
func NewEngine(store *catalog.Store, root string) *Engine {
	return &Engine{Store: store, Root: root}
}

// Sweep removes every orphaned automatic package, iterating until a
// pass removes nothing. It returns the names removed, in removal
// order.
func (e *Engine) Sweep(ctx context.Context) ([]string, error) {
	cb := mport.CallbacksFrom(ctx)
	remover := remove.NewEngine(e.Store, e.Root)

	var removed []string
	for {
		orphans, err := e.findOrphans(ctx)
		if err != nil {
			return removed, err
		}
		if len(orphans) == 0 {
			return removed, nil
		}

		progressed := false
		for _, pkg := range orphans {
			if err := remover.DeletePkg(ctx, pkg, remove.Options{}); err != nil {
				cb.Message("warning: could not autoremove %s: %v", pkg.Name, err)
				continue
			}
			removed = append(removed, pkg.Name)
			progressed = true
		}
		if !progressed {
			return removed, nil
		}
	}
}

// findOrphans returns every installed, automatic package with no
// explicitly-installed reverse-dependent, direct or transitive.
func (e *Engine) findOrphans(ctx context.Context) ([]mport.Package, error) {
	packages, err := e.Store.ListPackages(ctx)
	if err != nil {
		return nil, mport.Fatalf("autoremove.findOrphans", "", err, "list installed packages")
	}

	explicit := make(map[string]bool)
	for _, p := range packages {
		if p.Automatic == mport.Explicit {
			explicit[p.Name] = true
		}
	}

	var orphans []mport.Package
	for _, p := range packages {
		if p.Automatic != mport.InstalledAsDep {
			continue
		}
		depended, err := e.dependedByExplicit(ctx, p.Name, explicit, make(map[string]bool))
		if err != nil {
			return nil, err
		}
		if !depended {
			orphans = append(orphans, p)
		}
	}
	return orphans, nil
}

// dependedByExplicit reports whether any explicitly-installed package
// transitively depends on pkg, walking reverse-dependency edges with a
// visited set to stay linear in the dependency graph's edge count.
func (e *Engine) dependedByExplicit(ctx context.Context, pkg string, explicit, visited map[string]bool) (bool, error) {
	if visited[pkg] {
		return false, nil
	}
	visited[pkg] = true

	rdeps, err := e.Store.ReverseDepends(ctx, pkg)
	if err != nil {
		return false, mport.Fatalf("autoremove.dependedByExplicit", pkg, err, "load reverse depends")
	}
	for _, d := range rdeps {
		if explicit[d.Pkg] {
			return true, nil
		}
		ok, err := e.dependedByExplicit(ctx, d.Pkg, explicit, visited)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
