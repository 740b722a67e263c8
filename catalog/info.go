package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/package-url/packageurl-go"

	"github.com/MidnightBSD/mport"
)

// PURLType and PURLNamespace identify every rendered package URL as
// belonging to this system's own package namespace, mirroring the
// teacher's per-ecosystem PURLType/PURLNamespace constants (e.g.
// debian.PURLType/PURLNamespace).
const (
	PURLType      = "mport"
	PURLNamespace = "midnightbsd"
)

// Info is the full rendered detail behind the CLI `info` verb: the
// package row plus its depends, conflicts, categories, and services
// (spec.md §6's `info <pkg>`, SPEC_FULL.md §4.10's catalog read-path
// surfaces).
type Info struct {
	Package    mport.Package
	Depends    []mport.Dependency
	Conflicts  []mport.Conflict
	Categories []string
	Services   []string
}

// GetInfo renders the full detail view for one installed package.
func (s *Store) GetInfo(ctx context.Context, name string) (Info, error) {
	defer observe(ctx, "GetInfo", time.Now())

	pkg, err := s.GetPackage(ctx, name)
	if err != nil {
		return Info{}, err
	}
	depends, err := s.DependsForPackage(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("catalog: info depends: %w", err)
	}
	conflicts, err := s.ConflictsForPackage(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("catalog: info conflicts: %w", err)
	}
	categories, err := s.CategoriesForPackage(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("catalog: info categories: %w", err)
	}
	services, err := s.ServicesForPackage(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("catalog: info services: %w", err)
	}
	return Info{
		Package:    pkg,
		Depends:    depends,
		Conflicts:  conflicts,
		Categories: categories,
		Services:   services,
	}, nil
}

// ListFilter narrows List's result set (spec.md §6's `list
// [updates|prime]`). An empty filter lists every installed package.
type ListFilter string

const (
	ListAll    ListFilter = ""
	ListPrime  ListFilter = "prime"  // explicitly installed only
)

// List returns the installed set narrowed by filter.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]mport.Package, error) {
	defer observe(ctx, "List", time.Now())
	all, err := s.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	if filter != ListPrime {
		return all, nil
	}
	out := make([]mport.Package, 0, len(all))
	for _, p := range all {
		if p.Automatic == mport.Explicit {
			out = append(out, p)
		}
	}
	return out, nil
}

// CPEs returns the CPE string of every installed package that carries
// one.
func (s *Store) CPEs(ctx context.Context) ([]string, error) {
	pkgs, err := s.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range pkgs {
		if p.CPE != "" {
			out = append(out, p.CPE)
		}
	}
	return out, nil
}

// PURLs renders every installed package as a package URL, giving the
// teacher's purl domain dependency (github.com/package-url/packageurl-go)
// a concrete home in the catalog's own read path (SPEC_FULL.md §4.10).
func (s *Store) PURLs(ctx context.Context) ([]string, error) {
	pkgs, err := s.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		u := packageurl.PackageURL{
			Type:      PURLType,
			Namespace: PURLNamespace,
			Name:      p.Name,
			Version:   p.Version,
			Qualifiers: packageurl.QualifiersFromMap(map[string]string{
				"origin": p.Origin,
			}),
		}
		out = append(out, u.String())
	}
	return out, nil
}
