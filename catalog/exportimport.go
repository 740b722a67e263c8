package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ExportedPackage is one entry of an Export payload: just enough to
// re-resolve the package against an index and reinstall it with the
// same automatic flag (spec §4.10 "Import/Export", Testable Property
// 4: round-trip export/import reproduces the same names and automatic
// flags).
type ExportedPackage struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Origin    string `json:"origin"`
	Automatic bool   `json:"automatic"`
}

// Export serializes the installed set as a JSON array, ordered by name
// for a stable diff.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	defer observe(ctx, "Export", time.Now())
	pkgs, err := s.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: export: %w", err)
	}
	out := make([]ExportedPackage, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, ExportedPackage{
			Name: p.Name, Version: p.Version, Origin: p.Origin, Automatic: bool(p.Automatic),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("catalog: export marshal: %w", err)
	}
	return data, nil
}

// ParseExport decodes an Export payload. The caller (package transfer)
// drives the actual reinstall against an index, since that needs the
// install engine and bundle fetcher this package does not depend on.
func ParseExport(data []byte) ([]ExportedPackage, error) {
	var out []ExportedPackage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("catalog: parse export: %w", err)
	}
	return out, nil
}
