// Package config loads the process-level configuration file: the
// chroot/install prefix, default advisory and mirror endpoints, and
// output verbosity. This is distinct from the catalog's `settings`
// table, which holds per-catalog key/value state set via `config
// list|get|set`; this file is read once at process startup, before any
// catalog is even opened.
//
// Grounded on the BurntSushi/toml-based static config loaders present
// in the retrieval pack (google-osv-scalibr, holocm-holo-build both
// carry github.com/BurntSushi/toml as a direct dependency for exactly
// this purpose).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the process's static configuration.
type Config struct {
	// Prefix is the default install/chroot root when none is given on
	// the command line.
	Prefix string `toml:"prefix"`
	// CatalogPath is the path to the SQLite catalog database file.
	CatalogPath string `toml:"catalog_path"`
	// IndexURL is the remote package index feed consulted by install
	// and upgrade.
	IndexURL string `toml:"index_url"`
	// AuditEndpoint is the advisory service base URL consulted by
	// audit.
	AuditEndpoint string `toml:"audit_endpoint"`
	// Mirrors lists the candidate bundle mirrors, fastest selected at
	// runtime by the mirror package.
	Mirrors []MirrorConfig `toml:"mirror"`
	// Verbose raises callback message verbosity.
	Verbose bool `toml:"verbose"`
}

// MirrorConfig is one configured mirror candidate.
type MirrorConfig struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// Default returns the built-in configuration used when no config file
// is present.
func Default() Config {
	return Config{
		Prefix:        "/usr/local",
		CatalogPath:   "/var/db/mport/mport.sqlite",
		IndexURL:      "https://mirror.midnightbsd.org/mport/index",
		AuditEndpoint: "https://mirror.midnightbsd.org/mport/audit",
	}
}

// Load reads and parses a TOML config file at path. A missing file is
// not an error: it returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
