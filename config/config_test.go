package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix != Default().Prefix {
		t.Errorf("Prefix = %q, want default %q", cfg.Prefix, Default().Prefix)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mport.toml")
	body := `
prefix = "/opt/mport"
index_url = "https://example.test/index"
verbose = true

[[mirror]]
name = "primary"
url = "https://example.test/mirror1"

[[mirror]]
name = "backup"
url = "https://example.test/mirror2"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix != "/opt/mport" {
		t.Errorf("Prefix = %q, want /opt/mport", cfg.Prefix)
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true")
	}
	if len(cfg.Mirrors) != 2 || cfg.Mirrors[0].Name != "primary" {
		t.Errorf("Mirrors = %+v, want 2 entries starting with primary", cfg.Mirrors)
	}
}
