package bundle

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"
)

func TestPeekIdentity(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "hello-1.0.mport")
	writeTestBundle(t, bundlePath)

	name, version, err := PeekIdentity(bundlePath)
	if err != nil {
		t.Fatalf("PeekIdentity: %v", err)
	}
	if name != "hello" || version != "1.0" {
		t.Errorf("PeekIdentity = (%q, %q), want (hello, 1.0)", name, version)
	}
}

func TestPeekIdentityNoInfraEntry(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "empty.mport")
	f, err := os.Create(bundlePath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tw := tar.NewWriter(f)
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	f.Close()

	if _, _, err := PeekIdentity(bundlePath); err == nil {
		t.Fatal("PeekIdentity on bundle with no infra entry: want error, got nil")
	}
}
