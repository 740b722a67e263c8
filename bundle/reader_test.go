package bundle

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTestBundle(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	defer tw.Close()

	addEntry := func(name string, body []byte) {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write(body); err != nil {
			t.Fatalf("write body %s: %v", name, err)
		}
	}

	addEntry(stubEntryName, []byte("sqlite-stub-bytes"))
	addEntry(infraPrefix+"hello-1.0/mtree", []byte("mtree-contents"))
	addEntry(infraPrefix+"hello-1.0/pkg-message", []byte("hi there"))
	addEntry("bin/hello", []byte("#!/bin/sh\necho hi\n"))
	addEntry("share/doc/hello/README", []byte("readme"))
}

func TestReaderExtractsStubAndInfra(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "hello-1.0.mport")
	writeTestBundle(t, bundlePath)

	r, err := Open(bundlePath, "hello", "1.0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.StubPath() == "" {
		t.Fatal("StubPath is empty")
	}
	got, err := os.ReadFile(r.StubPath())
	if err != nil {
		t.Fatalf("read stub: %v", err)
	}
	if string(got) != "sqlite-stub-bytes" {
		t.Errorf("stub contents = %q", got)
	}

	mtreePath := r.InfraFile(FileMtree)
	if mtreePath == "" {
		t.Fatal("InfraFile(mtree) is empty")
	}
	msgPath := r.InfraFile(FilePkgMessage)
	if msgPath == "" {
		t.Fatal("InfraFile(pkg-message) is empty")
	}
}

func TestReaderPayloadOrder(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "hello-1.0.mport")
	writeTestBundle(t, bundlePath)

	r, err := Open(bundlePath, "hello", "1.0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var names []string
	destDir := t.TempDir()
	for {
		hdr, err := r.NextEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextEntry: %v", err)
		}
		names = append(names, hdr.Name)
		dst := filepath.Join(destDir, filepath.Base(hdr.Name))
		if err := r.ExtractNextFile(hdr, dst); err != nil {
			t.Fatalf("ExtractNextFile: %v", err)
		}
	}

	want := []string{"bin/hello", "share/doc/hello/README"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}
