package asset

import "testing"

func TestBuilderApply(t *testing.T) {
	b := NewBuilder("/usr/local")
	if b.Cwd != "/usr/local" {
		t.Fatalf("initial cwd = %q", b.Cwd)
	}

	if ok := b.Apply("/usr/local", Asset{Kind: KindCwd, Data: "share/doc"}); !ok {
		t.Fatal("cwd directive not applied")
	}
	if b.Cwd != "share/doc" {
		t.Fatalf("cwd = %q, want share/doc", b.Cwd)
	}

	// empty cwd data resets to the package prefix
	b.Apply("/usr/local", Asset{Kind: KindCwd, Data: ""})
	if b.Cwd != "/usr/local" {
		t.Fatalf("cwd reset = %q, want /usr/local", b.Cwd)
	}

	b.Apply("/usr/local", Asset{Kind: KindChmod, Data: "0644"})
	b.Apply("/usr/local", Asset{Kind: KindChown, Data: "root"})
	b.Apply("/usr/local", Asset{Kind: KindChgrp, Data: "wheel"})

	owner, group, mode := b.ResolveOwnerModeGroup(Asset{Kind: KindFile, Data: "bin/hello"})
	if owner != "root" || group != "wheel" || mode != "0644" {
		t.Fatalf("ambient defaults = %s/%s/%s", owner, group, mode)
	}

	owner, group, mode = b.ResolveOwnerModeGroup(Asset{
		Kind: KindFileOwnerMode, Data: "bin/hello", Owner: "nobody",
	})
	if owner != "nobody" || group != "wheel" || mode != "0644" {
		t.Fatalf("per-entry override = %s/%s/%s", owner, group, mode)
	}
}

func TestSampleTarget(t *testing.T) {
	cases := map[string]string{
		"etc/foo.conf.sample":        "etc/foo.conf",
		"etc/foo.conf.sample etc/foo.conf": "etc/foo.conf",
		"etc/bar":                    "etc/bar",
	}
	for in, want := range cases {
		if got := SampleTarget(in); got != want {
			t.Errorf("SampleTarget(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindClassification(t *testing.T) {
	if !KindFile.IsFileLike() || KindDirectory.IsFileLike() {
		t.Fatal("IsFileLike misclassified")
	}
	if !KindDirectory.IsDirectory() || KindFile.IsDirectory() {
		t.Fatal("IsDirectory misclassified")
	}
	if !KindFileOwnerMode.HasOwnerMode() || KindFile.HasOwnerMode() {
		t.Fatal("HasOwnerMode misclassified")
	}
	if Kind("bogus").Valid() {
		t.Fatal("bogus kind reported valid")
	}
}
