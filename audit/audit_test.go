package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/catalog"
)

func TestSweepReportsMatchedAdvisories(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entries":[{"cveId":"CVE-2024-1234","description":"test vuln"}]}`))
	}))
	defer srv.Close()

	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	pkg := mport.Package{Name: "hello", Version: "1.0", Origin: "misc/hello", Prefix: "/usr/local", CPE: "cpe:2.3:a:hello:hello:1.0"}
	if err := store.InsertPackage(ctx, tx, pkg); err != nil {
		t.Fatalf("insert package: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	e := NewEngine(ctx, store, Options{Endpoint: srv.URL, Client: srv.Client()})
	reports, err := e.Sweep(ctx, "")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("len(reports) = %d, want 1", len(reports))
	}
	if reports[0].Entries[0].CVEID != "CVE-2024-1234" {
		t.Errorf("CVEID = %q, want CVE-2024-1234", reports[0].Entries[0].CVEID)
	}
}

func TestSweepSkipsPackagesWithoutCPE(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := store.InsertPackage(ctx, tx, mport.Package{Name: "hello", Version: "1.0", Origin: "misc/hello", Prefix: "/usr/local"}); err != nil {
		t.Fatalf("insert package: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	e := NewEngine(ctx, store, Options{Endpoint: "http://unused.invalid"})
	reports, err := e.Sweep(ctx, "")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("len(reports) = %d, want 0", len(reports))
	}
}
