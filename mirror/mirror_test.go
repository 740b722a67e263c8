package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSelectReturnsReachableCandidate(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer fast.Close()

	sel := NewSelector(fast.Client())
	got, err := sel.Select(context.Background(), []Candidate{
		{Name: "slow", URL: slow.URL},
		{Name: "fast", URL: fast.URL},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Name == "" {
		t.Fatalf("Select returned empty candidate")
	}
}

func TestSelectErrorsWithNoCandidates(t *testing.T) {
	sel := NewSelector(nil)
	if _, err := sel.Select(context.Background(), nil); err == nil {
		t.Fatal("Select with no candidates: want error, got nil")
	}
}

func TestPingRetriesThenFails(t *testing.T) {
	sel := NewSelector(http.DefaultClient)
	_, err := sel.Ping(context.Background(), Candidate{Name: "dead", URL: "http://127.0.0.1:1"})
	if err == nil {
		t.Fatal("Ping against unreachable host: want error, got nil")
	}
}
