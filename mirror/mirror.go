// Package mirror selects the fastest-responding mirror from a
// configured candidate list (spec §5, §6 `mirror list|select`).
//
// Grounded on original_source/libmport/ping.c's retry loop (MAX_RETRIES
// 3, one second between attempts, RTT measured from send to reply) —
// a raw ICMP socket needs root and is not a portable idiomatic Go
// primitive, so each candidate's RTT is measured instead with a timed
// HTTP HEAD against the mirror's index URL, keeping ping.c's bounded-
// retry shape (3 attempts, time.Sleep(time.Second) between, per the
// distlock manager's retry idiom) over raw sockets.
package mirror

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/quay/zlog"
)

const (
	maxRetries  = 3
	retryDelay  = time.Second
	pingTimeout = 2 * time.Second
)

// Candidate is one configured mirror.
type Candidate struct {
	Name string
	URL  string
}

// Result pairs a candidate with its measured round-trip time. RTT is
// -1 if every attempt failed.
type Result struct {
	Candidate Candidate
	RTT       time.Duration
}

// Selector measures and ranks mirror candidates.
type Selector struct {
	Client *http.Client
}

// NewSelector returns a Selector; a nil client falls back to
// http.DefaultClient.
func NewSelector(client *http.Client) *Selector {
	if client == nil {
		client = http.DefaultClient
	}
	return &Selector{Client: client}
}

// Ping measures one candidate's round-trip time, retrying up to
// maxRetries times with retryDelay between attempts (ping.c's
// MAX_RETRIES loop). It returns -1 if every attempt failed.
func (s *Selector) Ping(ctx context.Context, c Candidate) (time.Duration, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		rtt, err := s.probe(ctx, c)
		if err == nil {
			return rtt, nil
		}
		lastErr = err
		zlog.Debug(ctx).Str("mirror", c.Name).Int("attempt", attempt).Err(err).Msg("mirror: probe failed")

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return -1, fmt.Errorf("mirror: %s unreachable after %d attempts: %w", c.Name, maxRetries, lastErr)
}

func (s *Selector) probe(ctx context.Context, c Candidate) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return time.Since(start), nil
}

// List pings every candidate and returns the results sorted fastest
// first. Unreachable candidates (RTT -1) sort last.
func (s *Selector) List(ctx context.Context, candidates []Candidate) []Result {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		rtt, err := s.Ping(ctx, c)
		if err != nil {
			rtt = -1
		}
		results[i] = Result{Candidate: c, RTT: rtt}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RTT < 0 {
			return false
		}
		if results[j].RTT < 0 {
			return true
		}
		return results[i].RTT < results[j].RTT
	})
	return results
}

// Select returns the fastest-responding candidate. It returns an error
// if none of them are reachable.
func (s *Selector) Select(ctx context.Context, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("mirror: no candidates configured")
	}
	results := s.List(ctx, candidates)
	if results[0].RTT < 0 {
		return Candidate{}, fmt.Errorf("mirror: no candidate reachable")
	}
	return results[0].Candidate, nil
}
