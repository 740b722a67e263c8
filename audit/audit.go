// Package audit implements the security-advisory sweep (spec §4.9):
// for every installed package carrying a CPE, fetch the advisory
// endpoint's JSON document keyed by that CPE and report the matching
// entries.
//
// Grounded on original_source/libmport/audit.c's mport_audit (CPE
// lookup, JSON document fetch, entries array walk keyed by cveId and
// description), with the teacher's libvuln.Options.Client "falls back
// to http.DefaultClient, with a warning" idiom substituted for the
// original's libcurl fetch and UCL parse.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quay/zlog"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/catalog"
)

// Entry is one matched advisory (audit.c's ucl entry: cveId + description).
type Entry struct {
	CVEID       string `json:"cveId"`
	Description string `json:"description"`
}

// advisoryDoc is the top-level shape of the fetched JSON document.
type advisoryDoc struct {
	Entries []Entry `json:"entries"`
}

// Report is one package's audit result.
type Report struct {
	Package string
	Version string
	CPE     string
	Entries []Entry
}

// Options configures an Engine.
type Options struct {
	// Endpoint is the advisory service base URL; the CPE is appended as
	// a query parameter. Required.
	Endpoint string
	// Client issues the HTTP fetch. If unset, http.DefaultClient is
	// used and a warning is logged, mirroring the teacher's
	// libvuln.Options.Client fallback.
	Client *http.Client
}

// Engine runs the audit sweep against a catalog.
type Engine struct {
	Store   *catalog.Store
	opts    Options
}

// NewEngine returns an Engine; a nil opts.Client falls back to
// http.DefaultClient.
func NewEngine(ctx context.Context, store *catalog.Store, opts Options) *Engine {
	if opts.Client == nil {
		zlog.Warn(ctx).Msg("audit: using default HTTP client; this will become an error in the future")
		opts.Client = http.DefaultClient
	}
	return &Engine{Store: store, opts: opts}
}

// Sweep audits every installed package with a non-empty CPE, or just
// pkgName if non-empty. Per-package fetch/parse failures are logged as
// Warn and do not abort the sweep (spec §4.9's closing sentence).
func (e *Engine) Sweep(ctx context.Context, pkgName string) ([]Report, error) {
	var packages []mport.Package
	if pkgName != "" {
		pkg, err := e.Store.GetPackage(ctx, pkgName)
		if err != nil {
			return nil, mport.Fatalf("audit.Sweep", pkgName, err, "load package")
		}
		packages = []mport.Package{pkg}
	} else {
		all, err := e.Store.ListPackages(ctx)
		if err != nil {
			return nil, mport.Fatalf("audit.Sweep", "", err, "list installed packages")
		}
		packages = all
	}

	var reports []Report
	for _, pkg := range packages {
		if pkg.CPE == "" {
			continue
		}
		entries, err := e.fetch(ctx, pkg.CPE)
		if err != nil {
			zlog.Warn(ctx).Err(err).Str("package", pkg.Name).Str("cpe", pkg.CPE).Msg("audit: fetch failed")
			continue
		}
		if len(entries) == 0 {
			continue
		}
		reports = append(reports, Report{
			Package: pkg.Name,
			Version: pkg.Version,
			CPE:     pkg.CPE,
			Entries: entries,
		})
	}
	return reports, nil
}

// fetch retrieves and parses the advisory document for one CPE.
func (e *Engine) fetch(ctx context.Context, cpe string) ([]Entry, error) {
	u, err := url.Parse(e.opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("audit: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("cpe", cpe)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("audit: build request: %w", err)
	}

	resp, err := e.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audit: fetch advisories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audit: advisory endpoint returned %s", resp.Status)
	}

	var doc advisoryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("audit: decode advisory document: %w", err)
	}

	var out []Entry
	for _, e := range doc.Entries {
		if e.CVEID == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Render formats reports the way the CLI's `audit` verb prints them
// (audit.c's "%s-%s is vulnerable:\n%s\nDescription: %s\n" format).
func Render(reports []Report) string {
	var out string
	for _, r := range reports {
		out += fmt.Sprintf("%s-%s is vulnerable:\n", r.Package, r.Version)
		for _, e := range r.Entries {
			out += fmt.Sprintf("%s\nDescription: %s\n", e.CVEID, e.Description)
		}
	}
	return out
}
