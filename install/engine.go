// Package install implements the three-phase Install Engine (spec
// §4.5): pre-install, actual install (one catalog transaction), and
// post-install. Grounded throughout on
// original_source/libmport/bundle_read_install_pkg.c's
// mport_bundle_read_install_pkg and its do_pre_install/
// do_actual_install/do_post_install helpers, translated from that
// file's manual STAILQ asset-list walk into a plain Go slice loop over
// asset.Builder-tracked ambient state.
package install

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/internal/procexec"
	"github.com/MidnightBSD/mport/internal/txscope"
	"github.com/MidnightBSD/mport/version"
)

// Engine installs bundles against a catalog rooted at a filesystem
// prefix (spec §5's chroot-capable root, Root == "" for the live
// system).
type Engine struct {
	Store *catalog.Store
	Root  string

	// MtreeBin names the mtree helper invoked during pre-install,
	// overridable in tests. Empty means "not found",
	// skipping that step the way mport_file_exists gates it in the C
	// original.
	MtreeBin string
}

// NewEngine returns an Engine rooted at root, using "mtree" from PATH.
func NewEngine(store *catalog.Store, root string) *Engine {
	return &Engine{Store: store, Root: root, MtreeBin: "mtree"}
}

// Options configures one Install call.
type Options struct {
	// Force skips the "already installed at same or higher version"
	// and unmet-dependency preconditions.
	Force bool
	// PreviousVersion is the version being replaced, if any; used to
	// evaluate a pkg-message's version window (spec §4.5.1). Empty for
	// a fresh install.
	PreviousVersion string
}

// root joins p onto the engine's root, the way mport->root is
// prepended to every filesystem path in the C original.
func (e *Engine) root(p string) string {
	if e.Root == "" {
		return p
	}
	return filepath.Join(e.Root, p)
}

// InstallPkg runs the full three-phase install of pkg from bundle
// reader r. On a stub asset of unknown kind or any precondition failure
// it returns a Warn *mport.Error without beginning Phase B; on any
// Phase A/B/C failure it returns a Fatal *mport.Error, having rolled
// back Phase B's transaction if it was reached (spec §4.5 "Failure
// model"). A pkg-message that cannot be parsed is the one Phase C
// failure reported as a Warn.
func (e *Engine) InstallPkg(ctx context.Context, r *bundle.Reader, pkg mport.Package, opts Options) error {
	cb := mport.CallbacksFrom(ctx)

	if err := e.Store.AttachStub(ctx, r.StubPath()); err != nil {
		return mport.Fatalf("install.InstallPkg", pkg.Name, err, "attach stub")
	}
	defer e.Store.DetachStub(ctx)

	assets, err := e.Store.StubAssets(ctx, pkg.Name)
	if err != nil {
		return mport.Fatalf("install.InstallPkg", pkg.Name, err, "load stub assets")
	}
	for _, a := range assets {
		if !a.Kind.Valid() {
			return mport.Warnf("install.InstallPkg", pkg.Name, nil, "unknown asset kind %q", a.Kind)
		}
	}

	if err := e.checkPreconditions(ctx, pkg, opts); err != nil {
		return err
	}

	if err := e.preInstall(ctx, r, pkg, assets); err != nil {
		return err
	}

	if err := e.actualInstall(ctx, r, pkg, assets, cb); err != nil {
		return err
	}

	if err := e.postInstall(ctx, r, pkg, assets, opts, cb); err != nil {
		return err
	}

	return nil
}

// checkPreconditions implements spec §4.5's "Precondition failure"
// clause: conflicts, unmet dependencies, and an already-installed
// same-or-higher version are Warn and abort before Phase B, unless
// Force is set.
func (e *Engine) checkPreconditions(ctx context.Context, pkg mport.Package, opts Options) error {
	if existing, err := e.Store.GetPackage(ctx, pkg.Name); err == nil {
		if !opts.Force && version.Compare(existing.Version, pkg.Version) >= 0 {
			return mport.Warnf("install.checkPreconditions", pkg.Name, nil,
				"already installed at version %s >= %s", existing.Version, pkg.Version)
		}
	} else if err != catalog.ErrNotFound {
		return mport.Fatalf("install.checkPreconditions", pkg.Name, err, "lookup existing package")
	}

	conflicts, err := e.Store.StubConflicts(ctx, pkg.Name)
	if err != nil {
		return mport.Fatalf("install.checkPreconditions", pkg.Name, err, "load conflicts")
	}
	for _, c := range conflicts {
		if _, err := e.Store.GetPackage(ctx, c.ConflictPkg); err == nil {
			return mport.Warnf("install.checkPreconditions", pkg.Name, nil,
				"conflicts with installed package %s", c.ConflictPkg)
		}
	}

	if opts.Force {
		return nil
	}

	depends, err := e.Store.StubDepends(ctx, pkg.Name)
	if err != nil {
		return mport.Fatalf("install.checkPreconditions", pkg.Name, err, "load depends")
	}
	for _, d := range depends {
		dep, err := e.Store.GetPackage(ctx, d.DependPkg)
		if err != nil {
			return mport.Warnf("install.checkPreconditions", pkg.Name, nil,
				"unmet dependency %s", d.DependPkg)
		}
		if d.DependVersion != "" {
			if res := version.RequireCheck(dep.Version, d.DependVersion); res != version.Met {
				return mport.Warnf("install.checkPreconditions", pkg.Name, nil,
					"dependency %s version %s does not satisfy %s", d.DependPkg, dep.Version, d.DependVersion)
			}
		}
	}

	return nil
}

// ensurePrefix creates pkg.prefix if it does not exist, special-casing
// "/compat/linux" so "/compat" is created first (spec §4.5 Phase A.5).
func (e *Engine) ensurePrefix(prefix string) error {
	full := e.root(prefix)
	if _, err := os.Stat(full); err == nil {
		return nil
	}
	if prefix == "/compat/linux" {
		if err := os.MkdirAll(e.root("/compat"), 0o755); err != nil {
			return err
		}
	}
	return os.MkdirAll(full, 0o755)
}

func phaseAssets(assets []catalog.StubAsset, include func(asset.Kind) bool) []catalog.StubAsset {
	out := make([]catalog.StubAsset, 0, len(assets))
	for _, a := range assets {
		if include(a.Kind) {
			out = append(out, a)
		}
	}
	return out
}

// runExternal runs name in dir, logging through cb.Message and turning
// a non-zero exit or start failure into a Fatal error.
func runExternal(ctx context.Context, cb mport.Callbacks, op, pkg, dir, name string, args ...string) error {
	res, err := procexec.Run(ctx, dir, nil, name, args...)
	if err != nil {
		return mport.Fatalf(op, pkg, err, "run %s", name)
	}
	if res.ExitCode != 0 {
		cb.Message("%s", res.Stderr)
		return mport.Fatalf(op, pkg, nil, "%s exited %d", name, res.ExitCode)
	}
	return nil
}

// markComplete appends the terminal "Installed" log entry and marks
// the package row clean in one transaction, so a row never turns Clean
// without its log entry.
func (e *Engine) markComplete(ctx context.Context, pkg mport.Package) error {
	return txscope.Do(ctx, e.Store.DB(), nil, func(tx *sql.Tx) error {
		if err := e.Store.SetStatus(ctx, tx, pkg.Name, mport.StatusClean); err != nil {
			return err
		}
		return e.Store.AppendLog(ctx, tx, mport.LogEntry{
			Pkg: pkg.Name, Version: pkg.Version, At: time.Now().UTC(), Message: "Installed",
		})
	})
}
