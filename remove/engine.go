// Package remove implements the Delete Engine (spec §4.6): the mirror
// image of package install, walking a package's assets in reverse
// order, running the deinstall lifecycle, and retiring its catalog
// rows in one transaction. Grounded on install.Engine's phase
// structure — there is no delete_pkg.c in the retrieved original
// sources, so this package mirrors the install engine's own shape
// (runExternal, infra directory, phase partitioning) rather than a
// literal C translation.
package remove

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/internal/checksum"
	"github.com/MidnightBSD/mport/internal/procexec"
	"github.com/MidnightBSD/mport/internal/txscope"
)

// Engine deletes packages from a catalog rooted at a filesystem prefix.
type Engine struct {
	Store *catalog.Store
	Root  string
}

// NewEngine returns an Engine rooted at root.
func NewEngine(store *catalog.Store, root string) *Engine {
	return &Engine{Store: store, Root: root}
}

// Options configures one Delete call.
type Options struct {
	// Force tolerates an unverifiable checksum or a failed file
	// removal, continuing with a Warn instead of aborting (spec §4.6).
	Force bool
}

func (e *Engine) root(p string) string {
	if e.Root == "" {
		return p
	}
	return filepath.Join(e.Root, p)
}

func (e *Engine) infraDir(name, version string) string {
	return e.root(filepath.Join("var/db/mport/infra", name+"-"+version))
}

// DeletePkg removes pkg: stops its services, runs the pre-deinstall
// hook, removes its assets in reverse plist order, runs the post-
// deinstall hook, and retires its catalog rows in one transaction
// (spec §4.6). A locked package is refused outright.
func (e *Engine) DeletePkg(ctx context.Context, pkg mport.Package, opts Options) error {
	cb := mport.CallbacksFrom(ctx)

	if pkg.Locked {
		return mport.Warnf("remove.DeletePkg", pkg.Name, nil, "package is locked")
	}

	assets, err := e.Store.AssetsForPackage(ctx, pkg.Name)
	if err != nil {
		return mport.Fatalf("remove.DeletePkg", pkg.Name, err, "load assets")
	}

	if err := e.stopServices(ctx, cb, pkg); err != nil && !opts.Force {
		return err
	}

	if err := e.runDeinstallHook(ctx, cb, pkg, "DEINSTALL"); err != nil && !opts.Force {
		return err
	}

	if err := e.removeAssets(ctx, cb, pkg, assets, opts); err != nil {
		return err
	}

	if err := e.runDeinstallHook(ctx, cb, pkg, "POST-DEINSTALL"); err != nil && !opts.Force {
		return err
	}

	if err := e.runLdconfigRefresh(ctx, cb, pkg, assets); err != nil && !opts.Force {
		return err
	}

	if err := e.retireCatalogRows(ctx, pkg); err != nil {
		return err
	}

	if err := os.RemoveAll(e.infraDir(pkg.Name, pkg.Version)); err != nil && !os.IsNotExist(err) {
		cb.Message("warning: could not remove infra dir for %s: %v", pkg.Name, err)
	}

	return nil
}

func (e *Engine) stopServices(ctx context.Context, cb mport.Callbacks, pkg mport.Package) error {
	svcs, err := e.Store.ServicesForPackage(ctx, pkg.Name)
	if err != nil {
		return mport.Fatalf("remove.stopServices", pkg.Name, err, "load services")
	}
	if len(svcs) == 0 || !procexec.LookPath("service") {
		return nil
	}
	for _, name := range svcs {
		res, err := procexec.Run(ctx, e.root(pkg.Prefix), nil, "service", name, "stop")
		if err != nil || res.ExitCode != 0 {
			cb.Message("warning: failed to stop service %s for %s", name, pkg.Name)
		}
	}
	return nil
}

// runDeinstallHook runs the persisted pkg-deinstall script, if any,
// with the given lifecycle stage argument, mirroring the install
// engine's legacy pkg-install hook invocation.
func (e *Engine) runDeinstallHook(ctx context.Context, cb mport.Callbacks, pkg mport.Package, stage string) error {
	script := filepath.Join(e.infraDir(pkg.Name, pkg.Version), "pkg-deinstall")
	if _, err := os.Stat(script); err != nil {
		return nil
	}
	res, err := procexec.Run(ctx, e.root(pkg.Prefix), nil, script, pkg.Name, stage)
	if err != nil {
		return mport.Fatalf("remove.runDeinstallHook", pkg.Name, err, "run pkg-deinstall %s", stage)
	}
	if res.ExitCode != 0 {
		cb.Message("%s", res.Stderr)
		return mport.Fatalf("remove.runDeinstallHook", pkg.Name, nil, "pkg-deinstall %s exited %d", stage, res.ExitCode)
	}
	return nil
}

// removeAssets walks assets in reverse plist order, removing files
// (checksum-verified unless Force) and then directories best-effort
// (directory-remove-try tolerates ENOTEMPTY), per spec §4.6.
func (e *Engine) removeAssets(ctx context.Context, cb mport.Callbacks, pkg mport.Package, assets []catalog.StoredAsset, opts Options) error {
	total := 0
	for _, a := range assets {
		if a.Kind.IsFileLike() || a.Kind.IsDirectory() {
			total++
		}
	}
	cb.ProgressInit("Deleting " + pkg.Name + "-" + pkg.Version)
	defer cb.ProgressFree()
	done := 0

	for i := len(assets) - 1; i >= 0; i-- {
		a := assets[i]
		full := e.root(a.Path)

		switch {
		case a.Kind.IsFileLike():
			ok, err := checksum.Verify(full, a.Checksum)
			if err != nil {
				if os.IsNotExist(err) {
					continue // already gone; nothing to verify or remove
				}
				if !opts.Force {
					return mport.Fatalf("remove.removeAssets", pkg.Name, err, "checksum %s", a.Path)
				}
				cb.Message("warning: could not checksum %s: %v", a.Path, err)
			} else if !ok && !opts.Force {
				return mport.Warnf("remove.removeAssets", pkg.Name, nil, "checksum mismatch for %s", a.Path)
			} else if !ok {
				cb.Message("warning: checksum mismatch for %s, removing anyway", a.Path)
			}

			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				if !opts.Force {
					return mport.Fatalf("remove.removeAssets", pkg.Name, err, "remove %s", a.Path)
				}
				cb.Message("warning: could not remove %s: %v", a.Path, err)
			}
			done++
			cb.ProgressStep(done, total, a.Path)

		case a.Kind == asset.KindDirectoryRemoveTry:
			_ = os.Remove(full) // non-empty directory is tolerated silently
			done++
			cb.ProgressStep(done, total, a.Path)

		case a.Kind == asset.KindDirectory || a.Kind == asset.KindDirectoryOwnerMode || a.Kind == asset.KindDirectoryRemove:
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				cb.Message("warning: could not remove directory %s: %v", a.Path, err)
			}
			done++
			cb.ProgressStep(done, total, a.Path)
		}
	}
	return nil
}

func (e *Engine) runLdconfigRefresh(ctx context.Context, cb mport.Callbacks, pkg mport.Package, assets []catalog.StoredAsset) error {
	if !procexec.LookPath("ldconfig") {
		return nil
	}
	for _, a := range assets {
		var args []string
		switch a.Kind {
		case asset.KindLdconfig:
			args = []string{"-R"}
		case asset.KindLdconfigLinux:
			args = []string{"-m", e.root("compat/linux/lib"), e.root("compat/linux/usr/lib")}
		default:
			continue
		}
		res, err := procexec.Run(ctx, e.root(pkg.Prefix), nil, "ldconfig", args...)
		if err != nil || res.ExitCode != 0 {
			cb.Message("warning: ldconfig refresh failed for %s", pkg.Name)
		}
	}
	return nil
}

// retireCatalogRows deletes pkg's dependency, conflict, category,
// service, script, asset, and package rows in one transaction (spec
// §4.6's closing "single transaction" requirement).
func (e *Engine) retireCatalogRows(ctx context.Context, pkg mport.Package) error {
	return txscope.Do(ctx, e.Store.DB(), nil, func(tx *sql.Tx) error {
		if err := e.Store.DeleteDependsForPackage(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := e.Store.DeleteConflictsForPackage(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := e.Store.DeleteCategoriesForPackage(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := e.Store.DeleteServicesForPackage(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := e.Store.DeleteAssetsForPackage(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := e.Store.DeletePackage(ctx, tx, pkg.Name); err != nil {
			return err
		}
		return e.Store.AppendLog(ctx, tx, mport.LogEntry{
			Pkg: pkg.Name, Version: pkg.Version, At: time.Now().UTC(), Message: "Deleted",
		})
	})
}
