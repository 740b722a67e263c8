package install

import (
	"context"
	"os"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/internal/procexec"
)

// isPostInstallKind is the set of directives Phase C processes: the
// @cwd bookkeeping directive plus every refresher that must run after
// the files it refreshes over are already on disk. spec.md §4.5 Phase
// C step 2 lists kld and desktop-db alongside the others; the Kld/
// DesktopDB rows are included here on that authority even though the
// original C query this is grounded on appears to omit them from its
// SQL filter (see DESIGN.md).
func isPostInstallKind(k asset.Kind) bool {
	switch k {
	case asset.KindCwd, asset.KindPostExec, asset.KindLdconfig, asset.KindLdconfigLinux,
		asset.KindGlibSchemas, asset.KindInfo, asset.KindKld, asset.KindDesktopDB, asset.KindTouch:
		return true
	default:
		return false
	}
}

// postInstall runs Phase C (spec §4.5 Phase C): metafile persistence,
// the post-exec-class directive walk, the post-install lifecycle
// script and legacy pkg-install hook, pkg-message display, service
// start, and the terminal clean-status commit.
func (e *Engine) postInstall(ctx context.Context, r *bundle.Reader, pkg mport.Package, assets []catalog.StubAsset, opts Options, cb mport.Callbacks) error {
	for _, name := range []string{bundle.FileMtree, bundle.FilePkgInstall, bundle.FilePkgDeinstall, bundle.FilePkgMessage} {
		if err := e.copyMetafile(r, pkg, name); err != nil {
			return err
		}
	}

	b := asset.NewBuilder(pkg.Prefix)
	for _, a := range phaseAssets(assets, isPostInstallKind) {
		switch a.Kind {
		case asset.KindCwd:
			b.Apply(pkg.Prefix, asset.Asset{Kind: a.Kind, Data: a.Data})
		case asset.KindPostExec:
			cmd := substituteFile(a.Data, "")
			if err := runExternal(ctx, cb, "install.postInstall", pkg.Name, e.root(b.Cwd), "/bin/sh", "-c", cmd); err != nil {
				return err
			}
		case asset.KindLdconfig, asset.KindLdconfigLinux:
			if err := e.runLdconfig(ctx, cb, pkg, a.Kind); err != nil {
				return err
			}
		case asset.KindGlibSchemas:
			if procexec.LookPath("glib-compile-schemas") {
				if err := runExternal(ctx, cb, "install.postInstall", pkg.Name, e.root(b.Cwd),
					"glib-compile-schemas", e.root(resolvePath(b.Cwd, a.Data))); err != nil {
					return err
				}
			}
		case asset.KindInfo:
			if procexec.LookPath("indexinfo") {
				if err := runExternal(ctx, cb, "install.postInstall", pkg.Name, e.root(pkg.Prefix),
					"indexinfo", e.root(resolvePath(b.Cwd, a.Data))); err != nil {
					return err
				}
			}
		case asset.KindKld:
			if procexec.LookPath("kldxref") {
				if err := runExternal(ctx, cb, "install.postInstall", pkg.Name, e.root(b.Cwd),
					"kldxref", e.root(resolvePath(b.Cwd, a.Data))); err != nil {
					return err
				}
			}
		case asset.KindDesktopDB:
			if procexec.LookPath("update-desktop-database") {
				if err := runExternal(ctx, cb, "install.postInstall", pkg.Name, e.root(b.Cwd),
					"update-desktop-database", e.root(resolvePath(b.Cwd, a.Data))); err != nil {
					return err
				}
			}
		case asset.KindTouch:
			path := e.root(resolvePath(b.Cwd, a.Data))
			if err := touchFile(path); err != nil {
				return mport.Fatalf("install.postInstall", pkg.Name, err, "touch %s", path)
			}
		}
	}

	if script := e.infraScript(pkg, bundle.FilePostInstallLua); script != "" {
		if err := runExternal(ctx, cb, "install.postInstall", pkg.Name, pkg.Prefix, script); err != nil {
			return err
		}
	}
	if installFile := r.InfraFile(bundle.FilePkgInstall); installFile != "" {
		if err := runExternal(ctx, cb, "install.postInstall", pkg.Name, pkg.Prefix,
			installFile, pkg.Name, "POST-INSTALL"); err != nil {
			return err
		}
	}

	if err := e.displayPkgMessage(r, pkg, opts, cb); err != nil {
		return err
	}

	if err := e.startServices(ctx, cb, pkg); err != nil {
		return err
	}

	return e.markComplete(ctx, pkg)
}

// runLdconfig runs ldconfig (or the Linux-compat flavor) over the
// asset's named library directory.
func (e *Engine) runLdconfig(ctx context.Context, cb mport.Callbacks, pkg mport.Package, kind asset.Kind) error {
	if !procexec.LookPath("ldconfig") {
		return nil
	}
	args := []string{"-m", e.root("lib"), e.root("usr/lib")}
	if kind == asset.KindLdconfigLinux {
		args = []string{"-m", e.root("compat/linux/lib"), e.root("compat/linux/usr/lib")}
	}
	return runExternal(ctx, cb, "install.postInstall", pkg.Name, e.root(pkg.Prefix), "ldconfig", args...)
}

// touchFile creates path if it does not already exist, updating its
// mtime if it does.
func touchFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// displayPkgMessage shows every message entry scoped to the current
// action (upgrade when opts.PreviousVersion is set, install otherwise)
// and bracketing opts.PreviousVersion (spec §4.5.1), reading the
// bundle's pkg-message through r.InfraFile.
func (e *Engine) displayPkgMessage(r *bundle.Reader, pkg mport.Package, opts Options, cb mport.Callbacks) error {
	src := r.InfraFile(bundle.FilePkgMessage)
	if src == "" {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil
	}
	msgs, err := bundle.ParseMessage(data)
	if err != nil {
		return mport.Warnf("install.displayPkgMessage", pkg.Name, err, "parse pkg-message")
	}
	action := bundle.MessageInstall
	if opts.PreviousVersion != "" {
		action = bundle.MessageUpgrade
	}
	for _, text := range bundle.Select(msgs, action, opts.PreviousVersion) {
		cb.Message("%s", text)
	}
	return nil
}

// startServices best-effort starts every service pkg registered,
// tolerating a missing service manager the way a chrooted or minimal
// install environment would.
func (e *Engine) startServices(ctx context.Context, cb mport.Callbacks, pkg mport.Package) error {
	svcs, err := e.Store.ServicesForPackage(ctx, pkg.Name)
	if err != nil {
		return mport.Fatalf("install.startServices", pkg.Name, err, "load services")
	}
	if len(svcs) == 0 || !procexec.LookPath("service") {
		return nil
	}
	for _, name := range svcs {
		if err := runExternal(ctx, cb, "install.startServices", pkg.Name, e.root(pkg.Prefix),
			"service", name, "start"); err != nil {
			cb.Message("failed to start service %s: %v", name, err)
		}
	}
	return nil
}
