package install

import (
	"context"
	"os"
	"path/filepath"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
)

// infraDir is the persistent per-package infra path, mirroring
// MPORT_INST_INFRA_DIR/<name>-<version> in the C original.
func (e *Engine) infraDir(pkg mport.Package) string {
	return e.root(filepath.Join("var/db/mport/infra", pkg.Name+"-"+pkg.Version))
}

// copyMetafile copies one infra file (mtree, pkg-install, pkg-
// deinstall, pkg-message, or a lifecycle script) from the bundle's
// stub infra directory into the persistent infra path, a no-op if the
// bundle didn't carry that file (spec §4.5 Phase A.2/C.1, grounded on
// copy_metafile in bundle_read_install_pkg.c).
func (e *Engine) copyMetafile(r *bundle.Reader, pkg mport.Package, name string) error {
	src := r.InfraFile(name)
	if src == "" {
		return nil
	}
	dir := e.infraDir(pkg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mport.Fatalf("install.copyMetafile", pkg.Name, err, "mkdir infra dir")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return mport.Fatalf("install.copyMetafile", pkg.Name, err, "read %s", name)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o750); err != nil {
		return mport.Fatalf("install.copyMetafile", pkg.Name, err, "write %s", name)
	}
	return nil
}

// preInstall runs Phase A (spec §4.5 Phase A): mtree, lifecycle script
// staging and the pre-install script, the legacy pkg-install PRE-
// INSTALL hook, @cwd/@pre-exec directives, and prefix creation.
func (e *Engine) preInstall(ctx context.Context, r *bundle.Reader, pkg mport.Package, assets []catalog.StubAsset) error {
	cb := mport.CallbacksFrom(ctx)

	if mtree := r.InfraFile(bundle.FileMtree); mtree != "" && e.MtreeBin != "" {
		if err := runExternal(ctx, cb, "install.preInstall", pkg.Name, pkg.Prefix,
			e.MtreeBin, "-U", "-f", mtree, "-d", "-e", "-p", e.root(pkg.Prefix)); err != nil {
			return err
		}
	}

	for _, name := range []string{
		bundle.FilePreInstallLua, bundle.FilePostInstallLua,
		bundle.FilePreDeinstall, bundle.FilePostDeinstall,
	} {
		if err := e.copyMetafile(r, pkg, name); err != nil {
			return err
		}
	}
	if script := e.infraScript(pkg, bundle.FilePreInstallLua); script != "" {
		if err := runExternal(ctx, cb, "install.preInstall", pkg.Name, pkg.Prefix, script); err != nil {
			return err
		}
	}

	if installFile := r.InfraFile(bundle.FilePkgInstall); installFile != "" {
		if err := os.Chmod(installFile, 0o750); err != nil {
			return mport.Fatalf("install.preInstall", pkg.Name, err, "chmod pkg-install")
		}
		if err := runExternal(ctx, cb, "install.preInstall", pkg.Name, pkg.Prefix,
			installFile, pkg.Name, "PRE-INSTALL"); err != nil {
			return err
		}
	}

	if err := e.ensurePrefix(pkg.Prefix); err != nil {
		return mport.Fatalf("install.preInstall", pkg.Name, err, "create prefix %s", pkg.Prefix)
	}

	b := asset.NewBuilder(pkg.Prefix)
	for _, a := range phaseAssets(assets, isPreInstallKind) {
		switch a.Kind {
		case asset.KindCwd:
			b.Apply(pkg.Prefix, asset.Asset{Kind: a.Kind, Data: a.Data})
		case asset.KindPreExec:
			cmd := substituteFile(a.Data, "")
			if err := runExternal(ctx, cb, "install.preInstall", pkg.Name, e.root(b.Cwd),
				"/bin/sh", "-c", cmd); err != nil {
				return err
			}
		}
	}

	return nil
}

func isPreInstallKind(k asset.Kind) bool {
	return k == asset.KindCwd || k == asset.KindPreExec
}

// infraScript returns the path of name inside pkg's persistent infra
// directory, or "" if it was never copied there.
func (e *Engine) infraScript(pkg mport.Package, name string) string {
	p := filepath.Join(e.infraDir(pkg), name)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// substituteFile replaces the "%F" template token in an exec command
// with the most recently extracted file's path (spec §4.5 Phase B.4
// "exec"), leaving the command untouched if there is no token.
func substituteFile(cmd, file string) string {
	const token = "%F"
	if file == "" {
		return cmd
	}
	out := make([]byte, 0, len(cmd))
	for i := 0; i < len(cmd); i++ {
		if i+1 < len(cmd) && cmd[i] == '%' && cmd[i+1] == 'F' {
			out = append(out, file...)
			i++
			continue
		}
		out = append(out, cmd[i])
	}
	return string(out)
}
