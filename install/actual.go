package install

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/asset"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/internal/txscope"
)

// isActualInstallKind is the set of directives Phase B processes
// (spec §4.5 Phase B.4): ambient-state directives, directory
// creation/removal, file-like extraction, and exec — everything else
// (pre/post-exec, ldconfig, and the rest of the post-install-only
// refreshers) is handled by its own phase.
func isActualInstallKind(k asset.Kind) bool {
	switch k {
	case asset.KindCwd, asset.KindChmod, asset.KindChown, asset.KindChgrp,
		asset.KindDirectory, asset.KindDirectoryOwnerMode, asset.KindDirectoryRemove, asset.KindDirectoryRemoveTry,
		asset.KindFile, asset.KindFileOwnerMode, asset.KindSample, asset.KindSampleOwnerMode,
		asset.KindShell, asset.KindInfo, asset.KindExec:
		return true
	default:
		return false
	}
}

// actualInstall runs Phase B: one catalog transaction that inserts the
// package, its stub-derived relations, and every asset it creates on
// disk (spec §4.5 Phase B).
func (e *Engine) actualInstall(ctx context.Context, r *bundle.Reader, pkg mport.Package, assets []catalog.StubAsset, cb mport.Callbacks) error {
	actual := phaseAssets(assets, isActualInstallKind)

	fileTotal := 0
	for _, a := range actual {
		if a.Kind.IsFileLike() {
			fileTotal++
		}
	}
	cb.ProgressInit(fmt.Sprintf("Installing %s-%s", pkg.Name, pkg.Version))
	defer cb.ProgressFree()

	err := txscope.Do(ctx, e.Store.DB(), nil, func(tx *sql.Tx) error {
		pkg.Status = mport.StatusDirty
		if err := e.Store.InsertPackage(ctx, tx, pkg); err != nil {
			return err
		}
		if err := e.Store.CopyStubDepends(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := e.Store.CopyStubConflicts(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := e.Store.CopyStubCategories(ctx, tx, pkg.Name); err != nil {
			return err
		}
		if err := e.Store.CopyStubServices(ctx, tx, pkg.Name); err != nil {
			return err
		}

		b := asset.NewBuilder(pkg.Prefix)
		fileCount := 0
		lastFile := ""

		for _, a := range actual {
			var storedPath, checksum, owner, group, mode string

			switch {
			case a.Kind == asset.KindCwd || a.Kind == asset.KindChmod || a.Kind == asset.KindChown || a.Kind == asset.KindChgrp:
				b.Apply(pkg.Prefix, asset.Asset{Kind: a.Kind, Data: a.Data})
				continue // ambient-only directives leave no asset row

			case a.Kind.IsDirectory():
				dir := resolvePath(b.Cwd, a.Data)
				full := e.root(dir)
				if err := os.MkdirAll(full, 0o777); err != nil {
					return mport.Fatalf("install.actualInstall", pkg.Name, err, "mkdir %s", dir)
				}
				dirOwner, dirGroup, dirMode := b.ResolveOwnerModeGroup(asset.Asset{
					Kind: a.Kind, Owner: a.Owner, Group: a.Group, Mode: a.Mode,
				})
				if err := applyOwnerMode(full, dirOwner, dirGroup, dirMode); err != nil {
					return mport.Fatalf("install.actualInstall", pkg.Name, err, "set owner/mode on %s", dir)
				}
				storedPath = dir

			case a.Kind.IsFileLike():
				hdr, err := r.NextEntry()
				if err != nil {
					return mport.Fatalf("install.actualInstall", pkg.Name, err, "unexpected end of bundle stream")
				}
				data := a.Data
				if a.Kind == asset.KindSample || a.Kind == asset.KindSampleOwnerMode {
					data = sampleFirstToken(a.Data)
				}
				destRel := resolvePath(b.Cwd, data)
				destFull := e.root(destRel)
				if err := r.ExtractNextFile(hdr, destFull); err != nil {
					return mport.Fatalf("install.actualInstall", pkg.Name, err, "extract %s", destRel)
				}
				lastFile = destFull
				fileCount++
				cb.ProgressStep(fileCount, fileTotal, destRel)

				owner, group, mode = b.ResolveOwnerModeGroup(asset.Asset{
					Kind: a.Kind, Owner: a.Owner, Group: a.Group, Mode: a.Mode,
				})
				if err := applyOwnerMode(destFull, owner, group, mode); err != nil {
					return mport.Fatalf("install.actualInstall", pkg.Name, err, "set owner/mode on %s", destRel)
				}

				if a.Kind == asset.KindShell {
					if err := registerShell(e.root("etc/shells"), destFull); err != nil {
						return mport.Fatalf("install.actualInstall", pkg.Name, err, "register shell %s", destFull)
					}
				}
				if a.Kind == asset.KindSample || a.Kind == asset.KindSampleOwnerMode {
					target := e.root(resolvePath(b.Cwd, asset.SampleTarget(a.Data)))
					if _, err := os.Stat(target); os.IsNotExist(err) {
						if err := copyFile(destFull, target); err != nil {
							return mport.Fatalf("install.actualInstall", pkg.Name, err, "create sample %s", target)
						}
					}
				}

				storedPath = destRel
				checksum = a.Checksum

			case a.Kind == asset.KindExec:
				cmd := substituteFile(a.Data, lastFile)
				if err := runExternal(ctx, cb, "install.actualInstall", pkg.Name,
					e.root(b.Cwd), "/bin/sh", "-c", cmd); err != nil {
					return err
				}
				storedPath = a.Data

			default:
				continue
			}

			if err := e.Store.InsertAsset(ctx, tx, pkg.Name, a.Seq, asset.Asset{
				Kind: a.Kind, Data: a.Data, Checksum: checksum, Owner: owner, Group: group, Mode: mode,
			}, storedPath); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if _, ok := err.(*mport.Error); ok {
			return err
		}
		return mport.Fatalf("install.actualInstall", pkg.Name, err, "phase B failed")
	}
	return nil
}

// applyOwnerMode best-effort chowns and chmods path; empty strings
// leave the corresponding attribute untouched.
func applyOwnerMode(path, owner, group, mode string) error {
	if owner != "" || group != "" {
		uid, gid, err := lookupOwner(owner, group)
		if err != nil {
			return err
		}
		if err := os.Chown(path, uid, gid); err != nil {
			return err
		}
	}
	if mode != "" {
		m, err := parseMode(mode)
		if err != nil {
			return err
		}
		if err := os.Chmod(path, m); err != nil {
			return err
		}
	}
	return nil
}

func parseMode(s string) (os.FileMode, error) {
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(m), nil
}

// registerShell appends path to the system shells list if not already
// present. A missing shells file is treated as empty and created, since
// not every test root carries one; a missing parent directory is an
// error.
func registerShell(shellsFile, path string) error {
	data, err := os.ReadFile(shellsFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if containsLine(string(data), path) {
		return nil
	}
	f, err := os.OpenFile(shellsFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(path + "\n")
	return err
}

func containsLine(data, line string) bool {
	for _, l := range splitLines(data) {
		if l == line {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// sampleFirstToken trims a whitespace-separated second token off data,
// leaving only the first (the file destination), since the extraction
// path itself must never include the "<file> <altfile>" form (spec
// §4.5 Phase B.4 "sample").
func sampleFirstToken(data string) string {
	for i := 0; i < len(data); i++ {
		if data[i] == ' ' || data[i] == '\t' {
			return data[:i]
		}
	}
	return data
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
