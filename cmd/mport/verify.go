package main

import (
	"context"
	"flag"
	"path/filepath"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/internal/checksum"
)

// verify implements the `verify [-r] [pkg...]` CLI verb (spec.md §6):
// recheck every file-like asset's checksum against what's on disk, or,
// with -r, recompute and persist a fresh checksum instead of merely
// reporting a mismatch.
func verify(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	recompute := fs.Bool("r", false, "recompute and persist checksums instead of only reporting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := fs.Args()
	if len(names) == 0 {
		pkgs, err := e.store.ListPackages(ctx)
		if err != nil {
			return err
		}
		for _, p := range pkgs {
			names = append(names, p.Name)
		}
	}

	mismatches := 0
	for _, name := range names {
		n, err := verifyOne(ctx, e, name, *recompute)
		if err != nil {
			return err
		}
		mismatches += n
	}
	if mismatches > 0 && !*recompute {
		return mport.Warnf("cmd.verify", "", nil, "%d asset(s) failed checksum verification", mismatches)
	}
	return nil
}

func verifyOne(ctx context.Context, e *env, name string, recompute bool) (int, error) {
	assets, err := e.store.AssetsForPackage(ctx, name)
	if err != nil {
		return 0, mport.Fatalf("cmd.verify", name, err, "load assets")
	}

	mismatches := 0
	for _, a := range assets {
		if !a.Kind.IsFileLike() {
			continue
		}
		full := filepath.Join(e.cfg.Prefix, a.Path)
		ok, err := checksum.Verify(full, a.Checksum)
		if err != nil {
			e.cb.Message("warning: %s: %s: %v", name, a.Path, err)
			continue
		}
		if ok {
			continue
		}
		if recompute {
			sum, err := checksum.SHA256File(full)
			if err != nil {
				e.cb.Message("warning: %s: %s: could not recompute: %v", name, a.Path, err)
				continue
			}
			if err := e.store.UpdateAssetChecksum(ctx, name, a.Seq, sum); err != nil {
				return mismatches, mport.Fatalf("cmd.verify", name, err, "persist recomputed checksum for %s", a.Path)
			}
			e.cb.Message("%s: %s: checksum updated", name, a.Path)
			continue
		}
		mismatches++
		e.cb.Message("%s: %s: checksum mismatch", name, a.Path)
	}
	return mismatches, nil
}
