// Command mport is the thin composition root wiring the catalog store
// and the install/delete/autoremove/audit engines behind the
// CLI surface spec.md §6 names. Flag parsing, subcommand dispatch, and
// exit-code mapping are modeled on the teacher's cmd/cctool/main.go
// (stdlib flag.FlagSet, a subcmd func type, context cancellation on
// SIGINT/SIGTERM); progress/confirm rendering itself stays a thin
// terminal adapter over the engine's own Callbacks interface rather
// than a reimplementation of the engine's logic.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MidnightBSD/mport"
	"github.com/MidnightBSD/mport/audit"
	"github.com/MidnightBSD/mport/autoremove"
	"github.com/MidnightBSD/mport/bundle"
	"github.com/MidnightBSD/mport/catalog"
	"github.com/MidnightBSD/mport/config"
	"github.com/MidnightBSD/mport/install"
	"github.com/MidnightBSD/mport/mirror"
	"github.com/MidnightBSD/mport/remove"
)

// env is the composition root's shared dependency set, built once in
// main and threaded into every subcommand.
type env struct {
	cfg   config.Config
	store *catalog.Store
	cb    mport.Callbacks
}

type subcmd func(ctx context.Context, e *env, args []string) error

var commands = map[string]subcmd{
	"add":        cmdAdd,
	"delete":     cmdDelete,
	"autoremove": cmdAutoremove,
	"audit":      cmdAudit,
	"verify":     cmdVerify,
	"lock":       cmdLock,
	"unlock":     cmdUnlock,
	"locks":      cmdLocks,
	"list":       cmdList,
	"info":       cmdInfo,
	"search":     cmdSearch,
	"cpe":        cmdCPE,
	"purl":       cmdPURL,
	"config":     cmdConfig,
	"mirror":     cmdMirror,
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	fs := flag.NewFlagSet("mport", flag.ContinueOnError)
	confPath := fs.String("C", "/usr/local/etc/mport.toml", "config file path")
	prefix := fs.String("p", "", "install prefix override")
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "usage: %s [-C file] [-p prefix] <command> [args...]\n", os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintln(out, "\ncommands:")
		for name := range commands {
			fmt.Fprintf(out, "  %s\n", name)
		}
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Print(err)
		return 1
	}
	if *prefix != "" {
		cfg.Prefix = *prefix
	}

	store, err := catalog.Open(ctx, cfg.CatalogPath)
	if err != nil {
		log.Print(err)
		return 1
	}
	defer store.Close()

	cb := newTermCallbacks()
	ctx = mport.WithCallbacks(ctx, cb)
	e := &env{cfg: cfg, store: store, cb: cb}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	if err := cmd(ctx, e, fs.Args()[1:]); err != nil {
		cb.Message("%v", err)
		if mport.IsWarn(err) {
			return 2
		}
		return 1
	}
	return 0
}

func cmdAdd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	automatic := fs.Bool("A", false, "mark as automatically installed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return mport.Fatalf("cmd.add", "", nil, "usage: add [-A] <file>...")
	}

	engine := install.NewEngine(e.store, e.cfg.Prefix)
	for _, path := range fs.Args() {
		if err := addOne(ctx, e, engine, path, *automatic); err != nil {
			return err
		}
	}
	return nil
}

func addOne(ctx context.Context, e *env, engine *install.Engine, path string, automatic bool) error {
	name, version, err := bundle.PeekIdentity(path)
	if err != nil {
		return mport.Fatalf("cmd.add", path, err, "identify bundle")
	}

	r, err := bundle.Open(path, name, version)
	if err != nil {
		return mport.Fatalf("cmd.add", name, err, "open bundle")
	}
	defer r.Close()

	if err := e.store.AttachStub(ctx, r.StubPath()); err != nil {
		return mport.Fatalf("cmd.add", name, err, "attach stub")
	}
	pkg, err := e.store.StubPackage(ctx, name)
	if err != nil {
		e.store.DetachStub(ctx)
		return mport.Fatalf("cmd.add", name, err, "read stub package metadata")
	}
	if err := e.store.DetachStub(ctx); err != nil {
		return mport.Fatalf("cmd.add", name, err, "detach stub")
	}

	if automatic {
		pkg.Automatic = mport.InstalledAsDep
	}
	return engine.InstallPkg(ctx, r, pkg, install.Options{})
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	force := fs.Bool("f", false, "force past checksum mismatch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return mport.Fatalf("cmd.delete", "", nil, "usage: delete <pkg>...")
	}

	engine := remove.NewEngine(e.store, e.cfg.Prefix)
	for _, name := range fs.Args() {
		pkg, err := e.store.GetPackage(ctx, name)
		if err != nil {
			return mport.Fatalf("cmd.delete", name, err, "lookup package")
		}
		if err := engine.DeletePkg(ctx, pkg, remove.Options{Force: *force}); err != nil {
			return err
		}
	}
	return nil
}

func cmdAutoremove(ctx context.Context, e *env, _ []string) error {
	engine := autoremove.NewEngine(e.store, e.cfg.Prefix)
	removed, err := engine.Sweep(ctx)
	if err != nil {
		return err
	}
	e.cb.Message("Autoremoved %d packages", len(removed))
	return nil
}

func cmdAudit(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.Bool("r", false, "recompute advisory cache") // recognized, not yet meaningful here
	if err := fs.Parse(args); err != nil {
		return err
	}
	var pkgName string
	if fs.NArg() > 0 {
		pkgName = fs.Arg(0)
	}

	engine := audit.NewEngine(ctx, e.store, audit.Options{Endpoint: e.cfg.AuditEndpoint})
	reports, err := engine.Sweep(ctx, pkgName)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return mport.Warnf("cmd.audit", pkgName, nil, "no known vulnerabilities")
	}
	e.cb.Message("%s", audit.Render(reports))
	return nil
}

func cmdVerify(ctx context.Context, e *env, args []string) error {
	return verify(ctx, e, args)
}

func cmdLock(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return mport.Fatalf("cmd.lock", "", nil, "usage: lock <pkg>")
	}
	return e.store.SetLocked(ctx, args[0], true)
}

func cmdUnlock(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return mport.Fatalf("cmd.unlock", "", nil, "usage: unlock <pkg>")
	}
	return e.store.SetLocked(ctx, args[0], false)
}

func cmdLocks(ctx context.Context, e *env, _ []string) error {
	locked, err := e.store.ListLocked(ctx)
	if err != nil {
		return err
	}
	for _, name := range locked {
		e.cb.Message("%s", name)
	}
	return nil
}

func cmdList(ctx context.Context, e *env, args []string) error {
	filter := catalog.ListAll
	if len(args) > 0 && args[0] == "prime" {
		filter = catalog.ListPrime
	}
	pkgs, err := e.store.List(ctx, filter)
	if err != nil {
		return err
	}
	for _, p := range pkgs {
		e.cb.Message("%s-%s", p.Name, p.Version)
	}
	return nil
}

func cmdInfo(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return mport.Fatalf("cmd.info", "", nil, "usage: info <pkg>")
	}
	info, err := e.store.GetInfo(ctx, args[0])
	if err != nil {
		return err
	}
	e.cb.Message("%s-%s\nOrigin: %s\nPrefix: %s\nDepends: %d\nConflicts: %d",
		info.Package.Name, info.Package.Version, info.Package.Origin, info.Package.Prefix,
		len(info.Depends), len(info.Conflicts))
	return nil
}

func cmdSearch(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return mport.Fatalf("cmd.search", "", nil, "usage: search <query>")
	}
	results, err := e.store.Search(ctx, args[0])
	if err != nil {
		return err
	}
	for _, p := range results {
		e.cb.Message("%s-%s", p.Name, p.Version)
	}
	return nil
}

func cmdCPE(ctx context.Context, e *env, _ []string) error {
	cpes, err := e.store.CPEs(ctx)
	if err != nil {
		return err
	}
	for _, c := range cpes {
		e.cb.Message("%s", c)
	}
	return nil
}

func cmdPURL(ctx context.Context, e *env, _ []string) error {
	purls, err := e.store.PURLs(ctx)
	if err != nil {
		return err
	}
	for _, p := range purls {
		e.cb.Message("%s", p)
	}
	return nil
}

func cmdConfig(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return mport.Fatalf("cmd.config", "", nil, "usage: config list|get <key>|set <key> <value>")
	}
	switch args[0] {
	case "list":
		settings, err := e.store.ListSettings(ctx)
		if err != nil {
			return err
		}
		for k, v := range settings {
			e.cb.Message("%s=%s", k, v)
		}
		return nil
	case "get":
		if len(args) < 2 {
			return mport.Fatalf("cmd.config", "", nil, "usage: config get <key>")
		}
		v, err := e.store.GetSetting(ctx, args[1])
		if err != nil {
			return err
		}
		e.cb.Message("%s", v)
		return nil
	case "set":
		if len(args) < 3 {
			return mport.Fatalf("cmd.config", "", nil, "usage: config set <key> <value>")
		}
		return e.store.SetSetting(ctx, args[1], args[2])
	default:
		return mport.Fatalf("cmd.config", "", nil, "unknown config subcommand %q", args[0])
	}
}

func cmdMirror(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return mport.Fatalf("cmd.mirror", "", nil, "usage: mirror list|select")
	}
	candidates := make([]mirror.Candidate, len(e.cfg.Mirrors))
	for i, m := range e.cfg.Mirrors {
		candidates[i] = mirror.Candidate{Name: m.Name, URL: m.URL}
	}
	sel := mirror.NewSelector(nil)

	switch args[0] {
	case "list":
		for _, r := range sel.List(ctx, candidates) {
			e.cb.Message("%s %s", r.Candidate.Name, r.RTT)
		}
		return nil
	case "select":
		best, err := sel.Select(ctx, candidates)
		if err != nil {
			return mport.Fatalf("cmd.mirror", "", err, "select mirror")
		}
		e.cb.Message("%s", best.Name)
		return nil
	default:
		return mport.Fatalf("cmd.mirror", "", nil, "unknown mirror subcommand %q", args[0])
	}
}
