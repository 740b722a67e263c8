package mport

import "time"

// Automatic distinguishes packages a user asked for by name from ones
// pulled in only to satisfy a dependency. Autoremove (§4.8) only ever
// considers InstalledAsDep packages for removal.
type Automatic bool

const (
	Explicit       Automatic = false
	InstalledAsDep Automatic = true
)

// PackageType distinguishes ordinary application packages from the
// handful of system-owned packages (kernel modules, base system pieces)
// that receive different default handling in a few call sites.
type PackageType string

const (
	TypeApplication PackageType = "application"
	TypeSystem      PackageType = "system"
)

// Status is the catalog's record of how far an install got. A row is
// inserted Dirty in Phase B and marked Clean as the last step of
// Phase C, so a Dirty row is the residue of an interrupted Phase B/C.
// Catalog lookups and `verify` do not filter on status.
type Status string

const (
	StatusDirty Status = "dirty"
	StatusClean Status = "clean"
)

// Package is the catalog's record of one installed package (spec §3).
//
// Name is the unique key; Origin survives renames and is what the
// upgrade planner's `moved` lookups key off of.
type Package struct {
	Name           string
	Version        string
	Origin         string
	Prefix         string
	OSRelease      string
	CPE            string
	Flavor         string
	Categories     []string
	Automatic      Automatic
	Locked         bool
	NoProvideShlib bool
	Deprecated     string
	ExpirationDate *time.Time
	InstallDate    time.Time
	Type           PackageType
	FlatSize       int64
	Status         Status
}

// Dependency is a (pkg) -> (depend_pkg, predicate, depend_origin) edge.
type Dependency struct {
	Pkg           string
	DependPkg     string
	DependVersion string // range predicate, evaluated by package version
	DependOrigin  string
}

// Conflict is a pair of packages that must not be simultaneously
// installed.
type Conflict struct {
	Pkg             string
	ConflictPkg     string
	ConflictVersion string // range predicate
}

// MovedEntry is one row of the index's `moved` table, consulted by the
// upgrade planner's migration pass (§4.7 step 2).
type MovedEntry struct {
	Origin     string
	MovedTo    string // moved_to_origin, empty if retired outright
	MovedToPkg string // moved_to_pkgname
	ExpiryDate string // non-empty marks the origin as retired
	Reason     string
}

// IndexEntry is a read-only view of one package as published by the
// remote index (spec §3; the index fetcher itself is an external
// collaborator, §1).
type IndexEntry struct {
	PkgName   string
	Version   string
	Comment   string
	BundleURL string
	License   string
	Hash      string
	Type      string
}

// LogEntry is one append-only catalog log row.
type LogEntry struct {
	Pkg     string
	Version string
	At      time.Time
	Message string
}

// Service is a service name a package registers for start/stop at the
// edges of install and delete (SPEC_FULL §3 "Service entry").
type Service struct {
	Pkg  string
	Name string
}

// ScriptSlot names one of the four lifecycle-script positions. Naming
// four files after a scripting language is a deployment detail, not
// part of the algorithmic model (Design Note §9); the catalog keys
// scripts generically by slot instead.
type ScriptSlot string

const (
	ScriptPreInstall    ScriptSlot = "pre-install"
	ScriptPostInstall   ScriptSlot = "post-install"
	ScriptPreDeinstall  ScriptSlot = "pre-deinstall"
	ScriptPostDeinstall ScriptSlot = "post-deinstall"
)

// Script is one lifecycle script body bound to a package and slot.
type Script struct {
	Pkg  string
	Slot ScriptSlot
	Body string
}
