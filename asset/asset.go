// Package asset models the typed, ordered steps of a package's plist
// (spec §4.2) and the ambient install-time state (current directory,
// default owner/group/mode) those steps mutate as the engine walks
// them top to bottom.
//
// The ambient state is modeled as the Builder type below rather than
// as package-level variables: Design Note §9 calls out "implicit
// ambient state inside install" as exactly the kind of global the
// re-implementation must not carry forward, so Builder is created
// fresh per package install/delete and threaded explicitly through
// asset iteration.
package asset

import (
	"fmt"
	"strings"
)

// Kind is the closed set of plist directive types (spec §3 "Asset").
type Kind string

const (
	KindFile                  Kind = "file"
	KindFileOwnerMode         Kind = "file-with-owner-mode"
	KindSample                Kind = "sample"
	KindSampleOwnerMode       Kind = "sample-with-owner-mode"
	KindInfo                  Kind = "info"
	KindShell                 Kind = "shell"
	KindDirectory             Kind = "directory"
	KindDirectoryOwnerMode    Kind = "directory-with-owner-mode"
	KindDirectoryRemove       Kind = "directory-remove"
	KindDirectoryRemoveTry    Kind = "directory-remove-try"
	KindCwd                   Kind = "cwd"
	KindChmod                 Kind = "chmod"
	KindChown                 Kind = "chown"
	KindChgrp                 Kind = "chgrp"
	KindExec                  Kind = "exec"
	KindPreExec               Kind = "pre-exec"
	KindPostExec              Kind = "post-exec"
	KindLdconfig              Kind = "ldconfig"
	KindLdconfigLinux         Kind = "ldconfig-linux"
	KindGlibSchemas           Kind = "glib-schemas"
	KindKld                   Kind = "kld"
	KindDesktopDB             Kind = "desktop-db"
	KindTouch                 Kind = "touch"
)

// Valid reports whether k is one of the closed set of known kinds. A
// bundle with an asset of an unknown kind is a Warn, not a panic
// (spec §4.2, §7).
func (k Kind) Valid() bool {
	switch k {
	case KindFile, KindFileOwnerMode, KindSample, KindSampleOwnerMode, KindInfo, KindShell,
		KindDirectory, KindDirectoryOwnerMode, KindDirectoryRemove, KindDirectoryRemoveTry,
		KindCwd, KindChmod, KindChown, KindChgrp, KindExec, KindPreExec, KindPostExec,
		KindLdconfig, KindLdconfigLinux, KindGlibSchemas, KindKld, KindDesktopDB, KindTouch:
		return true
	default:
		return false
	}
}

// IsFileLike reports whether k consumes one entry from the bundle
// reader's file stream (spec §4.5 Phase B.1's file-count enumeration).
func (k Kind) IsFileLike() bool {
	switch k {
	case KindFile, KindFileOwnerMode, KindSample, KindSampleOwnerMode, KindInfo, KindShell:
		return true
	default:
		return false
	}
}

// IsDirectory reports whether k is one of the directory-creating or
// directory-removing directives.
func (k Kind) IsDirectory() bool {
	switch k {
	case KindDirectory, KindDirectoryOwnerMode, KindDirectoryRemove, KindDirectoryRemoveTry:
		return true
	default:
		return false
	}
}

// HasOwnerMode reports whether k is one of the "-with-owner-mode"
// variants, which take per-entry owner/group/mode instead of falling
// back purely to ambient defaults.
func (k Kind) HasOwnerMode() bool {
	switch k {
	case KindFileOwnerMode, KindSampleOwnerMode, KindDirectoryOwnerMode:
		return true
	default:
		return false
	}
}

// Asset is one step of a package's plist (spec §3).
type Asset struct {
	Kind     Kind
	Data     string
	Checksum string // fixed-width hex, empty for directory/exec rows
	Owner    string
	Group    string
	Mode     string
}

func (a Asset) String() string {
	if a.Data == "" {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Data)
}

// Builder tracks the ambient state a plist mutates as it is walked:
// the current working directory and the default owner, group, and
// mode applied to entries that don't specify their own. It resets only
// on explicit directives, never implicitly across packages (spec
// §4.5 "Ordering and tie-breaks").
type Builder struct {
	Cwd   string
	Owner string
	Group string
	Mode  string
}

// NewBuilder returns a Builder seeded with prefix as the initial
// working directory and no default owner/group/mode.
func NewBuilder(prefix string) *Builder {
	return &Builder{Cwd: prefix}
}

// Apply folds one directive-class asset (cwd/chmod/chown/chgrp) into
// the ambient state. It is a no-op, returning false, for any asset
// that does not itself carry ambient state.
func (b *Builder) Apply(prefix string, a Asset) bool {
	switch a.Kind {
	case KindCwd:
		if strings.TrimSpace(a.Data) == "" {
			b.Cwd = prefix
		} else {
			b.Cwd = a.Data
		}
		return true
	case KindChmod:
		b.Mode = a.Data
		return true
	case KindChown:
		b.Owner = a.Data
		return true
	case KindChgrp:
		b.Group = a.Data
		return true
	default:
		return false
	}
}

// ResolveOwnerModeGroup folds an asset's per-entry owner/group/mode (if
// any, on a "-with-owner-mode" kind) over the ambient defaults: a
// non-empty per-entry value wins, otherwise the ambient default is
// used, otherwise empty (meaning "leave the filesystem default").
func (b *Builder) ResolveOwnerModeGroup(a Asset) (owner, group, mode string) {
	owner, group, mode = b.Owner, b.Group, b.Mode
	if a.Kind.HasOwnerMode() {
		if a.Owner != "" {
			owner = a.Owner
		}
		if a.Group != "" {
			group = a.Group
		}
		if a.Mode != "" {
			mode = a.Mode
		}
	}
	return owner, group, mode
}

// SampleTarget returns the path of the "live" file a sample directive
// should be copied onto if it doesn't already exist: either the second,
// whitespace-separated token of Data, or Data with a trailing ".sample"
// suffix stripped (spec §4.2, §4.5 Phase B.4 "sample").
func SampleTarget(data string) string {
	if i := strings.IndexAny(data, " \t"); i >= 0 {
		first, second := data[:i], strings.TrimSpace(data[i+1:])
		if second != "" {
			return second
		}
		return strings.TrimSuffix(first, ".sample")
	}
	return strings.TrimSuffix(data, ".sample")
}
