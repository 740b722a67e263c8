// Package bundle reads the on-disk bundle format the install and
// upgrade engines consume: a single compressed tar stream holding the
// stub metadata database, a per-package infra subdirectory (mtree,
// pkg-install, pkg-deinstall, pkg-message, and lifecycle scripts), and
// the archived package payload files in plist order (spec §4.4).
//
// Grounded on original_source/libmport/bundle_read_install_pkg.c's
// mport_bundle_read_next_entry/mport_bundle_read_extract_next_file
// pair, and on the teacher's layer fetcher
// (internal/indexer/fetcher/fetcher.go) for compression sniffing.
package bundle

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// stubEntryName is the tar member holding the attachable stub
// database (catalog.AttachStub's input).
const stubEntryName = "+STUB.sqlite"

// infraPrefix groups the per-package infra files: mtree, the four
// lifecycle scripts, pkg-install/pkg-deinstall, and pkg-message.
const infraPrefix = "+INFRA/"

// Infra file names within a package's infra subdirectory.
const (
	FileMtree          = "mtree"
	FilePkgInstall     = "pkg-install"
	FilePkgDeinstall   = "pkg-deinstall"
	FilePkgMessage     = "pkg-message"
	FilePreInstallLua  = "pre-install.lua"
	FilePostInstallLua = "post-install.lua"
	FilePreDeinstall   = "pre-deinstall.lua"
	FilePostDeinstall  = "post-deinstall.lua"
)

// Reader streams one bundle's package payload in plist order after
// having eagerly extracted the stub database and infra directory to a
// temporary directory on Open. The reader never reorders entries: the
// caller must call ExtractNextFile for an entry returned by NextEntry
// before calling NextEntry again, since both operate on the same
// underlying tar cursor.
type Reader struct {
	tmpDir   string
	closer   io.Closer
	tr       *tar.Reader
	stubPath string
	infraDir string

	pending *tar.Header
}

// Open extracts path's stub database and infra directory for pkgName/
// pkgVersion into a fresh temporary directory, leaving the tar cursor
// positioned at the first payload entry (if any).
func Open(path, pkgName, pkgVersion string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: open %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("bundle: sniff %s: %w", path, err)
	}

	var (
		src    io.Reader = br
		closer io.Closer = f
	)
	switch detectCompression(head) {
	case cmpGzip:
		g, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("bundle: gzip %s: %w", path, err)
		}
		src, closer = g, multiCloser{g, f}
	case cmpZstd:
		z, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("bundle: zstd %s: %w", path, err)
		}
		zc := z.IOReadCloser()
		src, closer = zc, multiCloser{zc, f}
	case cmpXz:
		x, err := xz.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("bundle: xz %s: %w", path, err)
		}
		src = x
	}

	tmpDir, err := os.MkdirTemp("", "mport-bundle-*")
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("bundle: mkdtemp: %w", err)
	}

	r := &Reader{tmpDir: tmpDir, closer: closer, tr: tar.NewReader(src)}
	if err := r.extractStubAndInfra(pkgName, pkgVersion); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// multiCloser closes every wrapped closer, in order, returning the
// first error encountered.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StubPath is the on-disk path of the extracted stub database, ready
// to be attached to the catalog with Store.AttachStub.
func (r *Reader) StubPath() string { return r.stubPath }

// InfraFile returns the path of the named infra file (one of the
// File* constants), or "" if the bundle carried none such.
func (r *Reader) InfraFile(name string) string {
	if r.infraDir == "" {
		return ""
	}
	p := filepath.Join(r.infraDir, name)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func (r *Reader) extractStubAndInfra(pkgName, pkgVersion string) error {
	infraRel := fmt.Sprintf("%s%s-%s/", infraPrefix, pkgName, pkgVersion)
	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bundle: read entry: %w", err)
		}

		switch {
		case hdr.Name == stubEntryName:
			dst := filepath.Join(r.tmpDir, "stub.sqlite")
			if err := extractTo(r.tr, dst, 0o600); err != nil {
				return fmt.Errorf("bundle: extract stub: %w", err)
			}
			r.stubPath = dst
		case strings.HasPrefix(hdr.Name, infraRel):
			if r.infraDir == "" {
				r.infraDir = filepath.Join(r.tmpDir, "infra")
				if err := os.MkdirAll(r.infraDir, 0o700); err != nil {
					return fmt.Errorf("bundle: mkdir infra: %w", err)
				}
			}
			rel := strings.TrimPrefix(hdr.Name, infraRel)
			if rel == "" {
				continue
			}
			dst := filepath.Join(r.infraDir, rel)
			if err := extractTo(r.tr, dst, 0o750); err != nil {
				return fmt.Errorf("bundle: extract infra %s: %w", rel, err)
			}
		default:
			// First payload entry: stash it for NextEntry and stop.
			r.pending = hdr
			return nil
		}
	}
}

func extractTo(r io.Reader, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

// NextEntry returns the next archive header in the exact order the
// plist was authored, or io.EOF when the payload is exhausted. The
// caller must call ExtractNextFile with this header before the next
// call to NextEntry.
func (r *Reader) NextEntry() (*tar.Header, error) {
	if r.pending != nil {
		hdr := r.pending
		r.pending = nil
		return hdr, nil
	}
	hdr, err := r.tr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("bundle: read entry: %w", err)
	}
	return hdr, nil
}

// ExtractNextFile materializes the entry most recently returned by
// NextEntry at destPath, creating parent directories as needed.
func (r *Reader) ExtractNextFile(hdr *tar.Header, destPath string) error {
	if err := extractTo(r.tr, destPath, os.FileMode(hdr.Mode)&0o777); err != nil {
		return fmt.Errorf("bundle: extract %s: %w", hdr.Name, err)
	}
	return nil
}

// Close releases the temporary directory and underlying file handles.
func (r *Reader) Close() error {
	var rmErr error
	if r.tmpDir != "" {
		rmErr = os.RemoveAll(r.tmpDir)
	}
	var closeErr error
	if r.closer != nil {
		closeErr = r.closer.Close()
	}
	if closeErr != nil {
		return closeErr
	}
	return rmErr
}
