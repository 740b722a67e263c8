package bundle

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// PeekIdentity scans a bundle file just far enough to learn the
// package name and version encoded in its infra directory name
// (+INFRA/<name>-<version>/), without extracting anything. Open
// requires both values up front (extractStubAndInfra matches against
// them as it streams the tar), so a caller holding only a bundle file
// path — the `add <file>` CLI verb's starting point — uses this first.
func PeekIdentity(path string) (name, version string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("bundle: open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return "", "", fmt.Errorf("bundle: sniff %s: %w", path, err)
	}

	var src io.Reader = br
	switch detectCompression(head) {
	case cmpGzip:
		g, err := gzip.NewReader(br)
		if err != nil {
			return "", "", fmt.Errorf("bundle: gzip %s: %w", path, err)
		}
		defer g.Close()
		src = g
	case cmpZstd:
		z, err := zstd.NewReader(br)
		if err != nil {
			return "", "", fmt.Errorf("bundle: zstd %s: %w", path, err)
		}
		defer z.Close()
		src = z
	case cmpXz:
		x, err := xz.NewReader(br)
		if err != nil {
			return "", "", fmt.Errorf("bundle: xz %s: %w", path, err)
		}
		src = x
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return "", "", fmt.Errorf("bundle: %s: no %s entry found", path, infraPrefix)
		}
		if err != nil {
			return "", "", fmt.Errorf("bundle: read entry: %w", err)
		}
		if !strings.HasPrefix(hdr.Name, infraPrefix) {
			continue
		}
		rest := strings.TrimPrefix(hdr.Name, infraPrefix)
		dir, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		i := strings.LastIndex(dir, "-")
		if i < 0 {
			return "", "", fmt.Errorf("bundle: %s: malformed infra directory %q", path, dir)
		}
		return dir[:i], dir[i+1:], nil
	}
}
