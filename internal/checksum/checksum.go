// Package checksum computes and verifies the fixed-width hex digests
// the catalog stores alongside each file-like asset (spec §4.3, §4.6
// "verifying checksums unless forced", §6 `verify -r`).
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// SHA256File returns the lowercase hex SHA-256 digest of the file at
// path.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the file at path's digest matches want. An
// empty want (directories, exec rows) always verifies.
func Verify(path, want string) (bool, error) {
	if want == "" {
		return true, nil
	}
	got, err := SHA256File(path)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
