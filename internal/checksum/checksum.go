// Package checksum fingerprints record file contents so the indexer can skip
// files that have not changed since they were last indexed.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// File streams the named file of fsys through the same digest as Sum.
func File(fsys fs.FS, name string) (string, error) {
	f, err := fsys.Open(name)
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

// Equal reports whether data still matches a previously recorded sum.
// An empty sum never matches.
func Equal(sum string, data []byte) bool {
	return sum != "" && sum == Sum(data)
}
