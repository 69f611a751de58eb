// Package hashutil provides the deterministic content hashing used
// everywhere a provenance record's content_hash is written or verified.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
)

const prefix = "sha256:"

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

// HashText returns the deterministic "sha256:"+hex digest of b. No salting;
// identical bytes always hash identically.
func HashText(b []byte) string {
	sum := sha256.Sum256(b)
	return prefix + hex.EncodeToString(sum[:])
}

// HashFile streams the file at path through SHA-256 without loading it
// fully into memory, returning the same "sha256:"+hex format as HashText.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(h.Sum(nil)), nil
}

// IsValidFormat reports whether s has the shape "sha256:" followed by 64
// lowercase hex characters.
func IsValidFormat(s string) bool {
	if len(s) != len(prefix)+64 || s[:len(prefix)] != prefix {
		return false
	}
	return hexDigest.MatchString(s[len(prefix):])
}
