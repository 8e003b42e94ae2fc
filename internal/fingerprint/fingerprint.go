// Package fingerprint provides deterministic content hashing for files and
// in-memory byte strings. Every hash is a 64-character upper-hex SHA-256
// digest.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// HashBytes hashes an in-memory byte string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// HashString hashes a UTF-8 string under the same digest as HashBytes.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashFile streams path through SHA-256 without loading it fully into
// memory. It fails with a wrapped *os.PathError if the file cannot be read.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint: read %s: %w", path, err)
	}

	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// HashSorted aggregates a set of hex digests into one digest over their
// sorted (lexicographic) order. Used to derive a deps-hash from the content
// hashes of a compile unit's header dependencies.
func HashSorted(hashes []string) string {
	var sb strings.Builder
	for _, h := range hashes {
		sb.WriteString(h)
		sb.WriteByte('\n')
	}
	return HashString(sb.String())
}
