package ioutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256DigestJSON returns "sha256:<hex>" over the canonical JSON encoding of
// value. Because CanonicalJSON sorts object keys recursively, two values
// that differ only in key order (including permuted keys at any nesting
// level) hash identically — the property the test suite names "digest
// stability" in spec.md §8.
func SHA256DigestJSON(value any) (string, error) {
	canonical, err := CanonicalJSON(value)
	if err != nil {
		return "", err
	}
	return DigestBytes(canonical), nil
}

// DigestBytes hashes raw bytes directly (e.g. a prompt_md string) and
// returns it in the same "sha256:<hex>" form as SHA256DigestJSON, so
// prompt digests and artifact digests are interchangeable in comparisons.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// DigestString is a convenience wrapper around DigestBytes for string input.
func DigestString(s string) string {
	return DigestBytes([]byte(s))
}
