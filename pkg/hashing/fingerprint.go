package hashing

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex SHA-256 digest of a raw token. Unlike the
// argon2 hash it is deterministic and unsalted, which makes it usable as a
// unique indexed lookup key without exposing the raw token itself.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
