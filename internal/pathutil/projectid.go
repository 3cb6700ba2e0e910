package pathutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// IDLength is the number of hex characters in a project id.
const IDLength = 8

// ProjectID derives a short stable fingerprint from a project's absolute
// path. The full path is hashed, not the basename, so two projects named
// "demo" in different parents get distinct ids. 8 hex chars give 2^32
// values; for the tens of projects a single user realistically keeps, the
// collision probability is negligible. This is not adversarial-safe and is
// never treated as a secret.
func ProjectID(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:IDLength]
}
