package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashString returns a stable hex digest of the input, used for document ids
// derived from content and for cache keys.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashKey joins the parts with a separator that cannot appear ambiguously and
// hashes the result. Used for (model, configuration) pool keys.
func HashKey(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
