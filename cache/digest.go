package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest hashes the parts into a short namespace. When the configuration a
// cache was filled from changes, the digest changes with it, so a shared
// backend never serves entries from the previous configuration.
func Digest(parts ...string) string {
	hasher := sha256.New()
	hasher.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
