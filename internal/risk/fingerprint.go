package risk

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashTemplate derives the comparable hash of a raw fingerprint template.
// Only the hash is stored on sessions.
func HashTemplate(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
