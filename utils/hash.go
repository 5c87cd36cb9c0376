package utils

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ContentHash returns the hex BLAKE2b-256 digest of data. Uploads of the same
// file share a hash, which the catalog indexes.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
