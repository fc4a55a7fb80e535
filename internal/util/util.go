// Package util provides content hashing helpers.
package util

import (
	"crypto/sha256"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// HashContent returns the hex SHA-256 of content. The sync engine compares
// these to tell its own echoed writes from genuine changes.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Blake3Hash computes a BLAKE3 hash of the input and returns it as bytes.
func Blake3Hash(data []byte) []byte {
	hash := blake3.Sum256(data)
	return hash[:]
}

// Blake3HashHex computes a BLAKE3 hash and returns it as a hex string.
func Blake3HashHex(data []byte) string {
	return hex.EncodeToString(Blake3Hash(data))
}
