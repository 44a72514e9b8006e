package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// DocumentHash returns the SHA-256 fingerprint of a document's full text
// as a 64-character lowercase hex string. Identical content always yields
// an identical fingerprint; chunks store the fingerprint of the whole
// originating document, not of the chunk.
func DocumentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
