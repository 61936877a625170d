package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// sha256Hex is the content-addressing primitive behind dedup (spec §4.B
// "userId, contentHash").
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
