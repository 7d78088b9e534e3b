package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePositionID computes a deterministic position_id using SHA256.
// Formula: SHA256(mint|creator|opened_at_unix_ms)
// Returns hex-encoded hash (64 characters).
func ComputePositionID(mint, creator string, openedAtMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", mint, creator, openedAtMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
