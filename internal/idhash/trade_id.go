package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(position_id|exit_reason|closed_at_unix_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(positionID, exitReason string, closedAtMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", positionID, exitReason, closedAtMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
