// Package solana holds address-level helpers for validating mints and
// deriving program addresses.
package solana

import (
	"crypto/sha256"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PumpProgramID is the bonding-curve program that launches new tokens.
const PumpProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// WSOLMint is the wrapped SOL mint address.
const WSOLMint = "So11111111111111111111111111111111111111112"

// IsValidAddress reports whether addr is a well-formed base58 public key.
// Wallet and mint addresses are ed25519 points, so the curve check catches
// malformed keys that still decode to 32 bytes.
func IsValidAddress(addr string) bool {
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		return false
	}
	return isOnCurve(decoded)
}

// DeriveBondingCurve derives the bonding-curve PDA for a mint under the
// pump program. Returns "" for an invalid mint.
func DeriveBondingCurve(mint string) string {
	mintBytes, err := base58.Decode(mint)
	if err != nil || len(mintBytes) != 32 {
		return ""
	}
	programBytes, err := base58.Decode(PumpProgramID)
	if err != nil {
		return ""
	}
	return derivePDA([][]byte{[]byte("bonding-curve"), mintBytes}, programBytes)
}

// derivePDA derives a Program Derived Address using the Solana algorithm:
// hash seeds plus a bump byte, the program id and the PDA marker, and take
// the first bump whose hash falls off the ed25519 curve.
func derivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
