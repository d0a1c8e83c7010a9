package solana

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Solana addresses are base58-encoded 32-byte public keys.
const (
	minAddressLen = 32
	maxAddressLen = 44
	pubkeyLen     = 32
)

// IsValidAddress reports whether s is a base58 string encoding 32 bytes.
func IsValidAddress(s string) bool {
	if len(s) < minAddressLen || len(s) > maxAddressLen {
		return false
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(decoded) == pubkeyLen
}

// IsOnCurve reports whether the address is a point on the ed25519 curve,
// i.e. a keypair-controlled wallet rather than a program-derived address.
// Invalid addresses are reported as off-curve.
func IsOnCurve(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != pubkeyLen {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
