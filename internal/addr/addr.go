// Package addr validates Solana account addresses.
package addr

import (
	"errors"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidAddress is returned for strings that do not decode to a
// 32-byte base58 public key.
var ErrInvalidAddress = errors.New("invalid solana address")

// Validate checks that s is a plausible Solana address: base58,
// 32 bytes decoded. Wallet addresses must additionally be on the
// ed25519 curve; token mints and PDAs may be off-curve, so Validate
// does not require it.
func Validate(s string) error {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return ErrInvalidAddress
	}
	return nil
}

// IsOnCurve reports whether the decoded address is a valid ed25519
// point. Program derived addresses are off-curve by construction.
func IsOnCurve(s string) bool {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
