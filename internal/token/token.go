// Package token mints the opaque identifiers used across the booking core:
// hold tokens, booking references and idempotency keys.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateHoldToken returns "HOLD_" followed by 32 uppercase hex characters
// (128 bits of cryptographic randomness).
func GenerateHoldToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a UUID
		return "HOLD_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return "HOLD_" + strings.ToUpper(hex.EncodeToString(buf))
}

// GenerateBookingReference returns an 8-character uppercase alphanumeric
// reference. Uniqueness is enforced by storage; callers retry on collision.
func GenerateBookingReference() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	}
	var sb strings.Builder
	sb.Grow(8)
	for _, b := range buf {
		sb.WriteByte(referenceAlphabet[int(b)%len(referenceAlphabet)])
	}
	return sb.String()
}

// GenerateIdempotencyKey returns a v4 UUID
func GenerateIdempotencyKey() string {
	return uuid.NewString()
}
