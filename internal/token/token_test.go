package token

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerateHoldToken(t *testing.T) {
	pattern := regexp.MustCompile(`^HOLD_[0-9A-F]{32}$`)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		token := GenerateHoldToken()
		assert.Len(t, token, 37)
		assert.Regexp(t, pattern, token)
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate hold token generated: %s", token)
		}
		seen[token] = struct{}{}
	}
}

func TestGenerateBookingReference(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{8}$`)

	for i := 0; i < 1000; i++ {
		ref := GenerateBookingReference()
		assert.Len(t, ref, 8)
		assert.Regexp(t, pattern, ref)
	}
}

func TestGenerateIdempotencyKey(t *testing.T) {
	key := GenerateIdempotencyKey()
	parsed, err := uuid.Parse(key)
	assert.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}
