package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestHoldLifecycleChecks(t *testing.T) {
	now := time.Now()
	hold := &SeatHold{
		HoldToken:  "HOLD_A",
		CustomerID: 100,
		Status:     HoldStatusActive,
		ExpiresAt:  now.Add(10 * time.Minute),
	}

	assert.True(t, hold.IsActive(now))
	assert.False(t, hold.IsExpired(now))
	assert.True(t, hold.BelongsTo(100))
	assert.False(t, hold.BelongsTo(101))
	assert.InDelta(t, 600, hold.TimeRemaining(now), 1)

	hold.ExpiresAt = now.Add(-time.Second)
	assert.False(t, hold.IsActive(now))
	assert.True(t, hold.IsExpired(now))
	assert.Equal(t, int64(0), hold.TimeRemaining(now))

	hold.ExpiresAt = now.Add(10 * time.Minute)
	hold.Status = HoldStatusCancelled
	assert.False(t, hold.IsActive(now))
}

func TestHoldStatusTerminality(t *testing.T) {
	assert.False(t, HoldStatusActive.IsTerminal())
	assert.True(t, HoldStatusExpired.IsTerminal())
	assert.True(t, HoldStatusConfirmed.IsTerminal())
	assert.True(t, HoldStatusCancelled.IsTerminal())
}

func TestTotalPrice(t *testing.T) {
	seats := []*Seat{
		{Price: decimal.RequireFromString("49.99")},
		{Price: decimal.RequireFromString("50.01")},
	}
	assert.True(t, decimal.NewFromInt(100).Equal(TotalPrice(seats)))
	assert.True(t, decimal.Zero.Equal(TotalPrice(nil)))
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsValidationError(ErrDuplicateSeatIDs))
	assert.True(t, IsValidationError(ErrCustomerMismatch))
	assert.True(t, IsConflictError(ErrSeatsUnavailable))
	assert.True(t, IsNotFoundError(ErrHoldNotFound))
	assert.True(t, IsExpiredError(ErrHoldExpired))
	assert.False(t, IsValidationError(ErrSeatsUnavailable))
	assert.False(t, IsConflictError(ErrHoldExpired))
}
