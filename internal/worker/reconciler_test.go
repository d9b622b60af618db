package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/repository"
)

func newReconcilerFixture() (*Reconciler, *mockSeatRepo, *mockHoldRepo, *mockSeatLocks, *mockOverlay, *mockPublisher) {
	seats := &mockSeatRepo{}
	holds := &mockHoldRepo{}
	locks := &mockSeatLocks{}
	overlay := &mockOverlay{}
	publisher := &mockPublisher{}

	r := NewReconciler(&ReconcilerDeps{
		Holds:     holds,
		Seats:     seats,
		Locks:     locks,
		Overlay:   overlay,
		Publisher: publisher,
		TxRunner:  &stubTxRunner{},
	}, &ReconcilerConfig{Interval: time.Minute})

	return r, seats, holds, locks, overlay, publisher
}

func expiredHold(id int64, token string) *domain.SeatHold {
	return &domain.SeatHold{
		ID:         id,
		HoldToken:  token,
		CustomerID: 100,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
		SeatCount:  2,
		ExpiresAt:  time.Now().Add(-2 * time.Minute),
		Status:     domain.HoldStatusActive,
	}
}

func TestReconcilerCleansUpHoldWithoutLocks(t *testing.T) {
	r, seats, holds, _, overlay, publisher := newReconcilerFixture()

	hold := expiredHold(1, "HOLD_LOST")
	holds.FindExpiredHoldsFunc = func(ctx context.Context, now time.Time) ([]*domain.SeatHold, error) {
		return []*domain.SeatHold{hold}, nil
	}
	// default mockSeatLocks.Get returns "": all lock keys are gone

	r.Tick(context.Background())

	require.Len(t, seats.released, 1)
	assert.Equal(t, []int64{10, 11}, seats.released[0])
	assert.Equal(t, domain.HoldStatusExpired, holds.statusUpdates[1])

	require.Len(t, overlay.writes, 1)
	assert.Equal(t, domain.SeatStatusAvailable, overlay.writes[0].status)
	require.Len(t, publisher.holdExpired, 1)
	assert.Equal(t, "HOLD_LOST", publisher.holdExpired[0].HoldToken)
}

func TestReconcilerSkipsHoldWithLiveLock(t *testing.T) {
	r, seats, holds, locks, overlay, publisher := newReconcilerFixture()

	hold := expiredHold(1, "HOLD_LIVE")
	holds.FindExpiredHoldsFunc = func(ctx context.Context, now time.Time) ([]*domain.SeatHold, error) {
		return []*domain.SeatHold{hold}, nil
	}
	locks.GetFunc = func(ctx context.Context, eventID, seatID int64) (string, error) {
		if seatID == 11 {
			// TTL has not fired yet for this seat; the TTL pipeline owns it
			return repository.LockOwnerValue(100, "HOLD_LIVE"), nil
		}
		return "", nil
	}

	r.Tick(context.Background())

	assert.Empty(t, seats.released)
	assert.Empty(t, holds.statusUpdates)
	assert.Empty(t, overlay.writes)
	assert.Empty(t, publisher.holdExpired)
}

func TestReconcilerIgnoresForeignLockValues(t *testing.T) {
	r, seats, holds, locks, _, _ := newReconcilerFixture()

	// the key exists but belongs to a newer hold on the same seat; this
	// hold's own lock is gone, so it must still be cleaned up
	hold := expiredHold(1, "HOLD_OLD")
	holds.FindExpiredHoldsFunc = func(ctx context.Context, now time.Time) ([]*domain.SeatHold, error) {
		return []*domain.SeatHold{hold}, nil
	}
	locks.GetFunc = func(ctx context.Context, eventID, seatID int64) (string, error) {
		return repository.LockOwnerValue(200, "HOLD_NEWER"), nil
	}

	r.Tick(context.Background())

	require.Len(t, seats.released, 1)
	assert.Equal(t, domain.HoldStatusExpired, holds.statusUpdates[1])
}

func TestReconcilerFailureOnOneHoldDoesNotAbortTick(t *testing.T) {
	r, seats, holds, locks, _, publisher := newReconcilerFixture()

	broken := expiredHold(1, "HOLD_BROKEN")
	healthy := expiredHold(2, "HOLD_OK")
	holds.FindExpiredHoldsFunc = func(ctx context.Context, now time.Time) ([]*domain.SeatHold, error) {
		return []*domain.SeatHold{broken, healthy}, nil
	}
	locks.GetFunc = func(ctx context.Context, eventID, seatID int64) (string, error) {
		return "", nil
	}
	calls := 0
	seats.ReleaseSeatsFunc = func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient db failure")
		}
		return int64(len(seatIDs)), nil
	}

	r.Tick(context.Background())

	// the second hold was still reconciled
	assert.Equal(t, domain.HoldStatusExpired, holds.statusUpdates[2])
	require.Len(t, publisher.holdExpired, 1)
	assert.Equal(t, "HOLD_OK", publisher.holdExpired[0].HoldToken)
}
