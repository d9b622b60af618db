package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/dto"
	"github.com/seatsurge/booking-core/internal/repository"
	"github.com/seatsurge/booking-core/pkg/retry"
)

// --- Mocks ---

type mockEventRepo struct {
	FindByIDFunc func(ctx context.Context, id int64) (*domain.Event, error)
}

func (m *mockEventRepo) FindByID(ctx context.Context, id int64) (*domain.Event, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return publishedEvent(id), nil
}

type mockSeatRepo struct {
	FindByEventIDFunc          func(ctx context.Context, eventID int64) ([]*domain.Seat, error)
	FindAvailableByEventIDFunc func(ctx context.Context, eventID int64) ([]*domain.Seat, error)
	FindByIDsFunc              func(ctx context.Context, q repository.Queryer, seatIDs []int64) ([]*domain.Seat, error)
	LockByIDsFunc              func(ctx context.Context, q repository.Queryer, seatIDs []int64) ([]*domain.Seat, error)
	HoldSeatsFunc              func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error)
	HoldSeatsGuardedFunc       func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error)
	BookSeatsFunc              func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error)
	ReleaseSeatsFunc           func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error)

	lockCalls []([]int64)
}

func (m *mockSeatRepo) FindByEventID(ctx context.Context, eventID int64) ([]*domain.Seat, error) {
	if m.FindByEventIDFunc != nil {
		return m.FindByEventIDFunc(ctx, eventID)
	}
	return nil, nil
}

func (m *mockSeatRepo) FindAvailableByEventID(ctx context.Context, eventID int64) ([]*domain.Seat, error) {
	if m.FindAvailableByEventIDFunc != nil {
		return m.FindAvailableByEventIDFunc(ctx, eventID)
	}
	return nil, nil
}

func (m *mockSeatRepo) FindByIDs(ctx context.Context, q repository.Queryer, seatIDs []int64) ([]*domain.Seat, error) {
	if m.FindByIDsFunc != nil {
		return m.FindByIDsFunc(ctx, q, seatIDs)
	}
	return seatsFor(1, seatIDs), nil
}

func (m *mockSeatRepo) LockByIDs(ctx context.Context, q repository.Queryer, seatIDs []int64) ([]*domain.Seat, error) {
	m.lockCalls = append(m.lockCalls, seatIDs)
	if m.LockByIDsFunc != nil {
		return m.LockByIDsFunc(ctx, q, seatIDs)
	}
	return seatsFor(1, seatIDs), nil
}

func (m *mockSeatRepo) HoldSeats(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
	if m.HoldSeatsFunc != nil {
		return m.HoldSeatsFunc(ctx, q, seatIDs)
	}
	return int64(len(seatIDs)), nil
}

func (m *mockSeatRepo) HoldSeatsGuarded(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
	if m.HoldSeatsGuardedFunc != nil {
		return m.HoldSeatsGuardedFunc(ctx, q, seatIDs)
	}
	return int64(len(seatIDs)), nil
}

func (m *mockSeatRepo) BookSeats(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
	if m.BookSeatsFunc != nil {
		return m.BookSeatsFunc(ctx, q, seatIDs)
	}
	return int64(len(seatIDs)), nil
}

func (m *mockSeatRepo) ReleaseSeats(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
	if m.ReleaseSeatsFunc != nil {
		return m.ReleaseSeatsFunc(ctx, q, seatIDs)
	}
	return int64(len(seatIDs)), nil
}

type mockHoldRepo struct {
	CreateFunc                    func(ctx context.Context, q repository.Queryer, hold *domain.SeatHold) error
	FindByHoldTokenFunc           func(ctx context.Context, holdToken string) (*domain.SeatHold, error)
	FindByHoldTokenForUpdateFunc  func(ctx context.Context, q repository.Queryer, holdToken string) (*domain.SeatHold, error)
	FindByIdempotencyKeyFunc      func(ctx context.Context, key string) (*domain.SeatHold, error)
	UpdateStatusFunc              func(ctx context.Context, q repository.Queryer, holdID int64, status domain.HoldStatus) error
	FindExpiredHoldsFunc          func(ctx context.Context, now time.Time) ([]*domain.SeatHold, error)
	FindExpiredHoldsForSeatFunc   func(ctx context.Context, q repository.Queryer, eventID, seatID int64, now time.Time) ([]*domain.SeatHold, error)
	FindActiveHoldsByCustomerFunc func(ctx context.Context, customerID int64, now time.Time) ([]*domain.SeatHold, error)

	mu            sync.Mutex
	created       []*domain.SeatHold
	statusUpdates []domain.HoldStatus
}

func (m *mockHoldRepo) Create(ctx context.Context, q repository.Queryer, hold *domain.SeatHold) error {
	m.mu.Lock()
	m.created = append(m.created, hold)
	holdID := int64(len(m.created))
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, q, hold)
	}
	hold.ID = holdID
	return nil
}

func (m *mockHoldRepo) FindByHoldToken(ctx context.Context, holdToken string) (*domain.SeatHold, error) {
	if m.FindByHoldTokenFunc != nil {
		return m.FindByHoldTokenFunc(ctx, holdToken)
	}
	return nil, domain.ErrHoldNotFound
}

func (m *mockHoldRepo) FindByHoldTokenForUpdate(ctx context.Context, q repository.Queryer, holdToken string) (*domain.SeatHold, error) {
	if m.FindByHoldTokenForUpdateFunc != nil {
		return m.FindByHoldTokenForUpdateFunc(ctx, q, holdToken)
	}
	return nil, domain.ErrHoldNotFound
}

func (m *mockHoldRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.SeatHold, error) {
	if m.FindByIdempotencyKeyFunc != nil {
		return m.FindByIdempotencyKeyFunc(ctx, key)
	}
	return nil, domain.ErrHoldNotFound
}

func (m *mockHoldRepo) UpdateStatus(ctx context.Context, q repository.Queryer, holdID int64, status domain.HoldStatus) error {
	m.mu.Lock()
	m.statusUpdates = append(m.statusUpdates, status)
	m.mu.Unlock()
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, q, holdID, status)
	}
	return nil
}

func (m *mockHoldRepo) FindExpiredHolds(ctx context.Context, now time.Time) ([]*domain.SeatHold, error) {
	if m.FindExpiredHoldsFunc != nil {
		return m.FindExpiredHoldsFunc(ctx, now)
	}
	return nil, nil
}

func (m *mockHoldRepo) FindExpiredHoldsForSeat(ctx context.Context, q repository.Queryer, eventID, seatID int64, now time.Time) ([]*domain.SeatHold, error) {
	if m.FindExpiredHoldsForSeatFunc != nil {
		return m.FindExpiredHoldsForSeatFunc(ctx, q, eventID, seatID, now)
	}
	return nil, nil
}

func (m *mockHoldRepo) FindActiveHoldsByCustomer(ctx context.Context, customerID int64, now time.Time) ([]*domain.SeatHold, error) {
	if m.FindActiveHoldsByCustomerFunc != nil {
		return m.FindActiveHoldsByCustomerFunc(ctx, customerID, now)
	}
	return nil, nil
}

type mockBookingRepo struct {
	CreateFunc          func(ctx context.Context, q repository.Queryer, booking *domain.Booking) error
	FindByReferenceFunc func(ctx context.Context, reference string) (*domain.Booking, error)

	created []*domain.Booking
}

func (m *mockBookingRepo) Create(ctx context.Context, q repository.Queryer, booking *domain.Booking) error {
	m.created = append(m.created, booking)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, q, booking)
	}
	booking.ID = int64(len(m.created))
	return nil
}

func (m *mockBookingRepo) FindByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	if m.FindByReferenceFunc != nil {
		return m.FindByReferenceFunc(ctx, reference)
	}
	return nil, domain.ErrBookingNotFound
}

type lockCall struct {
	eventID int64
	seatID  int64
	value   string
}

type mockSeatLocks struct {
	TryAcquireFunc func(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error)
	GetFunc        func(ctx context.Context, eventID, seatID int64) (string, error)

	mu       sync.Mutex
	acquired []lockCall
	released []lockCall
}

func (m *mockSeatLocks) TryAcquire(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error) {
	ok, err := true, error(nil)
	if m.TryAcquireFunc != nil {
		ok, err = m.TryAcquireFunc(ctx, eventID, seatID, ownerValue, ttl)
	}
	if ok && err == nil {
		m.mu.Lock()
		m.acquired = append(m.acquired, lockCall{eventID, seatID, ownerValue})
		m.mu.Unlock()
	}
	return ok, err
}

func (m *mockSeatLocks) Release(ctx context.Context, eventID, seatID int64, ownerValue string) error {
	m.mu.Lock()
	m.released = append(m.released, lockCall{eventID, seatID, ownerValue})
	m.mu.Unlock()
	return nil
}

func (m *mockSeatLocks) Get(ctx context.Context, eventID, seatID int64) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, eventID, seatID)
	}
	return "", nil
}

type overlayWrite struct {
	eventID int64
	seatIDs []int64
	status  domain.SeatStatus
}

type mockOverlay struct {
	SetManyErr error

	mu     sync.Mutex
	writes []overlayWrite
}

func (m *mockOverlay) SetSeatStatus(ctx context.Context, eventID, seatID int64, status domain.SeatStatus) error {
	return m.SetSeatStatusMany(ctx, eventID, []int64{seatID}, status)
}

func (m *mockOverlay) SetSeatStatusMany(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) error {
	if m.SetManyErr != nil {
		return m.SetManyErr
	}
	m.mu.Lock()
	m.writes = append(m.writes, overlayWrite{eventID, seatIDs, status})
	m.mu.Unlock()
	return nil
}

func (m *mockOverlay) GetEventOverlay(ctx context.Context, eventID int64) (map[int64]domain.SeatStatus, error) {
	return nil, nil
}

func (m *mockOverlay) StatusCounts(ctx context.Context, eventID int64) (map[domain.SeatStatus]int64, error) {
	return nil, nil
}

func (m *mockOverlay) Clear(ctx context.Context, eventID int64) error {
	return nil
}

type mockPublisher struct {
	holdCreated   []*domain.SeatHold
	holdConfirmed []*domain.SeatHold
	holdCancelled []*domain.SeatHold
	holdExpired   []*domain.SeatHold
	bookings      []*domain.Booking
	seatExpiries  [][2]int64
}

func (m *mockPublisher) PublishSeatExpiry(ctx context.Context, eventID, seatID int64) error {
	m.seatExpiries = append(m.seatExpiries, [2]int64{eventID, seatID})
	return nil
}

func (m *mockPublisher) PublishSeatHoldCreated(ctx context.Context, hold *domain.SeatHold) error {
	m.holdCreated = append(m.holdCreated, hold)
	return nil
}

func (m *mockPublisher) PublishSeatHoldConfirmed(ctx context.Context, hold *domain.SeatHold) error {
	m.holdConfirmed = append(m.holdConfirmed, hold)
	return nil
}

func (m *mockPublisher) PublishSeatHoldCancelled(ctx context.Context, hold *domain.SeatHold) error {
	m.holdCancelled = append(m.holdCancelled, hold)
	return nil
}

func (m *mockPublisher) PublishSeatHoldExpired(ctx context.Context, hold *domain.SeatHold) error {
	m.holdExpired = append(m.holdExpired, hold)
	return nil
}

func (m *mockPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	m.bookings = append(m.bookings, booking)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// stubTxRunner executes the unit inline and fires the matching hooks
type stubTxRunner struct{}

func (r *stubTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, uow *repository.UnitOfWork) error) error {
	uow := repository.NewUnitOfWork(nil)
	if err := fn(ctx, uow); err != nil {
		uow.FireAfterRollback()
		return err
	}
	uow.FireAfterCommit()
	return nil
}

// --- Helpers ---

func publishedEvent(id int64) *domain.Event {
	return &domain.Event{
		ID:     id,
		Title:  "Test Concert",
		Status: domain.EventStatusPublished,
	}
}

func seatsFor(eventID int64, seatIDs []int64) []*domain.Seat {
	seats := make([]*domain.Seat, 0, len(seatIDs))
	for _, id := range seatIDs {
		seats = append(seats, &domain.Seat{
			ID:      id,
			EventID: eventID,
			Price:   decimal.NewFromInt(50),
			Status:  domain.SeatStatusAvailable,
		})
	}
	return seats
}

type holdServiceFixture struct {
	events    *mockEventRepo
	seats     *mockSeatRepo
	holds     *mockHoldRepo
	bookings  *mockBookingRepo
	locks     *mockSeatLocks
	overlay   *mockOverlay
	publisher *mockPublisher
	svc       HoldService
}

func newHoldServiceFixture() *holdServiceFixture {
	f := &holdServiceFixture{
		events:    &mockEventRepo{},
		seats:     &mockSeatRepo{},
		holds:     &mockHoldRepo{},
		bookings:  &mockBookingRepo{},
		locks:     &mockSeatLocks{},
		overlay:   &mockOverlay{},
		publisher: &mockPublisher{},
	}
	f.svc = NewHoldService(
		f.events, f.seats, f.holds, f.bookings, f.locks, f.overlay,
		f.publisher, &stubTxRunner{},
		&HoldServiceConfig{HoldDuration: 10 * time.Minute, MaxSeatsPerHold: 10},
	)
	return f
}

func activeHold(token string) *domain.SeatHold {
	now := time.Now()
	return &domain.SeatHold{
		ID:         1,
		HoldToken:  token,
		CustomerID: 100,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
		SeatCount:  2,
		ExpiresAt:  now.Add(10 * time.Minute),
		Status:     domain.HoldStatusActive,
		CreatedAt:  now,
	}
}

// --- PlaceHold ---

func TestPlaceHoldSuccess(t *testing.T) {
	f := newHoldServiceFixture()

	resp, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID: 100,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
	})
	require.NoError(t, err)

	assert.Equal(t, "ACTIVE", resp.Status)
	assert.Equal(t, 2, resp.SeatCount)
	assert.Equal(t, "Test Concert", resp.EventTitle)
	assert.True(t, decimal.NewFromInt(100).Equal(resp.TotalAmount))
	assert.Contains(t, resp.HoldToken, "HOLD_")
	assert.False(t, resp.Degraded)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), resp.ExpiresAt, 5*time.Second)

	// both locks acquired with the owner value, none released
	require.Len(t, f.locks.acquired, 2)
	assert.Equal(t, int64(10), f.locks.acquired[0].seatID)
	assert.Equal(t, int64(11), f.locks.acquired[1].seatID)
	assert.Empty(t, f.locks.released)

	// post-commit side effects: overlay HELD + created event
	require.Len(t, f.overlay.writes, 1)
	assert.Equal(t, domain.SeatStatusHeld, f.overlay.writes[0].status)
	assert.Equal(t, []int64{10, 11}, f.overlay.writes[0].seatIDs)
	require.Len(t, f.publisher.holdCreated, 1)
	assert.Equal(t, resp.HoldToken, f.publisher.holdCreated[0].HoldToken)
}

func TestPlaceHoldValidation(t *testing.T) {
	f := newHoldServiceFixture()
	ctx := context.Background()

	_, err := f.svc.PlaceHold(ctx, &dto.PlaceHoldRequest{CustomerID: 100, EventID: 1})
	assert.ErrorIs(t, err, domain.ErrNoSeatsRequested)

	_, err = f.svc.PlaceHold(ctx, &dto.PlaceHoldRequest{
		CustomerID: 100, EventID: 1,
		SeatIDs: []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	})
	assert.ErrorIs(t, err, domain.ErrTooManySeats)

	_, err = f.svc.PlaceHold(ctx, &dto.PlaceHoldRequest{
		CustomerID: 100, EventID: 1, SeatIDs: []int64{10, 10},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateSeatIDs)

	// nothing reached the lock store
	assert.Empty(t, f.locks.acquired)
}

func TestPlaceHoldLockContention(t *testing.T) {
	f := newHoldServiceFixture()
	f.locks.TryAcquireFunc = func(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error) {
		return seatID != 11, nil // second seat is already locked
	}

	_, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID: 101,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
	})
	assert.ErrorIs(t, err, domain.ErrSeatsUnavailable)

	// the partial acquisition was rolled back via compare-and-delete
	require.Len(t, f.locks.released, 1)
	assert.Equal(t, int64(10), f.locks.released[0].seatID)

	// nothing was written
	assert.Empty(t, f.holds.created)
	assert.Empty(t, f.overlay.writes)
}

func TestPlaceHoldDBPredicateRejects(t *testing.T) {
	f := newHoldServiceFixture()
	f.seats.HoldSeatsGuardedFunc = func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
		return int64(len(seatIDs)) - 1, nil // one seat is BOOKED
	}

	_, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID: 100,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
	})
	assert.ErrorIs(t, err, domain.ErrSeatsUnavailable)

	// locks released, overlay re-affirmed AVAILABLE by the rollback hook
	assert.Len(t, f.locks.released, 2)
	require.Len(t, f.overlay.writes, 1)
	assert.Equal(t, domain.SeatStatusAvailable, f.overlay.writes[0].status)
}

func TestPlaceHoldDegradedFallback(t *testing.T) {
	f := newHoldServiceFixture()
	f.locks.TryAcquireFunc = func(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error) {
		return false, fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	}

	resp, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID: 100,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
	})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.Message, "degraded")
	// the fallback serialized on the seat rows
	require.Len(t, f.seats.lockCalls, 1)
	assert.Equal(t, []int64{10, 11}, f.seats.lockCalls[0])
	// correctness still holds: the hold row exists and the overlay says HELD
	require.Len(t, f.holds.created, 1)
	require.Len(t, f.overlay.writes, 1)
	assert.Equal(t, domain.SeatStatusHeld, f.overlay.writes[0].status)
}

func TestPlaceHoldDegradedOverlapRejectedByPredicate(t *testing.T) {
	f := newHoldServiceFixture()
	f.locks.TryAcquireFunc = func(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error) {
		return false, fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	}

	// seats already HELD by an earlier degraded hold: the strict predicate
	// updates zero rows, so the overlap is rejected by the database alone
	f.seats.HoldSeatsFunc = func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
		return 0, nil
	}
	guardedCalled := false
	f.seats.HoldSeatsGuardedFunc = func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
		guardedCalled = true
		return int64(len(seatIDs)), nil
	}

	_, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID: 101,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
	})
	assert.ErrorIs(t, err, domain.ErrSeatsUnavailable)
	assert.False(t, guardedCalled, "degraded path must use the strict predicate")
	assert.Empty(t, f.holds.created)
}

// deadlockTxRunner fails every transaction with a Postgres deadlock
type deadlockTxRunner struct {
	attempts int
}

func (r *deadlockTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, uow *repository.UnitOfWork) error) error {
	r.attempts++
	return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
}

func TestPlaceHoldTransientRetryExhaustion(t *testing.T) {
	f := newHoldServiceFixture()
	runner := &deadlockTxRunner{}
	f.svc = NewHoldService(
		f.events, f.seats, f.holds, f.bookings, f.locks, f.overlay,
		f.publisher, runner,
		&HoldServiceConfig{HoldDuration: 10 * time.Minute, MaxSeatsPerHold: 10},
	)

	_, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID: 100,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
	})

	assert.ErrorIs(t, err, retry.ErrMaxRetriesExceeded)
	assert.Equal(t, 4, runner.attempts, "initial attempt plus three retries")
	// the acquired locks were cleaned up after the final failure
	assert.Len(t, f.locks.released, 2)
}

func TestPlaceHoldCrossEventRejected(t *testing.T) {
	f := newHoldServiceFixture()
	f.seats.FindByIDsFunc = func(ctx context.Context, q repository.Queryer, seatIDs []int64) ([]*domain.Seat, error) {
		seats := seatsFor(1, seatIDs)
		seats[1].EventID = 2
		return seats, nil
	}

	_, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID: 100,
		EventID:    1,
		SeatIDs:    []int64{10, 11},
	})
	assert.ErrorIs(t, err, domain.ErrCrossEventSeats)
	assert.Len(t, f.locks.released, 2)
}

func TestPlaceHoldEventNotBookable(t *testing.T) {
	f := newHoldServiceFixture()
	f.events.FindByIDFunc = func(ctx context.Context, id int64) (*domain.Event, error) {
		return &domain.Event{ID: id, Status: domain.EventStatusDraft}, nil
	}

	_, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID: 100,
		EventID:    1,
		SeatIDs:    []int64{10},
	})
	assert.ErrorIs(t, err, domain.ErrEventNotBookable)
	assert.Empty(t, f.locks.acquired)
}

func TestPlaceHoldIdempotentReplay(t *testing.T) {
	f := newHoldServiceFixture()
	existing := activeHold("HOLD_EXISTING")
	existing.IdempotencyKey = "key-1"
	f.holds.FindByIdempotencyKeyFunc = func(ctx context.Context, key string) (*domain.SeatHold, error) {
		if key == "key-1" {
			return existing, nil
		}
		return nil, domain.ErrHoldNotFound
	}

	resp, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
		CustomerID:     100,
		EventID:        1,
		SeatIDs:        []int64{10, 11},
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "HOLD_EXISTING", resp.HoldToken)
	// no second hold was placed, no locks touched
	assert.Empty(t, f.holds.created)
	assert.Empty(t, f.locks.acquired)
}

// --- ConfirmBooking ---

func TestConfirmBookingSuccess(t *testing.T) {
	f := newHoldServiceFixture()
	hold := activeHold("HOLD_ABC")
	f.holds.FindByHoldTokenFunc = func(ctx context.Context, token string) (*domain.SeatHold, error) {
		return hold, nil
	}

	booking, err := f.svc.ConfirmBooking(context.Background(), &dto.ConfirmBookingRequest{
		HoldToken:  "HOLD_ABC",
		PaymentID:  "PAY_123",
		CustomerID: 100,
	})
	require.NoError(t, err)

	assert.Len(t, booking.BookingReference, 8)
	assert.Equal(t, "CONFIRMED", booking.Status)
	assert.Equal(t, "PAY_123", booking.PaymentID)
	assert.True(t, decimal.NewFromInt(100).Equal(booking.TotalAmount))
	assert.Equal(t, []int64{10, 11}, booking.SeatIDs)

	// hold flipped to CONFIRMED in the same transaction
	require.Len(t, f.holds.statusUpdates, 1)
	assert.Equal(t, domain.HoldStatusConfirmed, f.holds.statusUpdates[0])

	// post-commit: overlay BOOKED, locks compare-and-deleted, both events out
	require.Len(t, f.overlay.writes, 1)
	assert.Equal(t, domain.SeatStatusBooked, f.overlay.writes[0].status)
	assert.Len(t, f.locks.released, 2)
	assert.Len(t, f.publisher.bookings, 1)
	assert.Len(t, f.publisher.holdConfirmed, 1)
}

func TestConfirmBookingValidation(t *testing.T) {
	f := newHoldServiceFixture()
	ctx := context.Background()

	_, err := f.svc.ConfirmBooking(ctx, &dto.ConfirmBookingRequest{PaymentID: "P", CustomerID: 100})
	assert.ErrorIs(t, err, domain.ErrMissingHoldToken)

	_, err = f.svc.ConfirmBooking(ctx, &dto.ConfirmBookingRequest{HoldToken: "H", CustomerID: 100})
	assert.ErrorIs(t, err, domain.ErrMissingPaymentID)
}

func TestConfirmBookingRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(h *domain.SeatHold)
		wantErr error
	}{
		{"already confirmed", func(h *domain.SeatHold) { h.Status = domain.HoldStatusConfirmed }, domain.ErrHoldAlreadyConfirmed},
		{"cancelled", func(h *domain.SeatHold) { h.Status = domain.HoldStatusCancelled }, domain.ErrHoldExpired},
		{"expired status", func(h *domain.SeatHold) { h.Status = domain.HoldStatusExpired }, domain.ErrHoldExpired},
		{"past expiry", func(h *domain.SeatHold) { h.ExpiresAt = time.Now().Add(-time.Minute) }, domain.ErrHoldExpired},
		{"customer mismatch", func(h *domain.SeatHold) { h.CustomerID = 999 }, domain.ErrCustomerMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHoldServiceFixture()
			hold := activeHold("HOLD_ABC")
			tt.mutate(hold)
			f.holds.FindByHoldTokenFunc = func(ctx context.Context, token string) (*domain.SeatHold, error) {
				return hold, nil
			}

			_, err := f.svc.ConfirmBooking(context.Background(), &dto.ConfirmBookingRequest{
				HoldToken:  "HOLD_ABC",
				PaymentID:  "PAY_123",
				CustomerID: 100,
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.bookings.created)
		})
	}
}

func TestConfirmBookingConcurrentExpiry(t *testing.T) {
	f := newHoldServiceFixture()
	hold := activeHold("HOLD_ABC")
	f.holds.FindByHoldTokenFunc = func(ctx context.Context, token string) (*domain.SeatHold, error) {
		return hold, nil
	}
	f.seats.BookSeatsFunc = func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
		return 0, nil // expiry consumer released the seats first
	}

	_, err := f.svc.ConfirmBooking(context.Background(), &dto.ConfirmBookingRequest{
		HoldToken:  "HOLD_ABC",
		PaymentID:  "PAY_123",
		CustomerID: 100,
	})
	assert.ErrorIs(t, err, domain.ErrHoldExpired)

	// rollback hook re-affirmed HELD, nothing published
	require.Len(t, f.overlay.writes, 1)
	assert.Equal(t, domain.SeatStatusHeld, f.overlay.writes[0].status)
	assert.Empty(t, f.publisher.bookings)
}

func TestConfirmBookingReferenceCollisionRetries(t *testing.T) {
	f := newHoldServiceFixture()
	hold := activeHold("HOLD_ABC")
	f.holds.FindByHoldTokenFunc = func(ctx context.Context, token string) (*domain.SeatHold, error) {
		return hold, nil
	}
	attempts := 0
	f.bookings.CreateFunc = func(ctx context.Context, q repository.Queryer, booking *domain.Booking) error {
		attempts++
		if attempts == 1 {
			return domain.ErrDuplicateBookingRef
		}
		return nil
	}

	booking, err := f.svc.ConfirmBooking(context.Background(), &dto.ConfirmBookingRequest{
		HoldToken:  "HOLD_ABC",
		PaymentID:  "PAY_123",
		CustomerID: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, booking.BookingReference, 8)
}

// --- CancelHold ---

func TestCancelHoldSuccess(t *testing.T) {
	f := newHoldServiceFixture()
	hold := activeHold("HOLD_ABC")
	f.holds.FindByHoldTokenForUpdateFunc = func(ctx context.Context, q repository.Queryer, token string) (*domain.SeatHold, error) {
		return hold, nil
	}

	released := false
	f.seats.ReleaseSeatsFunc = func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
		released = true
		assert.Equal(t, hold.SeatIDs, seatIDs)
		return int64(len(seatIDs)), nil
	}

	err := f.svc.CancelHold(context.Background(), "HOLD_ABC", 100)
	require.NoError(t, err)

	assert.True(t, released)
	require.Len(t, f.holds.statusUpdates, 1)
	assert.Equal(t, domain.HoldStatusCancelled, f.holds.statusUpdates[0])

	require.Len(t, f.overlay.writes, 1)
	assert.Equal(t, domain.SeatStatusAvailable, f.overlay.writes[0].status)
	assert.Len(t, f.locks.released, 2)
	assert.Len(t, f.publisher.holdCancelled, 1)
}

func TestCancelHoldRejections(t *testing.T) {
	f := newHoldServiceFixture()
	hold := activeHold("HOLD_ABC")
	f.holds.FindByHoldTokenForUpdateFunc = func(ctx context.Context, q repository.Queryer, token string) (*domain.SeatHold, error) {
		return hold, nil
	}

	err := f.svc.CancelHold(context.Background(), "HOLD_ABC", 999)
	assert.ErrorIs(t, err, domain.ErrCustomerMismatch)

	hold.Status = domain.HoldStatusConfirmed
	err = f.svc.CancelHold(context.Background(), "HOLD_ABC", 100)
	assert.ErrorIs(t, err, domain.ErrHoldNotActive)

	err = f.svc.CancelHold(context.Background(), "", 100)
	assert.ErrorIs(t, err, domain.ErrMissingHoldToken)
}

func TestCancelHoldNotFound(t *testing.T) {
	f := newHoldServiceFixture()
	err := f.svc.CancelHold(context.Background(), "HOLD_MISSING", 100)
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
}

// --- Lookups ---

func TestGetSeatHold(t *testing.T) {
	f := newHoldServiceFixture()
	hold := activeHold("HOLD_ABC")
	f.holds.FindByHoldTokenFunc = func(ctx context.Context, token string) (*domain.SeatHold, error) {
		if token == "HOLD_ABC" {
			return hold, nil
		}
		return nil, domain.ErrHoldNotFound
	}

	got, err := f.svc.GetSeatHold(context.Background(), "HOLD_ABC")
	require.NoError(t, err)
	assert.Equal(t, "HOLD_ABC", got.HoldToken)
	assert.Equal(t, 2, got.SeatCount)
	assert.Greater(t, got.TimeRemainingSeconds, int64(0))

	_, err = f.svc.GetSeatHold(context.Background(), "HOLD_NOPE")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
}

func TestGetBooking(t *testing.T) {
	f := newHoldServiceFixture()
	f.bookings.FindByReferenceFunc = func(ctx context.Context, reference string) (*domain.Booking, error) {
		if reference == "ABCD1234" {
			return &domain.Booking{
				BookingReference: "ABCD1234",
				CustomerID:       100,
				EventID:          1,
				SeatIDs:          []int64{10, 11},
				TotalAmount:      decimal.NewFromInt(100),
				Status:           domain.BookingStatusConfirmed,
			}, nil
		}
		return nil, domain.ErrBookingNotFound
	}

	got, err := f.svc.GetBooking(context.Background(), "ABCD1234")
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", got.BookingReference)

	_, err = f.svc.GetBooking(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

// --- Concurrency property: overlapping seat sets ---

func TestConcurrentPlaceHoldOverlappingSeats(t *testing.T) {
	f := newHoldServiceFixture()

	// a shared lock table standing in for Redis SET NX
	held := make(map[string]string)
	var heldMu = make(chan struct{}, 1)
	heldMu <- struct{}{}

	f.locks.TryAcquireFunc = func(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error) {
		<-heldMu
		defer func() { heldMu <- struct{}{} }()
		key := fmt.Sprintf("%d:%d", eventID, seatID)
		if _, exists := held[key]; exists {
			return false, nil
		}
		held[key] = ownerValue
		return true, nil
	}

	type result struct {
		resp *dto.HoldResponse
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		customerID := int64(100 + i)
		go func() {
			resp, err := f.svc.PlaceHold(context.Background(), &dto.PlaceHoldRequest{
				CustomerID: customerID,
				EventID:    1,
				SeatIDs:    []int64{10, 11},
			})
			results <- result{resp, err}
		}()
	}

	var successes, unavailable int
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err == nil {
			successes++
		} else if errors.Is(r.err, domain.ErrSeatsUnavailable) {
			unavailable++
		} else {
			t.Fatalf("unexpected error: %v", r.err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one contender must win")
	assert.Equal(t, 1, unavailable, "the loser must see SeatsUnavailable")
}
