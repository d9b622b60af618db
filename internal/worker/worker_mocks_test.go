package worker

import (
	"context"
	"sync"
	"time"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/repository"
)

// Shared test doubles for the pipeline workers.

type mockSeatRepo struct {
	ReleaseSeatsFunc func(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error)

	released [][]int64
}

func (m *mockSeatRepo) FindByEventID(ctx context.Context, eventID int64) ([]*domain.Seat, error) {
	return nil, nil
}

func (m *mockSeatRepo) FindAvailableByEventID(ctx context.Context, eventID int64) ([]*domain.Seat, error) {
	return nil, nil
}

func (m *mockSeatRepo) FindByIDs(ctx context.Context, q repository.Queryer, seatIDs []int64) ([]*domain.Seat, error) {
	return nil, nil
}

func (m *mockSeatRepo) LockByIDs(ctx context.Context, q repository.Queryer, seatIDs []int64) ([]*domain.Seat, error) {
	return nil, nil
}

func (m *mockSeatRepo) HoldSeats(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
	return int64(len(seatIDs)), nil
}

func (m *mockSeatRepo) HoldSeatsGuarded(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
	return int64(len(seatIDs)), nil
}

func (m *mockSeatRepo) BookSeats(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
	return int64(len(seatIDs)), nil
}

func (m *mockSeatRepo) ReleaseSeats(ctx context.Context, q repository.Queryer, seatIDs []int64) (int64, error) {
	m.released = append(m.released, seatIDs)
	if m.ReleaseSeatsFunc != nil {
		return m.ReleaseSeatsFunc(ctx, q, seatIDs)
	}
	return int64(len(seatIDs)), nil
}

type mockHoldRepo struct {
	FindExpiredHoldsFunc        func(ctx context.Context, now time.Time) ([]*domain.SeatHold, error)
	FindExpiredHoldsForSeatFunc func(ctx context.Context, q repository.Queryer, eventID, seatID int64, now time.Time) ([]*domain.SeatHold, error)
	UpdateStatusFunc            func(ctx context.Context, q repository.Queryer, holdID int64, status domain.HoldStatus) error

	statusUpdates map[int64]domain.HoldStatus
}

func (m *mockHoldRepo) Create(ctx context.Context, q repository.Queryer, hold *domain.SeatHold) error {
	return nil
}

func (m *mockHoldRepo) FindByHoldToken(ctx context.Context, holdToken string) (*domain.SeatHold, error) {
	return nil, domain.ErrHoldNotFound
}

func (m *mockHoldRepo) FindByHoldTokenForUpdate(ctx context.Context, q repository.Queryer, holdToken string) (*domain.SeatHold, error) {
	return nil, domain.ErrHoldNotFound
}

func (m *mockHoldRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.SeatHold, error) {
	return nil, domain.ErrHoldNotFound
}

func (m *mockHoldRepo) UpdateStatus(ctx context.Context, q repository.Queryer, holdID int64, status domain.HoldStatus) error {
	if m.statusUpdates == nil {
		m.statusUpdates = make(map[int64]domain.HoldStatus)
	}
	m.statusUpdates[holdID] = status
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
	return nil, nil
}

type mockSeatLocks struct {
	GetFunc func(ctx context.Context, eventID, seatID int64) (string, error)
}

func (m *mockSeatLocks) TryAcquire(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (m *mockSeatLocks) Release(ctx context.Context, eventID, seatID int64, ownerValue string) error {
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
	mu     sync.Mutex
	writes []overlayWrite
}

func (m *mockOverlay) SetSeatStatus(ctx context.Context, eventID, seatID int64, status domain.SeatStatus) error {
	return m.SetSeatStatusMany(ctx, eventID, []int64{seatID}, status)
}

func (m *mockOverlay) SetSeatStatusMany(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) error {
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
	mu           sync.Mutex
	holdExpired  []*domain.SeatHold
	seatExpiries [][2]int64
}

func (m *mockPublisher) PublishSeatExpiry(ctx context.Context, eventID, seatID int64) error {
	m.mu.Lock()
	m.seatExpiries = append(m.seatExpiries, [2]int64{eventID, seatID})
	m.mu.Unlock()
	return nil
}

func (m *mockPublisher) PublishSeatHoldCreated(ctx context.Context, hold *domain.SeatHold) error {
	return nil
}

func (m *mockPublisher) PublishSeatHoldConfirmed(ctx context.Context, hold *domain.SeatHold) error {
	return nil
}

func (m *mockPublisher) PublishSeatHoldCancelled(ctx context.Context, hold *domain.SeatHold) error {
	return nil
}

func (m *mockPublisher) PublishSeatHoldExpired(ctx context.Context, hold *domain.SeatHold) error {
	m.mu.Lock()
	m.holdExpired = append(m.holdExpired, hold)
	m.mu.Unlock()
	return nil
}

func (m *mockPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
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
