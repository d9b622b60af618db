package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seatsurge/booking-core/internal/domain"
)

// Queryer is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
// Mutating repository methods take an explicit Queryer so the caller decides
// the transaction boundary (see UnitOfWork).
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EventRepository reads event rows (the booking core never writes them)
type EventRepository interface {
	// FindByID returns the event or domain.ErrEventNotFound
	FindByID(ctx context.Context, id int64) (*domain.Event, error)
}

// SeatRepository owns seat rows. The four conditional updates are the
// ground-truth guard of the whole subsystem: a transition happens only when
// the status predicate matches, and callers compare affected rows against
// the requested seat count.
type SeatRepository interface {
	FindByEventID(ctx context.Context, eventID int64) ([]*domain.Seat, error)
	FindAvailableByEventID(ctx context.Context, eventID int64) ([]*domain.Seat, error)
	FindByIDs(ctx context.Context, q Queryer, seatIDs []int64) ([]*domain.Seat, error)
	// LockByIDs takes row-level write locks, used by the degraded hold path
	LockByIDs(ctx context.Context, q Queryer, seatIDs []int64) ([]*domain.Seat, error)
	// HoldSeatsGuarded flips seats to HELD where status is not BOOKED.
	// Safe only when per-seat locks exclude concurrent holders.
	HoldSeatsGuarded(ctx context.Context, q Queryer, seatIDs []int64) (int64, error)
	// HoldSeats flips seats to HELD only from AVAILABLE; the degraded path
	// uses this strict form because no lock excludes concurrent holders.
	HoldSeats(ctx context.Context, q Queryer, seatIDs []int64) (int64, error)
	// BookSeats flips seats from HELD to BOOKED
	BookSeats(ctx context.Context, q Queryer, seatIDs []int64) (int64, error)
	// ReleaseSeats flips seats from HELD back to AVAILABLE
	ReleaseSeats(ctx context.Context, q Queryer, seatIDs []int64) (int64, error)
}

// HoldRepository owns seat_hold rows
type HoldRepository interface {
	Create(ctx context.Context, q Queryer, hold *domain.SeatHold) error
	FindByHoldToken(ctx context.Context, holdToken string) (*domain.SeatHold, error)
	// FindByHoldTokenForUpdate takes a row-level write lock on the hold
	FindByHoldTokenForUpdate(ctx context.Context, q Queryer, holdToken string) (*domain.SeatHold, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.SeatHold, error)
	UpdateStatus(ctx context.Context, q Queryer, holdID int64, status domain.HoldStatus) error
	FindExpiredHolds(ctx context.Context, now time.Time) ([]*domain.SeatHold, error)
	FindExpiredHoldsForSeat(ctx context.Context, q Queryer, eventID, seatID int64, now time.Time) ([]*domain.SeatHold, error)
	FindActiveHoldsByCustomer(ctx context.Context, customerID int64, now time.Time) ([]*domain.SeatHold, error)
}

// BookingRepository owns booking rows
type BookingRepository interface {
	// Create inserts the booking; returns domain.ErrDuplicateBookingRef when
	// the reference collides so the caller can mint a fresh one.
	Create(ctx context.Context, q Queryer, booking *domain.Booking) error
	FindByReference(ctx context.Context, reference string) (*domain.Booking, error)
}

// SeatLockRepository provides the per-seat TTL locks that resolve contention
// on the hot hold path. Presence of a key means an active hold owns the seat.
type SeatLockRepository interface {
	// TryAcquire is an atomic set-if-absent with expiry; true iff acquired
	TryAcquire(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error)
	// Release deletes the lock only when its value matches ownerValue
	Release(ctx context.Context, eventID, seatID int64, ownerValue string) error
	// Get returns the current lock value, or "" when the key is absent
	Get(ctx context.Context, eventID, seatID int64) (string, error)
}

// SeatStatusRepository is the per-event seat-status overlay read alongside
// the database to reduce client-visible staleness. Last-writer-wins by
// design; ground truth stays in the seat rows.
type SeatStatusRepository interface {
	SetSeatStatus(ctx context.Context, eventID, seatID int64, status domain.SeatStatus) error
	SetSeatStatusMany(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) error
	GetEventOverlay(ctx context.Context, eventID int64) (map[int64]domain.SeatStatus, error)
	StatusCounts(ctx context.Context, eventID int64) (map[domain.SeatStatus]int64, error)
	Clear(ctx context.Context, eventID int64) error
}
