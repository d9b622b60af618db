package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/dto"
	"github.com/seatsurge/booking-core/internal/metrics"
	"github.com/seatsurge/booking-core/internal/repository"
	"github.com/seatsurge/booking-core/internal/token"
	"github.com/seatsurge/booking-core/pkg/logger"
	pkgredis "github.com/seatsurge/booking-core/pkg/redis"
	"github.com/seatsurge/booking-core/pkg/retry"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

// HoldService is the synchronous hold orchestrator: it owns the ordering
// between the lock store, the database and the event log for every
// place/confirm/cancel transition.
type HoldService interface {
	PlaceHold(ctx context.Context, req *dto.PlaceHoldRequest) (*dto.HoldResponse, error)
	ConfirmBooking(ctx context.Context, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error)
	CancelHold(ctx context.Context, holdToken string, customerID int64) error
	GetSeatHold(ctx context.Context, holdToken string) (*dto.SeatHoldDto, error)
	GetBooking(ctx context.Context, reference string) (*dto.BookingResponse, error)
}

// HoldServiceConfig contains configuration for the hold orchestrator
type HoldServiceConfig struct {
	HoldDuration    time.Duration
	MaxSeatsPerHold int
}

type holdService struct {
	events    repository.EventRepository
	seats     repository.SeatRepository
	holds     repository.HoldRepository
	bookings  repository.BookingRepository
	locks     repository.SeatLockRepository
	overlay   repository.SeatStatusRepository
	publisher EventPublisher
	txRunner  repository.TxRunner
	retrier   *retry.Retrier

	holdDuration    time.Duration
	maxSeatsPerHold int
	log             *logger.Logger
}

// NewHoldService creates the hold orchestrator
func NewHoldService(
	events repository.EventRepository,
	seats repository.SeatRepository,
	holds repository.HoldRepository,
	bookings repository.BookingRepository,
	locks repository.SeatLockRepository,
	overlay repository.SeatStatusRepository,
	publisher EventPublisher,
	txRunner repository.TxRunner,
	cfg *HoldServiceConfig,
) HoldService {
	holdDuration := 10 * time.Minute
	maxSeats := 10
	if cfg != nil {
		if cfg.HoldDuration > 0 {
			holdDuration = cfg.HoldDuration
		}
		if cfg.MaxSeatsPerHold > 0 {
			maxSeats = cfg.MaxSeatsPerHold
		}
	}
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}
	return &holdService{
		events:          events,
		seats:           seats,
		holds:           holds,
		bookings:        bookings,
		locks:           locks,
		overlay:         overlay,
		publisher:       publisher,
		txRunner:        txRunner,
		retrier:         retry.New(retry.DefaultConfig()),
		holdDuration:    holdDuration,
		maxSeatsPerHold: maxSeats,
		log:             logger.Get(),
	}
}

// PlaceHold reserves a seat set for one customer for the hold duration.
//
// Protocol: mint a token, acquire every per-seat lock or none, then write the
// database under the guarded predicate. Lock acquisition resolves contention;
// the DB predicate is ground truth. If the lock store is unreachable the
// protocol degrades to row-level locking in the database alone.
func (s *holdService) PlaceHold(ctx context.Context, req *dto.PlaceHoldRequest) (*dto.HoldResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.hold.place")
	defer span.End()

	if err := s.validatePlaceHold(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("customer_id", req.CustomerID),
		attribute.Int64("event_id", req.EventID),
		attribute.Int("seat_count", len(req.SeatIDs)),
	)

	// Idempotent replay: the key is stored on the hold row, so a retried
	// request returns the hold it already created.
	if req.IdempotencyKey != "" {
		if existing, err := s.holds.FindByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
			return s.replayHoldResponse(ctx, existing)
		} else if !errors.Is(err, domain.ErrHoldNotFound) {
			return nil, err
		}
	}

	event, err := s.events.FindByID(ctx, req.EventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !event.IsBookable() {
		span.SetStatus(codes.Error, "event not bookable")
		return nil, domain.ErrEventNotBookable
	}

	holdDuration := s.holdDuration
	if req.HoldDurationMinutes > 0 {
		holdDuration = time.Duration(req.HoldDurationMinutes) * time.Minute
	}

	holdToken := token.GenerateHoldToken()
	ownerValue := repository.LockOwnerValue(req.CustomerID, holdToken)

	// Acquire all locks or none, in the order the client sent the seats.
	// Acquisition never blocks, so overlapping requests cannot deadlock.
	_, degraded, err := s.acquireSeatLocks(ctx, req.EventID, req.SeatIDs, ownerValue, holdDuration)
	if err != nil {
		if errors.Is(err, domain.ErrSeatsUnavailable) {
			metrics.RecordHoldRejected(ctx, req.EventID)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("degraded", degraded))

	now := time.Now()
	hold := &domain.SeatHold{
		HoldToken:      holdToken,
		CustomerID:     req.CustomerID,
		EventID:        req.EventID,
		SeatIDs:        req.SeatIDs,
		SeatCount:      len(req.SeatIDs),
		ExpiresAt:      now.Add(holdDuration),
		Status:         domain.HoldStatusActive,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var seats []*domain.Seat
	hookCtx := context.WithoutCancel(ctx)

	txErr := s.runTx(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		q := uow.Tx()

		// registered first so any rollback re-affirms AVAILABLE: a rolled-back
		// hold must never leave the overlay advertising seats as HELD
		uow.AfterRollback(func() {
			s.setOverlay(hookCtx, req.EventID, req.SeatIDs, domain.SeatStatusAvailable)
		})

		var affected int64
		var err error
		if degraded {
			// No distributed locks to lean on: serialize contenders on the
			// seat rows, then hold under the strict AVAILABLE-only predicate
			// so an overlapping degraded hold is rejected here.
			if _, err = s.seats.LockByIDs(ctx, q, req.SeatIDs); err != nil {
				return err
			}
			affected, err = s.seats.HoldSeats(ctx, q, req.SeatIDs)
		} else {
			// the per-seat locks exclude concurrent holders; the predicate
			// only needs to catch BOOKED seats and expiry-cleanup lag
			affected, err = s.seats.HoldSeatsGuarded(ctx, q, req.SeatIDs)
		}
		if err != nil {
			return err
		}
		if affected != int64(len(req.SeatIDs)) {
			// a seat is BOOKED or unknown; the hold cannot proceed
			return domain.ErrSeatsUnavailable
		}

		seats, err = s.seats.FindByIDs(ctx, q, req.SeatIDs)
		if err != nil {
			return err
		}
		if len(seats) != len(req.SeatIDs) {
			return domain.ErrSeatsNotFound
		}
		for _, seat := range seats {
			if seat.EventID != req.EventID {
				return domain.ErrCrossEventSeats
			}
		}

		if err := s.holds.Create(ctx, q, hold); err != nil {
			return err
		}

		uow.AfterCommit(func() {
			s.setOverlay(hookCtx, req.EventID, req.SeatIDs, domain.SeatStatusHeld)
			if err := s.publisher.PublishSeatHoldCreated(hookCtx, hold); err != nil {
				s.log.Error("failed to publish seat hold created", "hold_token", hold.HoldToken, "error", err)
			}
		})
		return nil
	})

	if txErr != nil {
		if !degraded {
			s.releaseSeatLocks(hookCtx, req.EventID, req.SeatIDs, ownerValue)
		}
		if errors.Is(txErr, domain.ErrDuplicateIdempotencyKey) && req.IdempotencyKey != "" {
			if existing, err := s.holds.FindByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
				return s.replayHoldResponse(ctx, existing)
			}
		}
		if errors.Is(txErr, domain.ErrSeatsUnavailable) {
			metrics.RecordHoldRejected(ctx, req.EventID)
		}
		span.SetStatus(codes.Error, txErr.Error())
		return nil, txErr
	}

	metrics.RecordHoldPlaced(ctx, req.EventID, hold.SeatCount, degraded)
	s.log.Info("seat hold created",
		"hold_token", hold.HoldToken,
		"customer_id", req.CustomerID,
		"event_id", req.EventID,
		"seat_count", hold.SeatCount,
		"degraded", degraded,
	)

	message := fmt.Sprintf("Seats held successfully. Complete payment within %d minutes.", int(holdDuration.Minutes()))
	if degraded {
		message = "Seats held in degraded mode (lock store unavailable). Complete payment within " +
			fmt.Sprintf("%d minutes.", int(holdDuration.Minutes()))
	}

	return &dto.HoldResponse{
		HoldToken:            hold.HoldToken,
		CustomerID:           hold.CustomerID,
		EventID:              hold.EventID,
		EventTitle:           event.Title,
		SeatCount:            hold.SeatCount,
		TotalAmount:          domain.TotalPrice(seats),
		ExpiresAt:            hold.ExpiresAt,
		TimeRemainingSeconds: hold.TimeRemaining(time.Now()),
		Status:               hold.Status.String(),
		CreatedAt:            hold.CreatedAt,
		Message:              message,
		Degraded:             degraded,
	}, nil
}

// ConfirmBooking converts an active hold into a booking.
//
// The database is the source of truth here: a lock that has vanished (lock
// store restart, TTL firing early) must not block confirmation. The
// status='HELD' predicate in BookSeats carries the correctness.
func (s *holdService) ConfirmBooking(ctx context.Context, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.hold.confirm")
	defer span.End()

	if req == nil || req.HoldToken == "" {
		return nil, domain.ErrMissingHoldToken
	}
	if req.PaymentID == "" {
		return nil, domain.ErrMissingPaymentID
	}
	if req.CustomerID <= 0 {
		return nil, domain.ErrInvalidCustomer
	}

	span.SetAttributes(
		attribute.String("hold_token", req.HoldToken),
		attribute.Int64("customer_id", req.CustomerID),
	)

	hold, err := s.holds.FindByHoldToken(ctx, req.HoldToken)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now()
	switch {
	case hold.Status == domain.HoldStatusConfirmed:
		return nil, domain.ErrHoldAlreadyConfirmed
	case hold.Status != domain.HoldStatusActive:
		return nil, domain.ErrHoldExpired
	case hold.IsExpired(now):
		return nil, domain.ErrHoldExpired
	case !hold.BelongsTo(req.CustomerID):
		return nil, domain.ErrCustomerMismatch
	}

	ownerValue := repository.LockOwnerValue(hold.CustomerID, hold.HoldToken)
	hookCtx := context.WithoutCancel(ctx)

	var booking *domain.Booking

	txErr := s.runTx(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		q := uow.Tx()

		// on any rollback the hold stays ACTIVE and its seats stay HELD;
		// re-affirm the overlay in case the lock store lost those entries
		uow.AfterRollback(func() {
			s.setOverlay(hookCtx, hold.EventID, hold.SeatIDs, domain.SeatStatusHeld)
		})

		affected, err := s.seats.BookSeats(ctx, q, hold.SeatIDs)
		if err != nil {
			return err
		}
		if affected != int64(len(hold.SeatIDs)) {
			// a concurrent expiry released the seats between load and update
			return domain.ErrHoldExpired
		}

		if err := s.holds.UpdateStatus(ctx, q, hold.ID, domain.HoldStatusConfirmed); err != nil {
			return err
		}

		seats, err := s.seats.FindByIDs(ctx, q, hold.SeatIDs)
		if err != nil {
			return err
		}

		confirmedAt := time.Now()
		booking = &domain.Booking{
			BookingReference: token.GenerateBookingReference(),
			CustomerID:       hold.CustomerID,
			EventID:          hold.EventID,
			SeatIDs:          hold.SeatIDs,
			TotalAmount:      domain.TotalPrice(seats),
			Status:           domain.BookingStatusConfirmed,
			PaymentID:        req.PaymentID,
			HoldToken:        hold.HoldToken,
			ConfirmedAt:      &confirmedAt,
			CreatedAt:        confirmedAt,
			UpdatedAt:        confirmedAt,
		}

		if err := s.bookings.Create(ctx, q, booking); err != nil {
			// 36^8 references collide rarely; one fresh mint is enough
			if errors.Is(err, domain.ErrDuplicateBookingRef) {
				booking.BookingReference = token.GenerateBookingReference()
				err = s.bookings.Create(ctx, q, booking)
			}
			if err != nil {
				return err
			}
		}

		uow.AfterCommit(func() {
			s.setOverlay(hookCtx, hold.EventID, hold.SeatIDs, domain.SeatStatusBooked)
			// locks may already be gone if the TTL fired; compare-and-delete
			// makes that a no-op
			s.releaseSeatLocks(hookCtx, hold.EventID, hold.SeatIDs, ownerValue)
			confirmedHold := *hold
			confirmedHold.Status = domain.HoldStatusConfirmed
			if err := s.publisher.PublishBookingConfirmed(hookCtx, booking); err != nil {
				s.log.Error("failed to publish booking confirmed", "booking_reference", booking.BookingReference, "error", err)
			}
			if err := s.publisher.PublishSeatHoldConfirmed(hookCtx, &confirmedHold); err != nil {
				s.log.Error("failed to publish seat hold confirmed", "hold_token", hold.HoldToken, "error", err)
			}
		})
		return nil
	})

	if txErr != nil {
		span.SetStatus(codes.Error, txErr.Error())
		return nil, txErr
	}

	metrics.RecordHoldConfirmed(ctx, hold.EventID, time.Since(hold.CreatedAt).Seconds())
	s.log.Info("booking confirmed",
		"booking_reference", booking.BookingReference,
		"hold_token", hold.HoldToken,
		"customer_id", hold.CustomerID,
	)

	return dto.BookingFromDomain(booking), nil
}

// CancelHold releases an active hold and returns its seats to the pool
func (s *holdService) CancelHold(ctx context.Context, holdToken string, customerID int64) error {
	ctx, span := telemetry.StartSpan(ctx, "service.hold.cancel")
	defer span.End()

	if holdToken == "" {
		return domain.ErrMissingHoldToken
	}
	if customerID <= 0 {
		return domain.ErrInvalidCustomer
	}

	span.SetAttributes(
		attribute.String("hold_token", holdToken),
		attribute.Int64("customer_id", customerID),
	)

	hookCtx := context.WithoutCancel(ctx)
	var cancelled *domain.SeatHold

	txErr := s.runTx(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		q := uow.Tx()

		hold, err := s.holds.FindByHoldTokenForUpdate(ctx, q, holdToken)
		if err != nil {
			return err
		}
		if !hold.BelongsTo(customerID) {
			return domain.ErrCustomerMismatch
		}
		if hold.Status != domain.HoldStatusActive {
			return domain.ErrHoldNotActive
		}

		// a rolled-back cancel leaves the hold ACTIVE and its seats HELD
		uow.AfterRollback(func() {
			s.setOverlay(hookCtx, hold.EventID, hold.SeatIDs, domain.SeatStatusHeld)
		})

		if _, err := s.seats.ReleaseSeats(ctx, q, hold.SeatIDs); err != nil {
			return err
		}
		if err := s.holds.UpdateStatus(ctx, q, hold.ID, domain.HoldStatusCancelled); err != nil {
			return err
		}

		cancelled = hold
		ownerValue := repository.LockOwnerValue(hold.CustomerID, hold.HoldToken)

		uow.AfterCommit(func() {
			s.setOverlay(hookCtx, hold.EventID, hold.SeatIDs, domain.SeatStatusAvailable)
			s.releaseSeatLocks(hookCtx, hold.EventID, hold.SeatIDs, ownerValue)
			cancelledHold := *hold
			cancelledHold.Status = domain.HoldStatusCancelled
			if err := s.publisher.PublishSeatHoldCancelled(hookCtx, &cancelledHold); err != nil {
				s.log.Error("failed to publish seat hold cancelled", "hold_token", hold.HoldToken, "error", err)
			}
		})
		return nil
	})

	if txErr != nil {
		span.SetStatus(codes.Error, txErr.Error())
		return txErr
	}

	metrics.RecordHoldCancelled(ctx, cancelled.EventID)
	s.log.Info("seat hold cancelled", "hold_token", holdToken, "customer_id", customerID)
	return nil
}

// GetSeatHold returns the hold DTO for a token
func (s *holdService) GetSeatHold(ctx context.Context, holdToken string) (*dto.SeatHoldDto, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.hold.get")
	defer span.End()

	if holdToken == "" {
		return nil, domain.ErrMissingHoldToken
	}

	hold, err := s.holds.FindByHoldToken(ctx, holdToken)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return dto.HoldFromDomain(hold, time.Now()), nil
}

// GetBooking returns the booking DTO for a reference
func (s *holdService) GetBooking(ctx context.Context, reference string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.hold.get_booking")
	defer span.End()

	booking, err := s.bookings.FindByReference(ctx, reference)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return dto.BookingFromDomain(booking), nil
}

func (s *holdService) validatePlaceHold(req *dto.PlaceHoldRequest) error {
	if req == nil || len(req.SeatIDs) == 0 {
		return domain.ErrNoSeatsRequested
	}
	if len(req.SeatIDs) > s.maxSeatsPerHold {
		return domain.ErrTooManySeats
	}
	if req.CustomerID <= 0 {
		return domain.ErrInvalidCustomer
	}
	seen := make(map[int64]struct{}, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		if _, dup := seen[id]; dup {
			return domain.ErrDuplicateSeatIDs
		}
		seen[id] = struct{}{}
	}
	return nil
}

// acquireSeatLocks takes the per-seat locks in request order. It returns
// degraded=true when the lock store is unreachable and the caller must fall
// back to DB-only guarding. Any partial acquisition is rolled back before
// returning.
func (s *holdService) acquireSeatLocks(ctx context.Context, eventID int64, seatIDs []int64, ownerValue string, ttl time.Duration) (acquired []int64, degraded bool, err error) {
	for _, seatID := range seatIDs {
		ok, acquireErr := s.locks.TryAcquire(ctx, eventID, seatID, ownerValue, ttl)
		if acquireErr != nil {
			s.releaseSeatLocks(context.WithoutCancel(ctx), eventID, acquired, ownerValue)
			if pkgredis.IsConnectionError(acquireErr) {
				s.log.Warn("lock store unreachable, degrading to DB-only guarding",
					"event_id", eventID, "error", acquireErr)
				return nil, true, nil
			}
			return nil, false, acquireErr
		}
		if !ok {
			s.releaseSeatLocks(context.WithoutCancel(ctx), eventID, acquired, ownerValue)
			return nil, false, domain.ErrSeatsUnavailable
		}
		acquired = append(acquired, seatID)
	}
	return acquired, false, nil
}

func (s *holdService) releaseSeatLocks(ctx context.Context, eventID int64, seatIDs []int64, ownerValue string) {
	for _, seatID := range seatIDs {
		if err := s.locks.Release(ctx, eventID, seatID, ownerValue); err != nil {
			s.log.Error("failed to release seat lock",
				"event_id", eventID, "seat_id", seatID, "error", err)
		}
	}
}

func (s *holdService) setOverlay(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) {
	if err := s.overlay.SetSeatStatusMany(ctx, eventID, seatIDs, status); err != nil {
		s.log.Warn("failed to update seat status overlay",
			"event_id", eventID, "status", status.String(), "error", err)
	}
}

// runTx executes fn inside a transaction, retrying the whole unit on
// transient database errors (deadlock, serialization failure). Business
// errors are permanent and surface immediately.
func (s *holdService) runTx(ctx context.Context, fn func(ctx context.Context, uow *repository.UnitOfWork) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		err := s.txRunner.WithinTx(ctx, fn)
		if err != nil && !isTransientDBError(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

func isTransientDBError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// replayHoldResponse rebuilds the response for an idempotent retry from the
// hold that the earlier attempt created.
func (s *holdService) replayHoldResponse(ctx context.Context, hold *domain.SeatHold) (*dto.HoldResponse, error) {
	event, err := s.events.FindByID(ctx, hold.EventID)
	if err != nil {
		return nil, err
	}
	seats, err := s.seats.FindByIDs(ctx, nil, hold.SeatIDs)
	if err != nil {
		return nil, err
	}
	return &dto.HoldResponse{
		HoldToken:            hold.HoldToken,
		CustomerID:           hold.CustomerID,
		EventID:              hold.EventID,
		EventTitle:           event.Title,
		SeatCount:            hold.SeatCount,
		TotalAmount:          domain.TotalPrice(seats),
		ExpiresAt:            hold.ExpiresAt,
		TimeRemainingSeconds: hold.TimeRemaining(time.Now()),
		Status:               hold.Status.String(),
		CreatedAt:            hold.CreatedAt,
		Message:              "Idempotent replay of an existing hold.",
	}, nil
}

var _ HoldService = (*holdService)(nil)
