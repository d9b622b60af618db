package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

// PostgresBookingRepository implements BookingRepository using pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// Create inserts a booking and fills in its generated id
func (r *PostgresBookingRepository) Create(ctx context.Context, q Queryer, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_reference", booking.BookingReference),
		attribute.Int64("customer_id", booking.CustomerID),
		attribute.Int64("event_id", booking.EventID),
	)

	if q == nil {
		q = r.pool
	}
	if tx, ok := q.(pgx.Tx); ok {
		// a unique violation aborts the enclosing transaction; running the
		// insert under a savepoint keeps it usable for a retry
		sp, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to create booking savepoint: %w", err)
		}
		defer func() { _ = sp.Rollback(ctx) }()
		q = sp
	}

	query := `
		INSERT INTO bookings (
			booking_reference, customer_id, event_id, seat_ids, total_amount,
			status, payment_id, hold_token, confirmed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := q.QueryRow(ctx, query,
		booking.BookingReference,
		booking.CustomerID,
		booking.EventID,
		booking.SeatIDs,
		booking.TotalAmount,
		booking.Status.String(),
		booking.PaymentID,
		booking.HoldToken,
		booking.ConfirmedAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Scan(&booking.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "bookings_booking_reference_key" {
			span.SetStatus(codes.Error, "duplicate booking reference")
			return domain.ErrDuplicateBookingRef
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if sp, ok := q.(pgx.Tx); ok {
		return sp.Commit(ctx)
	}
	return nil
}

// FindByReference returns the booking or domain.ErrBookingNotFound
func (r *PostgresBookingRepository) FindByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.find_by_reference")
	defer span.End()
	span.SetAttributes(attribute.String("booking_reference", reference))

	query := `
		SELECT id, booking_reference, customer_id, event_id, seat_ids, total_amount,
		       status, payment_id, hold_token, confirmed_at, cancelled_at, created_at, updated_at
		FROM bookings
		WHERE booking_reference = $1
	`

	booking := &domain.Booking{}
	var status string
	err := r.pool.QueryRow(ctx, query, reference).Scan(
		&booking.ID,
		&booking.BookingReference,
		&booking.CustomerID,
		&booking.EventID,
		&booking.SeatIDs,
		&booking.TotalAmount,
		&status,
		&booking.PaymentID,
		&booking.HoldToken,
		&booking.ConfirmedAt,
		&booking.CancelledAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	booking.Status = domain.BookingStatus(status)
	return booking, nil
}

var _ BookingRepository = (*PostgresBookingRepository)(nil)
