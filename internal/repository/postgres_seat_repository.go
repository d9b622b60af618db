package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

const seatColumns = `id, event_id, section, row_letter, seat_number, price, status, version, created_at, updated_at`

// PostgresSeatRepository implements SeatRepository using pgxpool
type PostgresSeatRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSeatRepository creates a new PostgresSeatRepository
func NewPostgresSeatRepository(pool *pgxpool.Pool) *PostgresSeatRepository {
	return &PostgresSeatRepository{pool: pool}
}

// FindByEventID returns all seats of an event ordered by section, row, number
func (r *PostgresSeatRepository) FindByEventID(ctx context.Context, eventID int64) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.find_by_event")
	defer span.End()
	span.SetAttributes(attribute.Int64("event_id", eventID))

	query := `
		SELECT ` + seatColumns + `
		FROM seats
		WHERE event_id = $1
		ORDER BY section, row_letter, seat_number
	`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query seats by event: %w", err)
	}
	defer rows.Close()

	return scanSeats(rows)
}

// FindAvailableByEventID returns only AVAILABLE seats of an event
func (r *PostgresSeatRepository) FindAvailableByEventID(ctx context.Context, eventID int64) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.find_available_by_event")
	defer span.End()
	span.SetAttributes(attribute.Int64("event_id", eventID))

	query := `
		SELECT ` + seatColumns + `
		FROM seats
		WHERE event_id = $1 AND status = 'AVAILABLE'
		ORDER BY section, row_letter, seat_number
	`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query available seats: %w", err)
	}
	defer rows.Close()

	return scanSeats(rows)
}

// FindByIDs returns the seats with the given ids, ordered by id
func (r *PostgresSeatRepository) FindByIDs(ctx context.Context, q Queryer, seatIDs []int64) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.find_by_ids")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(seatIDs)))

	if q == nil {
		q = r.pool
	}

	query := `
		SELECT ` + seatColumns + `
		FROM seats
		WHERE id = ANY($1)
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query seats by ids: %w", err)
	}
	defer rows.Close()

	return scanSeats(rows)
}

// LockByIDs selects the seats FOR UPDATE, serializing concurrent holders at
// the database when the lock store is unavailable.
func (r *PostgresSeatRepository) LockByIDs(ctx context.Context, q Queryer, seatIDs []int64) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.lock_by_ids")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(seatIDs)))

	query := `
		SELECT ` + seatColumns + `
		FROM seats
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := q.Query(ctx, query, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to lock seats: %w", err)
	}
	defer rows.Close()

	return scanSeats(rows)
}

// HoldSeatsGuarded flips the listed seats to HELD unless they are BOOKED.
// The predicate excludes only BOOKED so a seat still marked HELD by an
// expired hold that cleanup has not reached yet can be re-held; concurrent
// active holds are excluded upstream by the per-seat locks.
func (r *PostgresSeatRepository) HoldSeatsGuarded(ctx context.Context, q Queryer, seatIDs []int64) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.hold_guarded")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(seatIDs)))

	query := `
		UPDATE seats
		SET status = 'HELD', version = version + 1, updated_at = NOW()
		WHERE id = ANY($1) AND status <> 'BOOKED'
	`

	tag, err := q.Exec(ctx, query, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to hold seats: %w", err)
	}

	span.SetAttributes(attribute.Int64("affected", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// HoldSeats flips the listed seats to HELD only from AVAILABLE. The strict
// predicate stands in for the per-seat locks when the lock store is down:
// a seat held by anyone, even a stale uncleaned hold, cannot be re-held.
func (r *PostgresSeatRepository) HoldSeats(ctx context.Context, q Queryer, seatIDs []int64) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.hold")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(seatIDs)))

	query := `
		UPDATE seats
		SET status = 'HELD', version = version + 1, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'AVAILABLE'
	`

	tag, err := q.Exec(ctx, query, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to hold seats: %w", err)
	}

	span.SetAttributes(attribute.Int64("affected", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// BookSeats flips the listed seats from HELD to BOOKED
func (r *PostgresSeatRepository) BookSeats(ctx context.Context, q Queryer, seatIDs []int64) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.book")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(seatIDs)))

	query := `
		UPDATE seats
		SET status = 'BOOKED', version = version + 1, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'HELD'
	`

	tag, err := q.Exec(ctx, query, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to book seats: %w", err)
	}

	span.SetAttributes(attribute.Int64("affected", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// ReleaseSeats flips the listed seats from HELD back to AVAILABLE.
// Zero affected rows means the seats were already AVAILABLE or BOOKED;
// expiry consumers use that as their idempotency cut.
func (r *PostgresSeatRepository) ReleaseSeats(ctx context.Context, q Queryer, seatIDs []int64) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.release")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(seatIDs)))

	query := `
		UPDATE seats
		SET status = 'AVAILABLE', version = version + 1, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'HELD'
	`

	tag, err := q.Exec(ctx, query, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}

	span.SetAttributes(attribute.Int64("affected", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

func scanSeats(rows pgx.Rows) ([]*domain.Seat, error) {
	var seats []*domain.Seat
	for rows.Next() {
		seat := &domain.Seat{}
		var status string
		err := rows.Scan(
			&seat.ID,
			&seat.EventID,
			&seat.Section,
			&seat.RowLetter,
			&seat.SeatNumber,
			&seat.Price,
			&status,
			&seat.Version,
			&seat.CreatedAt,
			&seat.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seat.Status = domain.SeatStatus(status)
		seats = append(seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating seats: %w", err)
	}
	return seats, nil
}

var _ SeatRepository = (*PostgresSeatRepository)(nil)
