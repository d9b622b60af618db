package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

const holdColumns = `id, hold_token, customer_id, event_id, seat_ids, seat_count, expires_at, status, idempotency_key, created_at, updated_at`

// PostgresHoldRepository implements HoldRepository using pgxpool
type PostgresHoldRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresHoldRepository creates a new PostgresHoldRepository
func NewPostgresHoldRepository(pool *pgxpool.Pool) *PostgresHoldRepository {
	return &PostgresHoldRepository{pool: pool}
}

// Create inserts a new hold and fills in its generated id
func (r *PostgresHoldRepository) Create(ctx context.Context, q Queryer, hold *domain.SeatHold) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("hold_token", hold.HoldToken),
		attribute.Int64("event_id", hold.EventID),
		attribute.Int("seat_count", hold.SeatCount),
	)

	if q == nil {
		q = r.pool
	}

	query := `
		INSERT INTO seat_holds (
			hold_token, customer_id, event_id, seat_ids, seat_count,
			expires_at, status, idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		RETURNING id
	`

	err := q.QueryRow(ctx, query,
		hold.HoldToken,
		hold.CustomerID,
		hold.EventID,
		hold.SeatIDs,
		hold.SeatCount,
		hold.ExpiresAt,
		hold.Status.String(),
		hold.IdempotencyKey,
		hold.CreatedAt,
		hold.UpdatedAt,
	).Scan(&hold.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "seat_holds_idempotency_key_key" {
			span.SetStatus(codes.Error, "duplicate idempotency key")
			return domain.ErrDuplicateIdempotencyKey
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create seat hold: %w", err)
	}

	return nil
}

// FindByHoldToken returns the hold or domain.ErrHoldNotFound
func (r *PostgresHoldRepository) FindByHoldToken(ctx context.Context, holdToken string) (*domain.SeatHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.find_by_token")
	defer span.End()
	span.SetAttributes(attribute.String("hold_token", holdToken))

	query := `SELECT ` + holdColumns + ` FROM seat_holds WHERE hold_token = $1`
	return r.queryOne(ctx, r.pool, query, holdToken)
}

// FindByHoldTokenForUpdate loads the hold under a row-level write lock
func (r *PostgresHoldRepository) FindByHoldTokenForUpdate(ctx context.Context, q Queryer, holdToken string) (*domain.SeatHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.find_by_token_for_update")
	defer span.End()
	span.SetAttributes(attribute.String("hold_token", holdToken))

	query := `SELECT ` + holdColumns + ` FROM seat_holds WHERE hold_token = $1 FOR UPDATE`
	return r.queryOne(ctx, q, query, holdToken)
}

// FindByIdempotencyKey returns the hold created with the given key, or
// domain.ErrHoldNotFound
func (r *PostgresHoldRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.SeatHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.find_by_idempotency_key")
	defer span.End()

	query := `SELECT ` + holdColumns + ` FROM seat_holds WHERE idempotency_key = $1`
	return r.queryOne(ctx, r.pool, query, key)
}

// UpdateStatus moves the hold to a terminal status
func (r *PostgresHoldRepository) UpdateStatus(ctx context.Context, q Queryer, holdID int64, status domain.HoldStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("hold_id", holdID),
		attribute.String("status", status.String()),
	)

	query := `UPDATE seat_holds SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := q.Exec(ctx, query, holdID, status.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update hold status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrHoldNotFound
	}
	return nil
}

// FindExpiredHolds returns ACTIVE holds whose expiry has passed
func (r *PostgresHoldRepository) FindExpiredHolds(ctx context.Context, now time.Time) ([]*domain.SeatHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.find_expired")
	defer span.End()

	query := `
		SELECT ` + holdColumns + `
		FROM seat_holds
		WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY expires_at
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query expired holds: %w", err)
	}
	defer rows.Close()

	return scanHolds(rows)
}

// FindExpiredHoldsForSeat returns expired ACTIVE holds that include the seat.
// Array containment needs the native ANY(seat_ids) form.
func (r *PostgresHoldRepository) FindExpiredHoldsForSeat(ctx context.Context, q Queryer, eventID, seatID int64, now time.Time) ([]*domain.SeatHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.find_expired_for_seat")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("seat_id", seatID),
	)

	if q == nil {
		q = r.pool
	}

	query := `
		SELECT ` + holdColumns + `
		FROM seat_holds
		WHERE event_id = $1
		  AND status = 'ACTIVE'
		  AND expires_at <= $3
		  AND $2 = ANY(seat_ids)
	`

	rows, err := q.Query(ctx, query, eventID, seatID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query expired holds for seat: %w", err)
	}
	defer rows.Close()

	return scanHolds(rows)
}

// FindActiveHoldsByCustomer returns the customer's unexpired ACTIVE holds
func (r *PostgresHoldRepository) FindActiveHoldsByCustomer(ctx context.Context, customerID int64, now time.Time) ([]*domain.SeatHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.find_active_by_customer")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer_id", customerID))

	query := `
		SELECT ` + holdColumns + `
		FROM seat_holds
		WHERE customer_id = $1 AND status = 'ACTIVE' AND expires_at > $2
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, customerID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query active holds: %w", err)
	}
	defer rows.Close()

	return scanHolds(rows)
}

func (r *PostgresHoldRepository) queryOne(ctx context.Context, q Queryer, query string, arg any) (*domain.SeatHold, error) {
	hold, err := scanHold(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to get seat hold: %w", err)
	}
	return hold, nil
}

func scanHold(row pgx.Row) (*domain.SeatHold, error) {
	hold := &domain.SeatHold{}
	var status string
	var idempotencyKey *string
	err := row.Scan(
		&hold.ID,
		&hold.HoldToken,
		&hold.CustomerID,
		&hold.EventID,
		&hold.SeatIDs,
		&hold.SeatCount,
		&hold.ExpiresAt,
		&status,
		&idempotencyKey,
		&hold.CreatedAt,
		&hold.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	hold.Status = domain.HoldStatus(status)
	if idempotencyKey != nil {
		hold.IdempotencyKey = *idempotencyKey
	}
	return hold, nil
}

func scanHolds(rows pgx.Rows) ([]*domain.SeatHold, error) {
	var holds []*domain.SeatHold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat hold: %w", err)
		}
		holds = append(holds, hold)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating seat holds: %w", err)
	}
	return holds, nil
}

var _ HoldRepository = (*PostgresHoldRepository)(nil)
