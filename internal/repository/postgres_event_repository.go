package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

// PostgresEventRepository implements EventRepository using pgxpool.
// Read-only: event rows are owned by the catalog service.
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// FindByID returns the event or domain.ErrEventNotFound
func (r *PostgresEventRepository) FindByID(ctx context.Context, id int64) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.find_by_id")
	defer span.End()
	span.SetAttributes(attribute.Int64("event_id", id))

	query := `
		SELECT id, title, venue, total_capacity, status, starts_at, created_at, updated_at
		FROM events
		WHERE id = $1
	`

	event := &domain.Event{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&event.Venue,
		&event.TotalCapacity,
		&status,
		&event.StartsAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	event.Status = domain.EventStatus(status)
	return event, nil
}

var _ EventRepository = (*PostgresEventRepository)(nil)
