package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	pkgredis "github.com/seatsurge/booking-core/pkg/redis"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

// RedisSeatStatusRepository is the seat-status overlay: one HASH per event,
// field = seat id, value = status. A seat has exactly one overlay value at a
// time, so writes overwrite rather than append. The hash TTL is refreshed on
// every write; overlay loss is recoverable from the seat rows.
type RedisSeatStatusRepository struct {
	client *pkgredis.Client
	ttl    time.Duration
}

// NewRedisSeatStatusRepository creates a new overlay repository
func NewRedisSeatStatusRepository(client *pkgredis.Client, ttl time.Duration) *RedisSeatStatusRepository {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &RedisSeatStatusRepository{client: client, ttl: ttl}
}

// OverlayKey builds the overlay key for an event: {eventId}:seat_status
func OverlayKey(eventID int64) string {
	return fmt.Sprintf("%d:seat_status", eventID)
}

// SetSeatStatus overwrites the overlay entry for a single seat
func (r *RedisSeatStatusRepository) SetSeatStatus(ctx context.Context, eventID, seatID int64, status domain.SeatStatus) error {
	return r.SetSeatStatusMany(ctx, eventID, []int64{seatID}, status)
}

// SetSeatStatusMany overwrites the overlay entries for a batch of seats and
// refreshes the hash TTL.
func (r *RedisSeatStatusRepository) SetSeatStatusMany(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.seat_status.set_many")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int("count", len(seatIDs)),
		attribute.String("status", status.String()),
	)

	if len(seatIDs) == 0 {
		return nil
	}

	key := OverlayKey(eventID)
	fields := make([]interface{}, 0, len(seatIDs)*2)
	for _, seatID := range seatIDs {
		fields = append(fields, strconv.FormatInt(seatID, 10), status.String())
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, fields...)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write seat status overlay: %w", err)
	}
	return nil
}

// GetEventOverlay returns the full overlay map for an event. An expired or
// missing hash yields an empty map.
func (r *RedisSeatStatusRepository) GetEventOverlay(ctx context.Context, eventID int64) (map[int64]domain.SeatStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.seat_status.get_overlay")
	defer span.End()
	span.SetAttributes(attribute.Int64("event_id", eventID))

	entries, err := r.client.HGetAll(ctx, OverlayKey(eventID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read seat status overlay: %w", err)
	}

	overlay := make(map[int64]domain.SeatStatus, len(entries))
	for field, value := range entries {
		seatID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			// foreign field in the hash; skip rather than fail the read
			continue
		}
		overlay[seatID] = domain.SeatStatus(value)
	}

	span.SetAttributes(attribute.Int("count", len(overlay)))
	return overlay, nil
}

// StatusCounts returns how many overlay entries each status has
func (r *RedisSeatStatusRepository) StatusCounts(ctx context.Context, eventID int64) (map[domain.SeatStatus]int64, error) {
	overlay, err := r.GetEventOverlay(ctx, eventID)
	if err != nil {
		return nil, err
	}

	counts := map[domain.SeatStatus]int64{
		domain.SeatStatusAvailable: 0,
		domain.SeatStatusHeld:      0,
		domain.SeatStatusBooked:    0,
	}
	for _, status := range overlay {
		counts[status]++
	}
	return counts, nil
}

// Clear drops the overlay hash for an event
func (r *RedisSeatStatusRepository) Clear(ctx context.Context, eventID int64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.seat_status.clear")
	defer span.End()
	span.SetAttributes(attribute.Int64("event_id", eventID))

	if err := r.client.Del(ctx, OverlayKey(eventID)).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to clear seat status overlay: %w", err)
	}
	return nil
}

var _ SeatStatusRepository = (*RedisSeatStatusRepository)(nil)
