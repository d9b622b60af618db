package repository

import (
	"context"
	"errors"
	"fmt"

	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	pkgredis "github.com/seatsurge/booking-core/pkg/redis"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

// releaseLockScript deletes a lock key only when its value still matches,
// so a holder can never delete a lock that has already been recycled to
// another hold after its TTL fired.
const releaseLockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
else
  return 0
end`

const scriptReleaseLock = "release_seat_lock"

// SeatLockKey builds the lock key for a seat: seat:{eventId}:{seatId}:HELD.
// The expiry signaler parses this exact shape back out of keyspace
// notifications.
func SeatLockKey(eventID, seatID int64) string {
	return fmt.Sprintf("seat:%d:%d:HELD", eventID, seatID)
}

// LockOwnerValue builds the lock value: {customerId}:{holdToken}
func LockOwnerValue(customerID int64, holdToken string) string {
	return fmt.Sprintf("%d:%s", customerID, holdToken)
}

// RedisSeatLockRepository implements SeatLockRepository on a single Redis
// logical database shared with the overlay and the keyspace subscription.
type RedisSeatLockRepository struct {
	client *pkgredis.Client
}

// NewRedisSeatLockRepository creates a new RedisSeatLockRepository
func NewRedisSeatLockRepository(client *pkgredis.Client) *RedisSeatLockRepository {
	return &RedisSeatLockRepository{client: client}
}

// LoadScripts loads the compare-and-delete script into Redis
func (r *RedisSeatLockRepository) LoadScripts(ctx context.Context) error {
	if _, err := r.client.LoadScript(ctx, scriptReleaseLock, releaseLockScript); err != nil {
		return fmt.Errorf("failed to load script %s: %w", scriptReleaseLock, err)
	}
	return nil
}

// TryAcquire attempts SET NX EX on the seat's lock key. Non-blocking: a held
// key fails immediately, which is what makes lock acquisition deadlock-free.
func (r *RedisSeatLockRepository) TryAcquire(ctx context.Context, eventID, seatID int64, ownerValue string, ttl time.Duration) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.seat_lock.try_acquire")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("seat_id", seatID),
	)

	acquired, err := r.client.SetNX(ctx, SeatLockKey(eventID, seatID), ownerValue, ttl).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to acquire seat lock: %w", err)
	}

	span.SetAttributes(attribute.Bool("acquired", acquired))
	return acquired, nil
}

// Release compare-and-deletes the seat's lock key. Releasing a key that is
// already gone or owned by someone else is a no-op.
func (r *RedisSeatLockRepository) Release(ctx context.Context, eventID, seatID int64, ownerValue string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.seat_lock.release")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("seat_id", seatID),
	)

	key := SeatLockKey(eventID, seatID)
	result := r.client.EvalWithFallback(ctx, scriptReleaseLock, releaseLockScript, []string{key}, ownerValue)
	if err := result.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to release seat lock %s: %w", key, err)
	}
	return nil
}

// Get returns the current lock value, or "" when no lock exists
func (r *RedisSeatLockRepository) Get(ctx context.Context, eventID, seatID int64) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.seat_lock.get")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("seat_id", seatID),
	)

	value, err := r.client.Get(ctx, SeatLockKey(eventID, seatID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read seat lock: %w", err)
	}
	return value, nil
}

var _ SeatLockRepository = (*RedisSeatLockRepository)(nil)
