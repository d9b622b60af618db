package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/seatsurge/booking-core/pkg/telemetry"
)

var (
	holdsPlaced    *telemetry.Counter
	holdsConfirmed *telemetry.Counter
	holdsCancelled *telemetry.Counter
	holdsExpired   *telemetry.Counter
	holdsDegraded  *telemetry.Counter
	holdsRejected  *telemetry.Counter

	confirmLatency *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init registers all booking-core metric instruments
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	if holdsPlaced, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_holds_placed_total",
		Description: "Total number of seat holds placed",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if holdsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_holds_confirmed_total",
		Description: "Total number of seat holds confirmed into bookings",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if holdsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_holds_cancelled_total",
		Description: "Total number of seat holds cancelled by customers",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if holdsExpired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_holds_expired_total",
		Description: "Total number of seat holds expired (TTL or reconciler)",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if holdsDegraded, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_holds_degraded_total",
		Description: "Holds placed via the DB-only fallback while the lock store was unreachable",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if holdsRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_holds_rejected_total",
		Description: "Hold requests rejected because seats were unavailable",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if confirmLatency, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "seat_hold_confirm_duration_seconds",
		Description: "Time from hold placement to booking confirmation",
		Unit:        "s",
	}); err != nil {
		return err
	}

	return nil
}

// RecordHoldPlaced records a successful hold
func RecordHoldPlaced(ctx context.Context, eventID int64, seatCount int, degraded bool) {
	if holdsPlaced == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int64("event_id", eventID),
		attribute.Int("seat_count", seatCount),
	}
	holdsPlaced.Add(ctx, 1, attrs...)
	if degraded {
		holdsDegraded.Add(ctx, 1, attrs...)
	}
}

// RecordHoldRejected records a hold lost to contention
func RecordHoldRejected(ctx context.Context, eventID int64) {
	if holdsRejected == nil {
		return
	}
	holdsRejected.Add(ctx, 1, attribute.Int64("event_id", eventID))
}

// RecordHoldConfirmed records a confirmed booking and the hold-to-confirm latency
func RecordHoldConfirmed(ctx context.Context, eventID int64, durationSeconds float64) {
	if holdsConfirmed == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.Int64("event_id", eventID)}
	holdsConfirmed.Add(ctx, 1, attrs...)
	confirmLatency.Record(ctx, durationSeconds, attrs...)
}

// RecordHoldCancelled records a customer cancellation
func RecordHoldCancelled(ctx context.Context, eventID int64) {
	if holdsCancelled == nil {
		return
	}
	holdsCancelled.Add(ctx, 1, attribute.Int64("event_id", eventID))
}

// RecordHoldExpired records expiry cleanup, attributed to its source
// ("lock-ttl" or "reconciler").
func RecordHoldExpired(ctx context.Context, eventID int64, source string) {
	if holdsExpired == nil {
		return
	}
	holdsExpired.Add(ctx, 1,
		attribute.Int64("event_id", eventID),
		attribute.String("source", source),
	)
}
