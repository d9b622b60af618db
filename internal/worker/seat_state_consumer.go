package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/metrics"
	"github.com/seatsurge/booking-core/internal/repository"
	"github.com/seatsurge/booking-core/internal/service"
	"github.com/seatsurge/booking-core/pkg/kafka"
	"github.com/seatsurge/booking-core/pkg/logger"
)

// transitionEvent is the payload consumed from seat-state-transitions
type transitionEvent struct {
	EventType string `json:"eventType"`
	EventID   int64  `json:"eventId"`
	SeatID    int64  `json:"seatId"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// SeatStateConsumer applies HELD→AVAILABLE transitions signalled by lock
// expiry. The topic is partitioned by {eventId}:{seatId}, so all events for
// one seat arrive in order on a single partition; different seats progress
// in parallel.
//
// Delivery is at-least-once: offsets commit only after a batch is handled,
// and the conditional release makes replays a no-op.
type SeatStateConsumer struct {
	consumer  *kafka.Consumer
	seats     repository.SeatRepository
	holds     repository.HoldRepository
	overlay   repository.SeatStatusRepository
	publisher service.EventPublisher
	txRunner  repository.TxRunner
	log       *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// SeatStateConsumerConfig contains the consumer's collaborators
type SeatStateConsumerConfig struct {
	Consumer  *kafka.Consumer
	Seats     repository.SeatRepository
	Holds     repository.HoldRepository
	Overlay   repository.SeatStatusRepository
	Publisher service.EventPublisher
	TxRunner  repository.TxRunner
}

// NewSeatStateConsumer creates a new seat-state consumer
func NewSeatStateConsumer(cfg *SeatStateConsumerConfig) *SeatStateConsumer {
	return &SeatStateConsumer{
		consumer:  cfg.Consumer,
		seats:     cfg.Seats,
		holds:     cfg.Holds,
		overlay:   cfg.Overlay,
		publisher: cfg.Publisher,
		txRunner:  cfg.TxRunner,
		log:       logger.Get(),
	}
}

// Start begins the poll loop
func (w *SeatStateConsumer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("seat state consumer already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.wg.Add(1)
	go w.consumeLoop(ctx)

	w.log.Info("seat state consumer started")
	return nil
}

// Stop drains the poll loop and closes the consumer
func (w *SeatStateConsumer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.consumer.Close()
	w.log.Info("seat state consumer stopped")
}

func (w *SeatStateConsumer) consumeLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		records, err := w.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("failed to poll seat state transitions", "error", err)
			continue
		}

		for _, record := range records {
			// the poll position has already moved past this batch, so a
			// failed record is retried here until it succeeds or we stop
			for {
				err := w.handleRecord(ctx, record)
				if err == nil {
					break
				}
				w.log.Error("failed to handle seat state transition",
					"key", string(record.Key), "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}

		if len(records) > 0 {
			if err := w.consumer.CommitRecords(ctx, records); err != nil {
				w.log.Error("failed to commit seat state offsets", "error", err)
			}
		}
	}
}

// handleRecord dispatches one record. Malformed payloads and unknown event
// types are acknowledged with a warning rather than retried; the reconciler
// covers anything genuinely missed.
func (w *SeatStateConsumer) handleRecord(ctx context.Context, record *kafka.Record) error {
	var event transitionEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		w.log.Warn("dropping malformed seat state transition",
			"key", string(record.Key), "error", err)
		return nil
	}

	if event.EventType != service.EventTypeSeatHoldExpired {
		w.log.Debug("ignoring seat state transition", "event_type", event.EventType)
		return nil
	}

	return w.handleSeatExpiry(ctx, event.EventID, event.SeatID)
}

// handleSeatExpiry releases one seat whose lock TTL fired.
//
// The conditional release is the idempotency cut: zero affected rows means
// the seat is already AVAILABLE or BOOKED, and the whole transition —
// including hold expiry and the audit event — is skipped.
func (w *SeatStateConsumer) handleSeatExpiry(ctx context.Context, eventID, seatID int64) error {
	hookCtx := context.WithoutCancel(ctx)

	return w.txRunner.WithinTx(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		q := uow.Tx()

		released, err := w.seats.ReleaseSeats(ctx, q, []int64{seatID})
		if err != nil {
			return err
		}
		if released == 0 {
			w.log.Debug("seat already released or booked, skipping",
				"event_id", eventID, "seat_id", seatID)
			return nil
		}

		expired, err := w.holds.FindExpiredHoldsForSeat(ctx, q, eventID, seatID, time.Now())
		if err != nil {
			return err
		}
		for _, hold := range expired {
			if err := w.holds.UpdateStatus(ctx, q, hold.ID, domain.HoldStatusExpired); err != nil {
				return err
			}
		}

		uow.AfterCommit(func() {
			if err := w.overlay.SetSeatStatus(hookCtx, eventID, seatID, domain.SeatStatusAvailable); err != nil {
				w.log.Warn("failed to update overlay after expiry",
					"event_id", eventID, "seat_id", seatID, "error", err)
			}
			for _, hold := range expired {
				expiredHold := *hold
				expiredHold.Status = domain.HoldStatusExpired
				if err := w.publisher.PublishSeatHoldExpired(hookCtx, &expiredHold); err != nil {
					w.log.Error("failed to publish seat hold expired",
						"hold_token", hold.HoldToken, "error", err)
				}
				metrics.RecordHoldExpired(hookCtx, eventID, service.SourceLockTTL)
				w.log.Info("hold expired via lock TTL",
					"hold_token", hold.HoldToken,
					"customer_id", hold.CustomerID,
					"event_id", eventID)
			}
		})
		return nil
	})
}
