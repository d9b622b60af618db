package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/seatsurge/booking-core/internal/service"
	"github.com/seatsurge/booking-core/pkg/logger"
	pkgredis "github.com/seatsurge/booking-core/pkg/redis"
)

// ExpirySignaler listens to keyspace notifications for expired seat-lock
// keys and translates each into a lightweight transition event on the event
// log. It does no database work; the state-transition consumer picks the
// event up with proper retry semantics, and the reconciler covers any
// notification this process misses.
type ExpirySignaler struct {
	client    *pkgredis.Client
	publisher service.EventPublisher
	log       *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewExpirySignaler creates a new expiry signaler
func NewExpirySignaler(client *pkgredis.Client, publisher service.EventPublisher) *ExpirySignaler {
	return &ExpirySignaler{
		client:    client,
		publisher: publisher,
		log:       logger.Get(),
	}
}

// Start subscribes to expired-key notifications and begins translating
func (w *ExpirySignaler) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry signaler already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	pubsub := w.client.SubscribeExpiredKeys(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				w.handleExpiredKey(ctx, msg.Payload)
			}
		}
	}()

	w.log.Info("expiry signaler started", "db", w.client.DB())
	return nil
}

// Stop unsubscribes and drains the translator goroutine
func (w *ExpirySignaler) Stop() {
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
	w.log.Info("expiry signaler stopped")
}

func (w *ExpirySignaler) handleExpiredKey(ctx context.Context, key string) {
	eventID, seatID, ok := parseSeatLockKey(key)
	if !ok {
		// overlay hashes and foreign keys expire through here too; only
		// warn about keys that look like seat locks but do not parse
		if strings.HasPrefix(key, "seat:") {
			w.log.Warn("dropping unparseable seat lock key", "key", key)
		}
		return
	}

	w.log.Info("seat hold expired", "event_id", eventID, "seat_id", seatID)

	if err := w.publisher.PublishSeatExpiry(ctx, eventID, seatID); err != nil {
		// the reconciler recovers holds whose expiry signal is lost
		w.log.Error("failed to publish seat expiry event",
			"event_id", eventID, "seat_id", seatID, "error", err)
	}
}

// parseSeatLockKey extracts the event and seat ids from a lock key of the
// form seat:{eventId}:{seatId}:HELD.
func parseSeatLockKey(key string) (eventID, seatID int64, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "seat" || parts[3] != "HELD" {
		return 0, 0, false
	}

	eventID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	seatID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return eventID, seatID, true
}
