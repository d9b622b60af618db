package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/metrics"
	"github.com/seatsurge/booking-core/internal/repository"
	"github.com/seatsurge/booking-core/internal/service"
	"github.com/seatsurge/booking-core/pkg/logger"
	pkgredis "github.com/seatsurge/booking-core/pkg/redis"
)

const sourceReconciler = "reconciler"

// ReconcilerConfig contains configuration for the reconciler
type ReconcilerConfig struct {
	// Interval is the fixed delay between reconciliation ticks
	Interval time.Duration
}

// DefaultReconcilerConfig returns the default 60s tick
func DefaultReconcilerConfig() *ReconcilerConfig {
	return &ReconcilerConfig{Interval: 60 * time.Second}
}

// Reconciler is the safety net between the record store and the lock store.
// It finds holds that are ACTIVE in the database but past their expiry,
// verifies their locks are really gone, and completes the cleanup that a
// lost keyspace notification or consumer outage left behind. While the lock
// store is down entirely, this is the only expiry path.
type Reconciler struct {
	holds     repository.HoldRepository
	seats     repository.SeatRepository
	locks     repository.SeatLockRepository
	overlay   repository.SeatStatusRepository
	publisher service.EventPublisher
	txRunner  repository.TxRunner
	config    *ReconcilerConfig
	log       *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Stats
	totalReconciled int64
	lastTickTime    time.Time
}

// ReconcilerDeps contains the reconciler's collaborators
type ReconcilerDeps struct {
	Holds     repository.HoldRepository
	Seats     repository.SeatRepository
	Locks     repository.SeatLockRepository
	Overlay   repository.SeatStatusRepository
	Publisher service.EventPublisher
	TxRunner  repository.TxRunner
}

// NewReconciler creates a new reconciler
func NewReconciler(deps *ReconcilerDeps, config *ReconcilerConfig) *Reconciler {
	if config == nil {
		config = DefaultReconcilerConfig()
	}
	return &Reconciler{
		holds:     deps.Holds,
		seats:     deps.Seats,
		locks:     deps.Locks,
		overlay:   deps.Overlay,
		publisher: deps.Publisher,
		txRunner:  deps.TxRunner,
		config:    config,
		log:       logger.Get(),
	}
}

// Start begins the periodic reconciliation loop
func (w *Reconciler) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reconciler already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Tick(ctx)
			}
		}
	}()

	w.log.Info("reconciler started", "interval", w.config.Interval.String())
	return nil
}

// Stop drains the reconciliation loop
func (w *Reconciler) Stop() {
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
	w.log.Info("reconciler stopped")
}

// Tick runs one reconciliation pass. A failure on one hold never aborts the
// rest of the pass.
func (w *Reconciler) Tick(ctx context.Context) {
	w.lastTickTime = time.Now()

	expired, err := w.holds.FindExpiredHolds(ctx, time.Now())
	if err != nil {
		w.log.Error("failed to find expired holds", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	w.log.Info("reconciling expired holds", "count", len(expired))

	reconciled := 0
	for _, hold := range expired {
		ok, err := w.reconcileHold(ctx, hold)
		if err != nil {
			w.log.Error("failed to reconcile hold", "hold_token", hold.HoldToken, "error", err)
			continue
		}
		if ok {
			reconciled++
			w.totalReconciled++
		}
	}

	if reconciled > 0 {
		w.log.Info("reconciliation pass complete", "reconciled", reconciled)
	}
}

// reconcileHold cleans up one durably-expired hold. If any of the hold's
// lock keys still carries the hold's own value, the TTL has not fired yet
// (clock skew) and the TTL pipeline keeps ownership — the hold is skipped.
func (w *Reconciler) reconcileHold(ctx context.Context, hold *domain.SeatHold) (bool, error) {
	expectedValue := repository.LockOwnerValue(hold.CustomerID, hold.HoldToken)

	for _, seatID := range hold.SeatIDs {
		value, err := w.locks.Get(ctx, hold.EventID, seatID)
		if err != nil {
			if pkgredis.IsConnectionError(err) {
				// lock store unreachable: no TTL pipeline runs, so the
				// database expiry is authoritative
				break
			}
			return false, fmt.Errorf("failed to inspect lock for seat %d: %w", seatID, err)
		}
		if value == expectedValue {
			w.log.Debug("hold still has live locks, leaving to TTL", "hold_token", hold.HoldToken)
			return false, nil
		}
	}

	hookCtx := context.WithoutCancel(ctx)

	err := w.txRunner.WithinTx(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		q := uow.Tx()

		// a rolled-back cleanup leaves the hold ACTIVE; re-affirm HELD
		uow.AfterRollback(func() {
			if err := w.overlay.SetSeatStatusMany(hookCtx, hold.EventID, hold.SeatIDs, domain.SeatStatusHeld); err != nil {
				w.log.Warn("failed to re-affirm overlay after rollback",
					"hold_token", hold.HoldToken, "error", err)
			}
		})

		released, err := w.seats.ReleaseSeats(ctx, q, hold.SeatIDs)
		if err != nil {
			return err
		}
		if err := w.holds.UpdateStatus(ctx, q, hold.ID, domain.HoldStatusExpired); err != nil {
			return err
		}

		uow.AfterCommit(func() {
			if err := w.overlay.SetSeatStatusMany(hookCtx, hold.EventID, hold.SeatIDs, domain.SeatStatusAvailable); err != nil {
				w.log.Warn("failed to update overlay after reconciliation",
					"hold_token", hold.HoldToken, "error", err)
			}
			expiredHold := *hold
			expiredHold.Status = domain.HoldStatusExpired
			if err := w.publisher.PublishSeatHoldExpired(hookCtx, &expiredHold); err != nil {
				w.log.Error("failed to publish seat hold expired",
					"hold_token", hold.HoldToken, "error", err)
			}
			metrics.RecordHoldExpired(hookCtx, hold.EventID, sourceReconciler)
		})

		w.log.Info("reconciled expired hold",
			"hold_token", hold.HoldToken, "seats_released", released)
		return nil
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// Stats returns the reconciler's counters
func (w *Reconciler) Stats() (totalReconciled int64, lastTick time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalReconciled, w.lastTickTime
}
