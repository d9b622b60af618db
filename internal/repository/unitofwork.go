package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UnitOfWork carries a database transaction plus the side effects that must
// run once its outcome is known. Post-commit hooks push the committed state
// into the overlay and the event log; post-rollback hooks re-affirm the prior
// overlay state so a rolled-back write can never poison the cache.
type UnitOfWork struct {
	tx            pgx.Tx
	afterCommit   []func()
	afterRollback []func()
}

// NewUnitOfWork wraps a transaction. Exposed for transaction runners and
// test doubles; application code receives a UnitOfWork from WithinTx.
func NewUnitOfWork(tx pgx.Tx) *UnitOfWork {
	return &UnitOfWork{tx: tx}
}

// Tx returns the transaction as a Queryer for repository calls
func (u *UnitOfWork) Tx() Queryer {
	return u.tx
}

// AfterCommit registers fn to run after a successful commit
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.afterCommit = append(u.afterCommit, fn)
}

// AfterRollback registers fn to run after a rollback
func (u *UnitOfWork) AfterRollback(fn func()) {
	u.afterRollback = append(u.afterRollback, fn)
}

// FireAfterCommit invokes the registered post-commit hooks in order
func (u *UnitOfWork) FireAfterCommit() {
	for _, fn := range u.afterCommit {
		fn()
	}
}

// FireAfterRollback invokes the registered post-rollback hooks in order
func (u *UnitOfWork) FireAfterRollback() {
	for _, fn := range u.afterRollback {
		fn()
	}
}

// TxRunner runs a function inside a transaction boundary
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error) error
}

// TxManager is the pgx-backed TxRunner. Transactions run READ COMMITTED and
// are bounded by a timeout; contention between concurrent guarded updates is
// resolved by the row predicates, not by serializability.
type TxManager struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewTxManager creates a TxManager with the given transaction timeout
func NewTxManager(pool *pgxpool.Pool, timeout time.Duration) *TxManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TxManager{pool: pool, timeout: timeout}
}

// WithinTx begins a transaction, runs fn, and commits or rolls back.
// The matching hooks fire after the outcome is durable, never inside the
// transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	uow := NewUnitOfWork(tx)

	if err := fn(ctx, uow); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		uow.FireAfterRollback()
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		uow.FireAfterRollback()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	uow.FireAfterCommit()
	return nil
}
