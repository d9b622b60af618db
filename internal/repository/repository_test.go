package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatLockKey(t *testing.T) {
	assert.Equal(t, "seat:1:10:HELD", SeatLockKey(1, 10))
	assert.Equal(t, "seat:42:1234567:HELD", SeatLockKey(42, 1234567))
}

func TestLockOwnerValue(t *testing.T) {
	assert.Equal(t, "100:HOLD_ABC", LockOwnerValue(100, "HOLD_ABC"))
}

func TestOverlayKey(t *testing.T) {
	assert.Equal(t, "1:seat_status", OverlayKey(1))
	assert.Equal(t, "987:seat_status", OverlayKey(987))
}

func TestUnitOfWorkHookOrdering(t *testing.T) {
	uow := NewUnitOfWork(nil)

	var fired []string
	uow.AfterCommit(func() { fired = append(fired, "commit-1") })
	uow.AfterCommit(func() { fired = append(fired, "commit-2") })
	uow.AfterRollback(func() { fired = append(fired, "rollback-1") })

	uow.FireAfterCommit()
	assert.Equal(t, []string{"commit-1", "commit-2"}, fired)

	fired = nil
	uow.FireAfterRollback()
	assert.Equal(t, []string{"rollback-1"}, fired)
}

func TestUnitOfWorkHooksViaRunner(t *testing.T) {
	// an inline runner behaving like TxManager without a database
	run := func(fail bool) (commits, rollbacks int) {
		uow := NewUnitOfWork(nil)
		err := func(ctx context.Context, uow *UnitOfWork) error {
			uow.AfterCommit(func() { commits++ })
			uow.AfterRollback(func() { rollbacks++ })
			if fail {
				return errors.New("unit failed")
			}
			return nil
		}(context.Background(), uow)

		if err != nil {
			uow.FireAfterRollback()
			return
		}
		uow.FireAfterCommit()
		return
	}

	commits, rollbacks := run(false)
	require.Equal(t, 1, commits)
	require.Equal(t, 0, rollbacks)

	commits, rollbacks = run(true)
	require.Equal(t, 0, commits)
	require.Equal(t, 1, rollbacks)
}
