package fault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tbsa/internal/interrupt"
	"github.com/roach88/tbsa/internal/status"
)

func TestAwait_HandlerResolves(t *testing.T) {
	cell := status.NewCell()
	table := interrupt.NewTable(map[interrupt.Vector]interrupt.Handler{interrupt.SecureFault: nil}, interrupt.DeliverAsync)
	bridge := NewBridge(cell, Budget{})

	require.NoError(t, table.Route(interrupt.SecureFault, func(f interrupt.Fault) {
		cell.Set(status.PassVerdict())
	}))

	bridge.Suspend(interrupt.SecureFault, 3, status.Error)
	assert.True(t, cell.Get().IsPending())
	wait, ok := bridge.Waiting()
	require.True(t, ok)
	assert.Equal(t, status.Checkpoint(3), wait.Checkpoint)

	require.NoError(t, table.Raise(interrupt.Fault{Vector: interrupt.SecureFault, Addr: 0x10}))

	res := bridge.Await(context.Background())
	table.Quiesce()

	assert.False(t, res.TimedOut)
	assert.Equal(t, status.PassVerdict(), res.Verdict)
	_, ok = bridge.Waiting()
	assert.False(t, ok, "wait is cleared once resolved")
}

func TestAwait_SpinBudgetExhausted(t *testing.T) {
	cell := status.NewCell()
	bridge := NewBridge(cell, Budget{MaxSpins: 1000, Timeout: time.Hour})

	bridge.Suspend(interrupt.SecureFault, 4, status.Error)
	res := bridge.Await(context.Background())

	assert.True(t, res.TimedOut)
	assert.Equal(t, 1000, res.Spins)
	assert.Equal(t, status.FailVerdict(4, status.Timeout), res.Verdict)
	assert.Equal(t, status.FailVerdict(4, status.Timeout), cell.Get())
}

func TestAwait_DeadlinePassed(t *testing.T) {
	cell := status.NewCell()

	// Each clock read advances one second; the second read is past a 500ms budget.
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	bridge := NewBridge(cell, Budget{MaxSpins: 1 << 30, Timeout: 500 * time.Millisecond}, WithClock(clock))
	bridge.Suspend(interrupt.SecureFault, 2, status.Error)
	res := bridge.Await(context.Background())

	assert.True(t, res.TimedOut)
	assert.Equal(t, 0, res.Spins)
	assert.Equal(t, status.FailVerdict(2, status.Timeout), res.Verdict)
}

func TestAwait_ContextCancelled(t *testing.T) {
	cell := status.NewCell()
	bridge := NewBridge(cell, Budget{MaxSpins: 1 << 30, Timeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bridge.Suspend(interrupt.SecureFault, 5, status.Error)
	res := bridge.Await(ctx)

	assert.True(t, res.TimedOut)
	assert.Equal(t, status.FailVerdict(5, status.Timeout), res.Verdict)
}

func TestAwait_NotPendingReturnsImmediately(t *testing.T) {
	cell := status.NewCell()
	cell.Set(status.FailVerdict(1, status.NotFound))
	bridge := NewBridge(cell, Budget{MaxSpins: 10})

	res := bridge.Await(context.Background())
	assert.False(t, res.TimedOut)
	assert.Equal(t, 0, res.Spins)
	assert.Equal(t, status.FailVerdict(1, status.NotFound), res.Verdict)
}

func TestAwait_HandlerWinsRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		cell := status.NewCell()
		bridge := NewBridge(cell, Budget{MaxSpins: 1, Timeout: time.Hour})
		bridge.Suspend(interrupt.SecureFault, 3, status.Error)

		done := make(chan struct{})
		go func() {
			defer close(done)
			cell.Set(status.PassVerdict())
		}()
		res := bridge.Await(context.Background())
		<-done

		// Exactly one resolution is visible and the cell never returns to Pending.
		final := cell.Get()
		assert.False(t, final.IsPending())
		assert.Equal(t, res.Verdict, final)
		if res.TimedOut {
			assert.Equal(t, status.FailVerdict(3, status.Timeout), res.Verdict)
		} else {
			assert.Equal(t, status.PassVerdict(), res.Verdict)
		}
	}
}

func TestAwait_LateHandlerCannotReplaceTimeout(t *testing.T) {
	cell := status.NewCell()
	table := interrupt.NewTable(map[interrupt.Vector]interrupt.Handler{interrupt.SecureFault: nil}, interrupt.DeliverAsync)
	bridge := NewBridge(cell, Budget{MaxSpins: 1, Timeout: time.Hour})

	release := make(chan struct{})
	require.NoError(t, table.Route(interrupt.SecureFault, func(f interrupt.Fault) {
		<-release
		cell.Set(status.PassVerdict())
	}))

	bridge.Suspend(interrupt.SecureFault, 2, status.Error)
	require.NoError(t, table.Raise(interrupt.Fault{Vector: interrupt.SecureFault}))
	res := bridge.Await(context.Background())

	close(release)
	require.NoError(t, table.Restore(interrupt.SecureFault))
	table.Quiesce()

	assert.True(t, res.TimedOut)
	assert.True(t, cell.Final())
	assert.Equal(t, status.FailVerdict(2, status.Timeout), cell.Get())
}

func TestBudget_Defaults(t *testing.T) {
	b := NewBridge(status.NewCell(), Budget{})
	assert.Equal(t, DefaultMaxSpins, b.Budget().MaxSpins)
	assert.Equal(t, DefaultTimeout, b.Budget().Timeout)
}
