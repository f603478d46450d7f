// Package fault coordinates a test that deliberately provokes a trap with the
// exception handler that decides its outcome.
//
// The protocol is a two-party rendezvous over a status.Cell:
//
//  1. The payload calls Suspend, which stores Pending and records the wait.
//  2. The payload performs the triggering access exactly once.
//  3. The handler, running asynchronously to the payload, inspects the fault
//     and stores the terminal verdict with Cell.Set.
//  4. The payload calls Await, which spins until the verdict leaves Pending.
//
// Await is bounded. When the spin budget or the deadline runs out, the wait is
// resolved to Fail(Timeout) at the wait's checkpoint with a compare-and-swap,
// so a handler that resolves at the same instant still wins cleanly. A timeout
// that lands first is final; a handler that runs later cannot replace it.
package fault

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/tbsa/internal/interrupt"
	"github.com/roach88/tbsa/internal/status"
)

// Default budget for a pending wait.
const (
	DefaultMaxSpins = 10_000_000
	DefaultTimeout  = 5 * time.Second
)

// pollEvery is how many spins pass between deadline and context checks.
const pollEvery = 256

// Budget bounds a pending wait. Zero fields take the defaults.
type Budget struct {
	MaxSpins int
	Timeout  time.Duration
}

func (b Budget) withDefaults() Budget {
	if b.MaxSpins <= 0 {
		b.MaxSpins = DefaultMaxSpins
	}
	if b.Timeout <= 0 {
		b.Timeout = DefaultTimeout
	}
	return b
}

// PendingWait is the state of a suspended test.
type PendingWait struct {
	Vector     interrupt.Vector
	Checkpoint status.Checkpoint
	Before     status.Verdict
	Since      time.Time
}

// Resolution is the outcome of Await.
type Resolution struct {
	Verdict  status.Verdict
	Spins    int
	TimedOut bool
}

// Bridge is the payload side of the rendezvous. One Bridge serves one verdict
// cell; tests use it one at a time.
type Bridge struct {
	cell   *status.Cell
	budget Budget
	clock  func() time.Time
	logger *zap.SugaredLogger

	mu   sync.Mutex
	wait *PendingWait
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock overrides the wall clock used for deadlines.
func WithClock(clock func() time.Time) Option {
	return func(b *Bridge) { b.clock = clock }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(b *Bridge) { b.logger = l }
}

// NewBridge creates a Bridge over cell.
func NewBridge(cell *status.Cell, budget Budget, opts ...Option) *Bridge {
	b := &Bridge{
		cell:   cell,
		budget: budget.withDefaults(),
		clock:  time.Now,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Budget returns the effective budget.
func (b *Bridge) Budget() Budget {
	return b.budget
}

// Suspend stores Pending(code) and records that the test now waits for a
// fault on v. cp is the checkpoint a timeout is attributed to.
func (b *Bridge) Suspend(v interrupt.Vector, cp status.Checkpoint, code status.Code) {
	b.mu.Lock()
	b.wait = &PendingWait{
		Vector:     v,
		Checkpoint: cp,
		Before:     b.cell.Get(),
		Since:      b.clock(),
	}
	b.mu.Unlock()

	b.cell.Set(status.PendingVerdict(code))
	b.logger.Debugw("test suspended", "vector", v.String(), "checkpoint", cp, "code", code.String())
}

// Waiting returns the current wait, if any.
func (b *Bridge) Waiting() (PendingWait, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wait == nil {
		return PendingWait{}, false
	}
	return *b.wait, true
}

// Await spins until the verdict is no longer Pending, the budget is spent, or
// ctx is done. The loop yields the processor between reads and never blocks.
func (b *Bridge) Await(ctx context.Context) Resolution {
	wait, _ := b.Waiting()
	deadline := b.clock().Add(b.budget.Timeout)

	spins := 0
	for {
		v := b.cell.Get()
		if !v.IsPending() {
			b.finish()
			return Resolution{Verdict: v, Spins: spins}
		}

		if spins >= b.budget.MaxSpins {
			return b.expire(wait, spins, "spin budget exhausted")
		}
		if spins%pollEvery == 0 {
			if ctx.Err() != nil {
				return b.expire(wait, spins, "context done")
			}
			if !b.clock().Before(deadline) {
				return b.expire(wait, spins, "deadline passed")
			}
		}

		spins++
		runtime.Gosched()
	}
}

// expire resolves the wait to a final Fail(Timeout). If the handler resolved
// first, its verdict stands.
func (b *Bridge) expire(wait PendingWait, spins int, reason string) Resolution {
	timedOut := b.cell.Expire(status.FailVerdict(wait.Checkpoint, status.Timeout))
	v := b.cell.Get()
	b.finish()
	if timedOut {
		b.logger.Warnw("pending wait expired",
			"vector", wait.Vector.String(),
			"checkpoint", wait.Checkpoint,
			"spins", spins,
			"reason", reason,
		)
	}
	return Resolution{Verdict: v, Spins: spins, TimedOut: timedOut}
}

func (b *Bridge) finish() {
	b.mu.Lock()
	b.wait = nil
	b.mu.Unlock()
}
