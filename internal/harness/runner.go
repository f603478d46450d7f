package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/tbsa/internal/status"
	"github.com/roach88/tbsa/internal/val"
)

// Runner drives test cases through their lifecycle against one layer.
//
// Thread-safety: Run and RunOne must not be called concurrently; tests run
// strictly one at a time. State may be read from any goroutine.
type Runner struct {
	layer    *val.Layer
	logger   *zap.SugaredLogger
	clock    func() time.Time
	observer func(Record)

	mu    sync.Mutex
	state State
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.SugaredLogger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides the clock used for durations.
func WithClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) { r.clock = clock }
}

// WithObserver registers fn to receive each record as soon as it is final.
func WithObserver(fn func(Record)) RunnerOption {
	return func(r *Runner) { r.observer = fn }
}

// NewRunner creates a Runner over layer.
func NewRunner(layer *val.Layer, opts ...RunnerOption) *Runner {
	r := &Runner{
		layer:  layer,
		logger: zap.NewNop().Sugar(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the lifecycle position of the test being run.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) enter(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run executes cases in order. It stops before the next test once ctx is
// done and returns the records produced so far.
func (r *Runner) Run(ctx context.Context, cases []TestCase) ([]Record, error) {
	records := make([]Record, 0, len(cases))
	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return records, fmt.Errorf("run interrupted before %s: %w", tc.Identity().Key(), err)
		}
		rec := r.RunOne(ctx, tc)
		records = append(records, rec)
		if r.observer != nil {
			r.observer(rec)
		}
	}
	return records, nil
}

// testRun accumulates the defects found while running one test. The first
// defect is reported; later ones are logged.
type testRun struct {
	key    string
	logger *zap.SugaredLogger
	defect *Error
}

func (t *testRun) note(e *Error) {
	if t.defect == nil {
		t.defect = e
		return
	}
	t.logger.Warnw("additional defect", "defect", e.Error())
}

// RunOne runs a single test through setup, execution and teardown.
func (r *Runner) RunOne(ctx context.Context, tc TestCase) Record {
	id := tc.Identity()
	key := id.Key()
	cell := r.layer.Cell()
	table := r.layer.Table()
	run := &testRun{key: key, logger: r.logger.With("test", key)}

	start := r.clock()
	cell.Clear()
	r.layer.ResetTrace()

	r.enter(StateSettingUp)
	if p := protect(func() { tc.Setup(r.layer) }); p != nil {
		run.note(NewIndeterminateError(key, fmt.Sprintf("setup panicked: %v", p)))
	}
	if r.settle(ctx) {
		run.note(NewIndeterminateError(key, "setup returned while pending"))
	}

	execute := false
	if run.defect == nil {
		switch v := cell.Get(); v.Outcome {
		case status.Pass:
			execute = true
		case status.Fail, status.Skip:
			run.logger.Debugw("setup ended test", "verdict", v.String())
		default:
			run.note(NewIndeterminateError(key, fmt.Sprintf("setup returned with verdict %s", v.Outcome)))
		}
	}

	if execute {
		// The provisional pass is cleared so a payload that reports
		// nothing is caught.
		cell.Clear()
		r.enter(StateRunning)
		if p := protect(func() { tc.Execute(ctx, r.layer) }); p != nil {
			run.note(NewIndeterminateError(key, fmt.Sprintf("payload panicked: %v", p)))
		}
		if r.settle(ctx) {
			run.note(NewIndeterminateError(key, "payload returned while pending"))
		} else if cell.Get().Outcome == status.Unset {
			run.note(NewIndeterminateError(key, "payload returned without a verdict"))
		}
	}
	table.Quiesce()

	r.enter(StateTearingDown)
	before := cell.Get()
	if p := protect(func() { tc.Teardown(r.layer) }); p != nil {
		run.note(NewIndeterminateError(key, fmt.Sprintf("teardown panicked: %v", p)))
	}
	if r.settle(ctx) {
		run.note(NewIndeterminateError(key, "teardown returned while pending"))
	}
	table.Quiesce()
	if after := cell.Get(); after != before {
		if before.Outcome == status.Pass && after.Outcome == status.Fail {
			run.logger.Infow("teardown failed test", "verdict", after.String())
		} else {
			run.logger.Warnw("teardown verdict change ignored", "before", before.String(), "after", after.String())
			cell.Set(before)
		}
	}

	if leaks := table.Leaks(); len(leaks) > 0 {
		names := make([]string, len(leaks))
		for i, v := range leaks {
			names[i] = v.String()
			if err := table.Restore(v); err != nil {
				run.logger.Errorw("restore leaked vector", "vector", names[i], "error", err)
			}
		}
		run.note(NewHandlerLeakError(key, names))
	}
	r.enter(StateDone)

	final := cell.Get()
	rec := Record{
		Identity: id,
		Verdict:  final,
		Trace:    r.layer.Trace(),
		Duration: r.clock().Sub(start),
	}
	switch {
	case run.defect != nil:
		rec.Result = ResultIndeterminate
		rec.Defect = run.defect
		rec.Category = run.defect.Code
	case final.Outcome == status.Pass:
		rec.Result = ResultPass
	case final.Outcome == status.Fail && final.Checkpoint == 0:
		rec.Result = ResultIndeterminate
		rec.Defect = NewIndeterminateError(key, fmt.Sprintf("%s not attributed to a checkpoint", final))
		rec.Category = ErrCodeIndeterminate
	case final.Outcome == status.Fail:
		rec.Result = ResultFail
		rec.Category = Classify(final)
	case final.Outcome == status.Skip:
		rec.Result = ResultSkip
	default:
		rec.Result = ResultIndeterminate
		rec.Defect = NewIndeterminateError(key, fmt.Sprintf("final verdict %s", final.Outcome))
		rec.Category = ErrCodeIndeterminate
	}

	run.logger.Infow("test complete",
		"result", string(rec.Result),
		"verdict", final.String(),
		"duration", rec.Duration,
	)
	return rec
}

// settle forces a pending verdict to resolve. It reports whether the verdict
// was pending.
func (r *Runner) settle(ctx context.Context) bool {
	if !r.layer.Cell().Get().IsPending() {
		return false
	}
	r.enter(StatePending)
	res := r.layer.Bridge().Await(ctx)
	r.logger.Warnw("forced pending resolution", "verdict", res.Verdict.String(), "timed_out", res.TimedOut)
	return true
}

// protect calls fn and returns the value it panicked with, if any.
func protect(fn func()) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	fn()
	return nil
}
