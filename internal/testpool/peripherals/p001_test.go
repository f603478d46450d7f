package peripherals

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/tbsa/internal/fault"
	"github.com/roach88/tbsa/internal/harness"
	"github.com/roach88/tbsa/internal/interrupt"
	"github.com/roach88/tbsa/internal/status"
	"github.com/roach88/tbsa/internal/target"
	"github.com/roach88/tbsa/internal/testutil"
	"github.com/roach88/tbsa/internal/val"
)

var shortBudget = fault.Budget{MaxSpins: 5000, Timeout: 10 * time.Second}

func loadTarget(t *testing.T, f testutil.TargetFixture) *target.Platform {
	t.Helper()
	p, err := target.Load(testutil.WriteTarget(t, t.TempDir(), f))
	require.NoError(t, err)
	return p
}

func compliant(secureFault bool) testutil.TargetFixture {
	return testutil.TargetFixture{
		SecureFault: secureFault,
		Clocks:      []testutil.ClockFixture{{PLLBase: 0x5002_1000, Offset: 0x10}},
		Regions: []testutil.RegionFixture{
			{Name: "sysctrl", Base: 0x5002_1000, Size: 0x1000, Secure: true},
		},
	}
}

func TestP001_Pass(t *testing.T) {
	for _, d := range []interrupt.Delivery{interrupt.DeliverAsync, interrupt.DeliverSync} {
		layer := val.New(loadTarget(t, compliant(true)), val.WithDelivery(d), val.WithBudget(shortBudget))
		rec := harness.NewRunner(layer).RunOne(context.Background(), NewP001())

		assert.Equal(t, harness.ResultPass, rec.Result, "delivery %d", d)
		assert.Equal(t, status.PassVerdict(), rec.Verdict)
		assert.Equal(t, 1, layer.Table().RestoreCount(interrupt.SecureFault))
		assert.Empty(t, layer.Table().Leaks())
	}
}

func TestP001_SkipWithoutSecureFault(t *testing.T) {
	layer := val.New(loadTarget(t, compliant(false)), val.WithBudget(shortBudget))
	rec := harness.NewRunner(layer).RunOne(context.Background(), NewP001())

	assert.Equal(t, harness.ResultSkip, rec.Result)
	assert.Equal(t, status.SkipVerdict(status.Unsupported), rec.Verdict)
}

func TestP001_NoClockDescriptor(t *testing.T) {
	f := compliant(true)
	f.Clocks = nil
	layer := val.New(loadTarget(t, f), val.WithBudget(shortBudget))
	rec := harness.NewRunner(layer).RunOne(context.Background(), NewP001())

	assert.Equal(t, harness.ResultFail, rec.Result)
	assert.Equal(t, status.FailVerdict(2, status.NotFound), rec.Verdict)
	assert.Empty(t, layer.Table().Leaks(), "teardown restores the vector")
	assert.Equal(t, 1, layer.Table().RestoreCount(interrupt.SecureFault))
}

func TestP001_ClockReachableFromNonSecure(t *testing.T) {
	f := compliant(true)
	f.Regions[0].Secure = false
	core, logs := observer.New(zapcore.ErrorLevel)
	layer := val.New(loadTarget(t, f), val.WithBudget(shortBudget), val.WithLogger(zap.New(core).Sugar()))
	rec := harness.NewRunner(layer).RunOne(context.Background(), NewP001())

	assert.Equal(t, harness.ResultFail, rec.Result)
	assert.Equal(t, status.FailVerdict(2, status.Timeout), rec.Verdict)
	assert.Equal(t, harness.ErrCodeTimeout, rec.Category)
	assert.Empty(t, layer.Table().Leaks())

	readable := logs.FilterMessage("trusted PLL register readable from non-secure world").All()
	require.Len(t, readable, 1)
	assert.Equal(t, uint64(0x5002_1010), readable[0].ContextMap()["addr"])
}

func TestP001_FaultAtUnexpectedAddress(t *testing.T) {
	// The PLL register is in a secure region, but the handler is told to
	// expect a different address.
	layer := val.New(loadTarget(t, compliant(true)), val.WithDelivery(interrupt.DeliverSync), val.WithBudget(shortBudget))
	tc := NewP001()

	tc.Setup(layer)
	require.Equal(t, status.PassVerdict(), layer.GetStatus())
	tc.ws.expected.Store(0xDEAD_0000)

	require.NoError(t, layer.Table().Raise(interrupt.Fault{Vector: interrupt.SecureFault, Addr: 0x5002_1010}))
	assert.Equal(t, status.FailVerdict(4, status.UnexpectedFault), layer.GetStatus())

	tc.Teardown(layer)
	assert.False(t, layer.InterruptBorrowed(interrupt.SecureFault))
}

func TestP001_ExampleTargets(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "testdata", "targets")

	p, err := target.Load(filepath.Join(dir, "fvp-sse200.yaml"))
	require.NoError(t, err)
	rec := harness.NewRunner(val.New(p, val.WithBudget(shortBudget))).RunOne(context.Background(), NewP001())
	assert.Equal(t, harness.ResultPass, rec.Result)

	p, err = target.Load(filepath.Join(dir, "fvp-noncompliant.yaml"))
	require.NoError(t, err)
	rec = harness.NewRunner(val.New(p, val.WithBudget(shortBudget))).RunOne(context.Background(), NewP001())
	assert.Equal(t, status.FailVerdict(2, status.Timeout), rec.Verdict)
}
