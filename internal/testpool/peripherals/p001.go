// Package peripherals holds the PERIPHERALS group of compliance tests.
package peripherals

import (
	"context"
	"sync/atomic"

	"github.com/roach88/tbsa/internal/harness"
	"github.com/roach88/tbsa/internal/interrupt"
	"github.com/roach88/tbsa/internal/status"
	"github.com/roach88/tbsa/internal/target"
	"github.com/roach88/tbsa/internal/val"
)

// Checkpoints of p001.
const (
	p001Route status.Checkpoint = iota + 1
	p001Clock
	p001Restore
	p001Handler
)

type p001Workspace struct {
	// expected is the address the trap must report. It is read by the
	// handler, which runs on another goroutine.
	expected atomic.Uint64
}

func (w *p001Workspace) Reset() {
	w.expected.Store(0)
}

// P001 checks that the non-secure world cannot reach the trusted clock and
// power controls: a non-secure read of the PLL register must raise a
// SecureFault at exactly that address.
type P001 struct {
	ws  p001Workspace
	api val.API
}

// NewP001 creates the test.
func NewP001() *P001 {
	return &P001{}
}

func (t *P001) Identity() harness.Identity {
	return harness.Identity{
		Group:  harness.GroupPeripherals,
		ID:     1,
		Title:  "Check direct access to clock and power functionality from NT",
		RefTag: "R190_TBSA_INFRA",
	}
}

func (t *P001) Setup(api val.API) {
	api.TestInitialize(&t.ws)
	t.api = api

	if !api.InterruptSupported(interrupt.SecureFault) {
		api.Print(val.PrintWarn, "target has no SecureFault exception")
		api.SetStatus(status.SkipVerdict(status.Unsupported))
		return
	}
	if api.ErrCheckSet(p001Route, api.InterruptRouteHandler(interrupt.SecureFault, t.handle)) {
		return
	}
	api.SetStatus(status.PassVerdict())
}

func (t *P001) Execute(ctx context.Context, api val.API) {
	rec, code := api.TargetGetConfig(target.CreateID(target.GroupClocks, target.KindClocksSysFrq, 0))
	if api.ErrCheckSet(p001Clock, code) {
		return
	}
	clock, ok := rec.(target.ClocksDesc)
	if !ok {
		api.ErrCheckSet(p001Clock, status.DataMismatch)
		return
	}

	addr := clock.PLLBase + clock.Offset
	t.ws.expected.Store(addr)

	api.Suspend(interrupt.SecureFault, p001Clock, code)
	api.Print(val.PrintAlways, "reading trusted PLL register", "addr", addr)
	if value, read := api.MemReadWide(addr); read == status.Success {
		// Only the handler resolves the wait; this read will end in a timeout.
		api.Print(val.PrintError, "trusted PLL register readable from non-secure world",
			"addr", addr, "value", value)
	}
	api.AwaitResolution(ctx)

	if api.ErrCheckSet(p001Restore, api.InterruptRestoreHandler(interrupt.SecureFault)) {
		return
	}
}

// handle runs on the SecureFault vector while the test is suspended.
func (t *P001) handle(f interrupt.Fault) {
	if f.Addr != t.ws.expected.Load() {
		t.api.Print(val.PrintError, "SecureFault at unexpected address", "addr", f.Addr, "expected", t.ws.expected.Load())
		t.api.ErrCheckSet(p001Handler, status.UnexpectedFault)
		return
	}
	t.api.SetStatus(status.PassVerdict())
}

func (t *P001) Teardown(api val.API) {
	if api.InterruptBorrowed(interrupt.SecureFault) {
		api.InterruptRestoreHandler(interrupt.SecureFault)
	}
}
