package val

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/tbsa/internal/fault"
	"github.com/roach88/tbsa/internal/interrupt"
	"github.com/roach88/tbsa/internal/status"
	"github.com/roach88/tbsa/internal/target"
)

// Platform is the target as seen by the layer.
type Platform interface {
	Name() string
	GetConfig(id target.ConfigID) (target.Record, error)
	ReadWide(addr uint64, world target.World) (uint64, error)
	SecureFaultSupported() bool
}

// Layer implements API over a Platform.
type Layer struct {
	platform Platform
	cell     *status.Cell
	table    *interrupt.Table
	bridge   *fault.Bridge
	logger   *zap.SugaredLogger

	delivery interrupt.Delivery
	budget   fault.Budget

	mu    sync.Mutex
	trace []status.Checkpoint
}

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(v *Layer) { v.logger = l }
}

// WithDelivery selects how raised exceptions reach their handlers.
func WithDelivery(d interrupt.Delivery) Option {
	return func(v *Layer) { v.delivery = d }
}

// WithBudget bounds pending waits.
func WithBudget(b fault.Budget) Option {
	return func(v *Layer) { v.budget = b }
}

// New creates a Layer over p. The vector table implements the architectural
// fault vectors, plus SecureFault when the target supports it.
func New(p Platform, opts ...Option) *Layer {
	l := &Layer{
		platform: p,
		cell:     status.NewCell(),
		logger:   zap.NewNop().Sugar(),
		delivery: interrupt.DeliverAsync,
	}
	for _, opt := range opts {
		opt(l)
	}

	defaults := map[interrupt.Vector]interrupt.Handler{
		interrupt.HardFault:  l.unexpectedFault,
		interrupt.MemManage:  l.unexpectedFault,
		interrupt.BusFault:   l.unexpectedFault,
		interrupt.UsageFault: l.unexpectedFault,
	}
	if p.SecureFaultSupported() {
		defaults[interrupt.SecureFault] = l.unexpectedFault
	}
	l.table = interrupt.NewTable(defaults, l.delivery)
	l.bridge = fault.NewBridge(l.cell, l.budget, fault.WithLogger(l.logger))
	return l
}

// unexpectedFault is the default handler on every vector. A fault nobody
// asked for fails the running test at its last checkpoint.
func (l *Layer) unexpectedFault(f interrupt.Fault) {
	cp := l.lastCheckpoint()
	l.logger.Errorw("unexpected fault", "vector", f.Vector.String(), "addr", f.Addr, "reason", f.Reason)
	if !l.cell.Resolve(status.FailVerdict(cp, status.UnexpectedFault)) {
		l.cell.Set(status.FailVerdict(cp, status.UnexpectedFault))
	}
}

// Cell returns the verdict cell.
func (l *Layer) Cell() *status.Cell { return l.cell }

// Table returns the vector table.
func (l *Layer) Table() *interrupt.Table { return l.table }

// Bridge returns the fault-resolution bridge.
func (l *Layer) Bridge() *fault.Bridge { return l.bridge }

// Platform returns the underlying target.
func (l *Layer) Platform() Platform { return l.platform }

// Trace returns the checkpoints reported since the last ResetTrace, in order.
func (l *Layer) Trace() []status.Checkpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]status.Checkpoint, len(l.trace))
	copy(out, l.trace)
	return out
}

// ResetTrace clears the checkpoint trace.
func (l *Layer) ResetTrace() {
	l.mu.Lock()
	l.trace = l.trace[:0]
	l.mu.Unlock()
}

func (l *Layer) record(cp status.Checkpoint) {
	l.mu.Lock()
	l.trace = append(l.trace, cp)
	l.mu.Unlock()
}

func (l *Layer) lastCheckpoint() status.Checkpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.trace) == 0 {
		return 0
	}
	return l.trace[len(l.trace)-1]
}

// TestInitialize implements API.
func (l *Layer) TestInitialize(ws Workspace) {
	if ws != nil {
		ws.Reset()
	}
}

// TargetGetConfig implements API.
func (l *Layer) TargetGetConfig(id target.ConfigID) (target.Record, status.Code) {
	rec, err := l.platform.GetConfig(id)
	switch {
	case err == nil:
		return rec, status.Success
	case errors.Is(err, target.ErrNotFound):
		return nil, status.NotFound
	default:
		l.logger.Warnw("config lookup failed", "id", id.String(), "error", err)
		return nil, status.Error
	}
}

// ErrCheckSet implements API.
func (l *Layer) ErrCheckSet(cp status.Checkpoint, code status.Code) bool {
	l.record(cp)
	if !code.Failed() {
		return false
	}
	l.logger.Errorw("checkpoint failed", "checkpoint", cp, "code", code.String())
	l.store(status.FailVerdict(cp, code))
	return true
}

// SetStatus implements API.
func (l *Layer) SetStatus(v status.Verdict) {
	l.store(v)
}

// store writes v unless the test already timed out.
func (l *Layer) store(v status.Verdict) {
	if !l.cell.Set(v) {
		l.logger.Warnw("verdict after timeout dropped", "verdict", v.String(), "final", l.cell.Get().String())
	}
}

// GetStatus implements API.
func (l *Layer) GetStatus() status.Verdict {
	return l.cell.Get()
}

// CryptoValidateCertificate implements API.
func (l *Layer) CryptoValidateCertificate(cert, pubkey []byte) status.Code {
	if len(cert) == 0 || len(pubkey) == 0 {
		return status.InvalidArgs
	}
	return cryptoCode(target.ValidateCertificate(cert, pubkey))
}

// CryptoGetUniqueID implements API.
func (l *Layer) CryptoGetUniqueID(cert, pubkey []byte) (target.UniqueID, status.Code) {
	if len(cert) == 0 || len(pubkey) == 0 {
		return "", status.InvalidArgs
	}
	id, err := target.ExtractUniqueID(cert, pubkey)
	return id, cryptoCode(err)
}

func cryptoCode(err error) status.Code {
	switch {
	case err == nil:
		return status.Success
	case errors.Is(err, target.ErrBadCertificate), errors.Is(err, target.ErrBadPublicKey):
		return status.InvalidArgs
	default:
		return status.CertInvalid
	}
}

// InterruptRouteHandler implements API.
func (l *Layer) InterruptRouteHandler(v interrupt.Vector, h interrupt.Handler) status.Code {
	err := l.table.Route(v, h)
	switch {
	case err == nil:
		return status.Success
	case errors.Is(err, interrupt.ErrBorrowed):
		l.logger.Errorw("vector already routed", "vector", v.String())
		return status.HandlerBusy
	case errors.Is(err, interrupt.ErrNoVector):
		return status.Unsupported
	default:
		return status.Error
	}
}

// InterruptRestoreHandler implements API.
func (l *Layer) InterruptRestoreHandler(v interrupt.Vector) status.Code {
	if err := l.table.Restore(v); err != nil {
		if errors.Is(err, interrupt.ErrNoVector) {
			return status.Unsupported
		}
		return status.Error
	}
	return status.Success
}

// InterruptBorrowed implements API.
func (l *Layer) InterruptBorrowed(v interrupt.Vector) bool {
	return l.table.Borrowed(v)
}

// InterruptSupported implements API.
func (l *Layer) InterruptSupported(v interrupt.Vector) bool {
	return l.table.Implements(v)
}

// MemReadWide implements API. A trapped read returns Error once the fault has
// been raised; an unmapped address returns NotFound and raises nothing.
func (l *Layer) MemReadWide(addr uint64) (uint64, status.Code) {
	v, err := l.platform.ReadWide(addr, target.NonSecure)
	if err == nil {
		return v, status.Success
	}

	var af *target.AccessFault
	if errors.As(err, &af) {
		raised := l.table.Raise(interrupt.Fault{
			Vector: interrupt.SecureFault,
			Addr:   af.Addr,
			Reason: af.Error(),
		})
		if raised != nil {
			l.logger.Warnw("trap not deliverable", "addr", addr, "error", raised)
			return 0, status.Unsupported
		}
		return 0, status.Error
	}
	if errors.Is(err, target.ErrNotFound) {
		return 0, status.NotFound
	}
	return 0, status.Error
}

// Suspend implements API.
func (l *Layer) Suspend(v interrupt.Vector, cp status.Checkpoint, code status.Code) {
	l.bridge.Suspend(v, cp, code)
}

// AwaitResolution implements API.
func (l *Layer) AwaitResolution(ctx context.Context) status.Verdict {
	return l.bridge.Await(ctx).Verdict
}

// Print implements API.
func (l *Layer) Print(level Level, msg string, keysAndValues ...any) {
	switch level {
	case PrintError:
		l.logger.Errorw(msg, keysAndValues...)
	case PrintWarn:
		l.logger.Warnw(msg, keysAndValues...)
	case PrintDebug:
		l.logger.Debugw(msg, keysAndValues...)
	default:
		l.logger.Infow(msg, keysAndValues...)
	}
}
