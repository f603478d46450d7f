// Package val is the validation abstraction layer: the single surface a
// compliance test uses to reach the platform.
//
// Every platform call returns a status.Code. A test reports the code of each
// call to ErrCheckSet together with the checkpoint it belongs to; the first
// failing code becomes the test's verdict and the test must return at once.
//
// Thread-safety: a Layer serves one test at a time. The verdict cell and the
// vector table are the only state shared with exception handlers, and both
// are safe for concurrent use.
package val

import (
	"context"

	"github.com/roach88/tbsa/internal/interrupt"
	"github.com/roach88/tbsa/internal/status"
	"github.com/roach88/tbsa/internal/target"
)

// Level is the verbosity of a Print call.
type Level int

const (
	PrintAlways Level = iota
	PrintError
	PrintWarn
	PrintInfo
	PrintDebug
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case PrintAlways:
		return "ALWAYS"
	case PrintError:
		return "ERROR"
	case PrintWarn:
		return "WARN"
	case PrintInfo:
		return "INFO"
	case PrintDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Workspace is a test's private working memory. TestInitialize resets it.
type Workspace interface {
	Reset()
}

// API is the platform surface visible to tests.
type API interface {
	// TestInitialize resets ws before a test starts using it.
	TestInitialize(ws Workspace)

	// TargetGetConfig returns the target record stored under id.
	TargetGetConfig(id target.ConfigID) (target.Record, status.Code)

	// ErrCheckSet records code at cp. It returns true, after storing
	// Fail(code)@cp, when code is a failure; the caller must then return.
	ErrCheckSet(cp status.Checkpoint, code status.Code) bool

	SetStatus(v status.Verdict)
	GetStatus() status.Verdict

	CryptoValidateCertificate(cert, pubkey []byte) status.Code
	CryptoGetUniqueID(cert, pubkey []byte) (target.UniqueID, status.Code)

	InterruptRouteHandler(v interrupt.Vector, h interrupt.Handler) status.Code
	InterruptRestoreHandler(v interrupt.Vector) status.Code
	InterruptBorrowed(v interrupt.Vector) bool
	InterruptSupported(v interrupt.Vector) bool

	// MemReadWide performs a non-secure 64-bit read. A read the target
	// traps raises the matching exception before MemReadWide returns.
	MemReadWide(addr uint64) (uint64, status.Code)

	// Suspend enters a pending wait on v; a timeout fails at cp.
	Suspend(v interrupt.Vector, cp status.Checkpoint, code status.Code)

	// AwaitResolution returns once the verdict has left Pending.
	AwaitResolution(ctx context.Context) status.Verdict

	// Print is best effort and never fails the test.
	Print(level Level, msg string, keysAndValues ...any)
}
