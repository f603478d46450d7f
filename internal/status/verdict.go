// Package status defines test verdicts and the single-slot cell that holds
// the live verdict of the running test.
//
// A verdict pairs a coarse outcome (pass, fail, pending, skip) with the
// platform status code that produced it and, for failures, the checkpoint
// that was active when the failing call returned.
package status

import "fmt"

// Outcome is the coarse result carried by a Verdict.
type Outcome uint8

const (
	// Unset means no verdict has been written since the cell was last cleared.
	// It is never a legal terminal verdict.
	Unset Outcome = iota
	Pass
	Fail
	Pending
	Skip
)

// String returns the report spelling of the outcome.
func (o Outcome) String() string {
	switch o {
	case Unset:
		return "UNSET"
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Pending:
		return "PENDING"
	case Skip:
		return "SKIP"
	default:
		return fmt.Sprintf("OUTCOME(%d)", uint8(o))
	}
}

// Terminal reports whether the outcome ends a test's execution phase.
func (o Outcome) Terminal() bool {
	return o == Pass || o == Fail || o == Skip
}

// Checkpoint names a point in a test's execution. Checkpoints are unique
// within a test, not across the catalog. Zero means "no checkpoint".
type Checkpoint uint32

// Verdict is the value stored in a Cell.
type Verdict struct {
	Outcome    Outcome
	Code       Code
	Checkpoint Checkpoint
}

// PassVerdict returns Pass carrying the success code.
func PassVerdict() Verdict {
	return Verdict{Outcome: Pass, Code: Success}
}

// FailVerdict returns Fail bound to the checkpoint that detected code.
func FailVerdict(cp Checkpoint, code Code) Verdict {
	return Verdict{Outcome: Fail, Code: code, Checkpoint: cp}
}

// PendingVerdict returns Pending carrying an informational code.
func PendingVerdict(code Code) Verdict {
	return Verdict{Outcome: Pending, Code: code}
}

// SkipVerdict returns Skip carrying the code that caused it.
func SkipVerdict(code Code) Verdict {
	return Verdict{Outcome: Skip, Code: code}
}

// IsPending reports whether v is still awaiting resolution.
func (v Verdict) IsPending() bool {
	return v.Outcome == Pending
}

// String renders the verdict for logs, e.g. "FAIL(NOT_FOUND)@3".
func (v Verdict) String() string {
	if v.Outcome == Fail && v.Checkpoint != 0 {
		return fmt.Sprintf("%s(%s)@%d", v.Outcome, v.Code, v.Checkpoint)
	}
	return fmt.Sprintf("%s(%s)", v.Outcome, v.Code)
}
