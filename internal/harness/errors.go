package harness

import (
	"errors"
	"fmt"

	"github.com/roach88/tbsa/internal/status"
)

// Error describes why a test did not pass, or a defect the harness found
// while running it.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// TestKey identifies the affected test, e.g. "p001".
	TestKey string `json:"test,omitempty"`

	// Checkpoint is the checkpoint the failure is attributed to, if any.
	Checkpoint status.Checkpoint `json:"checkpoint,omitempty"`

	// Details contains additional context.
	Details map[string]string `json:"details,omitempty"`
}

// ErrorCode categorizes failures and defects.
type ErrorCode string

const (
	// ErrCodeConfigNotFound indicates a required target record is absent.
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"

	// ErrCodePlatformCall indicates a platform call returned a failure code.
	ErrCodePlatformCall ErrorCode = "PLATFORM_CALL_FAILED"

	// ErrCodeCompliance indicates the target violates the rule under test.
	ErrCodeCompliance ErrorCode = "COMPLIANCE_VIOLATION"

	// ErrCodeTimeout indicates a pending wait expired without resolution.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeIndeterminate indicates the test broke the lifecycle contract.
	ErrCodeIndeterminate ErrorCode = "INDETERMINATE"

	// ErrCodeHandlerLeak indicates a vector stayed borrowed after teardown.
	ErrCodeHandlerLeak ErrorCode = "HANDLER_LEAK"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.TestKey != "" && e.Checkpoint != 0:
		return fmt.Sprintf("%s: %s (test=%s, checkpoint=%d)", e.Code, e.Message, e.TestKey, e.Checkpoint)
	case e.TestKey != "":
		return fmt.Sprintf("%s: %s (test=%s)", e.Code, e.Message, e.TestKey)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Classify maps a failing verdict to its category. Non-failing verdicts have
// no category.
func Classify(v status.Verdict) ErrorCode {
	if v.Outcome != status.Fail {
		return ""
	}
	switch v.Code {
	case status.Timeout:
		return ErrCodeTimeout
	case status.NotFound:
		return ErrCodeConfigNotFound
	case status.DataMismatch, status.IncorrectValue, status.CertInvalid, status.UnexpectedFault:
		return ErrCodeCompliance
	default:
		return ErrCodePlatformCall
	}
}

// IsTimeout returns true if err is a timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Code == ErrCodeTimeout
	}
	return false
}

// IsIndeterminate returns true if err is a lifecycle defect, including a
// handler leak.
func IsIndeterminate(err error) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Code == ErrCodeIndeterminate || he.Code == ErrCodeHandlerLeak
	}
	return false
}

// NewIndeterminateError creates an Error for a lifecycle contract violation.
func NewIndeterminateError(testKey, message string) *Error {
	return &Error{
		Code:    ErrCodeIndeterminate,
		Message: message,
		TestKey: testKey,
	}
}

// NewHandlerLeakError creates an Error for vectors left borrowed.
func NewHandlerLeakError(testKey string, vectors []string) *Error {
	details := make(map[string]string, len(vectors))
	for i, v := range vectors {
		details[fmt.Sprintf("vector_%d", i)] = v
	}
	return &Error{
		Code:    ErrCodeHandlerLeak,
		Message: fmt.Sprintf("%d vector(s) still borrowed after teardown", len(vectors)),
		TestKey: testKey,
		Details: details,
	}
}

// NewFailureError describes a failing verdict.
func NewFailureError(testKey string, v status.Verdict) *Error {
	return &Error{
		Code:       Classify(v),
		Message:    fmt.Sprintf("check failed with %s", v.Code),
		TestKey:    testKey,
		Checkpoint: v.Checkpoint,
	}
}
