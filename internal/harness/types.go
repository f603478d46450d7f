package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/tbsa/internal/status"
	"github.com/roach88/tbsa/internal/val"
)

// Group is a TBSA rule family.
type Group int

const (
	GroupInfra Group = iota + 1
	GroupTrustedTimers
	GroupFuses
	GroupCrypto
	GroupDebug
	GroupPeripherals
)

var groupNames = map[Group]string{
	GroupInfra:         "INFRA",
	GroupTrustedTimers: "TRUSTED_TIMERS",
	GroupFuses:         "FUSES",
	GroupCrypto:        "CRYPTO",
	GroupDebug:         "DEBUG",
	GroupPeripherals:   "PERIPHERALS",
}

var groupPrefix = map[Group]string{
	GroupInfra:         "i",
	GroupTrustedTimers: "t",
	GroupFuses:         "f",
	GroupCrypto:        "c",
	GroupDebug:         "d",
	GroupPeripherals:   "p",
}

// String returns the group name, e.g. "DEBUG".
func (g Group) String() string {
	if n, ok := groupNames[g]; ok {
		return n
	}
	return fmt.Sprintf("GROUP(%d)", int(g))
}

// ParseGroup resolves a group name, case-insensitively.
func ParseGroup(name string) (Group, error) {
	for g, n := range groupNames {
		if strings.EqualFold(n, name) {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unknown test group %q", name)
}

// Identity names a test for reporting. It never changes after registration.
type Identity struct {
	Group  Group  `json:"group"`
	ID     uint32 `json:"id"`
	Title  string `json:"title"`
	RefTag string `json:"ref_tag"`
}

// Key returns the short test name, e.g. "d007".
func (id Identity) Key() string {
	return fmt.Sprintf("%s%03d", groupPrefix[id.Group], id.ID)
}

func (id Identity) String() string {
	return fmt.Sprintf("%s %s", id.Key(), id.Title)
}

// TestCase is one compliance check.
//
// Setup and Teardown receive the API only; Execute also receives the run
// context, which bounds any pending wait it enters.
type TestCase interface {
	Identity() Identity
	Setup(api val.API)
	Execute(ctx context.Context, api val.API)
	Teardown(api val.API)
}

// Case adapts plain functions to TestCase. A nil hook does nothing.
type Case struct {
	ID         Identity
	SetupFn    func(api val.API)
	ExecuteFn  func(ctx context.Context, api val.API)
	TeardownFn func(api val.API)
}

func (c *Case) Identity() Identity { return c.ID }

func (c *Case) Setup(api val.API) {
	if c.SetupFn != nil {
		c.SetupFn(api)
	}
}

func (c *Case) Execute(ctx context.Context, api val.API) {
	if c.ExecuteFn != nil {
		c.ExecuteFn(ctx, api)
	}
}

func (c *Case) Teardown(api val.API) {
	if c.TeardownFn != nil {
		c.TeardownFn(api)
	}
}

// State is a test's lifecycle position.
type State int

const (
	StateUnstarted State = iota
	StateSettingUp
	StateRunning
	StatePending
	StateTearingDown
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateSettingUp:
		return "setting-up"
	case StateRunning:
		return "running"
	case StatePending:
		return "pending"
	case StateTearingDown:
		return "tearing-down"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the reported outcome of one test.
type Result string

const (
	ResultPass          Result = "PASS"
	ResultFail          Result = "FAIL"
	ResultSkip          Result = "SKIP"
	ResultIndeterminate Result = "INDETERMINATE"
)

// Record is the audit entry for one test.
type Record struct {
	Identity Identity            `json:"identity"`
	Result   Result              `json:"result"`
	Verdict  status.Verdict      `json:"-"`
	Category ErrorCode           `json:"category,omitempty"`
	Defect   *Error              `json:"defect,omitempty"`
	Trace    []status.Checkpoint `json:"trace"`
	Duration time.Duration       `json:"duration_ns"`
}

// Summary counts records by result.
type Summary struct {
	Pass          int `json:"pass"`
	Fail          int `json:"fail"`
	Skip          int `json:"skip"`
	Indeterminate int `json:"indeterminate"`
}

// Summarize counts records.
func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		switch r.Result {
		case ResultPass:
			s.Pass++
		case ResultFail:
			s.Fail++
		case ResultSkip:
			s.Skip++
		default:
			s.Indeterminate++
		}
	}
	return s
}

// Total returns the number of records counted.
func (s Summary) Total() int {
	return s.Pass + s.Fail + s.Skip + s.Indeterminate
}

// OK reports whether nothing failed and nothing was indeterminate.
func (s Summary) OK() bool {
	return s.Fail == 0 && s.Indeterminate == 0
}
