// Package interrupt models the process-wide exception vector table.
//
// A test may borrow a vector by routing its own handler to it; it must restore
// the default before the next test begins. The table tracks borrowed vectors
// so a leaked override is detectable after every test.
package interrupt

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Vector is an exception number.
type Vector int

// ARMv8-M exception numbers used by the catalog.
const (
	HardFault   Vector = 3
	MemManage   Vector = 4
	BusFault    Vector = 5
	UsageFault  Vector = 6
	SecureFault Vector = 7
)

// String returns the exception name.
func (v Vector) String() string {
	switch v {
	case HardFault:
		return "HardFault"
	case MemManage:
		return "MemManage"
	case BusFault:
		return "BusFault"
	case UsageFault:
		return "UsageFault"
	case SecureFault:
		return "SecureFault"
	default:
		return fmt.Sprintf("EXC%d", int(v))
	}
}

// Fault describes a trapped access as seen by a handler.
type Fault struct {
	Vector Vector
	Addr   uint64
	Reason string
}

// Handler is invoked when a fault is delivered on its vector.
type Handler func(Fault)

// Delivery selects how Raise runs the handler.
type Delivery int

const (
	// DeliverAsync runs the handler on its own goroutine, preempting the
	// faulting flow at an arbitrary point.
	DeliverAsync Delivery = iota
	// DeliverSync runs the handler before Raise returns.
	DeliverSync
)

var (
	// ErrBorrowed is returned when routing a vector that is already overridden.
	ErrBorrowed = errors.New("vector already borrowed")

	// ErrNoVector is returned for a vector the table does not implement.
	ErrNoVector = errors.New("vector not implemented")
)

// Table is the vector table. The zero value is not usable; use NewTable.
//
// Thread-safety: all methods are safe for concurrent use. Raise may be called
// from the faulting flow while the owner restores a vector.
type Table struct {
	mu       sync.Mutex
	defaults map[Vector]Handler
	current  map[Vector]Handler
	borrowed map[Vector]bool
	restores map[Vector]int
	delivery Delivery
	wg       sync.WaitGroup
}

// NewTable creates a table whose implemented vectors are the keys of defaults.
func NewTable(defaults map[Vector]Handler, delivery Delivery) *Table {
	t := &Table{
		defaults: make(map[Vector]Handler, len(defaults)),
		current:  make(map[Vector]Handler, len(defaults)),
		borrowed: make(map[Vector]bool),
		restores: make(map[Vector]int),
		delivery: delivery,
	}
	for v, h := range defaults {
		t.defaults[v] = h
		t.current[v] = h
	}
	return t
}

// Implements reports whether v exists on this table.
func (t *Table) Implements(v Vector) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.defaults[v]
	return ok
}

// Route overrides v with h. Routing an already-borrowed vector fails with
// ErrBorrowed; the existing override is left in place.
func (t *Table) Route(v Vector, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.defaults[v]; !ok {
		return fmt.Errorf("route %s: %w", v, ErrNoVector)
	}
	if t.borrowed[v] {
		return fmt.Errorf("route %s: %w", v, ErrBorrowed)
	}
	t.current[v] = h
	t.borrowed[v] = true
	return nil
}

// Restore puts the default handler back on v. Restoring a vector that is not
// borrowed is a no-op and is not counted.
func (t *Table) Restore(v Vector) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	def, ok := t.defaults[v]
	if !ok {
		return fmt.Errorf("restore %s: %w", v, ErrNoVector)
	}
	if !t.borrowed[v] {
		return nil
	}
	t.current[v] = def
	delete(t.borrowed, v)
	t.restores[v]++
	return nil
}

// Borrowed reports whether v is currently overridden.
func (t *Table) Borrowed(v Vector) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.borrowed[v]
}

// Leaks returns the overridden vectors in ascending order. An empty result
// means the table equals its defaults.
func (t *Table) Leaks() []Vector {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaks := make([]Vector, 0, len(t.borrowed))
	for v := range t.borrowed {
		leaks = append(leaks, v)
	}
	sort.Slice(leaks, func(i, j int) bool { return leaks[i] < leaks[j] })
	return leaks
}

// RestoreCount returns how many times v was restored from an override.
func (t *Table) RestoreCount(v Vector) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restores[v]
}

// Raise delivers f to the handler currently installed on f.Vector.
// It returns ErrNoVector if the vector is not implemented.
func (t *Table) Raise(f Fault) error {
	t.mu.Lock()
	h, ok := t.current[f.Vector]
	delivery := t.delivery
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("raise %s: %w", f.Vector, ErrNoVector)
	}
	if h == nil {
		return nil
	}

	if delivery == DeliverSync {
		h(f)
		return nil
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		h(f)
	}()
	return nil
}

// Quiesce waits for in-flight asynchronous handlers to return.
func (t *Table) Quiesce() {
	t.wg.Wait()
}
