package status

import "sync/atomic"

// Cell holds exactly one live Verdict.
//
// Loads and stores are sequentially consistent: a Set performed by an
// exception handler happens-before any Get that observes it, so a payload
// spinning on Get sees the handler's resolution on its next read.
//
// A verdict stored with Expire is final: later Set and Resolve calls leave it
// in place until the next Clear.
//
// Thread-safety: all methods are safe for concurrent use. By contract only the
// running test and its designated handler write the cell.
type Cell struct {
	v atomic.Pointer[entry]
}

type entry struct {
	verdict Verdict
	final   bool
}

// NewCell returns a cleared cell.
func NewCell() *Cell {
	c := &Cell{}
	c.Clear()
	return c
}

// Set overwrites the current verdict. Last write wins; no history is kept.
// It returns false, writing nothing, once the verdict is final.
func (c *Cell) Set(v Verdict) bool {
	next := &entry{verdict: v}
	for {
		cur := c.v.Load()
		if cur != nil && cur.final {
			return false
		}
		if c.v.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Get returns the current verdict without side effects.
func (c *Cell) Get() Verdict {
	p := c.v.Load()
	if p == nil {
		return Verdict{}
	}
	return p.verdict
}

// Final reports whether the current verdict was stored with Expire.
func (c *Cell) Final() bool {
	p := c.v.Load()
	return p != nil && p.final
}

// Clear resets the cell to Unset and lifts finality.
func (c *Cell) Clear() {
	c.v.Store(&entry{})
}

// Resolve replaces a Pending verdict with v. It returns false, leaving the
// cell untouched, if the verdict is no longer Pending, so a late caller can
// never overwrite a resolution that already happened.
func (c *Cell) Resolve(v Verdict) bool {
	return c.resolve(&entry{verdict: v})
}

// Expire is Resolve for a wait that gave up: on success v is also final, so a
// handler that runs afterwards cannot replace it.
func (c *Cell) Expire(v Verdict) bool {
	return c.resolve(&entry{verdict: v, final: true})
}

func (c *Cell) resolve(next *entry) bool {
	for {
		cur := c.v.Load()
		if cur == nil || cur.final || cur.verdict.Outcome != Pending {
			return false
		}
		if c.v.CompareAndSwap(cur, next) {
			return true
		}
	}
}
