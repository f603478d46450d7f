// Package testpool is the catalog of built-in compliance tests.
package testpool

import (
	"github.com/roach88/tbsa/internal/harness"
	"github.com/roach88/tbsa/internal/testpool/debug"
	"github.com/roach88/tbsa/internal/testpool/peripherals"
)

// Register adds every built-in test to reg.
func Register(reg *harness.Registry) error {
	for _, tc := range []harness.TestCase{
		debug.NewD007(),
		peripherals.NewP001(),
	} {
		if err := reg.Register(tc); err != nil {
			return err
		}
	}
	return nil
}
