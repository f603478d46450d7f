// Package harness runs TBSA compliance tests one at a time against a
// validation layer and turns each run into an auditable record.
//
// # Test Lifecycle
//
// Every test case has three hooks, invoked in a fixed order:
//
//	Unstarted -> SettingUp -> Running -> (Pass | Fail | Skip)
//	                            |
//	                            +-> Pending -> (Pass | Fail)
//
// Setup initializes the test's workspace and must leave a provisional Pass or
// a terminal Fail or Skip. Execute runs only after a provisional Pass. It
// reports each platform call to the checkpoint tracker and returns as soon as
// a check fails. A test that provokes a hardware exception suspends on the
// fault bridge; the routed handler decides the verdict. Teardown runs exactly
// once for every started test, whatever happened before it.
//
// # Verdict Rules
//
//   - Teardown may downgrade Pass to Fail. It can never upgrade.
//   - A payload that returns with no verdict, or still Pending, is
//     Indeterminate. A pending wait is resolved before teardown runs.
//   - A hook that panics makes the test Indeterminate.
//   - A vector left borrowed after teardown is restored and the test is
//     Indeterminate with a HANDLER_LEAK defect.
//
// Indeterminate is a harness defect surfaced to the operator. It is never
// counted as a pass.
//
// # Usage
//
//	reg := harness.NewRegistry()
//	if err := testpool.Register(reg); err != nil {
//	    return err
//	}
//	runner := harness.NewRunner(layer, harness.WithLogger(logger))
//	records, err := runner.Run(ctx, reg.Select(filter))
package harness
