// Package runner registers scenarios and executes them against a service.
//
// A Registry runs scenarios strictly in registration order, one at a time,
// and reports exactly one outcome per scenario:
//   - Passed when the response met every expectation and all captures were
//     extracted
//   - Failed with a transport, assertion or capture reason
//   - Skipped when a dependency did not pass, a placeholder has no value, the
//     scenario was filtered out, or the run was cancelled or bailed
//
// Captured values are published only after a scenario passes, so dependents
// never run with partial state. A run-level timeout stops new scenarios from
// starting; a request already in flight is left to finish.
package runner
