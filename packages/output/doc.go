// Package output renders run results.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON output
//   - JUnit: JUnit XML format for CI integration
//
// The JSON and JUnit formatters accumulate runs and write them on Flush.
package output
