// Package cmd implements the contractspec CLI commands using Cobra.
//
// Available commands:
//   - run: Execute scenario files or the built-in contract
//   - validate: Check scenario files without sending requests
//   - list: Show scenarios in execution order
//   - serve: Start the in-memory fake API
//   - history: Inspect runs recorded with --history
//   - init: Create a config file and an example scenario file
//   - version: Show version information
//
// Commands report failures as *ExitError so the process exit code tells
// scenario failures, parse errors, config errors and usage errors apart.
package cmd
