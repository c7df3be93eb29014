// Package http is the transport adapter used by contractspec scenarios.
//
// It wraps the standard library's http package with:
//   - Configurable, always finite timeouts
//   - Redirect and TLS handling
//   - Optional client-side pacing
//   - Case-insensitive response headers and a best-effort JSON view
//
// HTTP error statuses are ordinary responses. Only network-level failures
// are returned as errors, always as *TransportError.
package http
