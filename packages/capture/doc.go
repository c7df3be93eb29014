// Package capture extracts values from responses for use by later scenarios.
//
// It supports capturing values from:
//   - the JSON body, by gjson path (id, user.id, 0.title)
//   - a header, whole or through a pattern such as /posts/(\d+)$
//
// A missing field, an absent header or a header that does not match its
// pattern is reported as an *Error; extraction never panics.
package capture
