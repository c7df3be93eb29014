// Package assertions checks an HTTP response against a scenario's
// expectation.
//
// Checks run in a fixed order and stop at the first failure:
//   - status code (exact, one of, or a range)
//   - required headers
//   - header value patterns (substring or regexp)
//   - body assertions, in declared order
//
// Body assertions address the JSON body with gjson paths and never coerce
// types: the string "1" does not equal the number 1, and a missing field is
// reported separately from a wrong value. JSON numbers compare by value, so
// an expected int matches 1.0 in the body.
package assertions
