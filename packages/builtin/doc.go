// Package builtin provides the random test-data provider and the template
// functions built on it.
//
// Available functions:
//   - uuid(): random UUID v4
//   - timestamp(): current Unix timestamp
//   - randomInt(min, max): integer in [min, max]
//   - randomString(length): alphanumeric string
//   - randomEmail(): unique-looking e-mail address
//   - firstName(), lastName(), password()
//
// Functions are invoked with the {{name(args)}} syntax in scenario templates.
// A Provider built with a non-zero seed makes every generated value
// reproducible.
package builtin
