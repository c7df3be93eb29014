// Package env resolves {{placeholder}} templates in scenario requests.
//
// Values come from, in lookup order:
//   - captures published by earlier scenarios ({{postId}} or {{create post.postId}})
//   - suite, config-environment and .env variables ({{baseUrl}})
//   - process environment variables ({{$HOME}})
//   - builtin functions ({{randomEmail()}})
package env
