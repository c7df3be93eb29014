// Package catalog holds the built-in contract for the posts and auth API as
// plain scenario data.
//
// PostsScenarios covers the /posts resource. AuthScenarios adds registration
// and login on top of it; its credentials come from an injected provider so a
// seeded provider gives a reproducible run.
package catalog
