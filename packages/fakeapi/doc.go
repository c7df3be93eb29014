// Package fakeapi is an in-memory HTTP service that behaves like the
// json-server plus json-server-auth setup the contract scenarios target.
//
// It serves /posts (list with _limit and repeated-key filters, create with a
// Location header, update and delete with 404 for unknown ids), guarded
// routes such as /664/posts, and /register and /login returning
// {accessToken, user}. It backs the package tests and `contractspec serve`.
package fakeapi
