// ABOUTME: Request context key types and constants for the api package.
// ABOUTME: Used by middleware to inject auth state and by handlers to read it.
package api

type contextKey int

const (
	ctxProjectID contextKey = iota // int64 — project resolved from the API key
	ctxReadOnly                    // bool — key is read-only
)
