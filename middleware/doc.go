// Package middleware adapts the engine to net/http: bearer-token guarding,
// claim extraction from the request context, idempotency-key handling, and
// the error-kind to status-code mapping.
//
// The package translates HTTP semantics into Engine calls and nothing
// more; all authentication decisions stay in the engine.
package middleware
