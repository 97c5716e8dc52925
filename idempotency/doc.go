// Package idempotency wraps state-mutating operations with a Redis-backed
// claim-and-cache protocol. The first completion of a keyed operation wins;
// duplicates replay the stored status and body byte for byte, and in-flight
// duplicates are rejected rather than re-executed.
package idempotency
