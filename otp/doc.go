// Package otp manages one-time numeric challenges keyed by purpose and
// address. At most one challenge is live per key, and verification is a
// single atomic check-and-delete so a code can succeed at most once under
// any interleaving of concurrent callers.
package otp
