// Package internal holds the token and code primitives shared by the
// public packages: refresh-token encoding, secret hashing, and numeric
// one-time code generation.
package internal
