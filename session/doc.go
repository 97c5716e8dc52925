// Package session stores the single live refresh session per account in
// Redis. Rotation is an atomic compare-and-swap on the stored token hash;
// a mismatch is treated as token reuse and destroys the session in the same
// script the caller then escalates to a full revoke.
package session
