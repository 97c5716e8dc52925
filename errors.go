package authcore

import (
	"errors"

	"github.com/veyra/authcore/account"
	"github.com/veyra/authcore/idempotency"
	"github.com/veyra/authcore/otp"
	"github.com/veyra/authcore/password"
)

var (
	// ErrInvalidRequest is returned for malformed input rejected before any
	// domain operation runs.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPasswordPolicy is returned when a password fails the strength policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrEmailTaken is returned when the signup email already exists.
	ErrEmailTaken = errors.New("email already in use")
	// ErrInvalidCredentials is returned for a failed login. Unknown email and
	// wrong password are indistinguishable on purpose.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountNotFound is returned when the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountUnverified is returned when an unverified account attempts a
	// verified-only operation.
	ErrAccountUnverified = errors.New("account not verified")
	// ErrAccountSuspended is returned when a suspended account acts.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountDeleted is returned when a deleted account acts.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrAlreadyVerified is returned when re-requesting verification for a
	// verified account.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrOTPInvalid is returned when a one-time code is wrong, expired, or
	// already consumed.
	ErrOTPInvalid = errors.New("invalid or expired code")
	// ErrRefreshInvalid is returned for an unknown or malformed refresh token.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a rotated-out refresh token is
	// presented again. By the time the caller sees it, every session for the
	// account has been revoked.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrUnauthorized is returned for invalid or expired access credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEngineClosed is returned when an operation reaches a closed engine.
	ErrEngineClosed = errors.New("engine closed")
)

// ErrorKind is the transport-agnostic error taxonomy. The boundary maps
// kinds to status codes; the engine only ever returns sentinel errors.
type ErrorKind int

const (
	// KindInternal covers unexpected failures, including an unavailable store.
	KindInternal ErrorKind = iota
	// KindValidation covers malformed input.
	KindValidation
	// KindConflict covers uniqueness violations and in-flight duplicates.
	KindConflict
	// KindUnauthorized covers bad credentials and invalid, expired, or
	// reused tokens.
	KindUnauthorized
	// KindForbidden covers unverified, suspended, or deleted accounts acting.
	KindForbidden
	// KindNotFound covers unknown resources.
	KindNotFound
)

// KindOf classifies any error returned by the engine.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, idempotency.ErrKeyMissing),
		errors.Is(err, idempotency.ErrKeyTooLong):
		return KindValidation
	case errors.Is(err, ErrEmailTaken),
		errors.Is(err, account.ErrEmailTaken),
		errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, idempotency.ErrInFlight):
		return KindConflict
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrOTPInvalid),
		errors.Is(err, otp.ErrNotFoundOrExpired),
		errors.Is(err, otp.ErrMismatch),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrRefreshReuse),
		errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrAccountUnverified),
		errors.Is(err, ErrAccountSuspended),
		errors.Is(err, ErrAccountDeleted):
		return KindForbidden
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, account.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
