package authcore

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/veyra/authcore/account"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && len(email) <= 254 && emailPattern.MatchString(email)
}

// validatePassword enforces the strength policy: a length floor plus at
// least one letter and one digit.
func (e *Engine) validatePassword(candidate string) error {
	if len(candidate) < e.cfg.Password.MinLength {
		return ErrPasswordPolicy
	}
	var hasLetter, hasDigit bool
	for _, r := range candidate {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrPasswordPolicy
	}
	return nil
}

// Validate rejects malformed signups before any domain work runs. Admin
// accounts are never created through signup.
func (r *SignupRequest) Validate() error {
	if !validEmail(r.Email) {
		return ErrInvalidRequest
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrInvalidRequest
	}
	switch r.Role {
	case "", account.RoleCustomer, account.RoleVendor:
	default:
		return ErrInvalidRequest
	}
	return nil
}

// Validate rejects malformed OTP confirmations.
func (r *VerifyOTPRequest) Validate() error {
	if !validEmail(r.Email) || strings.TrimSpace(r.Code) == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Validate rejects malformed logins.
func (r *LoginRequest) Validate() error {
	if !validEmail(r.Email) || r.Password == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Validate rejects malformed password resets.
func (r *ResetPasswordRequest) Validate() error {
	if !validEmail(r.Email) || strings.TrimSpace(r.Code) == "" {
		return ErrInvalidRequest
	}
	return nil
}
