package authcore

import (
	"context"

	"github.com/veyra/authcore/account"
)

// Mailer is the outbound mail collaborator. Implementations own transport
// and templating; the engine only hands over recipient, subject, and body.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}

// Notifier is the in-app notification collaborator.
type Notifier interface {
	Create(ctx context.Context, accountID, title, body string, metadata map[string]string) error
}

// SignupRequest creates a new customer or vendor account.
type SignupRequest struct {
	Email     string
	Phone     string
	Password  string
	Role      account.Role
	FirstName string
	LastName  string
	Country   string
}

// SignupResult is the public outcome of a successful signup.
type SignupResult struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
}

// VerifyOTPRequest consumes a signup verification code.
type VerifyOTPRequest struct {
	Email string
	Code  string
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Email    string
	Password string
}

// ResetPasswordRequest consumes a reset code and sets a new password.
type ResetPasswordRequest struct {
	Email       string
	Code        string
	NewPassword string
}

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult couples a token pair with the authenticated account.
type AuthResult struct {
	TokenPair
	Account *account.Account `json:"account"`
}
