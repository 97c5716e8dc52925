package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/veyra/authcore/account"
	"github.com/veyra/authcore/otp"
	"github.com/veyra/authcore/password"
)

// Signup registers a new customer or vendor account and issues a
// verification code to the address. The account stays unverified, and
// unable to log in, until VerifyOTP succeeds. The code travels only over
// the email queue; it is never part of the return value.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := e.validatePassword(req.Password); err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = account.RoleCustomer
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	acct, err := e.accounts.Create(storeCtx, account.Draft{
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		Role:      role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   req.Country,
	})
	if err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		if errors.Is(err, password.ErrPasswordTooShort) {
			return nil, ErrPasswordPolicy
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	code, err := e.otps.Issue(storeCtx, otp.PurposeVerify, acct.Email)
	if err != nil {
		return nil, fmt.Errorf("issue verification code: %w", err)
	}

	e.publish(ctx, EventAccountRegistered, e.accountEvent(acct))
	e.publish(ctx, EventOTPIssued, OTPIssuedEvent{Email: acct.Email, Code: code, Purpose: otp.PurposeVerify})

	return &SignupResult{AccountID: acct.ID, Email: acct.Email}, nil
}

// VerifyOTP consumes a signup verification code, marks the account
// verified, and signs it in. Each code is single use: a concurrent second
// attempt with the same code loses and gets ErrOTPInvalid.
func (e *Engine) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*AuthResult, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.otps.Verify(storeCtx, otp.PurposeVerify, req.Email, req.Code); err != nil {
		if errors.Is(err, otp.ErrNotFoundOrExpired) || errors.Is(err, otp.ErrMismatch) {
			return nil, ErrOTPInvalid
		}
		return nil, fmt.Errorf("verify code: %w", err)
	}

	acct, err := e.accounts.ByEmail(storeCtx, req.Email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := guardLiveness(acct); err != nil {
		return nil, err
	}

	if !acct.Verified {
		if acct, err = e.accounts.SetVerified(storeCtx, acct.ID, true); err != nil {
			return nil, fmt.Errorf("mark verified: %w", err)
		}
		e.publish(ctx, EventAccountVerified, e.accountEvent(acct))
	}

	pair, err := e.issueTokens(ctx, acct)
	if err != nil {
		return nil, err
	}
	return &AuthResult{TokenPair: *pair, Account: acct}, nil
}

// ResendOTP issues a fresh verification code for an unverified account,
// superseding any outstanding one.
func (e *Engine) ResendOTP(ctx context.Context, email string) error {
	if err := e.checkClosed(); err != nil {
		return err
	}
	if !validEmail(email) {
		return ErrInvalidRequest
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	acct, err := e.accounts.ByEmail(storeCtx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("load account: %w", err)
	}
	if err := guardLiveness(acct); err != nil {
		return err
	}
	if acct.Verified {
		return ErrAlreadyVerified
	}

	code, err := e.otps.Issue(storeCtx, otp.PurposeVerify, acct.Email)
	if err != nil {
		return fmt.Errorf("issue verification code: %w", err)
	}
	e.publish(ctx, EventOTPIssued, OTPIssuedEvent{Email: acct.Email, Code: code, Purpose: otp.PurposeVerify})
	return nil
}
