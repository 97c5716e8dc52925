package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/veyra/authcore/account"
	"github.com/veyra/authcore/otp"
)

// ForgotPassword issues a password-reset code. It deliberately reports
// success for unknown, suspended, and deleted addresses so the endpoint
// cannot be used to probe which emails exist.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
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
			return nil
		}
		return fmt.Errorf("load account: %w", err)
	}
	if acct.Suspended || acct.Deleted {
		return nil
	}

	code, err := e.otps.Issue(storeCtx, otp.PurposeReset, acct.Email)
	if err != nil {
		return fmt.Errorf("issue reset code: %w", err)
	}
	e.publish(ctx, EventOTPIssued, OTPIssuedEvent{Email: acct.Email, Code: code, Purpose: otp.PurposeReset})
	return nil
}

// ResetPassword consumes a reset code, installs the new password, and
// revokes every outstanding session for the account. An unknown address
// reports the same error as a wrong code.
func (e *Engine) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := e.checkClosed(); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := e.validatePassword(req.NewPassword); err != nil {
		return err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.otps.Verify(storeCtx, otp.PurposeReset, req.Email, req.Code); err != nil {
		if errors.Is(err, otp.ErrNotFoundOrExpired) || errors.Is(err, otp.ErrMismatch) {
			return ErrOTPInvalid
		}
		return fmt.Errorf("verify reset code: %w", err)
	}

	acct, err := e.accounts.ByEmail(storeCtx, req.Email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrOTPInvalid
		}
		return fmt.Errorf("load account: %w", err)
	}
	if err := guardLiveness(acct); err != nil {
		return err
	}

	if _, err := e.accounts.SetPassword(storeCtx, acct.ID, req.NewPassword); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if err := e.revokeAll(ctx, acct.ID); err != nil {
		return err
	}

	e.publish(ctx, EventPasswordReset, e.accountEvent(acct))
	return nil
}
