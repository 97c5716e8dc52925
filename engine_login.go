package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/veyra/authcore/account"
)

// Login authenticates an email/password pair and issues a fresh token
// pair, replacing any existing refresh session for the account. Unknown
// email and wrong password return the same error; suspension and deletion
// are reported before the password is checked, verification after.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	acct, err := e.accounts.ByEmail(storeCtx, req.Email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := guardLiveness(acct); err != nil {
		return nil, err
	}

	ok, err := e.accounts.VerifyPassword(acct, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !acct.Verified {
		return nil, ErrAccountUnverified
	}

	pair, err := e.issueTokens(ctx, acct)
	if err != nil {
		return nil, err
	}
	return &AuthResult{TokenPair: *pair, Account: acct}, nil
}
