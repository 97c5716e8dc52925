package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/veyra/authcore/account"
)

// UpdateProfile applies an allow-listed patch to the account's profile
// fields. Email, role, and status flags never change through this path.
func (e *Engine) UpdateProfile(ctx context.Context, accountID string, patch account.Patch) (*account.Account, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	acct, err := e.accounts.ByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := guardLiveness(acct); err != nil {
		return nil, err
	}

	acct, err = e.accounts.UpdateProfile(storeCtx, accountID, patch)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return acct, nil
}

// SetSuspended flips the account's suspension flag. Suspending revokes
// every outstanding session and emits an account.suspended event.
func (e *Engine) SetSuspended(ctx context.Context, accountID string, suspended bool) error {
	if err := e.checkClosed(); err != nil {
		return err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	acct, err := e.accounts.SetSuspended(storeCtx, accountID, suspended)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("set suspended: %w", err)
	}

	if suspended {
		if err := e.revokeAll(ctx, accountID); err != nil {
			return err
		}
		e.publish(ctx, EventAccountSuspended, e.accountEvent(acct))
	}
	return nil
}

// SetDeleted soft-deletes or restores the account. Deleting revokes every
// outstanding session; the record itself is retained.
func (e *Engine) SetDeleted(ctx context.Context, accountID string, deleted bool) error {
	if err := e.checkClosed(); err != nil {
		return err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	if _, err := e.accounts.SetDeleted(storeCtx, accountID, deleted); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("set deleted: %w", err)
	}

	if deleted {
		return e.revokeAll(ctx, accountID)
	}
	return nil
}

// SetVendorStatus records a review decision for a vendor account. The
// review state gates marketplace capabilities at the embedding layer, not
// authentication itself.
func (e *Engine) SetVendorStatus(ctx context.Context, accountID string, status account.VendorStatus) error {
	if err := e.checkClosed(); err != nil {
		return err
	}
	switch status {
	case account.VendorPending, account.VendorApproved, account.VendorRejected:
	default:
		return ErrInvalidRequest
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	acct, err := e.accounts.ByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("load account: %w", err)
	}
	if acct.Role != account.RoleVendor {
		return ErrInvalidRequest
	}

	if _, err := e.accounts.SetVendorStatus(storeCtx, accountID, status); err != nil {
		return fmt.Errorf("set vendor status: %w", err)
	}
	return nil
}

// Account returns the account record by id.
func (e *Engine) Account(ctx context.Context, accountID string) (*account.Account, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	acct, err := e.accounts.ByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acct, nil
}
