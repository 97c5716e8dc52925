package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/veyra/authcore/account"
	"github.com/veyra/authcore/internal"
	"github.com/veyra/authcore/session"
)

// Refresh rotates a refresh token: the presented token is retired and a
// new pair issued in one atomic store operation. Presenting an
// already-rotated token is treated as theft evidence; every session for
// the account is revoked and ErrRefreshReuse returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	rawID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrRefreshInvalid
	}
	accountID := uuid.UUID(rawID).String()

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	acct, err := e.accounts.ByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}

	err = e.sessions.Rotate(storeCtx, accountID,
		internal.HashRefreshSecret(secret), internal.HashRefreshSecret(nextSecret),
		acct.RevocationVersion, e.cfg.Token.RefreshTTL)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrHashMismatch):
		// The session was deleted in-store; kill issued access tokens too.
		if revokeErr := e.revokeAll(ctx, accountID); revokeErr != nil {
			e.logger.Error("revoke after refresh reuse failed",
				"account_id", accountID, "error", revokeErr)
		}
		e.logger.Warn("refresh token reuse detected", "account_id", accountID)
		return nil, ErrRefreshReuse
	case errors.Is(err, session.ErrVersionStale):
		return nil, ErrUnauthorized
	case errors.Is(err, session.ErrNotFound):
		return nil, ErrRefreshInvalid
	default:
		return nil, fmt.Errorf("rotate refresh session: %w", err)
	}

	// Rotation succeeded, but a dead account must not keep a live session.
	if err := guardLiveness(acct); err != nil {
		if delErr := e.sessions.Delete(storeCtx, accountID); delErr != nil {
			e.logger.Error("delete session for inactive account failed",
				"account_id", accountID, "error", delErr)
		}
		return nil, err
	}

	access, err := e.tokens.CreateAccess(acct.ID, string(acct.Role), acct.Email)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeRefreshToken(rawID, nextSecret),
	}, nil
}

// Logout revokes the bearer's refresh session and bumps the revocation
// version, so no new token pairs can be minted. The presented access token
// itself stays valid until it expires; only suspension or deletion cuts off
// access tokens early.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if err := e.checkClosed(); err != nil {
		return err
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return ErrUnauthorized
	}
	return e.revokeAll(ctx, claims.AccountID)
}
