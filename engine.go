package authcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/veyra/authcore/account"
	"github.com/veyra/authcore/dispatch"
	"github.com/veyra/authcore/idempotency"
	"github.com/veyra/authcore/internal"
	"github.com/veyra/authcore/jwt"
	"github.com/veyra/authcore/otp"
	"github.com/veyra/authcore/session"
)

// Engine is the account authentication core. It owns identity verification,
// credential management, the access/refresh token lifecycle and the event
// dispatcher. Construct one with the Builder; all methods are safe for
// concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	redis    redis.UniversalClient
	accounts *account.Store
	tokens   *jwt.Manager
	otps     *otp.Manager
	sessions *session.Store
	guard    *idempotency.Guard

	bus               *dispatch.Bus
	emailQueue        *dispatch.Queue
	notificationQueue *dispatch.Queue
	emailPool         *dispatch.Pool
	notificationPool  *dispatch.Pool

	mailer   Mailer
	notifier Notifier

	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
}

// Start launches the engine's worker pools. It is a no-op when neither a
// Mailer nor a Notifier was supplied, and safe to call more than once.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		if e.emailPool != nil {
			e.emailPool.Start()
		}
		if e.notificationPool != nil {
			e.notificationPool.Start()
		}
	})
}

// Close stops the worker pools and waits for in-flight jobs to finish.
// The engine is unusable afterwards.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		if e.emailPool != nil {
			e.emailPool.Close()
		}
		if e.notificationPool != nil {
			e.notificationPool.Close()
		}
	})
}

// Bus exposes the event dispatcher so the embedding application can
// subscribe its own listeners alongside the built-in ones.
func (e *Engine) Bus() *dispatch.Bus { return e.bus }

// Authenticate validates a bearer access token and returns its claims.
// It is the hot path for request middleware: local JWT verification plus a
// suspended/deleted check against the account record. Revocation is not
// checked here: access tokens are stateless and stay valid until natural
// expiry even after Logout or revoke-all, which is why AccessTTL is kept
// short and capped.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	acct, err := e.accounts.ByID(ctx, claims.AccountID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if acct.Suspended {
		return nil, ErrAccountSuspended
	}
	if acct.Deleted {
		return nil, ErrAccountDeleted
	}
	return claims, nil
}

// issueTokens mints an access token and installs a fresh refresh session
// for the account, replacing any existing one.
func (e *Engine) issueTokens(ctx context.Context, acct *account.Account) (*TokenPair, error) {
	access, err := e.tokens.CreateAccess(acct.ID, string(acct.Role), acct.Email)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}

	accountID, err := uuid.Parse(acct.ID)
	if err != nil {
		return nil, fmt.Errorf("parse account id: %w", err)
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.sessions.Save(ctx, acct.ID, internal.HashRefreshSecret(secret), acct.RevocationVersion, e.cfg.Token.RefreshTTL); err != nil {
		return nil, fmt.Errorf("save refresh session: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeRefreshToken(accountID, secret),
	}, nil
}

// revokeAll invalidates every outstanding token for the account: the
// revocation version is bumped (killing issued access tokens at the
// Authenticate/Refresh checks) and the refresh session is deleted.
func (e *Engine) revokeAll(ctx context.Context, accountID string) error {
	if _, err := e.accounts.BumpRevocation(ctx, accountID); err != nil {
		return fmt.Errorf("bump revocation version: %w", err)
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.sessions.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("delete refresh session: %w", err)
	}
	return nil
}

// publish dispatches a domain event on the bus. Listener failures are
// logged by the bus and never surface to the caller.
func (e *Engine) publish(ctx context.Context, kind dispatch.Kind, payload any) {
	e.bus.Publish(ctx, dispatch.Event{Kind: kind, Payload: payload})
}

func (e *Engine) accountEvent(acct *account.Account) AccountEvent {
	return AccountEvent{
		AccountID:   acct.ID,
		Email:       acct.Email,
		Role:        string(acct.Role),
		DisplayName: acct.DisplayName,
	}
}

// guardLiveness maps account state to the errors every authenticated flow
// must enforce, in precedence order.
func guardLiveness(acct *account.Account) error {
	if acct.Deleted {
		return ErrAccountDeleted
	}
	if acct.Suspended {
		return ErrAccountSuspended
	}
	return nil
}

func (e *Engine) checkClosed() error {
	select {
	case <-e.closed:
		return ErrEngineClosed
	default:
		return nil
	}
}

// storeCtx bounds Redis round-trips with the configured store timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Timeouts.Store <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.cfg.Timeouts.Store)
}
