package authcore

import (
	"context"

	"github.com/veyra/authcore/idempotency"
)

// Idempotent runs fn at most once per (operation, accountID, clientKey)
// and replays the stored outcome for every duplicate. A duplicate that
// arrives while the first attempt is still running fails with
// idempotency.ErrInFlight, which maps to KindConflict: callers retry
// rather than wait.
//
// fn's returned Result is what replays; its error is never stored, so a
// failed attempt releases the claim and a later retry runs fn again.
func (e *Engine) Idempotent(ctx context.Context, operation, accountID, clientKey string, fn func(ctx context.Context) (idempotency.Result, error)) (idempotency.Result, error) {
	if err := e.checkClosed(); err != nil {
		return idempotency.Result{}, err
	}
	return e.guard.Do(ctx, operation, accountID, clientKey, fn)
}
