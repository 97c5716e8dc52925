package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/veyra/authcore/idempotency"
)

func TestIdempotentSignupReplays(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	var executions int
	signupOnce := func(ctx context.Context) (idempotency.Result, error) {
		executions++
		res, err := env.engine.Signup(ctx, customerSignup())
		if err != nil {
			return idempotency.Result{}, err
		}
		body, err := json.Marshal(res)
		if err != nil {
			return idempotency.Result{}, err
		}
		return idempotency.Result{Status: 201, Body: body}, nil
	}

	first, err := env.engine.Idempotent(ctx, "signup", "anon", "client-key-1", signupOnce)
	if err != nil {
		t.Fatalf("first Idempotent failed: %v", err)
	}
	replay, err := env.engine.Idempotent(ctx, "signup", "anon", "client-key-1", signupOnce)
	if err != nil {
		t.Fatalf("replay Idempotent failed: %v", err)
	}

	if executions != 1 {
		t.Fatalf("expected one signup execution, got %d", executions)
	}
	if first.Status != replay.Status || !bytes.Equal(first.Body, replay.Body) {
		t.Fatal("replay must return the stored outcome byte for byte")
	}
}

func TestIdempotentDoesNotCacheFailures(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	// First attempt fails application-side with a conflict status.
	res, err := env.engine.Idempotent(ctx, "signup", "anon", "key-2", func(ctx context.Context) (idempotency.Result, error) {
		return idempotency.Result{Status: 409, Body: []byte("taken")}, nil
	})
	if err != nil || res.Status != 409 {
		t.Fatalf("unexpected first outcome: %+v err=%v", res, err)
	}

	var executed bool
	res, err = env.engine.Idempotent(ctx, "signup", "anon", "key-2", func(ctx context.Context) (idempotency.Result, error) {
		executed = true
		return idempotency.Result{Status: 201}, nil
	})
	if err != nil || res.Status != 201 {
		t.Fatalf("retry failed: %+v err=%v", res, err)
	}
	if !executed {
		t.Fatal("retry after non-2xx must execute")
	}
}

func TestIdempotentRejectsMissingKey(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.engine.Idempotent(context.Background(), "signup", "anon", "  ", func(ctx context.Context) (idempotency.Result, error) {
		t.Fatal("must not execute without a key")
		return idempotency.Result{}, nil
	})
	if !errors.Is(err, idempotency.ErrKeyMissing) {
		t.Fatalf("expected ErrKeyMissing, got %v", err)
	}
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation kind, got %v", KindOf(err))
	}
}

func TestIdempotentInFlightIsConflict(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Idempotent(ctx, "signup", "anon", "key-3", func(inner context.Context) (idempotency.Result, error) {
		_, dupErr := env.engine.Idempotent(inner, "signup", "anon", "key-3", func(context.Context) (idempotency.Result, error) {
			t.Fatal("in-flight duplicate executed")
			return idempotency.Result{}, nil
		})
		if !errors.Is(dupErr, idempotency.ErrInFlight) {
			t.Fatalf("expected ErrInFlight, got %v", dupErr)
		}
		if KindOf(dupErr) != KindConflict {
			t.Fatalf("expected conflict kind, got %v", KindOf(dupErr))
		}
		return idempotency.Result{Status: 200}, nil
	})
	if err != nil {
		t.Fatalf("Idempotent failed: %v", err)
	}
}
