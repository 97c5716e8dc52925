package idempotency

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestGuard(t *testing.T) (*Guard, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewGuard(rdb, "", 30*time.Second, time.Hour), mr
}

func TestDoExecutesFirstCall(t *testing.T) {
	guard, _ := newTestGuard(t)

	var calls int
	res, err := guard.Do(context.Background(), "signup", "acct-1", "key-1", func(ctx context.Context) (Result, error) {
		calls++
		return Result{Status: 201, Body: []byte(`{"id":"a"}`)}, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one execution, got %d", calls)
	}
	if res.Status != 201 || !bytes.Equal(res.Body, []byte(`{"id":"a"}`)) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDoReplaysCompletedResult(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	var calls int
	fn := func(ctx context.Context) (Result, error) {
		calls++
		return Result{Status: 200, Body: []byte("first-body")}, nil
	}

	if _, err := guard.Do(ctx, "signup", "acct-1", "key-1", fn); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	replay, err := guard.Do(ctx, "signup", "acct-1", "key-1", func(ctx context.Context) (Result, error) {
		calls++
		return Result{Status: 200, Body: []byte("second-body")}, nil
	})
	if err != nil {
		t.Fatalf("replay Do failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("duplicate must not re-execute, calls=%d", calls)
	}
	if !bytes.Equal(replay.Body, []byte("first-body")) {
		t.Fatalf("expected stored body, got %q", replay.Body)
	}
}

func TestDoScopesKeysByOperationAndAccount(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	var calls int32
	fn := func(ctx context.Context) (Result, error) {
		atomic.AddInt32(&calls, 1)
		return Result{Status: 200}, nil
	}

	scopes := [][2]string{
		{"signup", "acct-1"},
		{"signup", "acct-2"},
		{"reset", "acct-1"},
	}
	for _, scope := range scopes {
		if _, err := guard.Do(ctx, scope[0], scope[1], "same-key", fn); err != nil {
			t.Fatalf("Do(%v) failed: %v", scope, err)
		}
	}
	if calls != 3 {
		t.Fatalf("same client key in different scopes must not collide, calls=%d", calls)
	}
}

func TestDoReleasesClaimOnError(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := guard.Do(ctx, "signup", "acct-1", "key-1", func(ctx context.Context) (Result, error) {
		return Result{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	var calls int
	if _, err := guard.Do(ctx, "signup", "acct-1", "key-1", func(ctx context.Context) (Result, error) {
		calls++
		return Result{Status: 200}, nil
	}); err != nil {
		t.Fatalf("retry after error failed: %v", err)
	}
	if calls != 1 {
		t.Fatal("retry after failure must execute")
	}
}

func TestDoDoesNotCacheNon2xx(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	res, err := guard.Do(ctx, "signup", "acct-1", "key-1", func(ctx context.Context) (Result, error) {
		return Result{Status: 409, Body: []byte("conflict")}, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if res.Status != 409 {
		t.Fatalf("expected passthrough 409, got %d", res.Status)
	}

	var calls int
	if _, err := guard.Do(ctx, "signup", "acct-1", "key-1", func(ctx context.Context) (Result, error) {
		calls++
		return Result{Status: 201}, nil
	}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if calls != 1 {
		t.Fatal("non-2xx outcome must not replay")
	}
}

func TestDoReportsInFlightDuplicate(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	_, err := guard.Do(ctx, "signup", "acct-1", "key-1", func(ctx context.Context) (Result, error) {
		// A duplicate arriving while the claim is held must not execute.
		_, dupErr := guard.Do(ctx, "signup", "acct-1", "key-1", func(ctx context.Context) (Result, error) {
			t.Fatal("in-flight duplicate executed")
			return Result{}, nil
		})
		if !errors.Is(dupErr, ErrInFlight) {
			t.Fatalf("expected ErrInFlight, got %v", dupErr)
		}
		return Result{Status: 200}, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestDoResultExpires(t *testing.T) {
	guard, mr := newTestGuard(t)
	ctx := context.Background()

	var calls int
	fn := func(ctx context.Context) (Result, error) {
		calls++
		return Result{Status: 200}, nil
	}

	if _, err := guard.Do(ctx, "signup", "acct-1", "key-1", fn); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	mr.FastForward(time.Hour + time.Minute)
	if _, err := guard.Do(ctx, "signup", "acct-1", "key-1", fn); err != nil {
		t.Fatalf("Do after expiry failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected re-execution after result TTL, calls=%d", calls)
	}
}

func TestValidateKey(t *testing.T) {
	if _, err := ValidateKey("   "); !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("expected ErrKeyMissing, got %v", err)
	}
	if _, err := ValidateKey(strings.Repeat("k", 256)); !errors.Is(err, ErrKeyTooLong) {
		t.Fatalf("expected ErrKeyTooLong, got %v", err)
	}
	key, err := ValidateKey("  abc  ")
	if err != nil || key != "abc" {
		t.Fatalf("expected trimmed key, got %q err=%v", key, err)
	}
}

func TestConcurrentDuplicatesExecuteOnce(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	var executions int32
	fn := func(ctx context.Context) (Result, error) {
		atomic.AddInt32(&executions, 1)
		time.Sleep(20 * time.Millisecond)
		return Result{Status: 201, Body: []byte("winner")}, nil
	}

	const callers = 12
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = guard.Do(ctx, "signup", "acct-1", "shared-key", fn)
		}(i)
	}
	wg.Wait()

	if executions != 1 {
		t.Fatalf("expected exactly one execution, got %d", executions)
	}
	for i := range results {
		if errs[i] != nil {
			if !errors.Is(errs[i], ErrInFlight) {
				t.Fatalf("caller %d: unexpected error %v", i, errs[i])
			}
			continue
		}
		if results[i].Status != 201 || !bytes.Equal(results[i].Body, []byte("winner")) {
			t.Fatalf("caller %d: diverging result %+v", i, results[i])
		}
	}
}
