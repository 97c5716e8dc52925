package idempotency

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrKeyMissing is returned when the caller supplied no idempotency key.
	ErrKeyMissing = errors.New("idempotency key required")
	// ErrKeyTooLong is returned for keys over 255 bytes.
	ErrKeyTooLong = errors.New("idempotency key must be 255 bytes or less")
	// ErrInFlight is returned when another request holding the same key has
	// claimed it but not yet completed. The caller should retry shortly;
	// re-executing the operation while the first attempt runs is forbidden.
	ErrInFlight = errors.New("duplicate request in flight")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("idempotency redis unavailable")
)

const maxKeyLength = 255

// beginScript claims the key or reports the current state. Claiming and
// checking are one round trip so two concurrent duplicates cannot both
// observe "absent".
const beginScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  redis.call("HSET", KEYS[1], "status", "claimed")
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  return {"new"}
end
local status = redis.call("HGET", KEYS[1], "status")
if status == "done" then
  return {"replay", redis.call("HGET", KEYS[1], "code"), redis.call("HGET", KEYS[1], "body")}
end
return {"inflight"}
`

// completeScript stores the outcome unless a completed result already
// exists: the first completion wins.
const completeScript = `
if redis.call("HGET", KEYS[1], "status") == "done" then
  return 0
end
redis.call("HSET", KEYS[1], "status", "done", "code", ARGV[1], "body", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

// releaseScript drops the claim after a non-2xx outcome so a genuine retry
// can execute. A stored result is never released.
const releaseScript = `
if redis.call("HGET", KEYS[1], "status") == "done" then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`

var (
	beginLua    = redis.NewScript(beginScript)
	completeLua = redis.NewScript(completeScript)
	releaseLua  = redis.NewScript(releaseScript)
)

// Result is the cached outcome of a guarded operation: the status code and
// response body produced by its first successful execution.
type Result struct {
	Status int
	Body   []byte
}

// Guard deduplicates retried client requests. The composite key is
// (operation, account id, client-supplied key), so the same client key on a
// different route or account never collides.
type Guard struct {
	redis     redis.UniversalClient
	prefix    string
	claimTTL  time.Duration
	resultTTL time.Duration
}

// NewGuard returns a guard. claimTTL bounds how long a crashed holder can
// block retries and must exceed the longest guarded operation; resultTTL is
// how long completed outcomes replay (zero values: 30s and 24h).
func NewGuard(redisClient redis.UniversalClient, prefix string, claimTTL, resultTTL time.Duration) *Guard {
	if prefix == "" {
		prefix = "aid"
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	return &Guard{
		redis:     redisClient,
		prefix:    prefix,
		claimTTL:  claimTTL,
		resultTTL: resultTTL,
	}
}

func (g *Guard) key(operation, accountID, clientKey string) string {
	return g.prefix + ":" + operation + ":" + accountID + ":" + clientKey
}

// ValidateKey normalizes a caller-supplied key and rejects missing or
// oversized ones.
func ValidateKey(clientKey string) (string, error) {
	trimmed := strings.TrimSpace(clientKey)
	if trimmed == "" {
		return "", ErrKeyMissing
	}
	if len(trimmed) > maxKeyLength {
		return "", ErrKeyTooLong
	}
	return trimmed, nil
}

// Do executes fn at most once per (operation, accountID, clientKey) within
// the result TTL. A completed duplicate returns the stored Result verbatim.
// A 2xx outcome is cached; any other outcome releases the claim so the
// caller may genuinely retry.
func (g *Guard) Do(
	ctx context.Context,
	operation, accountID, clientKey string,
	fn func(ctx context.Context) (Result, error),
) (Result, error) {
	clientKey, err := ValidateKey(clientKey)
	if err != nil {
		return Result{}, err
	}
	key := g.key(operation, accountID, clientKey)

	raw, err := beginLua.Run(ctx, g.redis, []string{key}, g.claimTTL.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return Result{}, fmt.Errorf("%w: invalid begin script response", ErrRedisUnavailable)
	}

	switch asString(values[0]) {
	case "replay":
		if len(values) < 3 {
			return Result{}, fmt.Errorf("%w: missing replay payload", ErrRedisUnavailable)
		}
		status, convErr := strconv.Atoi(asString(values[1]))
		if convErr != nil {
			return Result{}, fmt.Errorf("%w: corrupt replay status", ErrRedisUnavailable)
		}
		body, decodeErr := base64.StdEncoding.DecodeString(asString(values[2]))
		if decodeErr != nil {
			return Result{}, fmt.Errorf("%w: corrupt replay body", ErrRedisUnavailable)
		}
		return Result{Status: status, Body: body}, nil

	case "inflight":
		return Result{}, ErrInFlight

	case "new":
		// claimed below
	default:
		return Result{}, fmt.Errorf("%w: unknown begin state", ErrRedisUnavailable)
	}

	result, fnErr := fn(ctx)
	if fnErr != nil || result.Status < 200 || result.Status > 299 {
		if relErr := releaseLua.Run(ctx, g.redis, []string{key}).Err(); relErr != nil && fnErr == nil {
			return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, relErr)
		}
		return result, fnErr
	}

	err = completeLua.Run(
		ctx,
		g.redis,
		[]string{key},
		result.Status,
		base64.StdEncoding.EncodeToString(result.Body),
		g.resultTTL.Milliseconds(),
	).Err()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return result, nil
}

func asString(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(v)
	}
}
