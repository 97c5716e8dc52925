package otp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veyra/authcore/internal"
)

// Purpose scopes a challenge to the flow that issued it. A code issued for
// signup verification can never satisfy a password reset.
type Purpose string

const (
	// PurposeVerify covers signup email verification.
	PurposeVerify Purpose = "verify"
	// PurposeReset covers password reset confirmation.
	PurposeReset Purpose = "reset"
)

var (
	// ErrNotFoundOrExpired is returned when no live challenge exists for the
	// key. Expired, already-consumed, and never-issued all look identical to
	// the caller on purpose.
	ErrNotFoundOrExpired = errors.New("otp not found or expired")
	// ErrMismatch is returned when a live challenge exists but the code is wrong.
	ErrMismatch = errors.New("otp mismatch")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("otp redis unavailable")
)

const (
	consumeStatusNotFound int64 = 0
	consumeStatusMismatch int64 = 1
	consumeStatusConsumed int64 = 2
)

// Verification is a single atomic read-compare-delete. Two concurrent
// verify calls for the same code race on the DEL: exactly one observes the
// stored hash, the other finds the key gone.
const consumeScript = `
local stored = redis.call("GET", KEYS[1])
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  return 1
end
redis.call("DEL", KEYS[1])
return 2
`

var consumeLua = redis.NewScript(consumeScript)

// Manager issues and atomically consumes one-time numeric codes backed by a
// TTL-capable shared store.
type Manager struct {
	redis  redis.UniversalClient
	prefix string
	digits int
	ttl    time.Duration
}

// NewManager returns a challenge manager. digits fixes the code length,
// ttl the challenge lifetime; zero values fall back to 6 digits and 5 minutes.
func NewManager(redisClient redis.UniversalClient, prefix string, digits int, ttl time.Duration) *Manager {
	if prefix == "" {
		prefix = "aco"
	}
	if digits == 0 {
		digits = 6
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		redis:  redisClient,
		prefix: prefix,
		digits: digits,
		ttl:    ttl,
	}
}

func (m *Manager) key(purpose Purpose, address string) string {
	return m.prefix + ":" + string(purpose) + ":" + normalizeAddress(address)
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Issue generates a fresh code and stores its hash under (purpose, address),
// superseding any live challenge for the same key. The plaintext code is
// returned exactly once for delivery and never persisted.
func (m *Manager) Issue(ctx context.Context, purpose Purpose, address string) (string, error) {
	code, err := internal.NumericCode(m.digits)
	if err != nil {
		return "", err
	}

	digest := internal.HashCode(code)
	if err := m.redis.Set(ctx, m.key(purpose, address), hex.EncodeToString(digest[:]), m.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return code, nil
}

// Verify consumes the challenge for (purpose, address) if code matches.
// Success deletes the challenge, so a repeat call with the same correct code
// reports ErrNotFoundOrExpired.
func (m *Manager) Verify(ctx context.Context, purpose Purpose, address, code string) error {
	digest := internal.HashCode(code)

	status, err := consumeLua.Run(
		ctx,
		m.redis,
		[]string{m.key(purpose, address)},
		hex.EncodeToString(digest[:]),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case consumeStatusNotFound:
		return ErrNotFoundOrExpired
	case consumeStatusMismatch:
		return ErrMismatch
	case consumeStatusConsumed:
		return nil
	default:
		return fmt.Errorf("%w: unknown consume status %d", ErrRedisUnavailable, status)
	}
}

// TTL returns the configured challenge lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
