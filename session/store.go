package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no live refresh session exists for the account.
	ErrNotFound = errors.New("refresh session not found")
	// ErrHashMismatch is returned when the presented refresh token differs from
	// the stored one. This is the reuse signal: the session is deleted by the
	// same script that detects it, and the caller must revoke all credentials.
	ErrHashMismatch = errors.New("refresh hash mismatch")
	// ErrVersionStale is returned when the session was issued against an older
	// revocation version than the account's current one. The session is
	// deleted by the script that detects it.
	ErrVersionStale = errors.New("refresh session revocation version stale")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("session redis unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusStale    int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// Rotation is a Lua compare-and-swap over the stored hash/version pair.
// Concurrent rotations with the same old token serialize inside Redis: the
// first swaps the hash, the second sees the new hash, mismatches, and tears
// the session down.
const rotateScript = `
local stored = redis.call("HGET", KEYS[1], "h")
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 2
end
if redis.call("HGET", KEYS[1], "rv") ~= ARGV[3] then
  redis.call("DEL", KEYS[1])
  return 1
end
redis.call("HSET", KEYS[1], "h", ARGV[2], "rv", ARGV[3], "iat", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 3
`

var rotateLua = redis.NewScript(rotateScript)

// Session is the server-side record backing one refresh token. Exactly one
// exists per account; issuing a new one replaces the old.
type Session struct {
	AccountID         string
	RevocationVersion uint32
	IssuedAt          int64
}

// Store persists refresh sessions in Redis, keyed by account id.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a session store under the given key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ars"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Save replaces the account's refresh session with one holding the given
// token hash and the revocation version captured at issue time.
func (s *Store) Save(ctx context.Context, accountID string, refreshHash [32]byte, revocationVersion uint32, ttl time.Duration) error {
	key := s.key(accountID)
	now := time.Now().Unix()

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"h", hex.EncodeToString(refreshHash[:]),
			"rv", revocationVersion,
			"iat", now,
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate atomically replaces the stored hash/version pair if providedHash
// matches the stored hash and the captured revocation version equals
// currentVersion, resetting the TTL to a full window. On ErrHashMismatch or
// ErrVersionStale the session is already gone when Rotate returns.
func (s *Store) Rotate(
	ctx context.Context,
	accountID string,
	providedHash, nextHash [32]byte,
	currentVersion uint32,
	ttl time.Duration,
) error {
	status, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(accountID)},
		hex.EncodeToString(providedHash[:]),
		hex.EncodeToString(nextHash[:]),
		strconv.FormatUint(uint64(currentVersion), 10),
		ttl.Milliseconds(),
		time.Now().Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusStale:
		return ErrVersionStale
	case rotateStatusMismatch:
		return ErrHashMismatch
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, status)
	}
}

// Delete removes the account's refresh session. Deleting a missing session
// is not an error.
func (s *Store) Delete(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches the session without mutating it. Intended for introspection
// and tests, not for the rotation path.
func (s *Store) Get(ctx context.Context, accountID string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rv, err := strconv.ParseUint(fields["rv"], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt revocation version", ErrRedisUnavailable)
	}
	iat, err := strconv.ParseInt(fields["iat"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt issue timestamp", ErrRedisUnavailable)
	}

	return &Session{
		AccountID:         accountID,
		RevocationVersion: uint32(rv),
		IssuedAt:          iat,
	}, nil
}
