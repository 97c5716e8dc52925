package authcore

import (
	"errors"
	"time"

	"github.com/veyra/authcore/dispatch"
	"github.com/veyra/authcore/jwt"
)

// TokenConfig controls access and refresh token issuance.
type TokenConfig struct {
	// AccessTTL is the stateless access-token lifetime. Keep it in the
	// minutes-to-hours range: access tokens survive revoke-all until natural
	// expiry, so a long TTL widens the revocation gap.
	AccessTTL time.Duration
	// RefreshTTL is the refresh-session lifetime; each rotation starts a
	// fresh window.
	RefreshTTL    time.Duration
	SigningMethod jwt.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// PasswordConfig carries argon2id cost parameters and the strength policy.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is the policy floor applied before hashing.
	MinLength int
}

// OTPConfig controls one-time code challenges.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	RedisPrefix string
}

// SessionConfig controls refresh-session storage.
type SessionConfig struct {
	RedisPrefix string
}

// IdempotencyConfig controls the request deduplication guard.
type IdempotencyConfig struct {
	RedisPrefix string
	// ClaimTTL bounds how long a crashed request can block retries. It must
	// exceed the longest guarded operation.
	ClaimTTL time.Duration
	// ResultTTL is how long completed outcomes replay.
	ResultTTL time.Duration
}

// WorkerConfig bounds one queue's worker pool and retry policy.
type WorkerConfig struct {
	Concurrency int
	MaxAttempts int
	Backoff     dispatch.Backoff
	JobTimeout  time.Duration
}

// QueueConfig configures the durable side-effect queues.
type QueueConfig struct {
	RedisPrefix  string
	Email        WorkerConfig
	Notification WorkerConfig
}

// TimeoutConfig bounds calls leaving the engine. A timeout is a failure of
// that call, never an indefinite block.
type TimeoutConfig struct {
	// Store caps one engine operation's interaction with the shared store
	// and the account repository.
	Store time.Duration
}

// Config is the full engine configuration. Zero values fall back to the
// defaults of defaultConfig; signing key material has no default.
type Config struct {
	Token       TokenConfig
	Password    PasswordConfig
	OTP         OTPConfig
	Session     SessionConfig
	Idempotency IdempotencyConfig
	Queue       QueueConfig
	Timeouts    TimeoutConfig
}

// DefaultConfig returns the production defaults. Callers must still set
// the token signing key before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: jwt.MethodHS256,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		OTP: OTPConfig{
			Digits: 6,
			TTL:    5 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			ClaimTTL:  30 * time.Second,
			ResultTTL: 24 * time.Hour,
		},
		Queue: QueueConfig{
			Email: WorkerConfig{
				Concurrency: 10,
				MaxAttempts: 5,
				Backoff:     dispatch.Backoff{Initial: 5 * time.Second, Exponential: true},
			},
			Notification: WorkerConfig{
				Concurrency: 20,
				MaxAttempts: 3,
				Backoff:     dispatch.Backoff{Initial: 2 * time.Second},
			},
		},
		Timeouts: TimeoutConfig{
			Store: 5 * time.Second,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("token access TTL must be positive")
	}
	if c.Token.AccessTTL > 24*time.Hour {
		return errors.New("token access TTL exceeds 24h")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("token refresh TTL must exceed access TTL")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("token signing key required")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp TTL must be positive")
	}
	if c.Password.MinLength < 8 {
		return errors.New("password minimum length must be at least 8")
	}
	if c.Idempotency.ClaimTTL <= 0 || c.Idempotency.ResultTTL <= c.Idempotency.ClaimTTL {
		return errors.New("idempotency result TTL must exceed claim TTL")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	cloned := cfg
	cloned.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	cloned.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return cloned
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
