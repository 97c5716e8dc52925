package authcore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/veyra/authcore/account"
	"github.com/veyra/authcore/dispatch"
	"github.com/veyra/authcore/idempotency"
	"github.com/veyra/authcore/jwt"
	"github.com/veyra/authcore/otp"
	"github.com/veyra/authcore/password"
	"github.com/veyra/authcore/session"
)

// Builder assembles an Engine. Zero value is not usable; start from New.
type Builder struct {
	cfg      Config
	redis    redis.UniversalClient
	repo     account.Repository
	mailer   Mailer
	notifier Notifier
	logger   *slog.Logger
	err      error
}

// New returns a Builder preloaded with production defaults.
func New() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithConfig replaces the default configuration wholesale. Call it before
// the other With* methods if both are used.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, OTPs, idempotency
// records and the durable queues. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRepository sets the account persistence backend. Required.
// account.NewMemoryRepository is suitable for tests.
func (b *Builder) WithRepository(repo account.Repository) *Builder {
	b.repo = repo
	return b
}

// WithMailer enables outbound email delivery. Without it the email queue
// still accepts jobs but no worker pool drains it.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithNotifier enables in-app notification delivery.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and wires the engine. The returned
// engine is idle until Start is called.
func (b *Builder) Build() (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.redis == nil {
		return nil, errors.New("authcore: redis client is required")
	}
	if b.repo == nil {
		return nil, errors.New("authcore: account repository is required")
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("authcore: invalid config: %w", err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher, err := password.New(password.Config{
		Memory:      b.cfg.Password.Memory,
		Time:        b.cfg.Password.Time,
		Parallelism: b.cfg.Password.Parallelism,
		SaltLength:  b.cfg.Password.SaltLength,
		KeyLength:   b.cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("authcore: password hasher: %w", err)
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     b.cfg.Token.AccessTTL,
		SigningMethod: b.cfg.Token.SigningMethod,
		PrivateKey:    b.cfg.Token.PrivateKey,
		PublicKey:     b.cfg.Token.PublicKey,
		Issuer:        b.cfg.Token.Issuer,
		Audience:      b.cfg.Token.Audience,
		Leeway:        b.cfg.Token.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("authcore: token manager: %w", err)
	}

	e := &Engine{
		cfg:      b.cfg,
		logger:   logger,
		redis:    b.redis,
		accounts: account.NewStore(b.repo, hasher),
		tokens:   tokens,
		otps:     otp.NewManager(b.redis, b.cfg.OTP.RedisPrefix, b.cfg.OTP.Digits, b.cfg.OTP.TTL),
		sessions: session.NewStore(b.redis, b.cfg.Session.RedisPrefix),
		guard:    idempotency.NewGuard(b.redis, b.cfg.Idempotency.RedisPrefix, b.cfg.Idempotency.ClaimTTL, b.cfg.Idempotency.ResultTTL),
		bus:      dispatch.NewBus(logger),
		mailer:   b.mailer,
		notifier: b.notifier,
		closed:   make(chan struct{}),
	}

	e.emailQueue = dispatch.NewQueue(b.redis, b.cfg.Queue.RedisPrefix, QueueEmail, dispatch.QueueOptions{
		MaxAttempts: b.cfg.Queue.Email.MaxAttempts,
		Backoff:     b.cfg.Queue.Email.Backoff,
	})
	e.notificationQueue = dispatch.NewQueue(b.redis, b.cfg.Queue.RedisPrefix, QueueNotification, dispatch.QueueOptions{
		MaxAttempts: b.cfg.Queue.Notification.MaxAttempts,
		Backoff:     b.cfg.Queue.Notification.Backoff,
	})

	if b.mailer != nil {
		e.emailPool = dispatch.NewPool(e.emailQueue, e.handleEmailJob, dispatch.PoolConfig{
			Concurrency: b.cfg.Queue.Email.Concurrency,
			JobTimeout:  b.cfg.Queue.Email.JobTimeout,
		}, logger)
	}
	if b.notifier != nil {
		e.notificationPool = dispatch.NewPool(e.notificationQueue, e.handleNotificationJob, dispatch.PoolConfig{
			Concurrency: b.cfg.Queue.Notification.Concurrency,
			JobTimeout:  b.cfg.Queue.Notification.JobTimeout,
		}, logger)
	}

	e.wireSubscribers()
	return e, nil
}
