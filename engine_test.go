package authcore

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/veyra/authcore/account"
	"github.com/veyra/authcore/dispatch"
	"github.com/veyra/authcore/otp"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.Issuer = "authcore-test"
	// Light argon2 costs keep the suite fast; production knobs are covered
	// by the password package tests.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type mockMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

func (m *mockMailer) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: recipient, Subject: subject, HTML: htmlBody})
	return nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockNotifier struct {
	mu      sync.Mutex
	created []createdNotification
}

type createdNotification struct {
	AccountID string
	Title     string
	Body      string
	Metadata  map[string]string
}

func (n *mockNotifier) Create(ctx context.Context, accountID, title, body string, metadata map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, createdNotification{
		AccountID: accountID,
		Title:     title,
		Body:      body,
		Metadata:  metadata,
	})
	return nil
}

func (n *mockNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.created)
}

// codeRecorder captures one-time codes off the event bus the way a delivery
// listener would, so tests never reach into Redis for plaintext codes.
type codeRecorder struct {
	mu    sync.Mutex
	codes map[otp.Purpose][]string
}

func newCodeRecorder(bus *dispatch.Bus) *codeRecorder {
	rec := &codeRecorder{codes: make(map[otp.Purpose][]string)}
	bus.Subscribe(EventOTPIssued, func(ctx context.Context, event dispatch.Event) error {
		payload, ok := event.Payload.(OTPIssuedEvent)
		if !ok {
			return nil
		}
		rec.mu.Lock()
		rec.codes[payload.Purpose] = append(rec.codes[payload.Purpose], payload.Code)
		rec.mu.Unlock()
		return nil
	})
	return rec
}

func (r *codeRecorder) last(purpose otp.Purpose) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	issued := r.codes[purpose]
	if len(issued) == 0 {
		return ""
	}
	return issued[len(issued)-1]
}

func (r *codeRecorder) total(purpose otp.Purpose) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes[purpose])
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	repo     *account.MemoryRepository
	mailer   *mockMailer
	notifier *mockNotifier
	codes    *codeRecorder
}

func newTestEngine(t *testing.T) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	repo := account.NewMemoryRepository()
	mailer := &mockMailer{}
	notifier := &mockNotifier{}

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithRepository(repo).
		WithMailer(mailer).
		WithNotifier(notifier).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		mr:       mr,
		repo:     repo,
		mailer:   mailer,
		notifier: notifier,
		codes:    newCodeRecorder(engine.Bus()),
	}
}

func customerSignup() SignupRequest {
	return SignupRequest{
		Email:     "jane@example.com",
		Phone:     "+15550100",
		Password:  "pass-word1",
		FirstName: "Jane",
		LastName:  "Doe",
		Country:   "US",
	}
}

// signup registers the account and returns the signup result.
func (env *testEnv) signup(t *testing.T, req SignupRequest) *SignupResult {
	t.Helper()

	res, err := env.engine.Signup(context.Background(), req)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	return res
}

// verified signs up and verifies the account, returning the login-grade
// auth result from verification.
func (env *testEnv) verified(t *testing.T, req SignupRequest) *AuthResult {
	t.Helper()

	env.signup(t, req)
	code := env.codes.last(otp.PurposeVerify)
	if code == "" {
		t.Fatal("no verification code issued")
	}

	auth, err := env.engine.VerifyOTP(context.Background(), VerifyOTPRequest{
		Email: req.Email,
		Code:  code,
	})
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	return auth
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
