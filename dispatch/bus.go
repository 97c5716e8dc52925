package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Kind names a domain event, e.g. "account.registered".
type Kind string

// Event is an ephemeral in-process message delivered synchronously to
// subscribers at publish time.
type Event struct {
	Kind    Kind
	Payload any
}

// Handler consumes a published event. Handlers that produce side effects
// should enqueue a durable job rather than perform the effect inline.
type Handler func(ctx context.Context, event Event) error

// Bus is a synchronous in-process publish/subscribe dispatcher. Subscribers
// run in registration order; their failures are logged and never reach the
// publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	logger   *slog.Logger
}

// NewBus returns an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a kind. Registration order is delivery
// order. Subscribe is intended for wiring time, before events flow.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish delivers the event to every subscriber for its kind, in order.
// A failing or panicking subscriber is logged and the remaining subscribers
// still run.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Kind]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := b.invoke(ctx, handler, event); err != nil {
			b.logger.Error("event subscriber failed",
				"kind", string(event.Kind),
				"error", err,
			)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return handler(ctx, event)
}
