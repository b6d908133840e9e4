// Package publisher emits audit events to an audit store either synchronously
// or through a bounded asynchronous buffer.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "soulcert/pkg/domain"
	audit "soulcert/pkg/platform/audit"
)

var errBufferFull = errors.New("audit buffer full")

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	events     chan audit.Event
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous mode with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.events = make(chan audit.Event, p.bufferSize)
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records an event. In async mode a full buffer is reported as an error
// unless ctx is already done, in which case ctx.Err() is returned.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.events == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.store.Append(ctx, event)
	}
	select {
	case p.events <- event:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errBufferFull
}

// List returns events recorded for principal.
func (p *Publisher) List(ctx context.Context, principal id.PrincipalID) ([]audit.Event, error) {
	return p.store.ListByPrincipal(ctx, principal)
}

// Close stops accepting buffered events and drains what is already queued.
func (p *Publisher) Close() {
	if p.events == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("audit append failed",
				"action", event.Action,
				"principal", event.Principal,
				"error", err,
			)
		}
	}
}
