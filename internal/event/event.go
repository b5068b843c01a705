package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultQueueSize      = 1024
	defaultHandlerTimeout = 15 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory event bus. The per-connection handlers and the game
// loop publish into it; the transport layer subscribes to deliver outbound
// notifications. Each subscription owns a queue drained by a single
// goroutine, so events reach a subscriber in publish order and a slow or
// panicking handler never blocks a publisher or another subscriber.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription
	subs     []*subscription

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// subscription is one handler with its serialized delivery queue.
type subscription struct {
	h     Handler
	queue chan item
}

type item struct {
	ctx context.Context
	e   Event
}

// NewBus creates a new event bus. Callers should call Stop on shutdown to
// wait for queued events.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]*subscription),
	}
}

// Subscribe registers the handler for the named events. One call creates
// one subscription: all its events, whatever their name, are handled
// sequentially in the order they were published.
func (b *Bus) Subscribe(h Handler, names ...string) {
	sub := &subscription{
		h:     h,
		queue: make(chan item, defaultQueueSize),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	for _, name := range names {
		b.handlers[name] = append(b.handlers[name], sub)
	}
	b.mu.Unlock()

	go b.drain(sub)
}

// Publish enqueues the event for every subscription registered to its
// name. Blocks only when a subscriber's queue is full. Must not be called
// after Stop.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := b.handlers[e.Name()]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.wg.Add(1)
		sub.queue <- item{ctx: ctx, e: e}
	}
}

func (b *Bus) drain(sub *subscription) {
	for it := range sub.queue {
		b.handle(sub.h, it)
	}
}

func (b *Bus) handle(h Handler, it item) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(it.ctx), defaultHandlerTimeout)
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panic",
				"event", it.e.Name(),
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}

		cancel()
		b.wg.Done()
	}()

	if err := h(ctx, it.e); err != nil {
		slog.ErrorContext(ctx, "event: handle event failed",
			"event", it.e.Name(),
			"error", err,
		)
	}
}

// Stop waits for every queued event to be handled and releases the
// subscription goroutines. Publish must not be called after Stop.
func (b *Bus) Stop() {
	b.wg.Wait()

	b.stopOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for _, sub := range b.subs {
			close(sub.queue)
		}
	})
}
