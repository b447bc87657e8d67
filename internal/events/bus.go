// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBusFull is returned by Publish when the buffer is full and the event was dropped.
var ErrBusFull = errors.New("event channel full")

// ErrBusClosed is returned by Publish after Shutdown.
var ErrBusClosed = errors.New("event bus is shutting down")

// Bus is an in-memory fire-and-forget event bus. Publish never blocks.
type Bus struct {
	mu             sync.RWMutex
	handlers       map[EventType]map[string]Handler
	logger         *zap.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	eventChan      chan Event
	bufferSize     int
	handlerTimeout time.Duration

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewBus creates and starts an event bus. Each handler call is bounded by
// handlerTimeout (10s when zero).
func NewBus(logger *zap.Logger, bufferSize int, handlerTimeout time.Duration) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if handlerTimeout <= 0 {
		handlerTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:       make(map[EventType]map[string]Handler),
		logger:         logger.Named("event_bus"),
		ctx:            ctx,
		cancel:         cancel,
		eventChan:      make(chan Event, bufferSize),
		bufferSize:     bufferSize,
		handlerTimeout: handlerTimeout,
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// Subscribe registers a handler for a specific event type. Use All to
// receive every event.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{
		id:       id,
		eventBus: b,
		typ:      eventType,
	}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for asynchronous delivery.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.ctx.Done():
		return ErrBusClosed
	default:
	}

	select {
	case b.eventChan <- event:
		b.published.Add(1)
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishSync delivers an event to matching handlers and waits for them.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	handlers := b.handlersFor(event.Type())
	if len(handlers) == 0 {
		return nil
	}

	var errs []error
	for id, handler := range handlers {
		if err := b.deliver(ctx, id, handler, event); err != nil {
			b.failed.Add(1)
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) handlersFor(eventType EventType) map[string]Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Handler, len(b.handlers[eventType])+len(b.handlers[All]))
	for id, h := range b.handlers[eventType] {
		out[id] = h
	}
	for id, h := range b.handlers[All] {
		out[id] = h
	}
	return out
}

func (b *Bus) deliver(ctx context.Context, id string, handler Handler, event Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", id, r)
		}
	}()
	return handler.Handle(ctx, event)
}

// processEvents is the main event processing loop.
func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			// Drain remaining events
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			b.wg.Add(1)
			go func(e Event) {
				defer b.wg.Done()
				// Handlers run detached so shutdown does not cut deliveries short.
				_ = b.PublishSync(context.Background(), e)
			}(event)
		}
	}
}

// unsubscribe removes a handler subscription.
func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events and waits for queued deliveries.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus shutdown complete",
			zap.Uint64("published", b.published.Load()),
			zap.Uint64("dropped", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats describes bus activity.
type Stats struct {
	BufferSize     int    `json:"buffer_size"`
	PendingEvents  int    `json:"pending_events"`
	Subscriptions  int    `json:"subscriptions"`
	Published      uint64 `json:"published"`
	Dropped        uint64 `json:"dropped"`
	HandlerFailure uint64 `json:"handler_failures"`
}

// Stats returns statistics about the event bus.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subs := 0
	for _, handlers := range b.handlers {
		subs += len(handlers)
	}
	b.mu.RUnlock()

	return Stats{
		BufferSize:     b.bufferSize,
		PendingEvents:  len(b.eventChan),
		Subscriptions:  subs,
		Published:      b.published.Load(),
		Dropped:        b.dropped.Load(),
		HandlerFailure: b.failed.Load(),
	}
}
