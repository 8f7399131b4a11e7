package event

import (
	"log/slog"
	"sync"
)

// Handler consumes one event. Handlers run on their own goroutine; a slow or
// failing handler never affects the publisher or other handlers.
type Handler interface {
	HandleEvent(evt Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(evt Event)

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(evt Event) { f(evt) }

// Bus is an in-process publish/subscribe fan-out for domain events.
//
// Publish is fire-and-forget: it returns before any handler runs and never
// reports handler failures to the producer. Storage mutations must succeed
// regardless of what subscribers do with the resulting event.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler

	// wg tracks in-flight handler goroutines so shutdown can drain them.
	wg sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all future events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish hands evt to every subscriber on its own goroutine and returns
// immediately. Panics in handlers are recovered and logged so one bad
// subscriber cannot take down the publisher or its siblings.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event handler panic",
						"event", evt.Type,
						"panic", r,
					)
				}
			}()
			h.HandleEvent(evt)
		}(h)
	}
}

// Wait blocks until all in-flight handlers have returned.
// Intended for graceful shutdown and tests.
func (b *Bus) Wait() {
	b.wg.Wait()
}
