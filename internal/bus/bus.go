// Package bus implements a named-event bus with synchronous, in-order
// fan-out. Producers trigger events by name; subscribers register handlers
// without either side knowing about the other.
package bus

import (
	"context"
	"fmt"
	"sync"
)

// Handler consumes one event payload. Handlers run synchronously on the
// triggering goroutine; a handler that blocks delays delivery to handlers
// registered after it.
type Handler func(ctx context.Context, payload any) error

// Bus maps event names to ordered handler lists. The zero value is not
// usable; construct with New. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Register appends h to the handler list for name, creating the list if
// absent. Handlers are not deduplicated: registering the same handler twice
// means it runs twice per trigger.
func (b *Bus) Register(name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Trigger invokes every handler registered for name, in registration order,
// with the given payload. A name with no subscribers is a no-op. The first
// handler error stops delivery to the remaining handlers and is returned to
// the caller; isolating misbehaving subscribers is the caller's problem, not
// the bus's.
func (b *Bus) Trigger(ctx context.Context, name string, payload any) error {
	b.mu.RLock()
	handlers := b.handlers[name]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, payload); err != nil {
			return fmt.Errorf("event %q handler: %w", name, err)
		}
	}
	return nil
}

// SubscriberCount returns how many handlers are registered for name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}
