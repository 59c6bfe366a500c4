package broadcast

import (
	"context"
	"sync"

	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

// LocalRelay delivers events in-process to every active Consume handler.
// It is the relay for single-instance deployments.
type LocalRelay struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]interfaces.EventHandler
}

func NewLocalRelay() *LocalRelay {
	return &LocalRelay{handlers: make(map[int]interfaces.EventHandler)}
}

func (r *LocalRelay) Publish(ctx context.Context, event interfaces.OrderEvent) error {
	r.mu.RLock()
	handlers := make([]interfaces.EventHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Consume registers handler and blocks until ctx is done.
func (r *LocalRelay) Consume(ctx context.Context, handler interfaces.EventHandler) error {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.handlers[id] = handler
	r.mu.Unlock()

	<-ctx.Done()

	r.mu.Lock()
	delete(r.handlers, id)
	r.mu.Unlock()
	return nil
}

func (r *LocalRelay) Consumers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *LocalRelay) Close() error { return nil }

// RelayTask returns the outbox handler for broadcast_event tasks.
func RelayTask(relay interfaces.EventRelay) func(ctx context.Context, task *domain.OutboxTask) error {
	return func(ctx context.Context, task *domain.OutboxTask) error {
		var event interfaces.OrderEvent
		if err := task.Decode(&event); err != nil {
			return err
		}
		return relay.Publish(ctx, event)
	}
}
