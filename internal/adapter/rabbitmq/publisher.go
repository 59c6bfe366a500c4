package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

const DefaultExchange = "order_events_fanout"

// Relay fans order events out to every instance through a fanout exchange.
// Each consumer binds its own exclusive, auto-deleted queue.
type Relay struct {
	conn     Connection
	exchange string
	prefetch int
	logger   logger.Logger

	mu sync.Mutex
	ch Channel
}

func NewRelay(conn Connection, exchange string, prefetch int, logger logger.Logger) *Relay {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Relay{conn: conn, exchange: exchange, prefetch: prefetch, logger: logger}
}

func (r *Relay) Publish(ctx context.Context, event interfaces.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, err := r.publishChannel()
	if err != nil {
		return err
	}

	err = ch.Publish(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        string(event.Type),
		Timestamp:   event.Timestamp,
		Body:        body,
	})
	if err != nil {
		// Drop the channel so the next publish opens a fresh one.
		_ = ch.Close()
		r.ch = nil
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// publishChannel must be called with mu held.
func (r *Relay) publishChannel() (Channel, error) {
	if r.ch != nil {
		return r.ch, nil
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(r.exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	r.ch = ch
	return ch, nil
}

func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil {
		_ = r.ch.Close()
		r.ch = nil
	}
	return r.conn.Close()
}
