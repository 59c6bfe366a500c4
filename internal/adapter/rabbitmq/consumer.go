package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

const reconnectDelay = 5 * time.Second

// Consume delivers every event published on any instance to handler until
// ctx is done, reconnecting when the broker drops the channel.
func (r *Relay) Consume(ctx context.Context, handler interfaces.EventHandler) error {
	for {
		err := r.consume(ctx, handler)

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		r.logger.Error("relay_consumer_disconnected", "Event consumer disconnected, reconnecting", "", map[string]interface{}{
			"exchange": r.exchange,
			"retry_in": reconnectDelay.String(),
		}, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *Relay) consume(ctx context.Context, handler interfaces.EventHandler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if r.prefetch > 0 {
		if err := ch.Qos(r.prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	if err := ch.ExchangeDeclare(r.exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Temporary exclusive queue per instance
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	r.logger.Info("relay_consumer_started", "Consuming order events", "", map[string]interface{}{
		"exchange": r.exchange,
		"queue":    q.Name,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}

			var event interfaces.OrderEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				r.logger.Error("message_parse_failed", "Failed to parse order event", "", nil, err)
				continue
			}
			if err := handler(ctx, event); err != nil {
				r.logger.Error("event_handler_failed", "Order event handler failed", "", map[string]interface{}{
					"event_type": event.Type,
				}, err)
			}
		}
	}
}
