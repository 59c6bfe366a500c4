package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/config"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

const DefaultChannel = "order-events"

// Client is the pub/sub subset of go-redis the relay needs.
type Client interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

type Subscription interface {
	Messages() <-chan *goredis.Message
	Close() error
}

type goredisClient struct {
	client goredis.UniversalClient
}

type goredisSubscription struct {
	sub *goredis.PubSub
}

// NewClient parses the URL and checks the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &goredisClient{client: client}, nil
}

func (c *goredisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.client.Publish(ctx, channel, payload).Err()
}

// Subscribe waits for the subscription to be confirmed. go-redis resubscribes
// on its own after connection loss.
func (c *goredisClient) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := c.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return &goredisSubscription{sub: sub}, nil
}

func (c *goredisClient) Close() error {
	return c.client.Close()
}

func (s *goredisSubscription) Messages() <-chan *goredis.Message {
	return s.sub.Channel()
}

func (s *goredisSubscription) Close() error {
	return s.sub.Close()
}

// Relay carries order events between instances over Redis PUBLISH/SUBSCRIBE.
type Relay struct {
	client  Client
	channel string
	logger  logger.Logger
}

func NewRelay(client Client, channel string, logger logger.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel, logger: logger}
}

func (r *Relay) Publish(ctx context.Context, event interfaces.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Consume blocks until ctx is done.
func (r *Relay) Consume(ctx context.Context, handler interfaces.EventHandler) error {
	sub, err := r.client.Subscribe(ctx, r.channel)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	defer sub.Close()

	r.logger.Info("relay_consumer_started", "Consuming order events", "", map[string]interface{}{
		"channel": r.channel,
	})

	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("subscription to %s closed", r.channel)
			}

			var event interfaces.OrderEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
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

func (r *Relay) Close() error {
	return r.client.Close()
}
