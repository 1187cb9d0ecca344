package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventStream is the downstream bus carrying payment integration events.
const EventStream = "payments:events"

// StreamProducer publishes integration events to a Redis Stream. The
// stream gives consumers at-least-once delivery; they deduplicate by the
// event_id field when they need exactly-once effect.
type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// Publish appends one event to the stream.
func (p *StreamProducer) Publish(ctx context.Context, eventType, eventID string, content []byte) error {
	args := &redis.XAddArgs{
		Stream: EventStream,
		Values: map[string]any{
			"event_id":   eventID,
			"event_type": eventType,
			"payload":    string(content),
			"timestamp":  time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}
