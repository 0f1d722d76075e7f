package realtime

import (
	"context"
	"delivery-coordination-service/internal/platform/obs"
	"delivery-coordination-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans row changes out over Redis pub/sub.
type RedisPublisher struct {
	Client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{Client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic ports.Topic, record any) (err error) {
	defer obs.Time(ctx, "realtime.Publish")(&err)

	if p.Client == nil {
		return errors.New("realtime publisher: client is nil")
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("publish %s: encode record: %w", topic, err)
	}

	payload, err := json.Marshal(ports.ChangeEvent{Table: topic.Table, Record: raw})
	if err != nil {
		return fmt.Errorf("publish %s: encode event: %w", topic, err)
	}

	if err := p.Client.Publish(ctx, Channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	obs.IncPublished(topic.Table)
	return nil
}
