package events

import (
	"context"
	"delivery-coordination-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
)

const DefaultTopic = "delivery_events"

// Envelope is the JSON value of every event message.
type Envelope struct {
	Event     string          `json:"event"`
	Key       string          `json:"key"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// KafkaPublisher sends domain events to a single Kafka topic, keyed by the
// aggregate ID so events for one route or order stay ordered.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: no brokers")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, topic), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *KafkaPublisher) PublishEvent(ctx context.Context, key, eventType string, payload any) (err error) {
	defer obs.Time(ctx, "events.Publish")(&err)

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish %s: encode payload: %w", eventType, err)
	}

	data, err := json.Marshal(Envelope{
		Event:     eventType,
		Key:       key,
		Timestamp: p.now().Unix(),
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("publish %s: encode envelope: %w", eventType, err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(context.Context, string, string, any) error { return nil }

func (NopPublisher) Close() error { return nil }
