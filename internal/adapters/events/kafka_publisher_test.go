package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
)

func TestKafkaPublisherSendsEnvelope(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.Event != "route.optimized" || env.Key != "route-1" {
			return errors.New("unexpected envelope header")
		}
		if env.Timestamp != time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Unix() {
			return errors.New("unexpected timestamp")
		}
		var payload map[string]int
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		if payload["stops"] != 3 {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer, "")
	p.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	if err := p.PublishEvent(context.Background(), "route-1", "route.optimized", map[string]int{"stops": 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaPublisherReturnsProducerErrors(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "custom")
	err := p.PublishEvent(context.Background(), "ord-1", "order.status_changed", struct{}{})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("err = %v, want ErrOutOfBrokers", err)
	}
	p.Close()
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, DefaultTopic); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestNopPublisher(t *testing.T) {
	if err := (NopPublisher{}).PublishEvent(context.Background(), "k", "e", nil); err != nil {
		t.Fatalf("nop publisher returned %v", err)
	}
}
