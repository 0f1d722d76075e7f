package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tables whose row changes are pushed to subscribers.
const (
	TableOrders          = "orders"
	TableRouteStops      = "route_stops"
	TableDriverLocations = "driver_locations"
)

// A change stream for one table filtered by a single key
// (order ID for orders and route_stops, route ID for driver_locations).
type Topic struct {
	Table string
	Key   string
}

func (t Topic) String() string { return t.Table + ":" + t.Key }

// ParseTopic is the inverse of Topic.String.
func ParseTopic(s string) (Topic, error) {
	table, key, ok := strings.Cut(s, ":")
	if !ok || table == "" || key == "" {
		return Topic{}, fmt.Errorf("parse topic %q: want <table>:<key>", s)
	}
	switch table {
	case TableOrders, TableRouteStops, TableDriverLocations:
	default:
		return Topic{}, fmt.Errorf("parse topic %q: unknown table %q", s, table)
	}
	return Topic{Table: table, Key: key}, nil
}

// One "new row" payload delivered by the transport.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

type SubscriptionStatus string

const (
	SubscriptionSubscribed SubscriptionStatus = "subscribed"
	SubscriptionClosed     SubscriptionStatus = "closed"
	SubscriptionError      SubscriptionStatus = "error"
)

// Handle to a live subscription. Close releases it; no callbacks fire afterwards.
type Subscription interface {
	Close() error
}

// Contract for a push-based change-notification transport.
// onStatus reports the subscription lifecycle; err is set for SubscriptionError.
type ChangeFeed interface {
	Subscribe(
		ctx context.Context,
		topics []Topic,
		onEvent func(ChangeEvent),
		onStatus func(SubscriptionStatus, error),
	) (Subscription, error)
}

// Write side of the transport.
type ChangePublisher interface {
	Publish(ctx context.Context, topic Topic, record any) error
}

// Domain events for downstream consumers (analytics, notifications).
type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, eventType string, payload any) error
}
