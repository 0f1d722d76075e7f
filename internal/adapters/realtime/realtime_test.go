package realtime

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/ports"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type statusEvent struct {
	status ports.SubscriptionStatus
	err    error
}

type recorder struct {
	events   chan ports.ChangeEvent
	statuses chan statusEvent
}

func newRecorder() *recorder {
	return &recorder{
		events:   make(chan ports.ChangeEvent, 16),
		statuses: make(chan statusEvent, 16),
	}
}

func (r *recorder) onEvent(e ports.ChangeEvent) { r.events <- e }

func (r *recorder) onStatus(s ports.SubscriptionStatus, err error) {
	r.statuses <- statusEvent{s, err}
}

func (r *recorder) waitStatus(t *testing.T, want ports.SubscriptionStatus) statusEvent {
	t.Helper()
	select {
	case got := <-r.statuses:
		if got.status != want {
			t.Fatalf("status = %s (%v), want %s", got.status, got.err, want)
		}
		return got
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
	return statusEvent{}
}

func newTestGateway(t *testing.T) (*redis.Client, *httptest.Server) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	srv := httptest.NewServer(NewGateway(client))
	t.Cleanup(srv.Close)

	return client, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGatewayDeliversPublishedChanges(t *testing.T) {
	client, srv := newTestGateway(t)
	rec := newRecorder()

	topics := []ports.Topic{
		{Table: ports.TableOrders, Key: "ord-1"},
		{Table: ports.TableRouteStops, Key: "ord-1"},
	}
	sub, err := NewWebSocketFeed(wsURL(srv)).Subscribe(context.Background(), topics, rec.onEvent, rec.onStatus)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	rec.waitStatus(t, ports.SubscriptionSubscribed)

	pub := NewRedisPublisher(client)
	order := domain.OrderInfo{OrderID: "ord-1", Status: domain.OrderStatusOutForDelivery}
	if err := pub.Publish(context.Background(), topics[0], order); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Other orders are filtered out by channel.
	pub.Publish(context.Background(), ports.Topic{Table: ports.TableOrders, Key: "ord-2"}, order)
	pub.Publish(context.Background(), topics[1], domain.RouteStopInfo{StopID: "stop-1", OrderID: "ord-1"})

	select {
	case evt := <-rec.events:
		if evt.Table != ports.TableOrders {
			t.Fatalf("table = %q", evt.Table)
		}
		var got domain.OrderInfo
		if err := json.Unmarshal(evt.Record, &got); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		if got.Status != domain.OrderStatusOutForDelivery {
			t.Fatalf("status = %q", got.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for change")
	}

	select {
	case evt := <-rec.events:
		if evt.Table != ports.TableRouteStops {
			t.Fatalf("second event table = %q, want route_stops", evt.Table)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for route stop change")
	}
}

func TestWebSocketFeedCloseSuppressesCallbacks(t *testing.T) {
	client, srv := newTestGateway(t)
	rec := newRecorder()
	topic := ports.Topic{Table: ports.TableDriverLocations, Key: "route-1"}

	sub, err := NewWebSocketFeed(wsURL(srv)).Subscribe(context.Background(), []ports.Topic{topic}, rec.onEvent, rec.onStatus)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rec.waitStatus(t, ports.SubscriptionSubscribed)

	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sub.Close()

	select {
	case <-sub.(interface{ Done() <-chan struct{} }).Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("reader did not exit after Close")
	}

	NewRedisPublisher(client).Publish(context.Background(), topic, domain.DriverLocation{Latitude: 1})

	select {
	case evt := <-rec.events:
		t.Fatalf("event after close: %+v", evt)
	case st := <-rec.statuses:
		t.Fatalf("status after close: %+v", st)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebSocketFeedReportsDialFailure(t *testing.T) {
	rec := newRecorder()
	feed := NewWebSocketFeed("ws://127.0.0.1:1/ws/changes")

	sub, err := feed.Subscribe(context.Background(), []ports.Topic{{Table: ports.TableOrders, Key: "o"}}, rec.onEvent, rec.onStatus)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if got := rec.waitStatus(t, ports.SubscriptionError); got.err == nil {
		t.Fatalf("expected an error with the status")
	}
}

func TestWebSocketFeedReportsDroppedConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteJSON(Message{Type: TypeSubscribed})
		conn.Close()
	}))
	defer srv.Close()

	rec := newRecorder()
	sub, _ := NewWebSocketFeed(wsURL(srv)).Subscribe(context.Background(), []ports.Topic{{Table: ports.TableOrders, Key: "o"}}, rec.onEvent, rec.onStatus)
	defer sub.Close()

	rec.waitStatus(t, ports.SubscriptionSubscribed)
	rec.waitStatus(t, ports.SubscriptionError)
}

func TestWebSocketFeedReportsCleanClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(Message{Type: TypeSubscribed})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
		conn.ReadMessage()
	}))
	defer srv.Close()

	rec := newRecorder()
	sub, _ := NewWebSocketFeed(wsURL(srv)).Subscribe(context.Background(), []ports.Topic{{Table: ports.TableOrders, Key: "o"}}, rec.onEvent, rec.onStatus)
	defer sub.Close()

	rec.waitStatus(t, ports.SubscriptionSubscribed)
	rec.waitStatus(t, ports.SubscriptionClosed)
}

func TestGatewayRejectsBadTopics(t *testing.T) {
	_, srv := newTestGateway(t)

	for _, q := range []string{"", "?topic=orders", "?topic=payments:1"} {
		resp, err := http.Get(srv.URL + q)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%q: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestWebSocketFeedRequiresTopics(t *testing.T) {
	if _, err := NewWebSocketFeed("ws://x").Subscribe(context.Background(), nil, nil, nil); err == nil {
		t.Fatalf("expected error without topics")
	}
}
