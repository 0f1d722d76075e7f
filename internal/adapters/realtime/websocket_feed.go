package realtime

import (
	"context"
	"delivery-coordination-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketFeed is the client side of Gateway. It implements ports.ChangeFeed.
type WebSocketFeed struct {
	// Gateway URL, e.g. ws://localhost:8080/ws/changes.
	URL    string
	Dialer *websocket.Dialer
	Header http.Header
}

func NewWebSocketFeed(rawURL string) *WebSocketFeed {
	return &WebSocketFeed{
		URL:    rawURL,
		Dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

type wsSubscription struct {
	cancel context.CancelFunc
	closed atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// Close releases the connection. Callbacks are suppressed from the moment
// Close is called; it does not wait for the reader, so it is safe to call
// from inside a callback.
func (s *wsSubscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	var err error
	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = conn.Close()
	}
	return err
}

// Done is closed once the reader goroutine has exited.
func (s *wsSubscription) Done() <-chan struct{} { return s.done }

// Subscribe dials the gateway in the background. Connection progress is
// reported through onStatus: SubscriptionSubscribed once the gateway confirms,
// SubscriptionError when the dial or the connection fails, and
// SubscriptionClosed when the gateway ends the stream cleanly.
func (f *WebSocketFeed) Subscribe(
	ctx context.Context,
	topics []ports.Topic,
	onEvent func(ports.ChangeEvent),
	onStatus func(ports.SubscriptionStatus, error),
) (ports.Subscription, error) {
	if len(topics) == 0 {
		return nil, errors.New("websocket feed: no topics")
	}

	u, err := url.Parse(f.URL)
	if err != nil {
		return nil, fmt.Errorf("websocket feed: parse url: %w", err)
	}
	q := u.Query()
	for _, t := range topics {
		q.Add("topic", t.String())
	}
	u.RawQuery = q.Encode()

	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &wsSubscription{cancel: cancel, done: make(chan struct{})}

	go sub.run(subCtx, dialer, u.String(), f.Header, onEvent, onStatus)

	return sub, nil
}

func (s *wsSubscription) run(
	ctx context.Context,
	dialer *websocket.Dialer,
	target string,
	header http.Header,
	onEvent func(ports.ChangeEvent),
	onStatus func(ports.SubscriptionStatus, error),
) {
	defer close(s.done)

	status := func(st ports.SubscriptionStatus, err error) {
		if !s.closed.Load() && onStatus != nil {
			onStatus(st, err)
		}
	}

	conn, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		status(ports.SubscriptionError, fmt.Errorf("dial %s: %w", target, err))
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	// Close may have run before the connection was stored.
	if s.closed.Load() {
		return
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				status(ports.SubscriptionClosed, nil)
				return
			}
			status(ports.SubscriptionError, fmt.Errorf("read: %w", err))
			return
		}

		switch msg.Type {
		case TypeSubscribed:
			status(ports.SubscriptionSubscribed, nil)
		case TypeChange:
			if !s.closed.Load() && onEvent != nil {
				onEvent(ports.ChangeEvent{Table: msg.Table, Record: json.RawMessage(msg.Record)})
			}
		case TypeError:
			status(ports.SubscriptionError, errors.New(msg.Error))
			return
		}
	}
}
