package realtime

import (
	"context"
	"delivery-coordination-service/internal/platform/obs"
	"delivery-coordination-service/internal/ports"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Gateway serves GET /ws/changes?topic=<table>:<key>&topic=...
//
// Each connection gets its own Redis subscription. The client receives one
// "subscribed" frame once every channel is confirmed, then a "change" frame
// per published row. The gateway pings every pingPeriod and drops clients
// that stop answering.
type Gateway struct {
	Client   *redis.Client
	Upgrader websocket.Upgrader
}

func NewGateway(client *redis.Client) *Gateway {
	return &Gateway{
		Client: client,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tracking pages are served from other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func parseTopics(values []string) ([]ports.Topic, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}

	seen := make(map[ports.Topic]struct{}, len(values))
	topics := make([]ports.Topic, 0, len(values))
	for _, v := range values {
		t, err := ports.ParseTopic(v)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	return topics, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics, err := parseTopics(r.URL.Query()["topic"])
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	conn, err := g.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Printf("req_id=%s op=gateway.Upgrade err=%v", obs.RequestID(r.Context()), err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := g.serve(ctx, cancel, conn, topics); err != nil {
		log.Printf("req_id=%s op=gateway.serve topics=%v err=%v", obs.RequestID(ctx), topics, err)
	}
}

func (g *Gateway) serve(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, topics []ports.Topic) error {
	channels := make([]string, 0, len(topics))
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		channels = append(channels, Channel(t))
		names = append(names, t.String())
	}

	pubsub := g.Client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	// Messages can arrive for early channels before later ones are confirmed.
	var pending []*redis.Message
	for confirmed := 0; confirmed < len(channels); {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			writeFrame(conn, Message{Type: TypeError, Error: "subscription failed"})
			return fmt.Errorf("subscribe: %w", err)
		}
		switch m := msg.(type) {
		case *redis.Subscription:
			confirmed++
		case *redis.Message:
			pending = append(pending, m)
		}
	}

	if err := writeFrame(conn, Message{Type: TypeSubscribed, Topics: names}); err != nil {
		return err
	}
	for _, m := range pending {
		if err := forward(conn, m); err != nil {
			return err
		}
	}

	go readPump(conn, cancel)

	ch := pubsub.Channel()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if err := forward(conn, m); err != nil {
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// readPump drains client frames so control messages are processed and
// cancels the connection context once the client goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func forward(conn *websocket.Conn, m *redis.Message) error {
	var evt ports.ChangeEvent
	if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
		log.Printf("op=gateway.forward channel=%s err=%v", m.Channel, err)
		return nil
	}
	return writeFrame(conn, Message{Type: TypeChange, Table: evt.Table, Record: evt.Record})
}

func writeFrame(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s frame: %w", msg.Type, err)
	}
	return nil
}
