package realtime

import (
	"delivery-coordination-service/internal/ports"
	"encoding/json"
	"time"
)

const (
	channelPrefix = "changes:"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type MessageType string

const (
	TypeSubscribed MessageType = "subscribed"
	TypeChange     MessageType = "change"
	TypeError      MessageType = "error"
)

// Message is one frame sent by the gateway to a websocket client.
type Message struct {
	Type   MessageType     `json:"type"`
	Topics []string        `json:"topics,omitempty"`
	Table  string          `json:"table,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Channel returns the Redis pub/sub channel carrying changes for topic.
func Channel(topic ports.Topic) string {
	return channelPrefix + topic.String()
}
