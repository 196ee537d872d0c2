package websocket

import (
	"encoding/json"

	"github.com/nfrund/livedash/internal/pubsub"
)

// Activity kinds.
const (
	ActivityReady  = "ready"
	ActivityFrame  = "frame"
	ActivityClosed = "closed"
)

// Activity is everything that happens on one socket, in order: it opens,
// it sends frames, it closes. All activity shares one bus topic so a single
// subscriber sees each connection's history in sequence.
type Activity struct {
	Kind      string          `json:"kind"`
	ClientID  string          `json:"client_id"`
	Session   string          `json:"session,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// TopicActivity carries socket lifecycle and inbound frames.
var TopicActivity = pubsub.NewEvent[Activity]("ws.client.activity",
	"Socket opened, sent a whitelisted frame, or closed")
