package domain

import (
	"encoding/json"
	"strconv"
)

// ChatMessage is a direct message between two identities. A message belongs to
// the unordered pair {From, To}; Timestamp is unix milliseconds.
type ChatMessage struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Text      string          `json:"text"`
	Timestamp int64           `json:"timestamp"`
	Embed     json.RawMessage `json:"embed,omitempty"`
}

// Key identifies a message for de-duplication. The backend assigns no ids, so
// the (from, to, timestamp, text) tuple stands in for one.
func (m ChatMessage) Key() string {
	return m.From + "\x00" + m.To + "\x00" + strconv.FormatInt(m.Timestamp, 10) + "\x00" + m.Text
}

// Counterpart returns the other side of the conversation as seen by self.
func (m ChatMessage) Counterpart(self string) string {
	if m.From == self {
		return m.To
	}
	return m.From
}

// Involves reports whether key is one of the two participants.
func (m ChatMessage) Involves(key string) bool {
	return key != "" && (m.From == key || m.To == key)
}

// Conversation is one row of the messages page list.
type Conversation struct {
	Key           string `json:"usertag"`
	DisplayName   string `json:"username"`
	Avatar        string `json:"avatar,omitempty"`
	LastMessage   string `json:"lastMessage"`
	LastTimestamp int64  `json:"lastTimestamp"`
	Unread        bool   `json:"unread"`
}
