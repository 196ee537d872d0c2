package chat

import "github.com/nfrund/livedash/internal/pubsub"

// ThreadChanged is published after every change to an open thread.
type ThreadChanged struct {
	Counterpart string `json:"counterpart"`
	// Reason is one of "opened", "history", "message", "closed".
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

var TopicThreadChanged = pubsub.NewEvent[ThreadChanged]("chat.thread.changed",
	"A direct-message thread was opened, loaded, appended to or closed")
