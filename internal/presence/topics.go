package presence

import "github.com/nfrund/livedash/internal/pubsub"

// RosterChanged is published after every effective roster mutation.
type RosterChanged struct {
	// Change is "online", "offline", "seed" or "reset".
	Change string   `json:"change"`
	Key    string   `json:"usertag,omitempty"`
	Online []string `json:"online"`
}

// Transition is published by the Tracker when an identity's first connection
// opens or its last connection closes.
type Transition struct {
	Key         string `json:"usertag"`
	ClientID    string `json:"client_id,omitempty"`
	Connections int    `json:"connections"`
}

var (
	// TopicRosterChanged carries the client roster after a change.
	TopicRosterChanged = pubsub.NewEvent[RosterChanged]("presence.roster.changed",
		"Client presence roster changed")

	// TopicUserOnline is published when a user comes online
	TopicUserOnline = pubsub.NewEvent[Transition]("presence.user.online",
		"First connection of an identity opened")

	// TopicUserOffline is published when a user goes offline
	TopicUserOffline = pubsub.NewEvent[Transition]("presence.user.offline",
		"Last connection of an identity closed and the debounce elapsed")
)
