package domain

import "time"

// NotificationKind classifies an entry in the notification feed.
type NotificationKind string

const (
	NotificationSystem        NotificationKind = "system"
	NotificationFriendRequest NotificationKind = "friend"
	NotificationChatMessage   NotificationKind = "message"
)

// Notification is a transient alert shown in the bell dropdown and as a toast.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"type"`
	Text      string           `json:"message"`
	From      string           `json:"from,omitempty"`
	CreatedAt time.Time        `json:"-"`
	// Timestamp mirrors CreatedAt in unix milliseconds for the wire.
	Timestamp int64 `json:"timestamp"`
}
