package events

import "github.com/nfrund/livedash/internal/topicmgr"

// Wire topics: the socket event names exchanged with the backend.
var (
	TopicUserOnline = topicmgr.DefineWire(topicmgr.TopicConfig{
		Name:        "user_online",
		Direction:   topicmgr.Inbound,
		Description: "An identity came online",
		Example:     `{"usertag":"bob"}`,
	})

	TopicUserOffline = topicmgr.DefineWire(topicmgr.TopicConfig{
		Name:        "user_offline",
		Direction:   topicmgr.Inbound,
		Description: "An identity went offline",
		Example:     `{"usertag":"bob"}`,
	})

	TopicSystemMessage = topicmgr.DefineWire(topicmgr.TopicConfig{
		Name:        "system_message",
		Direction:   topicmgr.Bidirectional,
		Description: "System broadcast to every session; admins may emit it",
		Example:     `{"text":"Maintenance at 22:00"}`,
	})

	TopicFriendRequest = topicmgr.DefineWire(topicmgr.TopicConfig{
		Name:        "friend_request",
		Direction:   topicmgr.Bidirectional,
		Description: "Friend request addressed to one identity",
		Example:     `{"from":"bob","to":"alice"}`,
	})

	TopicDM = topicmgr.DefineWire(topicmgr.TopicConfig{
		Name:        "dm",
		Direction:   topicmgr.Bidirectional,
		Description: "Direct chat message, echoed to both participants",
		Example:     `{"from":"bob","to":"alice","text":"hi","timestamp":1700000000000}`,
	})

	TopicChatMessage = topicmgr.DefineWire(topicmgr.TopicConfig{
		Name:        "chat_message",
		Direction:   topicmgr.Inbound,
		Description: "Direct chat message (alternate name used by some backends)",
		Example:     `{"from":"bob","to":"alice","text":"yo","timestamp":1000}`,
	})

	TopicBotLog = topicmgr.DefineWire(topicmgr.TopicConfig{
		Name:        "bot_log",
		Direction:   topicmgr.Inbound,
		Description: "One line of output from a running bot script",
		Example:     `{"script":"knuddels_main","output":"logged in"}`,
	})

	TopicConnectUser = topicmgr.DefineWire(topicmgr.TopicConfig{
		Name:        "connect_user",
		Direction:   topicmgr.Outbound,
		Description: "Announces that this tab's identity is online",
		Example:     `{"usertag":"alice"}`,
	})
)

// Wire returns every wire topic.
func Wire() []topicmgr.Topic {
	return []topicmgr.Topic{
		TopicUserOnline,
		TopicUserOffline,
		TopicSystemMessage,
		TopicFriendRequest,
		TopicDM,
		TopicChatMessage,
		TopicBotLog,
		TopicConnectUser,
	}
}

// RegisterTopics registers the wire topics with the manager. It is idempotent.
func RegisterTopics(m *topicmgr.Manager) error {
	return m.RegisterAll(Wire()...)
}
