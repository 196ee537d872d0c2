package events

import (
	"testing"

	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/topicmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	d := NewDecoder()

	tests := []struct {
		name  string
		event string
		data  string
		want  Event
	}{
		{
			name:  "user online",
			event: "user_online",
			data:  `{"usertag":"carol"}`,
			want:  Presence{Key: "carol", Online: true},
		},
		{
			name:  "user offline",
			event: "user_offline",
			data:  `{"usertag":"carol"}`,
			want:  Presence{Key: "carol"},
		},
		{
			name:  "presence as bare string",
			event: "user_online",
			data:  `"bob"`,
			want:  Presence{Key: "bob", Online: true},
		},
		{
			name:  "system message",
			event: "system_message",
			data:  `{"text":"restart soon"}`,
			want:  SystemBroadcast{Text: "restart soon"},
		},
		{
			name:  "friend request",
			event: "friend_request",
			data:  `{"from":"bob","to":"alice"}`,
			want:  FriendRequest{From: "bob", To: "alice"},
		},
		{
			name:  "chat message",
			event: "chat_message",
			data:  `{"from":"bob","to":"alice","text":"yo","timestamp":1000}`,
			want:  Chat{domain.ChatMessage{From: "bob", To: "alice", Text: "yo", Timestamp: 1000}},
		},
		{
			name:  "dm without timestamp keeps zero",
			event: "dm",
			data:  `{"from":"bob","to":"alice","text":"hi"}`,
			want:  Chat{domain.ChatMessage{From: "bob", To: "alice", Text: "hi"}},
		},
		{
			name:  "bot log",
			event: "bot_log",
			data:  `{"script":"main","output":"ok"}`,
			want:  BotLog{Script: "main", Output: "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Decode(tt.event, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Kinds(t *testing.T) {
	on, err := Decode("user_online", []byte(`{"usertag":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, KindPresenceOnline, on.Kind())

	off, err := Decode("user_offline", []byte(`{"usertag":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, KindPresenceOffline, off.Kind())
	assert.Equal(t, "presence-offline", off.Kind().String())
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  string
	}{
		{"empty payload", "user_online", ``},
		{"missing usertag", "user_online", `{}`},
		{"blank bare string", "user_offline", `""`},
		{"not json", "system_message", `{text`},
		{"empty text", "system_message", `{"text":""}`},
		{"friend request without to", "friend_request", `{"from":"bob"}`},
		{"chat without from", "dm", `{"to":"alice","text":"x"}`},
		{"negative timestamp", "dm", `{"from":"a","to":"b","timestamp":-1}`},
		{"bot log without script", "bot_log", `{"output":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.event, []byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidPayload)
		})
	}
}

func TestDecode_Unknown(t *testing.T) {
	_, err := Decode("forum_post", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestRegisterTopics(t *testing.T) {
	m := topicmgr.NewManager()

	require.NoError(t, RegisterTopics(m))
	require.NoError(t, RegisterTopics(m), "registration is idempotent")

	assert.Equal(t, len(Wire()), m.Count())

	var inbound []string
	for _, topic := range m.ListByDirection(topicmgr.Inbound) {
		inbound = append(inbound, topic.Name())
	}
	assert.NotContains(t, inbound, TopicConnectUser.Name())
	assert.Contains(t, inbound, TopicDM.Name())
}
