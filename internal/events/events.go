// Package events defines the payload of every wire event as a tagged variant
// and decodes raw frames into them. Validation happens once, here; code past
// this boundary trusts the shape.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nfrund/livedash/internal/domain"
)

// ErrUnknownEvent is returned by Decode for names outside the catalogue.
var ErrUnknownEvent = errors.New("unknown event")

// Kind tags a decoded inbound event.
type Kind int

const (
	KindPresenceOnline Kind = iota + 1
	KindPresenceOffline
	KindSystemBroadcast
	KindFriendRequest
	KindChatMessage
	KindBotLog
)

func (k Kind) String() string {
	switch k {
	case KindPresenceOnline:
		return "presence-online"
	case KindPresenceOffline:
		return "presence-offline"
	case KindSystemBroadcast:
		return "system-broadcast"
	case KindFriendRequest:
		return "friend-request"
	case KindChatMessage:
		return "chat-message"
	case KindBotLog:
		return "bot-log"
	default:
		return "unknown"
	}
}

// Event is implemented by every inbound payload type.
type Event interface {
	Kind() Kind
}

// Presence is user_online / user_offline.
type Presence struct {
	Key    string `json:"usertag" validate:"required"`
	Online bool   `json:"-"`
}

func (p Presence) Kind() Kind {
	if p.Online {
		return KindPresenceOnline
	}
	return KindPresenceOffline
}

// SystemBroadcast is system_message.
type SystemBroadcast struct {
	Text string `json:"text" validate:"required"`
}

func (SystemBroadcast) Kind() Kind { return KindSystemBroadcast }

// FriendRequest is friend_request.
type FriendRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

func (FriendRequest) Kind() Kind { return KindFriendRequest }

// Chat is dm / chat_message.
type Chat struct {
	domain.ChatMessage
}

func (Chat) Kind() Kind { return KindChatMessage }

type chatPayload struct {
	From      string          `json:"from" validate:"required"`
	To        string          `json:"to" validate:"required"`
	Text      string          `json:"text"`
	Timestamp int64           `json:"timestamp" validate:"gte=0"`
	Embed     json.RawMessage `json:"embed,omitempty"`
}

// BotLog is bot_log.
type BotLog struct {
	Script string `json:"script" validate:"required"`
	Output string `json:"output"`
}

func (BotLog) Kind() Kind { return KindBotLog }

// Outbound payloads.

// ConnectUser announces presence for this tab.
type ConnectUser struct {
	Key string `json:"usertag"`
}

// OutgoingDM is what the client emits on dm. The backend stamps from and
// timestamp.
type OutgoingDM struct {
	To    string          `json:"to"`
	Text  string          `json:"text"`
	Embed json.RawMessage `json:"embed,omitempty"`
}

// OutgoingBroadcast is an admin system_message.
type OutgoingBroadcast struct {
	Text string `json:"text"`
}

// OutgoingFriendRequest asks the backend to send a friend request.
type OutgoingFriendRequest struct {
	To string `json:"to"`
}

// Decoder turns raw frames into events.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder returns a decoder. A chat frame without a timestamp keeps 0 so
// that every redelivery of it dedupes to the same message.
func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New()}
}

var defaultDecoder = NewDecoder()

// Decode parses the payload of a named wire event using the default decoder.
func Decode(name string, data []byte) (Event, error) {
	return defaultDecoder.Decode(name, data)
}

// Decode parses and validates the payload of a named wire event.
func (d *Decoder) Decode(name string, data []byte) (Event, error) {
	switch name {
	case TopicUserOnline.Name(), TopicUserOffline.Name():
		p, err := d.decodePresence(data)
		if err != nil {
			return nil, err
		}
		p.Online = name == TopicUserOnline.Name()
		return p, nil

	case TopicSystemMessage.Name():
		var sb SystemBroadcast
		if err := d.unmarshal(data, &sb); err != nil {
			return nil, err
		}
		return sb, nil

	case TopicFriendRequest.Name():
		var fr FriendRequest
		if err := d.unmarshal(data, &fr); err != nil {
			return nil, err
		}
		return fr, nil

	case TopicDM.Name(), TopicChatMessage.Name():
		var cp chatPayload
		if err := d.unmarshal(data, &cp); err != nil {
			return nil, err
		}
		return Chat{domain.ChatMessage{
			From:      cp.From,
			To:        cp.To,
			Text:      cp.Text,
			Timestamp: cp.Timestamp,
			Embed:     cp.Embed,
		}}, nil

	case TopicBotLog.Name():
		var bl BotLog
		if err := d.unmarshal(data, &bl); err != nil {
			return nil, err
		}
		return bl, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// decodePresence accepts {"usertag":"bob"} and, defensively, a bare "bob".
func (d *Decoder) decodePresence(data []byte) (Presence, error) {
	var p Presence
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &p.Key); err != nil {
			return p, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		p.Key = strings.TrimSpace(p.Key)
	} else if err := d.unmarshal(trimmed, &p); err != nil {
		return p, err
	}
	if p.Key == "" {
		return p, fmt.Errorf("%w: missing usertag", domain.ErrInvalidPayload)
	}
	return p, nil
}

func (d *Decoder) unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty payload", domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}
