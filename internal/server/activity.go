package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/events"
	"github.com/nfrund/livedash/internal/handlers"
	"github.com/nfrund/livedash/internal/presence"
	"github.com/nfrund/livedash/internal/pubsub"
	"github.com/nfrund/livedash/internal/websocket"
)

func (s *Server) subscribe(ctx context.Context) error {
	if err := pubsub.Subscribe(ctx, s.bus, websocket.TopicActivity, s.handleActivity); err != nil {
		return err
	}
	if err := pubsub.Subscribe(ctx, s.bus, presence.TopicUserOnline, func(_ context.Context, tr presence.Transition) error {
		return s.Hub.Broadcast(events.TopicUserOnline.Name(), events.Presence{Key: tr.Key})
	}); err != nil {
		return err
	}
	return pubsub.Subscribe(ctx, s.bus, presence.TopicUserOffline, func(_ context.Context, tr presence.Transition) error {
		return s.Hub.Broadcast(events.TopicUserOffline.Name(), events.Presence{Key: tr.Key})
	})
}

// handleActivity applies one socket event. Frames that fail validation are
// logged and dropped; nothing is sent back to the offending socket.
func (s *Server) handleActivity(_ context.Context, a websocket.Activity) error {
	switch a.Kind {
	case websocket.ActivityReady:
		s.logger.Debug("Socket opened", "client_id", a.ClientID, "session", a.Session)
	case websocket.ActivityClosed:
		s.Tracker.Disconnect(a.ClientID)
	case websocket.ActivityFrame:
		s.Tracker.Touch(a.ClientID)
		s.handleFrame(a)
	}
	return nil
}

func (s *Server) handleFrame(a websocket.Activity) {
	log := s.logger.With("client_id", a.ClientID, "event", a.Event)

	switch a.Event {
	case events.TopicConnectUser.Name():
		var p events.ConnectUser
		if err := json.Unmarshal(a.Data, &p); err != nil {
			// The session alone still identifies the socket.
			log.Debug("Ignoring malformed connect_user payload", "error", err)
			p = events.ConnectUser{}
		}
		key := a.Session
		if key == "" {
			key = strings.TrimSpace(p.Key)
		} else if p.Key != "" && p.Key != key {
			log.Warn("connect_user names another identity; using the session", "session", key, "usertag", p.Key)
		}
		if key == "" {
			log.Debug("Dropping anonymous connect_user")
			return
		}
		var userAgent string
		if c, ok := s.Hub.Clients().Get(a.ClientID); ok {
			userAgent = c.UserAgent
		}
		s.Hub.Clients().Rekey(a.ClientID, key)
		s.Tracker.Connect(key, a.ClientID, userAgent)

	case events.TopicDM.Name():
		if a.Session == "" {
			log.Debug("Dropping dm from anonymous socket")
			return
		}
		var p events.OutgoingDM
		if err := json.Unmarshal(a.Data, &p); err != nil || p.To == "" || strings.TrimSpace(p.Text) == "" {
			log.Debug("Dropping malformed dm", "error", err)
			return
		}
		if _, ok := s.Store.User(p.To); !ok {
			log.Debug("Dropping dm to unknown user", "to", p.To)
			return
		}
		msg := domain.ChatMessage{
			From:      a.Session,
			To:        p.To,
			Text:      p.Text,
			Timestamp: time.Now().UnixMilli(),
			Embed:     p.Embed,
		}
		s.Store.AddMessage(msg)
		s.deliver(msg)

	case events.TopicSystemMessage.Name():
		if !s.Store.IsAdmin(a.Session) {
			log.Warn("Dropping system_message from non-admin", "session", a.Session)
			return
		}
		var p events.OutgoingBroadcast
		if err := json.Unmarshal(a.Data, &p); err != nil || strings.TrimSpace(p.Text) == "" {
			log.Debug("Dropping malformed system_message", "error", err)
			return
		}
		if err := s.Hub.Broadcast(events.TopicSystemMessage.Name(), events.SystemBroadcast{Text: p.Text}); err != nil {
			log.Error("Failed to broadcast system message", "error", err)
		}

	case events.TopicFriendRequest.Name():
		if a.Session == "" {
			log.Debug("Dropping friend_request from anonymous socket")
			return
		}
		var p events.OutgoingFriendRequest
		if err := json.Unmarshal(a.Data, &p); err != nil || p.To == "" {
			log.Debug("Dropping malformed friend_request", "error", err)
			return
		}
		created, err := s.Store.AddFriendRequest(a.Session, p.To)
		if err != nil {
			log.Debug("Rejected friend_request", "to", p.To, "error", err)
			return
		}
		if created {
			handlers.AnnounceFriendRequest(s.Hub, a.Session, p.To)
		}
	}
}

// deliver sends a stored message to every connection of both participants.
func (s *Server) deliver(msg domain.ChatMessage) {
	for _, key := range participants(msg) {
		if _, err := s.Hub.SendTo(key, events.TopicDM.Name(), msg); err != nil {
			s.logger.Error("Failed to deliver dm", "to", key, "error", err)
		}
	}
}

func participants(msg domain.ChatMessage) []string {
	if msg.From == msg.To {
		return []string{msg.From}
	}
	return []string{msg.From, msg.To}
}
