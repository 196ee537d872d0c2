package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nfrund/livedash/internal/domain"
)

// Status is the body of GET /api/auth/status.
type Status struct {
	LoggedIn      bool                  `json:"loggedIn"`
	Identity      domain.Identity       `json:"-"`
	Notifications []domain.Notification `json:"notifications,omitempty"`
}

type statusBody struct {
	LoggedIn bool `json:"loggedIn"`
	domain.Identity
	Notifications []domain.Notification `json:"notifications"`
}

// Status queries the current session.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var body statusBody
	if err := c.do(ctx, http.MethodGet, "/api/auth/status", nil, &body); err != nil {
		return Status{}, err
	}
	if body.AnimatedColors == nil {
		body.AnimatedColors = []string{}
	}
	if !body.LoggedIn {
		body.Identity = domain.Identity{AnimatedColors: []string{}}
	}
	return Status{LoggedIn: body.LoggedIn, Identity: body.Identity, Notifications: body.Notifications}, nil
}

// Login posts credentials. The session cookie lands in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.do(ctx, http.MethodPost, "/api/auth/login", body, nil)
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// OnlineUsers returns the presence snapshot.
func (c *Client) OnlineUsers(ctx context.Context) ([]string, error) {
	var body struct {
		Online []string `json:"online"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/online-users", nil, &body); err != nil {
		return nil, err
	}
	return body.Online, nil
}

// Messages returns the chat history with counterpart in chronological order.
func (c *Client) Messages(ctx context.Context, counterpart string) ([]domain.ChatMessage, error) {
	var body struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(counterpart), nil, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// Conversations returns the messages page list.
func (c *Client) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	var body struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages/list", nil, &body); err != nil {
		return nil, err
	}
	return body.Conversations, nil
}

// ClearNotifications marks the session's notifications as seen.
func (c *Client) ClearNotifications(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/clear", nil, nil)
}

// Friends returns the session's friend list.
func (c *Client) Friends(ctx context.Context) ([]string, error) {
	var body struct {
		Friends []string `json:"friends"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/friends/list", nil, &body); err != nil {
		return nil, err
	}
	return body.Friends, nil
}

// FriendRequests returns the identities with a pending request to the session.
func (c *Client) FriendRequests(ctx context.Context) ([]string, error) {
	var body struct {
		Requests []string `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/friends/requests", nil, &body); err != nil {
		return nil, err
	}
	return body.Requests, nil
}

// AddFriend sends a friend request to friendTag. The backend announces it
// with a friend_request event.
func (c *Client) AddFriend(ctx context.Context, friendTag string) error {
	return c.do(ctx, http.MethodPost, "/api/friends/add", map[string]string{"friendTag": friendTag}, nil)
}

// AcceptFriend accepts a pending request from requesterTag.
func (c *Client) AcceptFriend(ctx context.Context, requesterTag string) error {
	return c.do(ctx, http.MethodPost, "/api/friends/accept", map[string]string{"requesterTag": requesterTag}, nil)
}

// RemoveFriend removes friendTag from the friend list.
func (c *Client) RemoveFriend(ctx context.Context, friendTag string) error {
	return c.do(ctx, http.MethodPost, "/api/friends/remove", map[string]string{"friendTag": friendTag}, nil)
}
