// Package database holds the reference backend's state in memory: accounts,
// direct messages, friendships and per-user notifications.
package database

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nfrund/livedash/internal/domain"
)

// User is an account of the reference backend.
type User struct {
	Tag      string
	Name     string
	Password string
	Color    string
	Avatar   string
	Admin    bool
}

// Identity converts u to the status response shape.
func (u User) Identity() domain.Identity {
	role := domain.RoleUser
	if u.Admin {
		role = domain.RoleAdmin
	}
	return domain.Identity{
		Key:            u.Tag,
		DisplayName:    u.Name,
		Color:          u.Color,
		Role:           role,
		Avatar:         u.Avatar,
		IsAdmin:        u.Admin,
		AnimatedColors: []string{},
	}
}

// DefaultUsers are the accounts a fresh devserver knows. Every password is
// "password".
func DefaultUsers() []User {
	return []User{
		{Tag: "alice", Name: "Alice", Password: "password", Color: "#e91e63"},
		{Tag: "bob", Name: "Bob", Password: "password", Color: "#2196f3"},
		{Tag: "carol", Name: "Carol", Password: "password", Color: "#4caf50"},
		{Tag: "admin", Name: "Admin", Password: "password", Color: "#ff9800", Admin: true},
	}
}

// maxNotifications bounds each user's stored notifications.
const maxNotifications = 50

// Store holds all backend state in memory.
type Store struct {
	mu            sync.RWMutex
	users         map[string]User
	messages      []domain.ChatMessage
	friends       map[string]map[string]bool
	requests      map[string][]string // target -> requesters, oldest first
	notifications map[string][]domain.Notification
	now           func() time.Time
}

// NewStore creates a store with users.
func NewStore(users []User) *Store {
	s := &Store{
		users:         make(map[string]User, len(users)),
		friends:       make(map[string]map[string]bool),
		requests:      make(map[string][]string),
		notifications: make(map[string][]domain.Notification),
		now:           time.Now,
	}
	for _, u := range users {
		s.users[u.Tag] = u
	}
	return s
}

// Authenticate checks credentials. name matches either the usertag or the
// display name, case-insensitively.
func (s *Store) Authenticate(name, password string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if (u.Tag == name || strings.EqualFold(u.Name, name)) && u.Password == password {
			return u, true
		}
	}
	return User{}, false
}

// User looks up tag.
func (s *Store) User(tag string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[tag]
	return u, ok
}

// IsAdmin reports whether tag is an admin account.
func (s *Store) IsAdmin(tag string) bool {
	u, ok := s.User(tag)
	return ok && u.Admin
}

// AddMessage stores a direct message.
func (s *Store) AddMessage(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns the conversation between a and b, oldest first.
func (s *Store) Messages(a, b string) []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ChatMessage{}
	for _, m := range s.messages {
		if (m.From == a && m.To == b) || (m.From == b && m.To == a) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Conversations lists self's counterparts, most recent first.
func (s *Store) Conversations(self string) []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := make(map[string]domain.ChatMessage)
	for _, m := range s.messages {
		if !m.Involves(self) {
			continue
		}
		other := m.Counterpart(self)
		if prev, ok := last[other]; !ok || m.Timestamp >= prev.Timestamp {
			last[other] = m
		}
	}

	out := make([]domain.Conversation, 0, len(last))
	for other, m := range last {
		c := domain.Conversation{
			Key:           other,
			LastMessage:   m.Text,
			LastTimestamp: m.Timestamp,
			Unread:        m.To == self,
		}
		if u, ok := s.users[other]; ok {
			c.DisplayName = u.Name
			c.Avatar = u.Avatar
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastTimestamp > out[j].LastTimestamp })
	return out
}

// AddFriendRequest records a request from from to to and leaves a
// notification for to. It reports whether a new request was created.
func (s *Store) AddFriendRequest(from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from == to {
		return false, fmt.Errorf("cannot befriend yourself: %w", domain.ErrInvalidPayload)
	}
	if _, ok := s.users[to]; !ok {
		return false, fmt.Errorf("user %s: %w", to, domain.ErrNotFound)
	}
	if s.friends[from][to] {
		return false, fmt.Errorf("%s and %s are already friends: %w", from, to, domain.ErrInvalidPayload)
	}
	for _, r := range s.requests[to] {
		if r == from {
			return false, nil
		}
	}
	s.requests[to] = append(s.requests[to], from)
	s.notifyLocked(to, domain.Notification{
		Kind: domain.NotificationFriendRequest,
		Text: "Friend request from @" + from,
		From: from,
	})
	return true, nil
}

// AcceptFriend turns requester's pending request to self into a friendship.
func (s *Store) AcceptFriend(self, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.requests[self]
	idx := -1
	for i, r := range pending {
		if r == requester {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no request from %s: %w", requester, domain.ErrNotFound)
	}
	s.requests[self] = append(pending[:idx:idx], pending[idx+1:]...)
	s.linkLocked(self, requester)
	s.linkLocked(requester, self)
	return nil
}

func (s *Store) linkLocked(a, b string) {
	if s.friends[a] == nil {
		s.friends[a] = make(map[string]bool)
	}
	s.friends[a][b] = true
}

// RemoveFriend ends the friendship between self and tag.
func (s *Store) RemoveFriend(self, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.friends[self][tag] {
		return fmt.Errorf("%s is not a friend: %w", tag, domain.ErrNotFound)
	}
	delete(s.friends[self], tag)
	delete(s.friends[tag], self)
	return nil
}

// Friends returns self's friends, sorted.
func (s *Store) Friends(self string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []string{}
	for tag := range s.friends[self] {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// FriendRequests returns the requesters pending for self, oldest first.
func (s *Store) FriendRequests(self string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.requests[self]...)
}

// Notify stores a notification for tag.
func (s *Store) Notify(tag string, n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(tag, n)
}

func (s *Store) notifyLocked(tag string, n domain.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp == 0 {
		n.Timestamp = s.now().UnixMilli()
	}
	list := append([]domain.Notification{n}, s.notifications[tag]...)
	if len(list) > maxNotifications {
		list = list[:maxNotifications]
	}
	s.notifications[tag] = list
}

// Notifications returns tag's stored notifications, newest first.
func (s *Store) Notifications(tag string) []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Notification{}, s.notifications[tag]...)
}

// ClearNotifications drops tag's notifications.
func (s *Store) ClearNotifications(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notifications, tag)
}
