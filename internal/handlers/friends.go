package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/livedash/internal/database"
	"github.com/nfrund/livedash/internal/events"
	"github.com/nfrund/livedash/internal/middleware"
)

// Broadcaster fans a wire event out to every connected socket.
type Broadcaster interface {
	Broadcast(event string, payload any) error
}

// FriendHandler manages friendships and friend requests.
type FriendHandler struct {
	store *database.Store
	hub   Broadcaster
}

// NewFriendHandler creates a new FriendHandler.
func NewFriendHandler(store *database.Store, hub Broadcaster) *FriendHandler {
	return &FriendHandler{store: store, hub: hub}
}

// List returns the session's friends (GET /api/friends/list).
func (h *FriendHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"friends": h.store.Friends(middleware.CurrentUser(c))})
}

// Requests returns pending requests to the session (GET /api/friends/requests).
func (h *FriendHandler) Requests(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"requests": h.store.FriendRequests(middleware.CurrentUser(c))})
}

// Add sends a friend request (POST /api/friends/add). A new request is
// announced to every socket with friend_request; clients filter by "to".
func (h *FriendHandler) Add(c echo.Context) error {
	var req AddFriendRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	self := middleware.CurrentUser(c)

	created, err := h.store.AddFriendRequest(self, req.FriendTag)
	if err != nil {
		return domainError(c, err)
	}
	if created {
		AnnounceFriendRequest(h.hub, self, req.FriendTag)
	}
	return c.JSON(http.StatusOK, OKResponse{Success: true})
}

// Accept accepts a pending request (POST /api/friends/accept).
func (h *FriendHandler) Accept(c echo.Context) error {
	var req AcceptFriendRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if err := h.store.AcceptFriend(middleware.CurrentUser(c), req.RequesterTag); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, OKResponse{Success: true})
}

// Remove ends a friendship (POST /api/friends/remove).
func (h *FriendHandler) Remove(c echo.Context) error {
	var req AddFriendRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if err := h.store.RemoveFriend(middleware.CurrentUser(c), req.FriendTag); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, OKResponse{Success: true})
}

// AnnounceFriendRequest broadcasts friend_request {from, to}.
func AnnounceFriendRequest(hub Broadcaster, from, to string) {
	payload := events.FriendRequest{From: from, To: to}
	if err := hub.Broadcast(events.TopicFriendRequest.Name(), payload); err != nil {
		slog.Error("Failed to broadcast friend request", "from", from, "to", to, "error", err)
	}
}
