package handlers

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/livedash/internal/database"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/middleware"
)

// MessageHandler serves chat history and the conversation list.
type MessageHandler struct {
	store *database.Store
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(store *database.Store) *MessageHandler {
	return &MessageHandler{store: store}
}

// List returns the session's conversations (GET /api/messages/list).
func (h *MessageHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]domain.Conversation{
		"conversations": h.store.Conversations(middleware.CurrentUser(c)),
	})
}

// History returns the messages exchanged with :tag, oldest first
// (GET /api/messages/:tag).
func (h *MessageHandler) History(c echo.Context) error {
	other := c.Param("tag")
	// Params come from the escaped path when the request carries one.
	if v, err := url.PathUnescape(other); err == nil {
		other = v
	}
	if other == "" {
		return jsonError(c, http.StatusBadRequest, "missing usertag")
	}
	return c.JSON(http.StatusOK, map[string][]domain.ChatMessage{
		"messages": h.store.Messages(middleware.CurrentUser(c), other),
	})
}

// ClearNotifications drops the session's stored notifications
// (POST /api/notifications/clear).
func (h *MessageHandler) ClearNotifications(c echo.Context) error {
	h.store.ClearNotifications(middleware.CurrentUser(c))
	return c.JSON(http.StatusOK, OKResponse{Success: true})
}
