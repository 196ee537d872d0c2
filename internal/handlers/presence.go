package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/livedash/internal/presence"
)

// OnlineLister reports who is online.
type OnlineLister interface {
	OnlineUsers() []string
}

// PresenceHandler handles presence-related HTTP requests
type PresenceHandler struct {
	presence OnlineLister
	renderer presence.PresenceRenderer
}

// NewPresenceHandler creates a new presence handler. A nil renderer selects
// presence.DefaultRenderer.
func NewPresenceHandler(p OnlineLister, renderer presence.PresenceRenderer) *PresenceHandler {
	if renderer == nil {
		renderer = presence.DefaultRenderer
	}
	return &PresenceHandler{presence: p, renderer: renderer}
}

// OnlineResponse is the body of GET /api/online-users.
type OnlineResponse struct {
	Online []string `json:"online"`
}

// GetOnlineUsers returns the current online users as JSON
func (h *PresenceHandler) GetOnlineUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, OnlineResponse{Online: h.presence.OnlineUsers()})
}

// GetPresenceHTML returns the presence list as HTML fragment for HTMX
func (h *PresenceHandler) GetPresenceHTML(c echo.Context) error {
	return c.Render(http.StatusOK, "", h.renderer(h.presence.OnlineUsers()))
}
