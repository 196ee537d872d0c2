package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/livedash/internal/bots"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/events"
	"github.com/nfrund/livedash/internal/middleware"
	"github.com/nfrund/livedash/internal/view"
)

// BotRunner starts bot scripts.
type BotRunner interface {
	Available() ([]string, error)
	Running() []string
	Start(ctx context.Context, name string) error
}

// AdminHandler serves the admin page and its actions. Routes must be guarded
// by middleware.Auth and middleware.Admin.
type AdminHandler struct {
	hub      Broadcaster
	presence OnlineLister
	bots     BotRunner
}

// NewAdminHandler creates a new AdminHandler. bots may be nil.
func NewAdminHandler(hub Broadcaster, presence OnlineLister, bots BotRunner) *AdminHandler {
	return &AdminHandler{hub: hub, presence: presence, bots: bots}
}

// Page renders the admin page (GET /admin).
func (h *AdminHandler) Page(c echo.Context) error {
	data := view.AdminData{
		User:    middleware.CurrentUser(c),
		Online:  h.presence.OnlineUsers(),
		Flashes: view.GetFlashData(c),
	}
	if h.bots != nil {
		available, err := h.bots.Available()
		if err != nil {
			slog.Warn("Failed to list bot scripts", "error", err)
		}
		data.Bots = available
		data.Running = h.bots.Running()
	}
	return c.Render(http.StatusOK, "", view.AdminPage(data))
}

// Broadcast sends a system_message to every socket (POST /admin/broadcast).
func (h *AdminHandler) Broadcast(c echo.Context) error {
	var req BroadcastRequest
	_ = c.Bind(&req)
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return h.respond(c, http.StatusBadRequest, domain.ErrEmptyMessage.Error(), true)
	}

	if err := h.hub.Broadcast(events.TopicSystemMessage.Name(), events.SystemBroadcast{Text: req.Text}); err != nil {
		return h.respond(c, http.StatusInternalServerError, err.Error(), true)
	}
	slog.Info("System broadcast sent", "by", middleware.CurrentUser(c), "text", req.Text)
	return h.respond(c, http.StatusOK, "Broadcast sent", false)
}

// StartBot starts the :name bot (POST /admin/bots/:name/start).
func (h *AdminHandler) StartBot(c echo.Context) error {
	if h.bots == nil {
		return h.respond(c, http.StatusNotFound, "bots are disabled", true)
	}
	name := c.Param("name")
	err := h.bots.Start(c.Request().Context(), name)
	switch {
	case err == nil:
		return h.respond(c, http.StatusOK, "Started "+name, false)
	case errors.Is(err, bots.ErrAlreadyRunning):
		return h.respond(c, http.StatusConflict, name+" is already running", true)
	default:
		return h.respond(c, errorStatus(err), err.Error(), true)
	}
}

// respond answers htmx requests with a result fragment, JSON clients with
// JSON, and plain form posts with a flash and a redirect back to the page.
func (h *AdminHandler) respond(c echo.Context, code int, message string, failed bool) error {
	req := c.Request()
	switch {
	case req.Header.Get("HX-Request") == "true":
		return c.Render(code, "", view.Result(message, failed))
	case strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON):
		if failed {
			return jsonError(c, code, message)
		}
		return c.JSON(code, OKResponse{Success: true})
	default:
		if failed {
			view.SetFlashError(c, message)
		} else {
			view.SetFlashSuccess(c, message)
		}
		return c.Redirect(http.StatusSeeOther, "/admin")
	}
}
