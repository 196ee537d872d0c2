package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/livedash/internal/database"
	"github.com/nfrund/livedash/internal/middleware"
)

// AuthHandler handles the session endpoints.
type AuthHandler struct {
	store *database.Store
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store *database.Store) *AuthHandler {
	return &AuthHandler{store: store}
}

// Status reports the session's identity and stored notifications
// (GET /api/auth/status). Anonymous sessions get loggedIn false, not 401.
func (h *AuthHandler) Status(c echo.Context) error {
	tag := middleware.SessionUser(c)
	user, ok := h.store.User(tag)
	if tag == "" || !ok {
		return c.JSON(http.StatusOK, StatusResponse{LoggedIn: false})
	}
	identity := user.Identity()
	return c.JSON(http.StatusOK, StatusResponse{
		LoggedIn:      true,
		Identity:      &identity,
		Notifications: h.store.Notifications(tag),
	})
}

// Login checks credentials and stores the usertag in the session cookie
// (POST /api/auth/login).
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	user, ok := h.store.Authenticate(req.Username, req.Password)
	if !ok {
		slog.Warn("Failed login attempt", "username", req.Username, "ip", c.RealIP())
		return jsonError(c, http.StatusUnauthorized, "invalid credentials")
	}
	if err := middleware.Login(c, user.Tag); err != nil {
		return err
	}
	slog.Info("User logged in", "usertag", user.Tag)
	return c.JSON(http.StatusOK, OKResponse{Success: true})
}

// Logout ends the session (POST /api/auth/logout).
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := middleware.Logout(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OKResponse{Success: true})
}
