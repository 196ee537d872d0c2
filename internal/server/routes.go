package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/livedash/internal/handlers"
	"github.com/nfrund/livedash/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes(loginRate float64) {
	authHandler := handlers.NewAuthHandler(s.Store)
	presenceHandler := handlers.NewPresenceHandler(s.Tracker, nil)
	messageHandler := handlers.NewMessageHandler(s.Store)
	friendHandler := handlers.NewFriendHandler(s.Store, s.Hub)
	adminHandler := handlers.NewAdminHandler(s.Hub, s.Tracker, s.Bots)
	rateLimiter := middleware.Throttle(loginRate)

	s.E.GET(s.Cfg.SocketPath, s.serveSocket)

	s.E.GET("/api/auth/status", authHandler.Status)
	s.E.POST("/api/auth/login", authHandler.Login, rateLimiter)
	s.E.POST("/api/auth/logout", authHandler.Logout)
	s.E.GET("/api/online-users", presenceHandler.GetOnlineUsers)

	api := s.E.Group("/api", middleware.Auth())
	api.GET("/messages/list", messageHandler.List)
	api.GET("/messages/:tag", messageHandler.History)
	api.POST("/notifications/clear", messageHandler.ClearNotifications)
	api.GET("/friends/list", friendHandler.List)
	api.GET("/friends/requests", friendHandler.Requests)
	api.POST("/friends/add", friendHandler.Add)
	api.POST("/friends/accept", friendHandler.Accept)
	api.POST("/friends/remove", friendHandler.Remove)

	admin := s.E.Group("/admin", middleware.Auth(), middleware.Admin(s.Store.IsAdmin))
	admin.GET("", adminHandler.Page)
	admin.GET("/presence", presenceHandler.GetPresenceHTML)
	admin.POST("/broadcast", adminHandler.Broadcast)
	admin.POST("/bots/:name/start", adminHandler.StartBot)

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}

// serveSocket upgrades to the websocket hub. The session user, if any,
// becomes the connection's default identity.
func (s *Server) serveSocket(c echo.Context) error {
	// Serve blocks until the socket closes; the hijacked connection has no
	// response left to write.
	_ = s.Hub.Serve(c.Response(), c.Request(), middleware.SessionUser(c))
	return nil
}
