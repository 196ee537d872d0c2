package middleware

import (
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	// UserContextKey holds the session's usertag on the echo context.
	UserContextKey = "usertag"

	// SessionName is the cookie session the reference backend stores its
	// login in.
	SessionName = "livedash-session"

	sessionKeyUser = "usertag"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// SessionUser returns the usertag stored in the session, or "".
func SessionUser(c echo.Context) string {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return ""
	}
	tag, _ := sess.Values[sessionKeyUser].(string)
	return tag
}

// Login stores tag in the session cookie.
func Login(c echo.Context, tag string) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	sess.Values[sessionKeyUser] = tag
	return sess.Save(c.Request(), c.Response())
}

// Logout clears the session cookie.
func Logout(c echo.Context) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	delete(sess.Values, sessionKeyUser)
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// CurrentUser returns the usertag set by Auth.
func CurrentUser(c echo.Context) string {
	tag, _ := c.Get(UserContextKey).(string)
	return tag
}

// Auth rejects requests without a logged-in session with 401 and stores the
// usertag on the context for downstream handlers.
func Auth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tag := SessionUser(c)
			if tag == "" {
				return c.JSON(http.StatusUnauthorized, ErrorBody{Error: "not logged in"})
			}
			c.Set(UserContextKey, tag)
			return next(c)
		}
	}
}

// Admin must run after Auth. isAdmin decides whether the usertag may pass;
// everyone else gets 403.
func Admin(isAdmin func(tag string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !isAdmin(CurrentUser(c)) {
				return c.JSON(http.StatusForbidden, ErrorBody{Error: "admin only"})
			}
			return next(c)
		}
	}
}
