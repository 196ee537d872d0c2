package view_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/view"
)

// flashServer mirrors the admin flow: a POST stores a flash and redirects,
// the following GET renders and consumes it.
func flashServer() *echo.Echo {
	e := echo.New()
	e.Use(session.Middleware(sessions.NewCookieStore([]byte("flash-test-secret-0123456789"))))
	e.POST("/bots/start", func(c echo.Context) error {
		if c.FormValue("script") == "" {
			view.SetFlashError(c, "No script selected")
		} else {
			view.SetFlashSuccess(c, "Started "+c.FormValue("script"))
		}
		return c.Redirect(http.StatusSeeOther, "/admin")
	})
	e.GET("/admin", func(c echo.Context) error {
		var buf bytes.Buffer
		if err := view.Flashes(view.GetFlashData(c)).Render(&buf); err != nil {
			return err
		}
		return c.HTML(http.StatusOK, buf.String())
	})
	return e
}

func roundTrip(t *testing.T, e *echo.Echo, form string, cookies []*http.Cookie) (*httptest.ResponseRecorder, []*http.Cookie) {
	t.Helper()
	var req *http.Request
	if form != "" {
		req = httptest.NewRequest(http.MethodPost, "/bots/start", bytes.NewBufferString(form))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	} else {
		req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Result().Cookies(); len(got) > 0 {
		cookies = got
	}
	return rec, cookies
}

func TestFlash_SurvivesRedirectOnce(t *testing.T) {
	e := flashServer()

	rec, cookies := roundTrip(t, e, "script=greeter", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.NotEmpty(t, cookies, "the flash lives in the session cookie")

	rec, cookies = roundTrip(t, e, "", cookies)
	assert.Contains(t, rec.Body.String(), `<div class="flash flash-success" role="status">Started greeter</div>`)

	rec, _ = roundTrip(t, e, "", cookies)
	assert.NotContains(t, rec.Body.String(), "Started greeter", "flashes are consumed on read")
}

func TestFlash_ErrorUsesAlertRole(t *testing.T) {
	e := flashServer()

	_, cookies := roundTrip(t, e, "script=", nil)
	rec, _ := roundTrip(t, e, "", cookies)

	assert.Contains(t, rec.Body.String(), `<div class="flash flash-error" role="alert">No script selected</div>`)
}

func TestFlashes_EmptyData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, view.Flashes(view.FlashData{}).Render(&buf))
	assert.Equal(t, `<div id="flashes"></div>`, buf.String())
}
