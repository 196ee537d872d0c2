// Package rendering lets echo handlers answer with c.Render for both templ
// components and gomponents nodes.
package rendering

import (
	"errors"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	g "maragu.dev/gomponents"
)

// ErrNothingToRender is returned when a handler renders a nil value.
var ErrNothingToRender = errors.New("rendering: nothing to render")

// Renderer is the backend's echo.Renderer. The template name is unused:
// the value passed as data is the component.
type Renderer struct{}

var _ echo.Renderer = Renderer{}

// New returns the renderer to install as echo.Echo.Renderer.
func New() Renderer { return Renderer{} }

// Render writes data, which must be a templ.Component or a g.Node. Templ
// components see the request context.
func (Renderer) Render(w io.Writer, _ string, data any, c echo.Context) error {
	switch v := data.(type) {
	case nil:
		return ErrNothingToRender
	case templ.Component:
		return v.Render(c.Request().Context(), w)
	case g.Node:
		return v.Render(w)
	default:
		return fmt.Errorf("rendering: cannot render %T", data)
	}
}
