package clinicweb

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/views"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

// page assembles the data shared by every page, consuming queued flashes.
// Call it before anything is written to the response.
func (a *App) page(c echo.Context, title string) views.Page {
	flash, failed := takeFlashes(c)
	return views.Page{
		Site: a.Config.site(),
		Meta: views.PageMeta{
			Title:       title,
			Description: a.Config.Description,
			URL:         BuildURL(a.Config.URL, c.Request().URL.Path),
			OGType:      "website",
		},
		User:  currentUser(c),
		CSRF:  CsrfToken(c),
		Flash: flash,
		Error: failed,
	}
}

// fail reports a backend error to the user and redirects. An expired
// session goes to the login page, which links back to where the user was.
func (a *App) fail(c echo.Context, err error, back string) error {
	a.log.Warn().Err(err).Str("path", c.Request().URL.Path).Msg("clinicweb: backend call failed")
	addFlash(c, flashError, api.UserMessage(err))
	if errors.Is(err, api.ErrSessionExpired) {
		return c.Redirect(http.StatusSeeOther, "/login/?next="+url.QueryEscape(back))
	}
	return c.Redirect(http.StatusSeeOther, back)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound(views.ErrorPage{Page: a.page(c, "Not found")}))
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("clinicweb: server error")
		_ = RenderStatus(c, code, a.Views.ServerError(views.ErrorPage{Page: a.page(c, "Something went wrong")}))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}

// isNotFound reports a backend 404, which list endpoints use for "none yet".
func isNotFound(err error) bool {
	return errors.Is(err, api.ErrNotFound)
}

func isSessionExpired(err error) bool {
	return errors.Is(err, api.ErrSessionExpired)
}
