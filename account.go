package clinicweb

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/forms"
	"github.com/nutriplan/clinicweb/views"
)

func (a *App) handleLoginPage(c echo.Context) error {
	next := safeNext(c.QueryParam("next"))
	if currentUser(c) != nil {
		return c.Redirect(http.StatusSeeOther, or(next, "/"))
	}
	return Render(c, a.Views.Login(views.LoginPage{Page: a.page(c, "Sign in"), Next: next}))
}

func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	var form forms.LoginForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}
	form.Email = strings.TrimSpace(form.Email)
	next := safeNext(c.FormValue("next"))
	data := views.LoginPage{Page: a.page(c, "Sign in"), Form: forms.LoginForm{Email: form.Email}, Next: next}

	if !a.loginLimiter.Check(ip) {
		data.Error = "Too many sign-in attempts. Try again in a minute."
		return RenderStatus(c, http.StatusTooManyRequests, a.Views.Login(data))
	}
	fieldErrs, err := forms.Check(form)
	if err != nil {
		return err
	}
	if fieldErrs != nil {
		data.Errors = fieldErrs
		return RenderStatus(c, http.StatusUnprocessableEntity, a.Views.Login(data))
	}

	ctx := c.Request().Context()
	res, err := a.API.Login(ctx, form.Email, form.Password)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, api.ErrValidation) || errors.Is(err, api.ErrNotFound) {
			a.loginLimiter.Record(ip)
			data.Error = "Incorrect email or password."
		} else {
			a.log.Warn().Err(err).Msg("clinicweb: login failed")
			data.Error = api.UserMessage(err)
		}
		return Render(c, a.Views.Login(data))
	}

	user := res.User
	if user == nil {
		u, err := a.API.UserInfo(ctx, api.NewMemoryTokens(res.Tokens))
		if err != nil {
			data.Error = api.UserMessage(err)
			return Render(c, a.Views.Login(data))
		}
		user = &u
	}
	if err := setLogin(c, res.Tokens, *user); err != nil {
		return err
	}
	a.workspaces.adopt(workspaceKey(user), res.Tokens)

	if next == "" {
		next = "/profile/"
		if user.Admin() {
			next = "/admin/"
		}
	}
	return c.Redirect(http.StatusSeeOther, next)
}

func (a *App) handleRegisterPage(c echo.Context) error {
	if currentUser(c) != nil {
		return c.Redirect(http.StatusSeeOther, "/profile/")
	}
	return Render(c, a.Views.Register(views.RegisterPage{Page: a.page(c, "Create an account")}))
}

func (a *App) handleRegister(c echo.Context) error {
	var form forms.RegisterForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}
	data := views.RegisterPage{Page: a.page(c, "Create an account"), Form: form}
	data.Form.Password, data.Form.ConfirmPassword = "", ""

	fieldErrs, err := forms.Check(form)
	if err != nil {
		return err
	}
	if fieldErrs != nil {
		data.Errors = fieldErrs
		return RenderStatus(c, http.StatusUnprocessableEntity, a.Views.Register(data))
	}
	if _, err := a.API.Register(c.Request().Context(), form.Request()); err != nil {
		a.log.Warn().Err(err).Msg("clinicweb: register failed")
		data.Error = api.UserMessage(err)
		return Render(c, a.Views.Register(data))
	}
	addFlash(c, flashOK, "Your account is ready. Please sign in.")
	return c.Redirect(http.StatusSeeOther, "/login/")
}

func (a *App) handleLogout(c echo.Context) error {
	if u := currentUser(c); u != nil && u.Admin() {
		a.workspaces.end(workspaceKey(u))
	}
	if err := clearLogin(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func (a *App) handleProfile(c echo.Context) error {
	ctx := c.Request().Context()
	tokens := a.tokens(c)

	var (
		user    api.User
		history []api.Subscription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = a.API.UserInfo(gctx, tokens)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = a.API.PaymentHistory(gctx, tokens)
		if isNotFound(err) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		if isSessionExpired(err) {
			return a.fail(c, err, "/profile/")
		}
		p := a.page(c, "Your profile")
		p.Error = api.UserMessage(err)
		data := views.ProfilePage{Page: p}
		if p.User != nil {
			data.Form = profileForm(*p.User)
		}
		return Render(c, a.Views.Profile(data))
	}
	if err := setUser(c, user); err != nil {
		return err
	}
	p := a.page(c, "Your profile")
	p.User = &user
	return Render(c, a.Views.Profile(views.ProfilePage{Page: p, Form: profileForm(user), Subscriptions: history}))
}

func (a *App) handleProfileSave(c echo.Context) error {
	var form forms.ProfileForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}
	fieldErrs, err := forms.Check(form)
	if err != nil {
		return err
	}
	if fieldErrs != nil {
		p := a.page(c, "Your profile")
		return RenderStatus(c, http.StatusUnprocessableEntity, a.Views.Profile(views.ProfilePage{Page: p, Form: form, Errors: fieldErrs}))
	}
	user, err := a.API.UpdateUser(c.Request().Context(), a.tokens(c), form.Request())
	if err != nil {
		return a.fail(c, err, "/profile/")
	}
	if user.Email == "" {
		// Some backends answer with a bare acknowledgement.
		if u := currentUser(c); u != nil {
			user = *u
			user.FullName, user.PhoneNumber, user.Address = form.FullName, form.PhoneNumber, form.Address
		}
	}
	if err := setUser(c, user); err != nil {
		return err
	}
	addFlash(c, flashOK, "Your profile has been updated.")
	return c.Redirect(http.StatusSeeOther, "/profile/")
}

func profileForm(u api.User) forms.ProfileForm {
	return forms.ProfileForm{FullName: u.FullName, PhoneNumber: u.PhoneNumber, Address: u.Address}
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
