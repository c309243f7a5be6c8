package clinicweb

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/forms"
	"github.com/nutriplan/clinicweb/views"
)

// paymentsPage loads everything the payments dashboard shows. Backend
// failures are reported on the page rather than failing it.
func (a *App) paymentsPage(c echo.Context, ws *workspace) (views.AdminPaymentsPage, error) {
	data := views.AdminPaymentsPage{
		Page:     a.page(c, "Payments"),
		Expiring: ws.notifier.State(),
		Plans:    a.Config.Plans,
	}
	tokens := a.tokens(c)
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() error {
		history, err := a.API.PaymentHistory(ctx, tokens)
		if isNotFound(err) {
			return nil
		}
		data.History = history
		return err
	})
	g.Go(func() error {
		list, err := a.API.ListAppointments(ctx, tokens)
		if isNotFound(err) {
			return nil
		}
		data.Appointments = list
		return err
	})
	return data, g.Wait()
}

func (a *App) handleAdminPayments(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	data, err := a.paymentsPage(c, ws)
	if err != nil {
		if isSessionExpired(err) {
			return a.fail(c, err, "/admin/payments/")
		}
		a.log.Warn().Err(err).Msg("clinicweb: load payments dashboard")
		data.Error = api.UserMessage(err)
	}

	q := c.QueryParams()
	data.Form = forms.PaymentLinkForm{
		UserID:        q.Get("user_id"),
		PlanType:      q.Get("plan_type"),
		CustomerName:  q.Get("customer_name"),
		CustomerEmail: q.Get("customer_email"),
		CustomerPhone: q.Get("customer_phone"),
	}
	if data.Form.PlanType == "" && len(a.Config.Plans) > 0 {
		data.Form.PlanType = a.Config.Plans[0].PlanType
	}
	if p, ok := a.Config.plan(data.Form.PlanType); ok {
		data.Form.Amount = p.Price.StringFixed(2)
		data.Form.Purpose = "Subscription: " + p.Name
	}
	return Render(c, a.Views.AdminPayments(data))
}

func (a *App) handlePaymentLink(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	var form forms.PaymentLinkForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}
	errs, err := forms.Check(form)
	if err != nil {
		return err
	}

	var link *api.PaymentLink
	if errs == nil {
		req := form.Request(a.Config.Currency, a.Config.PaymentNotifyURL, a.Config.PaymentReturnURL)
		if p, ok := a.Config.plan(form.PlanType); ok && form.Purpose == "" {
			req.LinkPurpose = "Subscription: " + p.Name
		}
		res, err := a.API.CreatePaymentLink(c.Request().Context(), a.tokens(c), req)
		if err != nil {
			return a.fail(c, err, "/admin/payments/")
		}
		link = &res
		a.log.Info().Str("link", res.LinkID).Str("user", form.UserID).Msg("clinicweb: payment link created")
	}

	data, loadErr := a.paymentsPage(c, ws)
	if loadErr != nil {
		data.Error = api.UserMessage(loadErr)
	}
	data.Form, data.Errors, data.Link = form, errs, link
	code := http.StatusOK
	if errs != nil {
		code = http.StatusUnprocessableEntity
	}
	return RenderStatus(c, code, a.Views.AdminPayments(data))
}

// handleExpiringPanel renders the panel the dashboard polls. ?refresh=1
// runs a poll cycle now instead of returning the last result.
func (a *App) handleExpiringPanel(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	state := ws.notifier.State()
	if c.QueryParam("refresh") == "1" {
		state = ws.notifier.Poll(c.Request().Context())
	}
	return Render(c, a.Views.ExpiringPanel(views.AdminPaymentsPage{Page: views.Page{CSRF: CsrfToken(c)}, Expiring: state}))
}

func (a *App) handleAdminAppointments(c echo.Context) error {
	if _, err := a.workspace(c); err != nil {
		return err
	}
	list, err := a.API.ListAppointments(c.Request().Context(), a.tokens(c))
	if err != nil && !isNotFound(err) {
		return a.fail(c, err, "/admin/")
	}
	status := c.QueryParam("status")
	switch status {
	case api.StatusScheduled, api.StatusCompleted, api.StatusCancelled:
		filtered := list[:0:0]
		for _, ap := range list {
			if ap.Status == status {
				filtered = append(filtered, ap)
			}
		}
		list = filtered
	default:
		status = ""
	}
	return Render(c, a.Views.AdminAppointments(views.AdminAppointmentsPage{
		Page:         a.page(c, "Schedule"),
		Appointments: list,
		Status:       status,
	}))
}

func (a *App) handleAppointmentStatus(c echo.Context) error {
	if _, err := a.workspace(c); err != nil {
		return err
	}
	back := refererPath(c, "/admin/appointments/")
	status := c.FormValue("status")
	switch status {
	case api.StatusScheduled, api.StatusCompleted, api.StatusCancelled:
	default:
		addFlash(c, flashError, "Unknown appointment status.")
		return c.Redirect(http.StatusSeeOther, back)
	}

	ctx := c.Request().Context()
	id := api.ID(c.Param("id"))
	list, err := a.API.ListAppointments(ctx, a.tokens(c))
	if err != nil {
		return a.fail(c, err, back)
	}
	for _, ap := range list {
		if ap.ID != id {
			continue
		}
		ap.Status = status
		if _, err := a.API.UpdateAppointment(ctx, a.tokens(c), id, ap); err != nil {
			return a.fail(c, err, back)
		}
		addFlash(c, flashOK, "Appointment marked "+status+".")
		return c.Redirect(http.StatusSeeOther, back)
	}
	addFlash(c, flashError, "That appointment no longer exists.")
	return c.Redirect(http.StatusSeeOther, back)
}
