package clinicweb

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/forms"
	"github.com/nutriplan/clinicweb/views"
)

func (a *App) appointmentsPage(c echo.Context, list []api.Appointment) views.AppointmentsPage {
	return views.AppointmentsPage{
		Page:              a.page(c, "Appointments"),
		Appointments:      list,
		ConsultationTypes: forms.ConsultationTypes,
	}
}

func (a *App) handleAppointments(c echo.Context) error {
	list, err := a.API.ListAppointments(c.Request().Context(), a.tokens(c))
	if err != nil && !isNotFound(err) {
		return a.fail(c, err, "/")
	}
	data := a.appointmentsPage(c, list)

	if id := c.QueryParam("edit"); id != "" {
		for _, ap := range list {
			if ap.ID.String() == id {
				data.EditID = id
				data.Form = appointmentForm(ap)
				break
			}
		}
	}
	if data.EditID == "" {
		data.Form = forms.AppointmentForm{ConsultationType: forms.ConsultationTypes[0]}
		if u := data.User; u != nil {
			data.Form.FullName, data.Form.Email, data.Form.PhoneNumber = u.FullName, u.Email, u.PhoneNumber
		}
	}
	return Render(c, a.Views.Appointments(data))
}

func (a *App) handleAppointmentCreate(c echo.Context) error {
	form, errs, err := a.bindAppointment(c)
	if err != nil {
		return err
	}
	if errs != nil {
		return a.rerenderAppointments(c, form, errs, "")
	}
	appt := form.Appointment()
	if u := currentUser(c); u != nil {
		appt.UserID = u.ID
	}
	if _, err := a.API.CreateAppointment(c.Request().Context(), a.tokens(c), appt); err != nil {
		return a.fail(c, err, "/appointments/")
	}
	addFlash(c, flashOK, "Your appointment is booked.")
	return c.Redirect(http.StatusSeeOther, "/appointments/")
}

func (a *App) handleAppointmentUpdate(c echo.Context) error {
	id := c.Param("id")
	form, errs, err := a.bindAppointment(c)
	if err != nil {
		return err
	}
	if errs != nil {
		return a.rerenderAppointments(c, form, errs, id)
	}
	if _, err := a.API.UpdateAppointment(c.Request().Context(), a.tokens(c), api.ID(id), form.Appointment()); err != nil {
		return a.fail(c, err, "/appointments/?edit="+id)
	}
	addFlash(c, flashOK, "Your appointment has been rescheduled.")
	return c.Redirect(http.StatusSeeOther, "/appointments/")
}

func (a *App) handleAppointmentDelete(c echo.Context) error {
	if err := a.API.DeleteAppointment(c.Request().Context(), a.tokens(c), api.ID(c.Param("id"))); err != nil {
		return a.fail(c, err, "/appointments/")
	}
	addFlash(c, flashOK, "Your appointment has been cancelled.")
	return c.Redirect(http.StatusSeeOther, "/appointments/")
}

// bindAppointment reads and checks the booking form. Members cannot set
// the status, and cannot book in the past.
func (a *App) bindAppointment(c echo.Context) (forms.AppointmentForm, forms.FieldErrors, error) {
	var form forms.AppointmentForm
	if err := c.Bind(&form); err != nil {
		return form, nil, echo.ErrBadRequest
	}
	form.Status = ""
	errs, err := forms.Check(form)
	if err != nil || errs != nil {
		return form, errs, err
	}
	return form, form.NotInPast(a.now()), nil
}

func (a *App) rerenderAppointments(c echo.Context, form forms.AppointmentForm, errs forms.FieldErrors, editID string) error {
	list, err := a.API.ListAppointments(c.Request().Context(), a.tokens(c))
	if err != nil && !isNotFound(err) {
		a.log.Warn().Err(err).Msg("clinicweb: list appointments")
	}
	data := a.appointmentsPage(c, list)
	data.Form, data.Errors, data.EditID = form, errs, editID
	return RenderStatus(c, http.StatusUnprocessableEntity, a.Views.Appointments(data))
}

func appointmentForm(ap api.Appointment) forms.AppointmentForm {
	return forms.AppointmentForm{
		FullName:         ap.FullName,
		Email:            ap.Email,
		PhoneNumber:      ap.PhoneNumber,
		Date:             ap.AppointmentDate,
		Time:             ap.AppointmentTime,
		ConsultationType: ap.ConsultationType,
		Notes:            ap.Notes,
		Status:           ap.Status,
	}
}
