// Package forms validates user input before anything is sent to the
// backend. Failures are reported per field so pages can show them inline.
package forms

import (
	"errors"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"

	"github.com/nutriplan/clinicweb/api"
)

// Layouts of the date and time inputs.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// FieldErrors maps a form field name to its message.
type FieldErrors map[string]string

// Get returns the message for field, or "".
func (f FieldErrors) Get(field string) string {
	if f == nil {
		return ""
	}
	return f[field]
}

// Check runs v.Validate. Validation failures come back as FieldErrors with
// a nil error; anything else is returned as an error.
func Check(v validation.Validatable) (FieldErrors, error) {
	err := v.Validate()
	if err == nil {
		return nil, nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	out := make(FieldErrors, len(verrs))
	for field, ferr := range verrs {
		var internal validation.InternalError
		if errors.As(ferr, &internal) {
			return nil, internal.InternalError()
		}
		out[field] = ferr.Error()
	}
	return out, nil
}

var (
	phoneRule = validation.Match(regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,18}[0-9]$`)).Error("enter a valid phone number")
	slugRule  = validation.Match(regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)).Error("use lowercase letters, digits and hyphens")
)

type LoginForm struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (f LoginForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Email, validation.Required.Error("email is required"), is.Email.Error("enter a valid email address")),
		validation.Field(&f.Password, validation.Required.Error("password is required")),
	)
}

type RegisterForm struct {
	FullName        string `form:"full_name" json:"full_name"`
	Email           string `form:"email" json:"email"`
	PhoneNumber     string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (f RegisterForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.FullName, validation.Required.Error("full name is required"), validation.Length(2, 100)),
		validation.Field(&f.Email, validation.Required.Error("email is required"), is.Email.Error("enter a valid email address")),
		validation.Field(&f.PhoneNumber, validation.Required.Error("phone number is required"), phoneRule),
		validation.Field(&f.Password,
			validation.Required.Error("password is required"),
			validation.Length(8, 128).Error("password must be 8-128 characters"),
		),
		validation.Field(&f.ConfirmPassword,
			validation.Required.Error("confirm your password"),
			validation.In(f.Password).Error("passwords do not match"),
		),
	)
}

func (f RegisterForm) Request() api.RegisterRequest {
	return api.RegisterRequest{
		FullName:    strings.TrimSpace(f.FullName),
		Email:       strings.TrimSpace(f.Email),
		Password:    f.Password,
		PhoneNumber: strings.TrimSpace(f.PhoneNumber),
	}
}

type ProfileForm struct {
	FullName    string `form:"full_name" json:"full_name"`
	PhoneNumber string `form:"phone_number" json:"phone_number"`
	Address     string `form:"address" json:"address"`
}

func (f ProfileForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.FullName, validation.Required.Error("full name is required"), validation.Length(2, 100)),
		validation.Field(&f.PhoneNumber, validation.When(f.PhoneNumber != "", phoneRule)),
		validation.Field(&f.Address, validation.Length(0, 300)),
	)
}

func (f ProfileForm) Request() api.UpdateUserRequest {
	return api.UpdateUserRequest{
		FullName:    strings.TrimSpace(f.FullName),
		PhoneNumber: strings.TrimSpace(f.PhoneNumber),
		Address:     strings.TrimSpace(f.Address),
	}
}

// ConsultationTypes lists the accepted appointment kinds.
var ConsultationTypes = []string{"online", "in-person", "phone"}

type AppointmentForm struct {
	FullName         string `form:"full_name" json:"full_name"`
	Email            string `form:"email" json:"email"`
	PhoneNumber      string `form:"phone_number" json:"phone_number"`
	Date             string `form:"appointment_date" json:"appointment_date"`
	Time             string `form:"appointment_time" json:"appointment_time"`
	ConsultationType string `form:"consultation_type" json:"consultation_type"`
	Notes            string `form:"notes" json:"notes"`
	Status           string `form:"status" json:"status"`
}

func (f AppointmentForm) Validate() error {
	types := make([]any, len(ConsultationTypes))
	for i, t := range ConsultationTypes {
		types[i] = t
	}
	return validation.ValidateStruct(&f,
		validation.Field(&f.FullName, validation.Required.Error("full name is required")),
		validation.Field(&f.Email, validation.Required.Error("email is required"), is.Email.Error("enter a valid email address")),
		validation.Field(&f.PhoneNumber, validation.Required.Error("phone number is required"), phoneRule),
		validation.Field(&f.Date, validation.Required.Error("pick a date"), validation.Date(DateLayout).Error("use the format YYYY-MM-DD")),
		validation.Field(&f.Time, validation.Required.Error("pick a time"), validation.Date(TimeLayout).Error("use the format HH:MM")),
		validation.Field(&f.ConsultationType, validation.Required.Error("choose a consultation type"), validation.In(types...).Error("choose a consultation type")),
		validation.Field(&f.Notes, validation.Length(0, 1000)),
		validation.Field(&f.Status, validation.In(api.StatusScheduled, api.StatusCompleted, api.StatusCancelled)),
	)
}

// NotInPast reports a field error when the appointment lies before now.
// It assumes Validate passed.
func (f AppointmentForm) NotInPast(now time.Time) FieldErrors {
	at, err := time.ParseInLocation(DateLayout+" "+TimeLayout, f.Date+" "+f.Time, now.Location())
	if err != nil || !at.Before(now) {
		return nil
	}
	return FieldErrors{"appointment_date": "appointments cannot be booked in the past"}
}

func (f AppointmentForm) Appointment() api.Appointment {
	status := f.Status
	if status == "" {
		status = api.StatusScheduled
	}
	return api.Appointment{
		FullName:         strings.TrimSpace(f.FullName),
		Email:            strings.TrimSpace(f.Email),
		PhoneNumber:      strings.TrimSpace(f.PhoneNumber),
		AppointmentDate:  f.Date,
		AppointmentTime:  f.Time,
		ConsultationType: f.ConsultationType,
		Notes:            strings.TrimSpace(f.Notes),
		Status:           status,
	}
}

type PaymentLinkForm struct {
	UserID        string `form:"user_id" json:"user_id"`
	Amount        string `form:"amount" json:"amount"`
	PlanType      string `form:"plan_type" json:"plan_type"`
	Purpose       string `form:"link_purpose" json:"link_purpose"`
	CustomerName  string `form:"customer_name" json:"customer_name"`
	CustomerEmail string `form:"customer_email" json:"customer_email"`
	CustomerPhone string `form:"customer_phone" json:"customer_phone"`
}

func (f PaymentLinkForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.UserID, validation.Required.Error("choose a client")),
		validation.Field(&f.Amount, validation.Required.Error("amount is required"), validation.By(positiveAmount)),
		validation.Field(&f.PlanType, validation.Required.Error("plan is required")),
		validation.Field(&f.CustomerName, validation.Required.Error("customer name is required")),
		validation.Field(&f.CustomerEmail, validation.Required.Error("customer email is required"), is.Email.Error("enter a valid email address")),
		validation.Field(&f.CustomerPhone, validation.Required.Error("customer phone is required"), phoneRule),
	)
}

func positiveAmount(value any) error {
	s, _ := value.(string)
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return errors.New("enter an amount such as 1499.00")
	}
	if !d.IsPositive() {
		return errors.New("amount must be greater than zero")
	}
	if d.Exponent() < -2 {
		return errors.New("amount can have at most two decimals")
	}
	return nil
}

// Request builds the payment link request. It assumes Validate passed.
func (f PaymentLinkForm) Request(currency, notifyURL, returnURL string) api.PaymentLinkRequest {
	amount, _ := decimal.NewFromString(strings.TrimSpace(f.Amount))
	purpose := f.Purpose
	if purpose == "" {
		purpose = "Subscription: " + f.PlanType
	}
	return api.PaymentLinkRequest{
		UserID:        api.ID(f.UserID),
		Amount:        amount,
		Currency:      currency,
		LinkPurpose:   purpose,
		CustomerName:  strings.TrimSpace(f.CustomerName),
		CustomerEmail: strings.TrimSpace(f.CustomerEmail),
		CustomerPhone: strings.TrimSpace(f.CustomerPhone),
		PlanType:      f.PlanType,
		NotifyURL:     notifyURL,
		ReturnURL:     returnURL,
	}
}

// BlogMetaForm carries the editor's metadata fields. Slug may be left
// empty; the editor derives one from the title.
type BlogMetaForm struct {
	Title       string `form:"title" json:"title"`
	Description string `form:"description" json:"description"`
	Slug        string `form:"slug" json:"slug"`
	PublishDate string `form:"publish_date" json:"publish_date"`
}

func (f BlogMetaForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Title, validation.Length(0, 200)),
		validation.Field(&f.Description, validation.Length(0, 500)),
		validation.Field(&f.Slug, validation.When(f.Slug != "", slugRule, validation.Length(1, 120))),
		validation.Field(&f.PublishDate, validation.When(f.PublishDate != "", validation.Date(DateLayout).Error("use the format YYYY-MM-DD"))),
	)
}

// PublishForm is BlogMetaForm with the fields a post needs before it can be
// sent to the backend.
type PublishForm struct {
	BlogMetaForm
}

func (f PublishForm) Validate() error {
	if err := f.BlogMetaForm.Validate(); err != nil {
		return err
	}
	m := f.BlogMetaForm
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required.Error("title is required")),
		validation.Field(&m.Slug, validation.Required.Error("slug is required")),
		validation.Field(&m.PublishDate, validation.Required.Error("publish date is required")),
	)
}
