package api

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nutriplan/clinicweb/content"
)

// ID accepts both numeric and string identifiers from the backend.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Tokens is the credential pair issued by the backend.
type Tokens struct {
	Access  string `json:"token"`
	Refresh string `json:"refresh_token"`
}

type User struct {
	ID          ID     `json:"id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	Role        string `json:"role"`
	IsAdmin     bool   `json:"is_admin"`
}

// Admin reports whether the user may use the admin panel.
func (u User) Admin() bool {
	return u.IsAdmin || strings.EqualFold(u.Role, "admin")
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is returned by login. User is only present when the backend
// embeds it; callers fall back to UserInfo.
type LoginResult struct {
	Tokens
	User *User `json:"user,omitempty"`
}

type RegisterRequest struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
}

type UpdateUserRequest struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
}

// Appointment status values.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID               ID     `json:"id,omitempty"`
	UserID           ID     `json:"user_id,omitempty"`
	FullName         string `json:"full_name"`
	Email            string `json:"email"`
	PhoneNumber      string `json:"phone_number"`
	AppointmentDate  string `json:"appointment_date"`
	AppointmentTime  string `json:"appointment_time"`
	ConsultationType string `json:"consultation_type"`
	Notes            string `json:"notes"`
	Status           string `json:"status,omitempty"`
}

// Subscription is one entry of the payment history.
type Subscription struct {
	PaymentID   ID              `json:"payment_id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	PhoneNumber string          `json:"phone_number"`
	Address     string          `json:"address"`
	PlanType    string          `json:"play_type"`
	Price       decimal.Decimal `json:"price"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	UserID      ID              `json:"user_id"`
}

type ExpiringSubscription struct {
	UserID          ID     `json:"user_id"`
	FullName        string `json:"full_name"`
	SubscriptionEnd string `json:"subscription_end"`
}

type PaymentLinkRequest struct {
	UserID        ID              `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	LinkPurpose   string          `json:"link_purpose"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
	PlanType      string          `json:"plan_type"`
	NotifyURL     string          `json:"notify_url"`
	ReturnURL     string          `json:"return_url"`
}

// MarshalJSON sends the amount as a JSON number, as the payment gateway
// expects.
func (r PaymentLinkRequest) MarshalJSON() ([]byte, error) {
	type alias PaymentLinkRequest
	return json.Marshal(struct {
		alias
		Amount json.Number `json:"amount"`
	}{alias(r), json.Number(r.Amount.StringFixed(2))})
}

type PaymentLink struct {
	LinkID     string `json:"link_id"`
	LinkURL    string `json:"link_url"`
	LinkStatus string `json:"link_status,omitempty"`
}

// BlogPost is the backend blog resource. Body is tolerant: malformed
// blocks are dropped on decode.
type BlogPost struct {
	ID          ID           `json:"id,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Slug        string       `json:"slug"`
	PublishDate string       `json:"publish_date"`
	Categories  []string     `json:"categories"`
	Body        content.Body `json:"body"`
}
