package views

import (
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/drafts"
	"github.com/nutriplan/clinicweb/editor"
	"github.com/nutriplan/clinicweb/forms"
	"github.com/nutriplan/clinicweb/notifier"
)

// SiteConfig holds the site-wide settings every page needs.
type SiteConfig struct {
	Name        string
	URL         string
	Description string
	Currency    string
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	JSONLD      string
}

// Page is embedded in every page's data.
type Page struct {
	Site  SiteConfig
	Meta  PageMeta
	User  *api.User
	CSRF  string
	Flash string
	Error string
}

func (p Page) SignedIn() bool { return p.User != nil }

func (p Page) IsAdmin() bool { return p.User != nil && p.User.Admin() }

// Plan is one entry of the subscription catalogue.
type Plan struct {
	Name     string
	PlanType string
	Price    decimal.Decimal
	Months   int
	Features []string
}

type HomePage struct {
	Page
	Posts []api.BlogPost
	Plans []Plan
}

type PlansPage struct {
	Page
	Plans []Plan
}

type BlogListPage struct {
	Page
	Posts      []api.BlogPost
	Categories []string
	Active     string
}

type BlogPostPage struct {
	Page
	Post    api.BlogPost
	Body    template.HTML
	Related []api.BlogPost
}

type LoginPage struct {
	Page
	Form   forms.LoginForm
	Errors forms.FieldErrors
	Next   string
}

type RegisterPage struct {
	Page
	Form   forms.RegisterForm
	Errors forms.FieldErrors
}

type ProfilePage struct {
	Page
	Form          forms.ProfileForm
	Errors        forms.FieldErrors
	Subscriptions []api.Subscription
}

type AppointmentsPage struct {
	Page
	Appointments      []api.Appointment
	Form              forms.AppointmentForm
	Errors            forms.FieldErrors
	EditID            string
	ConsultationTypes []string
}

// EditorView is the editor panel of the admin shell.
type EditorView struct {
	SessionID string
	CSRF      string
	Meta      editor.Meta
	DraftID   string
	HTML      template.HTML
	Images    []editor.EditorImage
	CanMutate bool
	ViewOnly  bool
	Unsaved   bool
	Errors    forms.FieldErrors
	Selection *editor.Selection
}

type AdminPage struct {
	Page
	Section   editor.Section
	Sections  []editor.Section
	Editor    EditorView
	Preview   template.HTML
	Published []api.BlogPost
	Drafts    []drafts.Draft
	Expiring  notifier.State
}

type AdminPaymentsPage struct {
	Page
	History      []api.Subscription
	Appointments []api.Appointment
	Expiring     notifier.State
	Plans        []Plan
	Form         forms.PaymentLinkForm
	Errors       forms.FieldErrors
	Link         *api.PaymentLink
}

type AdminAppointmentsPage struct {
	Page
	Appointments []api.Appointment
	Status       string
}

type ErrorPage struct {
	Page
}
