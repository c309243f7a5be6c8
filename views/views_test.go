package views

import (
	"context"
	"html/template"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/content"
	"github.com/nutriplan/clinicweb/editor"
	"github.com/nutriplan/clinicweb/forms"
	"github.com/nutriplan/clinicweb/sanitize"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, c.Render(context.Background(), &sb))
	return sb.String()
}

var site = SiteConfig{Name: "Nutri Clinic", URL: "https://clinic.example", Description: "Food first", Currency: "INR"}

func TestEveryPageRenders(t *testing.T) {
	admin := &api.User{FullName: "Dr. Iyer", Role: "admin"}
	p := Page{Site: site, User: admin, CSRF: "tok"}
	post := api.BlogPost{ID: "7", Title: "Hydration", Slug: "hydration", PublishDate: "2026-03-01", Categories: []string{"basics"}}

	pages := map[string]templ.Component{
		"home":               Home(HomePage{Page: p, Posts: []api.BlogPost{post}, Plans: []Plan{{Name: "Monthly", Price: decimal.NewFromInt(999), Months: 1}}}),
		"plans":              Plans(PlansPage{Page: p, Plans: []Plan{{Name: "Quarterly", PlanType: "quarterly", Price: decimal.NewFromInt(2499), Months: 3}}}),
		"blog_list":          BlogList(BlogListPage{Page: p, Posts: []api.BlogPost{post}, Categories: []string{"basics"}, Active: "basics"}),
		"blog_post":          BlogPost(BlogPostPage{Page: p, Post: post, Body: template.HTML("<p>Drink water</p>")}),
		"login":              Login(LoginPage{Page: p}),
		"register":           Register(RegisterPage{Page: p}),
		"profile":            Profile(ProfilePage{Page: p}),
		"appointments":       Appointments(AppointmentsPage{Page: p, ConsultationTypes: forms.ConsultationTypes}),
		"admin_payments":     AdminPayments(AdminPaymentsPage{Page: p}),
		"admin_appointments": AdminAppointments(AdminAppointmentsPage{Page: p, Appointments: []api.Appointment{{ID: "1", Status: api.StatusScheduled}}}),
		"not_found":          NotFound(ErrorPage{Page: p}),
		"server_error":       ServerError(ErrorPage{Page: p}),
	}
	for _, sec := range editor.Sections {
		pages["admin_"+string(sec)] = Admin(AdminPage{Page: p, Section: sec, Sections: editor.Sections, Published: []api.BlogPost{post}})
	}
	for name, c := range pages {
		t.Run(name, func(t *testing.T) {
			out := render(t, c)
			assert.Contains(t, out, "<title>")
			assert.Contains(t, out, "Nutri Clinic")
			assert.Contains(t, out, `href="/admin/"`, "admin link for admins")
		})
	}
}

func TestLoginShowsFieldErrors(t *testing.T) {
	out := render(t, Login(LoginPage{
		Page:   Page{Site: site, Error: "Incorrect email or password."},
		Form:   forms.LoginForm{Email: "a@b"},
		Errors: forms.FieldErrors{"email": "enter a valid email address"},
	}))
	assert.Contains(t, out, "enter a valid email address")
	assert.Contains(t, out, `value="a@b"`)
	assert.Contains(t, out, "Incorrect email or password.")
	assert.NotContains(t, out, `href="/admin/"`)
}

func TestSessionExpiredLinksToLogin(t *testing.T) {
	out := render(t, Home(HomePage{Page: Page{Site: site, Error: api.UserMessage(api.ErrSessionExpired)}}))
	assert.Contains(t, out, `Your session has expired. Please sign in again. <a href="/login/">Sign in</a>`)
}

func TestEditorSurfaceFragment(t *testing.T) {
	sel := editor.Caret(editor.Position{Path: []int{0, 0}, Offset: 3})
	out := render(t, EditorSurface(EditorView{
		SessionID: "s1",
		HTML:      template.HTML("<p>Hello</p>"),
		Images:    []editor.EditorImage{{ID: "img-1", Width: 50, Alignment: "left"}},
		CanMutate: true,
		Unsaved:   true,
		Selection: &sel,
	}))
	assert.NotContains(t, out, "<html")
	assert.Contains(t, out, `contenteditable="true"><p>Hello</p></div>`)
	assert.Contains(t, out, `data-command="bold"`)
	assert.Contains(t, out, `data-image-id="img-1"`)
	assert.Contains(t, out, "Unsaved changes")
	assert.Contains(t, out, "&#34;offset&#34;:3")

	readOnly := render(t, EditorSurface(EditorView{HTML: "<p>x</p>", ViewOnly: true}))
	assert.Contains(t, readOnly, `contenteditable="false"`)
	assert.Contains(t, readOnly, "View-only mode")
	assert.NotContains(t, readOnly, `data-command="bold"`)
}

func TestPostBodyIsSanitized(t *testing.T) {
	body := content.Body{
		content.Heading{Level: 2, Text: "Intro"},
		content.Paragraph{Text: "<script>alert(1)</script>"},
		content.Heading{Level: 9, Text: "skipped"},
	}
	out := PostBody(body, content.Options{}, sanitize.New())
	assert.Contains(t, string(out), "<h2>Intro</h2>")
	assert.Contains(t, string(out), "&lt;script&gt;")
	assert.NotContains(t, string(out), "skipped")
}

func TestJSONLD(t *testing.T) {
	post := api.BlogPost{Title: "Hydration", Slug: "hydration", Categories: []string{"basics", "water"}}
	out := BlogPostingJsonLD(site, post)
	assert.Contains(t, out, `"url":"https://clinic.example/blog/hydration/"`)
	assert.Contains(t, out, `"keywords":"basics, water"`)
	assert.Contains(t, WebsiteJsonLD(site), `"@type":"MedicalClinic"`)
}

func TestFilterRelatedPosts(t *testing.T) {
	current := api.BlogPost{Slug: "a", Categories: []string{"Diet"}}
	posts := []api.BlogPost{
		current,
		{Slug: "b", Categories: []string{"diet "}},
		{Slug: "c", Categories: []string{"sleep"}},
	}
	related := FilterRelatedPosts(current, posts)
	require.Len(t, related, 1)
	assert.Equal(t, "b", related[0].Slug)
}
