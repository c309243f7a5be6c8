// Package views renders the site's pages. Each page is an html/template
// file embedded in the binary and exposed as a templ.Component so handlers
// render everything the same way.
package views

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/a-h/templ"

	"github.com/nutriplan/clinicweb/editor"
)

//go:embed templates
var files embed.FS

var (
	base  *template.Template
	pages map[string]*template.Template
)

func init() {
	base, pages = mustParse(files)
}

var funcs = template.FuncMap{
	"pathEscape":     PathEscape,
	"categoryClass":  CategoryClass,
	"joinCategories": JoinCategories,
	"price":          FormatPrice,
	"jsonld":         func(s string) template.JS { return template.JS(s) },
	"title":          sectionTitle,
	"selectionJSON":  selectionJSON,
	"hasPrefix":      strings.HasPrefix,
}

func mustParse(fsys fs.FS) (*template.Template, map[string]*template.Template) {
	b := template.Must(template.New("base").Funcs(funcs).ParseFS(fsys, "templates/layout.html", "templates/partials/*.html"))
	names, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		panic(err)
	}
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		t := template.Must(template.Must(b.Clone()).ParseFS(fsys, name))
		out[strings.TrimSuffix(path.Base(name), ".html")] = t
	}
	return b, out
}

// page renders a full document: the layout around the page's "content".
func page(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, ok := pages[name]
		if !ok {
			return fmt.Errorf("views: unknown page %q", name)
		}
		return execute(w, t, "layout", data)
	})
}

// fragment renders a named partial without the layout, for in-place swaps.
func fragment(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return execute(w, base, name, data)
	})
}

func execute(w io.Writer, t *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("views: render %s: %w", name, err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func Home(d HomePage) templ.Component                 { return page("home", d) }
func Plans(d PlansPage) templ.Component               { return page("plans", d) }
func BlogList(d BlogListPage) templ.Component         { return page("blog_list", d) }
func BlogPost(d BlogPostPage) templ.Component         { return page("blog_post", d) }
func Login(d LoginPage) templ.Component               { return page("login", d) }
func Register(d RegisterPage) templ.Component         { return page("register", d) }
func Profile(d ProfilePage) templ.Component           { return page("profile", d) }
func Appointments(d AppointmentsPage) templ.Component { return page("appointments", d) }
func Admin(d AdminPage) templ.Component               { return page("admin", d) }
func AdminPayments(d AdminPaymentsPage) templ.Component {
	return page("admin_payments", d)
}
func AdminAppointments(d AdminAppointmentsPage) templ.Component {
	return page("admin_appointments", d)
}
func NotFound(d ErrorPage) templ.Component    { return page("not_found", d) }
func ServerError(d ErrorPage) templ.Component { return page("server_error", d) }

// EditorSurface is the editable region with its toolbar, swapped in after
// every editor command.
func EditorSurface(v EditorView) templ.Component { return fragment("editor-surface", v) }

// ExpiringPanel is the expiring-subscriptions panel polled by the admin
// dashboard.
func ExpiringPanel(d AdminPaymentsPage) templ.Component { return fragment("expiring-panel", d) }

func sectionTitle(s editor.Section) string {
	switch s {
	case editor.SectionEditor:
		return "Editor"
	case editor.SectionPreview:
		return "Preview"
	case editor.SectionPublished:
		return "Published"
	case editor.SectionDrafts:
		return "Drafts"
	}
	return string(s)
}

// selectionJSON lets the editor script restore the caret after a swap.
func selectionJSON(sel *editor.Selection) string {
	if sel == nil {
		return ""
	}
	b, err := json.Marshal(sel)
	if err != nil {
		return ""
	}
	return string(b)
}
