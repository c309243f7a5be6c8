package clinicweb

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/content"
)

// backend is a fake of the clinic REST API.
type backend struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	posts     []api.BlogPost
	created   []api.BlogPost
	expireAll bool
}

var (
	adminUser  = api.User{ID: "1", FullName: "Dr. Nair", Email: "admin@clinic.example", Role: "admin"}
	memberUser = api.User{ID: "7", FullName: "Asha Rao", Email: "asha@example.com", PhoneNumber: "+91 98765 43210"}
)

func newBackend(t *testing.T) *backend {
	b := &backend{t: t, posts: []api.BlogPost{{
		ID:          "b1",
		Title:       "Eating for Energy",
		Slug:        "eating-for-energy",
		Description: "Simple swaps for steady energy.",
		PublishDate: "2026-02-01",
		Categories:  []string{"Diet"},
		Body:        content.Body{content.Paragraph{Text: "Start with breakfast."}},
	}}}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	authed := strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") && !b.expireAll
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	switch {
	case r.URL.Path == "/users/login":
		var req api.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case req.Email == adminUser.Email && req.Password == "correct-horse":
			writeJSON(w, http.StatusOK, map[string]any{"token": "tok-admin", "refresh_token": "ref-admin", "user": adminUser})
		case req.Email == memberUser.Email && req.Password == "correct-horse":
			writeJSON(w, http.StatusOK, map[string]any{"token": "tok-member", "refresh_token": "ref-member"})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		}
	case r.URL.Path == "/users/refresh":
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "refresh token expired"})
	case !strings.HasPrefix(r.URL.Path, "/blogs/") && !authed:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
	case r.URL.Path == "/users/info":
		if token == "tok-admin" {
			writeJSON(w, http.StatusOK, adminUser)
			return
		}
		writeJSON(w, http.StatusOK, memberUser)
	case r.URL.Path == "/payments/history":
		writeJSON(w, http.StatusOK, []api.Subscription{})
	case r.URL.Path == "/payments/get-expiring-subscriptions":
		writeJSON(w, http.StatusOK, []api.ExpiringSubscription{{UserID: "7", FullName: "Asha Rao", SubscriptionEnd: "2026-03-04"}})
	case r.URL.Path == "/appointments/appointments":
		writeJSON(w, http.StatusOK, []api.Appointment{})
	case r.URL.Path == "/blogs/all_blog_lists":
		writeJSON(w, http.StatusOK, b.posts)
	case strings.HasPrefix(r.URL.Path, "/blogs/slug/"):
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "blog not found"})
	case r.URL.Path == "/blogs/create":
		var post api.BlogPost
		assert.NoError(b.t, json.NewDecoder(r.Body).Decode(&post))
		post.ID = "b2"
		b.created = append(b.created, post)
		b.posts = append(b.posts, post)
		writeJSON(w, http.StatusCreated, post)
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) createdPosts() []api.BlogPost {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.BlogPost(nil), b.created...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testSite runs an App against a fake backend and drives it with a
// cookie-keeping client that does not follow redirects.
type testSite struct {
	t       *testing.T
	app     *App
	backend *backend
	srv     *httptest.Server
	client  *http.Client
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	be := newBackend(t)
	cfg := SiteConfig{
		URL:                "http://clinic.example",
		APIBaseURL:         be.srv.URL,
		SessionSecret:      "test-session-secret",
		DraftsDatabasePath: filepath.Join(t.TempDir(), "drafts.db"),
	}
	client := api.New(be.srv.URL,
		api.WithHTTPClient(be.srv.Client()),
		api.WithRetryPolicy(api.RetryPolicy{Attempts: 2, Backoff: time.Millisecond}),
	)
	app := New(cfg, DefaultViews(),
		WithAPIClient(client),
		WithStaticDir("public"),
		WithCustomRoutes(func(a *App) {
			a.Echo.GET("/clinic-hours/", func(c echo.Context) error {
				return c.String(http.StatusOK, "Mon-Sat 9:00-18:00")
			})
		}),
		WithLogger(zerolog.Nop()),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, app.Init())
	srv := httptest.NewServer(app.Echo)
	t.Cleanup(func() {
		srv.Close()
		app.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	browser := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testSite{t: t, app: app, backend: be, srv: srv, client: browser}
}

func (s *testSite) get(path string) (*http.Response, string) {
	s.t.Helper()
	resp, err := s.client.Get(s.srv.URL + path)
	require.NoError(s.t, err)
	return resp, readBody(s.t, resp)
}

// csrf returns the token issued to this client, fetching a page first if
// none has been issued yet.
func (s *testSite) csrf() string {
	s.t.Helper()
	u, _ := url.Parse(s.srv.URL)
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == "_csrf" {
			return c.Value
		}
	}
	s.get("/login/")
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == "_csrf" {
			return c.Value
		}
	}
	s.t.Fatal("no csrf cookie issued")
	return ""
}

func (s *testSite) postForm(path string, form url.Values) (*http.Response, string) {
	s.t.Helper()
	form.Set("_csrf", s.csrf())
	resp, err := s.client.PostForm(s.srv.URL+path, form)
	require.NoError(s.t, err)
	return resp, readBody(s.t, resp)
}

func (s *testSite) postJSON(path string, v any) (*http.Response, string) {
	s.t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(s.t, err)
	req, err := http.NewRequest(http.MethodPost, s.srv.URL+path, strings.NewReader(string(payload)))
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", s.csrf())
	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	return resp, readBody(s.t, resp)
}

func (s *testSite) login(email string) {
	s.t.Helper()
	resp, _ := s.postForm("/login/", url.Values{"email": {email}, "password": {"correct-horse"}})
	require.Equal(s.t, http.StatusSeeOther, resp.StatusCode)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHomeListsPosts(t *testing.T) {
	s := newTestSite(t)
	resp, body := s.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Eating for Energy")
	assert.Contains(t, body, "application/ld+json")
}

func TestBlogPostPage(t *testing.T) {
	s := newTestSite(t)
	resp, body := s.get("/blog/eating-for-energy/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Start with breakfast.")
}

func TestUnknownBlogPostIs404(t *testing.T) {
	s := newTestSite(t)
	resp, _ := s.get("/blog/no-such-post/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginRedirectsByRole(t *testing.T) {
	s := newTestSite(t)
	resp, _ := s.postForm("/login/", url.Values{"email": {adminUser.Email}, "password": {"correct-horse"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/", resp.Header.Get("Location"))

	m := newTestSite(t)
	resp, _ = m.postForm("/login/", url.Values{"email": {memberUser.Email}, "password": {"correct-horse"}, "next": {"/appointments/"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/appointments/", resp.Header.Get("Location"))

	resp, body := m.get("/profile/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, memberUser.FullName, "user looked up after a login without an embedded user")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestSite(t)
	resp, body := s.postForm("/login/", url.Values{"email": {memberUser.Email}, "password": {"wrong"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Incorrect email or password.")

	resp, _ = s.get("/profile/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login/?next=%2Fprofile%2F", resp.Header.Get("Location"))
}

func TestLoginIsRateLimited(t *testing.T) {
	s := newTestSite(t)
	for range 5 {
		resp, _ := s.postForm("/login/", url.Values{"email": {memberUser.Email}, "password": {"wrong"}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := s.postForm("/login/", url.Values{"email": {memberUser.Email}, "password": {"correct-horse"}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body, "Too many sign-in attempts")
}

func TestPostWithoutCSRFIsForbidden(t *testing.T) {
	s := newTestSite(t)
	resp, err := s.client.PostForm(s.srv.URL+"/login/", url.Values{"email": {adminUser.Email}, "password": {"correct-horse"}})
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMemberCannotOpenAdmin(t *testing.T) {
	s := newTestSite(t)
	s.login(memberUser.Email)

	resp, _ := s.get("/admin/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	_, body := s.get("/")
	assert.Contains(t, body, "You do not have permission to do that.")
}

func TestExpiredSessionReturnsToLogin(t *testing.T) {
	s := newTestSite(t)
	s.login(memberUser.Email)

	s.backend.mu.Lock()
	s.backend.expireAll = true
	s.backend.mu.Unlock()

	resp, _ := s.get("/profile/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login/?next=%2Fprofile%2F", resp.Header.Get("Location"))

	resp, _ = s.get("/appointments/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "credentials were cleared")
}

func TestEditorPublishesPost(t *testing.T) {
	s := newTestSite(t)
	s.login(adminUser.Email)

	resp, body := s.get("/admin/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="editor"`)

	resp, _ = s.postForm("/admin/editor/meta/", url.Values{
		"title":       {"Protein on a Budget"},
		"description": {"Cheap sources of protein."},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = s.postForm("/admin/editor/categories/", url.Values{"category": {"Diet, Budget"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = s.postJSON("/admin/editor/content/", map[string]any{
		"html": "<h2>Lentils</h2><p>Cheap and filling.</p>",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = s.postForm("/admin/editor/save/", url.Values{})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/?section=published", resp.Header.Get("Location"))

	created := s.backend.createdPosts()
	require.Len(t, created, 1)
	post := created[0]
	assert.Equal(t, "Protein on a Budget", post.Title)
	assert.Equal(t, "protein-on-a-budget", post.Slug)
	assert.Equal(t, "2026-03-01", post.PublishDate, "date defaults to today")
	assert.Equal(t, []string{"diet", "budget"}, post.Categories)
	assert.Equal(t, content.Body{
		content.Heading{Level: 2, Text: "Lentils"},
		content.Paragraph{Text: "Cheap and filling."},
	}, post.Body)

	_, body = s.get("/admin/?section=published")
	assert.Contains(t, body, "Post published.")
	assert.Contains(t, body, "/blog/protein-on-a-budget/", "cache was invalidated")
}

func TestEditorCommandRendersSurface(t *testing.T) {
	s := newTestSite(t)
	s.login(adminUser.Email)
	s.get("/admin/")

	resp, _ := s.postJSON("/admin/editor/content/", map[string]any{"html": "<p>Drink water</p>"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := s.postJSON("/admin/editor/command/", map[string]any{
		"command": "bold",
		"selection": map[string]any{
			"anchor": map[string]any{"path": []int{0, 0}, "offset": 0},
			"focus":  map[string]any{"path": []int{0, 0}, "offset": 5},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<strong>Drink</strong>")

	resp, _ = s.postJSON("/admin/editor/command/", map[string]any{"command": "explode"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditorCommandWithoutSessionIs401(t *testing.T) {
	s := newTestSite(t)
	resp, _ := s.postJSON("/admin/editor/command/", map[string]any{"command": "bold"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewOnlyBlocksEdits(t *testing.T) {
	s := newTestSite(t)
	s.login(adminUser.Email)
	s.get("/admin/")

	resp, _ := s.postForm("/admin/editor/view-only/", url.Values{"view_only": {"true"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = s.postForm("/admin/editor/meta/", url.Values{"title": {"Should not stick"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := s.get("/admin/")
	assert.NotContains(t, body, "Should not stick")
	assert.Contains(t, body, "View-only mode")
}

func TestExpiringPanel(t *testing.T) {
	s := newTestSite(t)
	s.login(adminUser.Email)

	resp, body := s.get("/admin/payments/expiring/?refresh=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Asha Rao")
	assert.Contains(t, body, "2026-03-04")
}

func TestFeedRobotsAndHealth(t *testing.T) {
	s := newTestSite(t)

	resp, body := s.get("/feed.xml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<rss")
	assert.Contains(t, body, "Eating for Energy")

	resp, body = s.get("/sitemap.xml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "http://clinic.example/blog/eating-for-energy/")

	resp, body = s.get("/robots.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Disallow: /admin/")
	assert.Contains(t, body, "Sitemap: http://clinic.example/sitemap.xml")

	resp, body = s.get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestCustomRoutesAndStaticFiles(t *testing.T) {
	s := newTestSite(t)

	res, body := s.get("/clinic-hours/")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Mon-Sat 9:00-18:00", body)

	res, body = s.get("/public/js/editor.js")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, body)
}
