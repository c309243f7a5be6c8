package clinicweb

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello-world"},
		{"  Protein: how much?  ", "protein-how-much"},
		{"10 tips for 2026", "10-tips-for-2026"},
		{"---", ""},
		{"Dal & Rice!", "dal-rice"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "https://clinic.example/blog/intro/", BuildURL("https://clinic.example", "blog", "intro"))
	assert.Equal(t, "https://clinic.example/profile/", BuildURL("https://clinic.example/", "profile"))
	assert.Equal(t, "https://clinic.example", BuildURL("https://clinic.example"))
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/profile/", safeNext("/profile/"))
	assert.Equal(t, "/admin/?section=drafts", safeNext("/admin/?section=drafts"))
	assert.Empty(t, safeNext("https://evil.example/"))
	assert.Empty(t, safeNext("//evil.example/"))
	assert.Empty(t, safeNext(`/\evil.example`))
	assert.Empty(t, safeNext(""))
}

func TestRefererPath(t *testing.T) {
	e := echo.New()
	tests := []struct {
		name, referer, want string
	}{
		{"same host", "http://example.com/admin/appointments/?status=scheduled", "/admin/appointments/?status=scheduled"},
		{"other host", "https://evil.example/steal/", "/fallback/"},
		{"empty", "", "/fallback/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "http://example.com/x/", nil)
			req.Header.Set("Referer", tt.referer)
			c := e.NewContext(req, httptest.NewRecorder())
			assert.Equal(t, tt.want, refererPath(c, "/fallback/"))
		})
	}
}

func TestFilterEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, FilterEmpty([]string{" a ", "", "  ", "b"}))
	assert.Nil(t, FilterEmpty(nil))
}
