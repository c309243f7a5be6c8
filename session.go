package clinicweb

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/nutriplan/clinicweb/api"
)

const sessionName = "clinic_session"

// Session keys. token, refresh_token and user are always cleared together.
const (
	keyToken        = "token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
	flashOK         = "flash"
	flashError      = "error"
)

func (a *App) newSessionStore() *sessions.CookieStore {
	// The second key encrypts the cookie; tokens must not be readable
	// client-side.
	encKey := sha256.Sum256([]byte("clinicweb:enc:" + a.Config.SessionSecret))
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret), encKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 24 * 7,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// cookieTokens is the api.TokenStore of one request, kept in the session
// cookie. Writes save the session immediately, so they must happen before
// the response body is written.
type cookieTokens struct {
	mu sync.Mutex
	c  echo.Context
}

func tokensOf(c echo.Context) *cookieTokens {
	return &cookieTokens{c: c}
}

func (t *cookieTokens) Tokens() api.Tokens {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, err := session.Get(sessionName, t.c)
	if err != nil {
		return api.Tokens{}
	}
	access, _ := sess.Values[keyToken].(string)
	refresh, _ := sess.Values[keyRefreshToken].(string)
	return api.Tokens{Access: access, Refresh: refresh}
}

func (t *cookieTokens) SetTokens(tk api.Tokens) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, err := session.Get(sessionName, t.c)
	if err != nil {
		return
	}
	sess.Values[keyToken] = tk.Access
	sess.Values[keyRefreshToken] = tk.Refresh
	saveSession(t.c, sess)
}

func (t *cookieTokens) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, err := session.Get(sessionName, t.c)
	if err != nil {
		return
	}
	delete(sess.Values, keyToken)
	delete(sess.Values, keyRefreshToken)
	delete(sess.Values, keyUser)
	saveSession(t.c, sess)
}

func saveSession(c echo.Context, sess *sessions.Session) {
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		log.Error().Err(err).Msg("clinicweb: save session")
	}
}

// currentUser returns the signed-in user, or nil.
func currentUser(c echo.Context) *api.User {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return nil
	}
	if tok, _ := sess.Values[keyToken].(string); tok == "" {
		return nil
	}
	raw, _ := sess.Values[keyUser].(string)
	if raw == "" {
		return nil
	}
	var u api.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil
	}
	return &u
}

// IsAdmin reports whether the signed-in user may use the admin panel.
func IsAdmin(c echo.Context) bool {
	u := currentUser(c)
	return u != nil && u.Admin()
}

func setLogin(c echo.Context, tk api.Tokens, u api.User) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	sess.Values[keyToken] = tk.Access
	sess.Values[keyRefreshToken] = tk.Refresh
	sess.Values[keyUser] = string(raw)
	return sess.Save(c.Request(), c.Response())
}

// setUser refreshes the stored profile after it changed.
func setUser(c echo.Context, u api.User) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	sess.Values[keyUser] = string(raw)
	return sess.Save(c.Request(), c.Response())
}

func clearLogin(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// addFlash queues a message for the next page shown to this browser.
func addFlash(c echo.Context, kind, msg string) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return
	}
	sess.AddFlash(msg, kind)
	saveSession(c, sess)
}

// takeFlashes pops the queued messages.
func takeFlashes(c echo.Context) (ok, failed string) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return "", ""
	}
	oks := sess.Flashes(flashOK)
	errs := sess.Flashes(flashError)
	if len(oks) == 0 && len(errs) == 0 {
		return "", ""
	}
	saveSession(c, sess)
	if len(oks) > 0 {
		ok, _ = oks[len(oks)-1].(string)
	}
	if len(errs) > 0 {
		failed, _ = errs[len(errs)-1].(string)
	}
	return ok, failed
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
