package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew refreshes slightly before the token actually expires.
const expirySkew = 10 * time.Second

// TokenStore holds the credentials of one signed-in user.
type TokenStore interface {
	Tokens() Tokens
	SetTokens(Tokens)
	// Clear forgets every credential, including the stored user.
	Clear()
}

// Refresher trades a refresh token for new credentials.
type Refresher func(ctx context.Context, refreshToken string) (Tokens, error)

// WithAuthRefresh decorates call with bearer credentials from tokens. An
// access token whose exp claim has passed is refreshed before sending; a
// 401 triggers one refresh and one replay. At most one refresh happens per
// call. When refreshing is impossible the store is cleared and
// ErrSessionExpired is returned.
func WithAuthRefresh(call Caller, refresh Refresher, tokens TokenStore, now func() time.Time) Caller {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, r *Request) (*http.Response, error) {
		refreshed := false
		doRefresh := func() error {
			refreshed = true
			current := tokens.Tokens()
			if current.Refresh == "" {
				tokens.Clear()
				return ErrSessionExpired
			}
			next, err := refresh(ctx, current.Refresh)
			if err != nil {
				tokens.Clear()
				return fmt.Errorf("%w: %w", ErrSessionExpired, err)
			}
			if next.Refresh == "" {
				next.Refresh = current.Refresh
			}
			tokens.SetTokens(next)
			return nil
		}

		if t := tokens.Tokens(); t.Access != "" && tokenExpired(t.Access, now()) {
			if err := doRefresh(); err != nil {
				return nil, err
			}
		}
		r.Token = tokens.Tokens().Access
		resp, err := call(ctx, r)
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}
		if refreshed {
			return nil, rejected(resp, tokens)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := doRefresh(); err != nil {
			return nil, err
		}
		r.Token = tokens.Tokens().Access
		resp, err = call(ctx, r)
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}
		return nil, rejected(resp, tokens)
	}
}

// rejected ends the session after the backend refused a freshly refreshed
// token.
func rejected(resp *http.Response, tokens TokenStore) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	tokens.Clear()
	return fmt.Errorf("%w: %w", ErrSessionExpired, newError(resp.StatusCode, body))
}

// tokenExpired reads the exp claim without verifying the signature; the
// backend remains the authority on validity. Tokens that cannot be parsed
// are treated as live.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Add(expirySkew).Before(exp.Time)
}

// MemoryTokens is a TokenStore held in process memory.
type MemoryTokens struct {
	mu sync.RWMutex
	t  Tokens
}

func NewMemoryTokens(t Tokens) *MemoryTokens {
	return &MemoryTokens{t: t}
}

func (m *MemoryTokens) Tokens() Tokens {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t
}

func (m *MemoryTokens) SetTokens(t Tokens) {
	m.mu.Lock()
	m.t = t
	m.mu.Unlock()
}

func (m *MemoryTokens) Clear() {
	m.mu.Lock()
	m.t = Tokens{}
	m.mu.Unlock()
}

// SignedIn reports whether an access token is present.
func (m *MemoryTokens) SignedIn() bool {
	return m.Tokens().Access != ""
}

var errNoCredentials = errors.New("api: not signed in")

// RequireSignedIn fails fast for calls that make no sense anonymously.
func RequireSignedIn(tokens TokenStore) error {
	if tokens == nil || tokens.Tokens().Access == "" {
		return fmt.Errorf("%w: %w", ErrSessionExpired, errNoCredentials)
	}
	return nil
}
