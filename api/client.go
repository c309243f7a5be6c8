// Package api is the client for the clinic's REST backend. Calls that need
// a user take a TokenStore; the client refreshes expired access tokens
// through it transparently.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 8 << 20
)

// Request describes one backend call independently of the credentials it
// is sent with, so it can be replayed after a refresh.
type Request struct {
	Method string
	Path   string
	Body   any
	// Token is the bearer token; set by WithAuthRefresh.
	Token string
}

// Caller performs a single HTTP exchange. The response body must be
// closed by the caller.
type Caller func(ctx context.Context, req *Request) (*http.Response, error)

// Client talks to the backend at baseURL.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryPolicy
	log     zerolog.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy overrides the policy used for expiring-subscription reads.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		retry:   DefaultRetryPolicy,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// send is the undecorated Caller.
func (c *Client) send(ctx context.Context, r *Request) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("api: encode %s %s: %w", r.Method, r.Path, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, c.baseURL+r.Path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("method", r.Method).Str("path", r.Path).Msg("api: request failed")
		return nil, fmt.Errorf("api: %s %s: %w", r.Method, r.Path, err)
	}
	c.log.Debug().
		Str("method", r.Method).
		Str("path", r.Path).
		Int("status", resp.StatusCode).
		Dur("latency", c.now().Sub(start)).
		Msg("api: request")
	return resp, nil
}

// do runs a request and decodes a 2xx body into out. tokens may be nil for
// anonymous calls.
func (c *Client) do(ctx context.Context, tokens TokenStore, method, path string, in, out any) error {
	call := Caller(c.send)
	if tokens != nil {
		call = WithAuthRefresh(call, c.refresher(), tokens, c.now)
	}
	resp, err := call(ctx, &Request{Method: method, Path: path, Body: in})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("api: read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newError(resp.StatusCode, data)
		c.log.Warn().Int("status", apiErr.Status).Str("path", path).Str("message", apiErr.Message).Msg("api: error response")
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return decode(data, out)
}

// decode accepts both bare payloads and payloads wrapped in {"data": ...}.
func decode(data []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) &&
		json.Unmarshal(data, &envelope) == nil &&
		len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
		data = envelope.Data
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) refresher() Refresher {
	return func(ctx context.Context, refreshToken string) (Tokens, error) {
		return c.Refresh(ctx, refreshToken)
	}
}

// Users

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, nil, http.MethodPost, "/users/login", LoginRequest{Email: email, Password: password}, &res)
	return res, err
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (User, error) {
	var u User
	err := c.do(ctx, nil, http.MethodPost, "/users/create", req, &u)
	return u, err
}

func (c *Client) UserInfo(ctx context.Context, tokens TokenStore) (User, error) {
	var u User
	err := c.do(ctx, tokens, http.MethodGet, "/users/info", nil, &u)
	return u, err
}

func (c *Client) UpdateUser(ctx context.Context, tokens TokenStore, req UpdateUserRequest) (User, error) {
	var u User
	err := c.do(ctx, tokens, http.MethodPut, "/users/update", req, &u)
	return u, err
}

// Refresh exchanges a refresh token for new credentials. A response
// without a new refresh token keeps the old one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var t Tokens
	if err := c.do(ctx, nil, http.MethodPost, "/users/refresh", map[string]string{"refresh_token": refreshToken}, &t); err != nil {
		return Tokens{}, err
	}
	if t.Refresh == "" {
		t.Refresh = refreshToken
	}
	return t, nil
}

// Appointments

func (c *Client) CreateAppointment(ctx context.Context, tokens TokenStore, a Appointment) (Appointment, error) {
	var out Appointment
	err := c.do(ctx, tokens, http.MethodPost, "/appointments/create", a, &out)
	return out, err
}

func (c *Client) UpdateAppointment(ctx context.Context, tokens TokenStore, id ID, a Appointment) (Appointment, error) {
	var out Appointment
	err := c.do(ctx, tokens, http.MethodPut, "/appointments/update/"+url.PathEscape(id.String()), a, &out)
	return out, err
}

// ListAppointments returns the caller's appointments, or every
// appointment for an admin.
func (c *Client) ListAppointments(ctx context.Context, tokens TokenStore) ([]Appointment, error) {
	var out []Appointment
	err := c.do(ctx, tokens, http.MethodGet, "/appointments/appointments", nil, &out)
	return out, err
}

func (c *Client) DeleteAppointment(ctx context.Context, tokens TokenStore, id ID) error {
	return c.do(ctx, tokens, http.MethodDelete, "/appointments/delete/"+url.PathEscape(id.String()), nil, nil)
}

// Payments

func (c *Client) PaymentHistory(ctx context.Context, tokens TokenStore) ([]Subscription, error) {
	var out []Subscription
	err := c.do(ctx, tokens, http.MethodGet, "/payments/history", nil, &out)
	return out, err
}

// ExpiringSubscriptions is retried on HTTP 500 per the client's retry
// policy; other failures return immediately.
func (c *Client) ExpiringSubscriptions(ctx context.Context, tokens TokenStore) ([]ExpiringSubscription, error) {
	return Retry(ctx, c.retry, func(ctx context.Context) ([]ExpiringSubscription, error) {
		var out []ExpiringSubscription
		err := c.do(ctx, tokens, http.MethodGet, "/payments/get-expiring-subscriptions", nil, &out)
		return out, err
	})
}

func (c *Client) CreatePaymentLink(ctx context.Context, tokens TokenStore, req PaymentLinkRequest) (PaymentLink, error) {
	var out PaymentLink
	err := c.do(ctx, tokens, http.MethodPost, "/payments/create-payment-link", req, &out)
	return out, err
}

// Blogs

func (c *Client) ListBlogs(ctx context.Context) ([]BlogPost, error) {
	var out []BlogPost
	err := c.do(ctx, nil, http.MethodGet, "/blogs/all_blog_lists", nil, &out)
	return out, err
}

func (c *Client) GetBlog(ctx context.Context, id ID) (BlogPost, error) {
	var out BlogPost
	err := c.do(ctx, nil, http.MethodGet, "/blogs/get_blog/"+url.PathEscape(id.String()), nil, &out)
	return out, err
}

func (c *Client) GetBlogBySlug(ctx context.Context, slug string) (BlogPost, error) {
	var out BlogPost
	err := c.do(ctx, nil, http.MethodGet, "/blogs/slug/"+url.PathEscape(slug), nil, &out)
	return out, err
}

func (c *Client) CreateBlog(ctx context.Context, tokens TokenStore, post BlogPost) (BlogPost, error) {
	var out BlogPost
	err := c.do(ctx, tokens, http.MethodPost, "/blogs/create", post, &out)
	return out, err
}
