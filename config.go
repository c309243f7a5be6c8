package clinicweb

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/views"
)

// SiteConfig holds all configuration for a clinicweb site.
type SiteConfig struct {
	Name        string // Site name (default "Nutrition Clinic")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS and meta tags

	Addr         string // Listen address (default ":3000")
	APIBaseURL   string // Required: REST backend origin
	AssetBaseURL string // Origin for relative image URLs (default APIBaseURL)

	SessionSecret string // Required: session signing and encryption secret
	CookieSecure  bool   // Set true for HTTPS

	DraftsDatabasePath   string        // SQLite path (default "data/drafts.db")
	BlogCacheTTL         time.Duration // Published post cache TTL (default 5min)
	ExpiringPollInterval time.Duration // Expiring subscription poll (default 5min)
	EditorIdleTimeout    time.Duration // Idle editor sessions are ended (default 2h)

	Env      string // "development" or "production" (default "production")
	LogLevel string // zerolog level (default "info")

	Currency         string // Payment currency (default "INR")
	PaymentNotifyURL string // Payment gateway webhook
	PaymentReturnURL string // Where the gateway sends the customer back

	Plans []views.Plan // Subscription catalogue (default DefaultPlans)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Nutrition Clinic"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.AssetBaseURL == "" {
		c.AssetBaseURL = c.APIBaseURL
	}
	if c.DraftsDatabasePath == "" {
		c.DraftsDatabasePath = "data/drafts.db"
	}
	if c.BlogCacheTTL == 0 {
		c.BlogCacheTTL = 5 * time.Minute
	}
	if c.ExpiringPollInterval == 0 {
		c.ExpiringPollInterval = 5 * time.Minute
	}
	if c.EditorIdleTimeout == 0 {
		c.EditorIdleTimeout = 2 * time.Hour
	}
	if c.Env == "" {
		c.Env = "production"
	}
	if c.LogLevel == "" {
		c.LogLevel = zerolog.LevelInfoValue
	}
	if c.Currency == "" {
		c.Currency = "INR"
	}
	if c.PaymentReturnURL == "" {
		c.PaymentReturnURL = BuildURL(c.URL, "profile")
	}
	if c.Plans == nil {
		c.Plans = DefaultPlans()
	}
}

// Validate reports missing or malformed required settings.
func (c SiteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIBaseURL, validation.Required.Error("API_BASE_URL is required"), validation.By(absoluteURL)),
		validation.Field(&c.SessionSecret, validation.Required.Error("SESSION_SECRET is required")),
		validation.Field(&c.URL, validation.By(absoluteURL)),
		validation.Field(&c.Currency, validation.Length(3, 3)),
	)
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// site is the subset of the config every page sees.
func (c SiteConfig) site() views.SiteConfig {
	return views.SiteConfig{Name: c.Name, URL: c.URL, Description: c.Description, Currency: c.Currency}
}

// plan looks a plan up by its plan type.
func (c SiteConfig) plan(planType string) (views.Plan, bool) {
	for _, p := range c.Plans {
		if p.PlanType == planType {
			return p, true
		}
	}
	return views.Plan{}, false
}

// DefaultPlans is the catalogue used when none is configured.
func DefaultPlans() []views.Plan {
	return []views.Plan{
		{
			Name: "Monthly", PlanType: "monthly", Price: decimal.NewFromInt(999), Months: 1,
			Features: []string{"Personal diet chart", "Weekly check-in"},
		},
		{
			Name: "Quarterly", PlanType: "quarterly", Price: decimal.NewFromInt(2499), Months: 3,
			Features: []string{"Personal diet chart", "Weekly check-in", "Monthly body composition review"},
		},
		{
			Name: "Half-yearly", PlanType: "half_yearly", Price: decimal.NewFromInt(4499), Months: 6,
			Features: []string{"Personal diet chart", "Twice-weekly check-in", "Monthly body composition review", "Recipe library"},
		},
	}
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first when present; real environment
// variables take precedence.
func LoadConfig() (SiteConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return SiteConfig{}, fmt.Errorf("clinicweb: load .env: %w", err)
	}

	var errs error
	duration := func(key string) time.Duration {
		v := os.Getenv(key)
		if v == "" {
			return 0
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	boolean := func(key string) bool {
		v := os.Getenv(key)
		if v == "" {
			return false
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}

	cfg := SiteConfig{
		Name:                 os.Getenv("SITE_NAME"),
		URL:                  os.Getenv("SITE_URL"),
		Description:          os.Getenv("SITE_DESCRIPTION"),
		Addr:                 os.Getenv("ADDR"),
		APIBaseURL:           os.Getenv("API_BASE_URL"),
		AssetBaseURL:         os.Getenv("ASSET_BASE_URL"),
		SessionSecret:        os.Getenv("SESSION_SECRET"),
		CookieSecure:         boolean("COOKIE_SECURE"),
		DraftsDatabasePath:   os.Getenv("DRAFTS_DATABASE_PATH"),
		BlogCacheTTL:         duration("BLOG_CACHE_TTL"),
		ExpiringPollInterval: duration("EXPIRING_POLL_INTERVAL"),
		EditorIdleTimeout:    duration("EDITOR_IDLE_TIMEOUT"),
		Env:                  os.Getenv("APP_ENV"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		Currency:             os.Getenv("CURRENCY"),
		PaymentNotifyURL:     os.Getenv("PAYMENT_NOTIFY_URL"),
		PaymentReturnURL:     os.Getenv("PAYMENT_RETURN_URL"),
	}
	if errs != nil {
		return SiteConfig{}, fmt.Errorf("clinicweb: invalid environment: %w", errs)
	}
	cfg.setDefaults()
	return cfg, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithAPIClient replaces the backend client built from APIBaseURL.
func WithAPIClient(c *api.Client) Option {
	return func(a *App) {
		a.API = c
	}
}

// WithLogger sets the logger used by the app and its workspaces.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.log = l
	}
}

// WithClock replaces time.Now, for validating dates in tests.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
