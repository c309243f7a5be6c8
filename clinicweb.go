// Package clinicweb is the web frontend of a nutrition clinic, built with Go,
// Echo, and templ. It renders the public site, the member area and the
// admin panel, and talks to the clinic's REST backend for all data.
//
// Pages are supplied through the ViewFuncs struct; clinicweb handles
// sessions, middleware, the editor workspaces and every call to the
// backend.
package clinicweb

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/drafts"
	"github.com/nutriplan/clinicweb/editor"
	"github.com/nutriplan/clinicweb/sanitize"
	"github.com/nutriplan/clinicweb/views"
)

// ViewFuncs holds the templ components the handlers render. DefaultViews
// returns the built-in set; any field may be replaced.
type ViewFuncs struct {
	Home              func(views.HomePage) templ.Component
	Plans             func(views.PlansPage) templ.Component
	BlogList          func(views.BlogListPage) templ.Component
	BlogPost          func(views.BlogPostPage) templ.Component
	Login             func(views.LoginPage) templ.Component
	Register          func(views.RegisterPage) templ.Component
	Profile           func(views.ProfilePage) templ.Component
	Appointments      func(views.AppointmentsPage) templ.Component
	Admin             func(views.AdminPage) templ.Component
	AdminPayments     func(views.AdminPaymentsPage) templ.Component
	AdminAppointments func(views.AdminAppointmentsPage) templ.Component
	EditorSurface     func(views.EditorView) templ.Component
	ExpiringPanel     func(views.AdminPaymentsPage) templ.Component
	NotFound          func(views.ErrorPage) templ.Component
	ServerError       func(views.ErrorPage) templ.Component
}

// DefaultViews returns the components of the views package.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Home:              views.Home,
		Plans:             views.Plans,
		BlogList:          views.BlogList,
		BlogPost:          views.BlogPost,
		Login:             views.Login,
		Register:          views.Register,
		Profile:           views.Profile,
		Appointments:      views.Appointments,
		Admin:             views.Admin,
		AdminPayments:     views.AdminPayments,
		AdminAppointments: views.AdminAppointments,
		EditorSurface:     views.EditorSurface,
		ExpiringPanel:     views.ExpiringPanel,
		NotFound:          views.NotFound,
		ServerError:       views.ServerError,
	}
}

// App is the central clinicweb application. It wires together the backend
// client, caches, the drafts store, handlers, middleware and views.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	API       *api.Client
	Cache     *BlogCache
	Drafts    *drafts.Store
	Views     ViewFuncs
	Sanitizer *sanitize.Sanitizer

	loginLimiter *LoginLimiter
	blobs        *editor.TempBlobStore
	workspaces   *workspaces
	customRoutes []func(*App)
	staticDir    string
	log          zerolog.Logger
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	ready  bool
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, v ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     v,
		Sanitizer: sanitize.New(),
		staticDir: "public",
		log:       log.Logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.API == nil {
		a.API = api.New(cfg.APIBaseURL, api.WithLogger(a.log))
	}
	return a
}

// Init opens the drafts store and prepares middleware and routes without
// listening. Start calls it; tests call it directly.
func (a *App) Init() error {
	if a.ready {
		return nil
	}
	if err := a.Config.Validate(); err != nil {
		return fmt.Errorf("clinicweb: %w", err)
	}

	store, err := drafts.NewStore(a.Config.DraftsDatabasePath)
	if err != nil {
		return fmt.Errorf("clinicweb: init drafts: %w", err)
	}
	a.Drafts = store

	blobs, err := editor.NewTempBlobStore("")
	if err != nil {
		store.Close()
		return fmt.Errorf("clinicweb: init blobs: %w", err)
	}
	a.blobs = blobs

	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.Cache = NewBlogCache(a.API, a.Config.BlogCacheTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)
	a.workspaces = newWorkspaces(a.newWorkspace, a.Config.EditorIdleTimeout, a.log)
	go a.workspaces.sweep(a.ctx)

	a.Echo.HideBanner = true
	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Start initializes the app and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	a.log.Info().Str("addr", a.Config.Addr).Str("api", a.Config.APIBaseURL).Msg("clinicweb: listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/health", handleHealth)

	// Public routes
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/", a.handleHome)
	e.GET("/plans/", a.handlePlans)
	e.GET("/blog/", a.handleBlogList)
	e.GET("/blog/:slug/", a.handleBlogPost)

	// Account routes
	e.GET("/login/", a.handleLoginPage)
	e.POST("/login/", a.handleLogin)
	e.GET("/register/", a.handleRegisterPage)
	e.POST("/register/", a.handleRegister)
	e.POST("/logout/", a.handleLogout)

	// Member routes
	e.POST("/plans/subscribe/", a.handleSubscribe, a.requireUser)
	e.GET("/profile/", a.handleProfile, a.requireUser)
	e.POST("/profile/", a.handleProfileSave, a.requireUser)
	e.GET("/appointments/", a.handleAppointments, a.requireUser)
	e.POST("/appointments/", a.handleAppointmentCreate, a.requireUser)
	e.POST("/appointments/:id/", a.handleAppointmentUpdate, a.requireUser)
	e.POST("/appointments/:id/delete/", a.handleAppointmentDelete, a.requireUser)

	// Admin routes
	admin := e.Group("/admin", a.requireAdmin)
	admin.GET("/", a.handleAdmin)
	admin.GET("/editor/new/", a.handleEditorNew)
	admin.GET("/editor/load/:id/", a.handleEditorLoad)
	admin.GET("/editor/draft/:id/", a.handleEditorDraft)
	admin.POST("/editor/meta/", a.handleEditorMeta)
	admin.POST("/editor/categories/", a.handleCategoryAdd)
	admin.POST("/editor/categories/remove/", a.handleCategoryRemove)
	admin.POST("/editor/command/", a.handleEditorCommand)
	admin.POST("/editor/content/", a.handleEditorContent)
	admin.POST("/editor/images/", a.handleImageUpload)
	admin.GET("/editor/blob/:ref", a.handleImageBlob)
	admin.POST("/editor/save/", a.handleEditorSave)
	admin.POST("/editor/view-only/", a.handleViewOnly)
	admin.POST("/drafts/:id/delete/", a.handleDraftDelete)
	admin.GET("/payments/", a.handleAdminPayments)
	admin.POST("/payments/link/", a.handlePaymentLink)
	admin.GET("/payments/expiring/", a.handleExpiringPanel)
	admin.GET("/appointments/", a.handleAdminAppointments)
	admin.POST("/appointments/:id/status/", a.handleAppointmentStatus)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.workspaces != nil {
		a.workspaces.closeAll()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.blobs != nil {
		a.blobs.Close()
	}
	if a.Drafts != nil {
		a.Drafts.Close()
	}
	return nil
}
