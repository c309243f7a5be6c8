package clinicweb

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/content"
	"github.com/nutriplan/clinicweb/views"
)

const homePostCount = 3

// contentOptions controls how stored bodies become HTML on this site.
func (a *App) contentOptions() content.Options {
	return content.Options{
		AssetOrigin:   a.Config.AssetBaseURL,
		LocalPrefixes: []string{"/public/", "/admin/editor/blob/"},
	}
}

func (a *App) handleHome(c echo.Context) error {
	p := a.page(c, a.Config.Name)
	p.Meta.JSONLD = views.WebsiteJsonLD(p.Site)
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		a.log.Warn().Err(err).Msg("clinicweb: list posts for home")
	}
	if len(posts) > homePostCount {
		posts = posts[:homePostCount]
	}
	return Render(c, a.Views.Home(views.HomePage{Page: p, Posts: posts, Plans: a.Config.Plans}))
}

func (a *App) handlePlans(c echo.Context) error {
	return Render(c, a.Views.Plans(views.PlansPage{Page: a.page(c, "Plans"), Plans: a.Config.Plans}))
}

// handleSubscribe creates a payment link for the chosen plan and sends the
// member to the payment gateway.
func (a *App) handleSubscribe(c echo.Context) error {
	plan, ok := a.Config.plan(c.FormValue("plan_type"))
	if !ok {
		addFlash(c, flashError, "Choose one of the plans below.")
		return c.Redirect(http.StatusSeeOther, "/plans/")
	}
	u := currentUser(c)
	link, err := a.API.CreatePaymentLink(c.Request().Context(), a.tokens(c), api.PaymentLinkRequest{
		UserID:        u.ID,
		Amount:        plan.Price,
		Currency:      a.Config.Currency,
		LinkPurpose:   "Subscription: " + plan.Name,
		CustomerName:  u.FullName,
		CustomerEmail: u.Email,
		CustomerPhone: u.PhoneNumber,
		PlanType:      plan.PlanType,
		NotifyURL:     a.Config.PaymentNotifyURL,
		ReturnURL:     a.Config.PaymentReturnURL,
	})
	if err != nil {
		return a.fail(c, err, "/plans/")
	}
	if link.LinkURL == "" {
		addFlash(c, flashError, "The payment service did not return a link. Please try again.")
		return c.Redirect(http.StatusSeeOther, "/plans/")
	}
	return c.Redirect(http.StatusSeeOther, link.LinkURL)
}

func (a *App) handleBlogList(c echo.Context) error {
	ctx := c.Request().Context()
	category := normalizeCategory(c.QueryParam("category"))
	p := a.page(c, "Blog")
	posts, err := a.Cache.ListPosts(ctx, category)
	if err != nil {
		a.log.Warn().Err(err).Msg("clinicweb: list posts")
		p.Error = api.UserMessage(err)
	}
	cats, _ := a.Cache.ListCategories(ctx)
	return Render(c, a.Views.BlogList(views.BlogListPage{Page: p, Posts: posts, Categories: cats, Active: category}))
}

func (a *App) handleBlogPost(c echo.Context) error {
	ctx := c.Request().Context()
	post, err := a.Cache.GetPost(ctx, c.Param("slug"))
	if errors.Is(err, ErrPostNotFound) {
		// Published after the cache was filled.
		post, err = a.API.GetBlogBySlug(ctx, c.Param("slug"))
		if errors.Is(err, api.ErrNotFound) {
			return echo.ErrNotFound
		}
	}
	if err != nil {
		return err
	}
	posts, _ := a.Cache.ListPosts(ctx, "")

	p := a.page(c, post.Title)
	p.Meta.Description = post.Description
	p.Meta.OGType = "article"
	p.Meta.JSONLD = views.BlogPostingJsonLD(p.Site, post)
	return Render(c, a.Views.BlogPost(views.BlogPostPage{
		Page:    p,
		Post:    post,
		Body:    views.PostBody(post.Body, a.contentOptions(), a.Sanitizer),
		Related: views.FilterRelatedPosts(post, posts),
	}))
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func (a *App) handleRobots(c echo.Context) error {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	for _, p := range []string{"/admin/", "/profile/", "/appointments/", "/login/", "/register/"} {
		b.WriteString("Disallow: " + p + "\n")
	}
	b.WriteString("\nSitemap: " + strings.TrimRight(a.Config.URL, "/") + "/sitemap.xml\n")
	return c.String(http.StatusOK, b.String())
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
