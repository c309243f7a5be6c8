package views

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nutriplan/clinicweb/api"
)

// buildURL joins path segments onto a base URL, ensuring a trailing slash.
func buildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// FilterRelatedPosts returns posts that share at least one category with the current post.
func FilterRelatedPosts(current api.BlogPost, posts []api.BlogPost) []api.BlogPost {
	set := make(map[string]struct{})
	for _, c := range current.Categories {
		if c = normalize(c); c != "" {
			set[c] = struct{}{}
		}
	}
	var related []api.BlogPost
	for _, p := range posts {
		if p.Slug == current.Slug {
			continue
		}
		for _, c := range p.Categories {
			if _, ok := set[normalize(c)]; ok {
				related = append(related, p)
				break
			}
		}
	}
	return related
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PathEscape wraps url.PathEscape for use in templates.
func PathEscape(s string) string {
	return url.PathEscape(s)
}

// CategoryClass returns CSS classes for a category pill, with active variant.
func CategoryClass(active bool) string {
	base := "pill"
	if active {
		base += " pill-active"
	}
	return base
}

// JoinCategories formats categories for display.
func JoinCategories(cats []string) string {
	return strings.Join(cats, ", ")
}

// FormatPrice renders an amount with two decimals and the currency code.
func FormatPrice(d decimal.Decimal, currency string) string {
	s := d.StringFixed(2)
	if currency == "" {
		return s
	}
	return currency + " " + s
}

// WebsiteJsonLD produces a Schema.org MedicalClinic JSON-LD block using cfg values.
func WebsiteJsonLD(cfg SiteConfig) string {
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "MedicalClinic",
		"name":     cfg.Name,
		"url":      buildURL(cfg.URL),
	}
	if cfg.Description != "" {
		data["description"] = cfg.Description
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// BlogPostingJsonLD produces a Schema.org BlogPosting JSON-LD block for a post.
func BlogPostingJsonLD(cfg SiteConfig, post api.BlogPost) string {
	postURL := buildURL(cfg.URL, "blog", post.Slug)
	data := map[string]interface{}{
		"@context":      "https://schema.org",
		"@type":         "BlogPosting",
		"headline":      post.Title,
		"description":   post.Description,
		"datePublished": post.PublishDate,
		"url":           postURL,
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		},
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if len(post.Categories) > 0 {
		data["keywords"] = strings.Join(post.Categories, ", ")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
