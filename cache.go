package clinicweb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nutriplan/clinicweb/api"
)

// ErrPostNotFound is returned when no published post has the requested slug.
var ErrPostNotFound = errors.New("clinicweb: post not found")

// BlogSource lists every published post.
type BlogSource interface {
	ListBlogs(ctx context.Context) ([]api.BlogPost, error)
}

// BlogCache is an in-memory cache of published blog posts and categories
// with TTL.
type BlogCache struct {
	mu         sync.RWMutex
	posts      []api.BlogPost
	categories []string
	fetched    time.Time
	ttl        time.Duration
	source     BlogSource
	now        func() time.Time
}

// NewBlogCache creates a BlogCache backed by the given source.
func NewBlogCache(src BlogSource, ttl time.Duration) *BlogCache {
	return &BlogCache{source: src, ttl: ttl, now: time.Now}
}

func (c *BlogCache) valid() bool {
	return c.posts != nil && c.now().Sub(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *BlogCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.categories = nil
	c.mu.Unlock()
}

func (c *BlogCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	posts, err := c.source.ListBlogs(ctx)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []api.BlogPost{}
	}
	// Newest first; ISO dates sort lexically.
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PublishDate > posts[j].PublishDate
	})
	seen := make(map[string]bool)
	var cats []string
	for _, p := range posts {
		for _, cat := range p.Categories {
			n := normalizeCategory(cat)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			cats = append(cats, n)
		}
	}
	sort.Strings(cats)
	c.posts = posts
	c.categories = cats
	c.fetched = c.now()
	return nil
}

// ensureLoaded returns cached posts and categories after ensuring the cache
// is fresh. It tries a read lock first; only takes a write lock if a reload
// is needed.
func (c *BlogCache) ensureLoaded(ctx context.Context) ([]api.BlogPost, []string, error) {
	c.mu.RLock()
	if c.valid() {
		posts, cats := c.posts, c.categories
		c.mu.RUnlock()
		return posts, cats, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, nil, err
	}
	return c.posts, c.categories, nil
}

// ListPosts returns published posts, optionally filtered by category.
func (c *BlogCache) ListPosts(ctx context.Context, category string) ([]api.BlogPost, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if category == "" {
		return posts, nil
	}
	normalized := normalizeCategory(category)
	var filtered []api.BlogPost
	for _, p := range posts {
		for _, cat := range p.Categories {
			if normalizeCategory(cat) == normalized {
				filtered = append(filtered, p)
				break
			}
		}
	}
	return filtered, nil
}

// ListCategories returns all unique categories of published posts.
func (c *BlogCache) ListCategories(ctx context.Context) ([]string, error) {
	_, cats, err := c.ensureLoaded(ctx)
	return cats, err
}

// GetPost returns a single published post by slug from the cache.
func (c *BlogCache) GetPost(ctx context.Context, slug string) (api.BlogPost, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return api.BlogPost{}, err
	}
	for _, p := range posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return api.BlogPost{}, ErrPostNotFound
}

func normalizeCategory(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
