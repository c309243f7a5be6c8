package clinicweb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/clinicweb/api"
)

type fakeSource struct {
	posts []api.BlogPost
	err   error
	calls int
}

func (f *fakeSource) ListBlogs(context.Context) ([]api.BlogPost, error) {
	f.calls++
	return f.posts, f.err
}

func samplePosts() []api.BlogPost {
	return []api.BlogPost{
		{Title: "Old", Slug: "old", PublishDate: "2025-01-10", Categories: []string{"Diet"}},
		{Title: "New", Slug: "new", PublishDate: "2026-02-01", Categories: []string{" diet ", "Sleep"}},
		{Title: "Mid", Slug: "mid", PublishDate: "2025-08-15"},
	}
}

func TestBlogCacheSortsNewestFirst(t *testing.T) {
	c := NewBlogCache(&fakeSource{posts: samplePosts()}, time.Minute)

	posts, err := c.ListPosts(context.Background(), "")
	require.NoError(t, err)
	var slugs []string
	for _, p := range posts {
		slugs = append(slugs, p.Slug)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, slugs)
}

func TestBlogCacheCategories(t *testing.T) {
	c := NewBlogCache(&fakeSource{posts: samplePosts()}, time.Minute)
	ctx := context.Background()

	cats, err := c.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"diet", "sleep"}, cats)

	posts, err := c.ListPosts(ctx, "DIET")
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestBlogCacheTTL(t *testing.T) {
	src := &fakeSource{posts: samplePosts()}
	c := NewBlogCache(src, time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.ListPosts(ctx, "")
	require.NoError(t, err)
	_, err = c.GetPost(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second read is served from the cache")

	now = now.Add(2 * time.Minute)
	_, err = c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "expired cache reloads")

	c.Invalidate()
	_, err = c.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls, "invalidate forces a reload")
}

func TestBlogCacheGetPostMissing(t *testing.T) {
	c := NewBlogCache(&fakeSource{posts: samplePosts()}, time.Minute)
	_, err := c.GetPost(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestBlogCacheEmptyListIsCached(t *testing.T) {
	src := &fakeSource{}
	c := NewBlogCache(src, time.Minute)
	ctx := context.Background()

	posts, err := c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, posts)
	_, _ = c.ListPosts(ctx, "")
	assert.Equal(t, 1, src.calls)
}

func TestBlogCacheSourceError(t *testing.T) {
	boom := errors.New("backend down")
	c := NewBlogCache(&fakeSource{err: boom}, time.Minute)
	_, err := c.ListPosts(context.Background(), "")
	assert.ErrorIs(t, err, boom)
}
