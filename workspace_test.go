package clinicweb

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/editor"
	"github.com/nutriplan/clinicweb/notifier"
)

func TestWorkspaceSyncSeedsEmptyMemory(t *testing.T) {
	w := &workspace{tokens: api.NewMemoryTokens(api.Tokens{})}
	cookie := api.NewMemoryTokens(api.Tokens{Access: "a1", Refresh: "r1"})

	store := w.sync(cookie)
	assert.Equal(t, api.Tokens{Access: "a1", Refresh: "r1"}, w.tokens.Tokens())
	assert.Equal(t, "a1", store.Tokens().Access)
}

func TestWorkspaceSyncPushesRefreshedPairToCookie(t *testing.T) {
	w := &workspace{tokens: api.NewMemoryTokens(api.Tokens{Access: "a2", Refresh: "r2"})}
	cookie := api.NewMemoryTokens(api.Tokens{Access: "a1", Refresh: "r1"})

	w.sync(cookie)
	assert.Equal(t, api.Tokens{Access: "a2", Refresh: "r2"}, cookie.Tokens())
}

func TestPairedTokensWritesThrough(t *testing.T) {
	mem := api.NewMemoryTokens(api.Tokens{Access: "a1"})
	cookie := api.NewMemoryTokens(api.Tokens{Access: "a1"})
	p := pairedTokens{mem: mem, cookie: cookie}

	p.SetTokens(api.Tokens{Access: "a3", Refresh: "r3"})
	assert.Equal(t, "a3", mem.Tokens().Access)
	assert.Equal(t, "r3", cookie.Tokens().Refresh)

	p.Clear()
	assert.Empty(t, mem.Tokens().Access)
	assert.Empty(t, cookie.Tokens().Access)
}

func TestWorkspaceKey(t *testing.T) {
	assert.Equal(t, "id:42", workspaceKey(&api.User{ID: "42", Email: "x@example.com"}))
	assert.Equal(t, "email:admin@clinic.example", workspaceKey(&api.User{Email: "Admin@Clinic.example"}))
}

func testWorkspaces(t *testing.T) (*workspaces, *int) {
	t.Helper()
	blobs, err := editor.NewTempBlobStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	built := 0
	build := func(key string, seed api.Tokens) (*workspace, error) {
		built++
		s, err := editor.NewSession(editor.SessionConfig{Admin: true, Blobs: blobs})
		if err != nil {
			return nil, err
		}
		n := notifier.New(func(context.Context) ([]api.ExpiringSubscription, error) { return nil, nil })
		return &workspace{key: key, session: s, notifier: n, tokens: api.NewMemoryTokens(seed), inlined: map[string]string{}}, nil
	}
	return newWorkspaces(build, time.Hour, zerolog.Nop()), &built
}

func TestWorkspacesGetReusesAndAdopts(t *testing.T) {
	ws, built := testWorkspaces(t)

	w1, err := ws.get("id:1", api.Tokens{Access: "a1"})
	require.NoError(t, err)
	w2, err := ws.get("id:1", api.Tokens{Access: "ignored"})
	require.NoError(t, err)
	assert.Same(t, w1, w2)
	assert.Equal(t, 1, *built)
	assert.Equal(t, "a1", w1.tokens.Tokens().Access)

	ws.adopt("id:1", api.Tokens{Access: "a2"})
	assert.Equal(t, "a2", w1.tokens.Tokens().Access)

	ws.end("id:1")
	_, err = ws.get("id:1", api.Tokens{})
	require.NoError(t, err)
	assert.Equal(t, 2, *built)
}

func TestWorkspacesExpireEndsIdleOnly(t *testing.T) {
	ws, _ := testWorkspaces(t)
	_, err := ws.get("id:1", api.Tokens{})
	require.NoError(t, err)
	_, err = ws.get("id:2", api.Tokens{})
	require.NoError(t, err)

	assert.Equal(t, 0, ws.expire(time.Now().Add(-time.Minute)))
	assert.Len(t, ws.items, 2)

	assert.Equal(t, 2, ws.expire(time.Now().Add(time.Minute)))
	assert.Empty(t, ws.items)
}

func TestReleasedImageLeavesInlineCache(t *testing.T) {
	store, err := editor.NewTempBlobStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ref, err := store.Put([]byte("not really a jpeg"), "image/jpeg")
	require.NoError(t, err)
	w := &workspace{inlined: map[string]string{ref: "data:image/jpeg;base64,AAAA", "other": "data:,"}}
	blobs := workspaceBlobs{BlobStore: store, w: w}

	require.NoError(t, blobs.Release(ref))
	assert.False(t, store.Has(ref))
	assert.NotContains(t, w.inlined, ref)
	assert.Contains(t, w.inlined, "other")
}
