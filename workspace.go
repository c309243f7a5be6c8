package clinicweb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/content"
	"github.com/nutriplan/clinicweb/drafts"
	"github.com/nutriplan/clinicweb/editor"
	"github.com/nutriplan/clinicweb/notifier"
)

// workspace is everything one signed-in admin keeps between requests: the
// editor session, the expiring-subscription notifier and the credentials
// the notifier polls with.
type workspace struct {
	key      string
	session  *editor.Session
	notifier *notifier.Notifier
	tokens   *api.MemoryTokens
	log      zerolog.Logger

	mu      sync.Mutex
	inlined map[string]string // blob ref -> data URL
}

// sync reconciles the workspace credentials with the browser's. The
// notifier may have refreshed the pair; the cookie may hold a newer one
// after a fresh sign-in.
func (w *workspace) sync(cookie api.TokenStore) api.TokenStore {
	mem, jar := w.tokens.Tokens(), cookie.Tokens()
	switch {
	case mem.Access == "":
		w.tokens.SetTokens(jar)
	case mem != jar:
		cookie.SetTokens(mem)
	}
	return pairedTokens{mem: w.tokens, cookie: cookie}
}

// pairedTokens writes through to both stores.
type pairedTokens struct {
	mem    *api.MemoryTokens
	cookie api.TokenStore
}

func (p pairedTokens) Tokens() api.Tokens { return p.mem.Tokens() }

func (p pairedTokens) SetTokens(t api.Tokens) {
	p.mem.SetTokens(t)
	p.cookie.SetTokens(t)
}

func (p pairedTokens) Clear() {
	p.mem.Clear()
	p.cookie.Clear()
}

// inline returns the data URL for a local image, encoding it once.
func (w *workspace) inline(blobs editor.BlobStore, ref string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if u, ok := w.inlined[ref]; ok {
		return u, nil
	}
	u, err := inlineBlob(blobs, ref)
	if err != nil {
		return "", err
	}
	w.inlined[ref] = u
	return u, nil
}

// forget drops the cached data URL of a released image.
func (w *workspace) forget(ref string) {
	w.mu.Lock()
	delete(w.inlined, ref)
	w.mu.Unlock()
}

// workspaceBlobs is the blob store seen by a workspace's editor session.
type workspaceBlobs struct {
	editor.BlobStore
	w *workspace
}

func (b workspaceBlobs) Release(ref string) error {
	b.w.forget(ref)
	return b.BlobStore.Release(ref)
}

func (w *workspace) end() {
	w.notifier.Stop()
	if err := w.session.End(); err != nil {
		w.log.Warn().Err(err).Msg("clinicweb: release editor images")
	}
}

// workspaces owns every live workspace and ends idle ones.
type workspaces struct {
	mu    sync.Mutex
	items map[string]*workspace
	build func(key string, seed api.Tokens) (*workspace, error)
	idle  time.Duration
	log   zerolog.Logger
}

func newWorkspaces(build func(string, api.Tokens) (*workspace, error), idle time.Duration, log zerolog.Logger) *workspaces {
	return &workspaces{items: make(map[string]*workspace), build: build, idle: idle, log: log}
}

func (ws *workspaces) get(key string, seed api.Tokens) (*workspace, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if w, ok := ws.items[key]; ok {
		return w, nil
	}
	w, err := ws.build(key, seed)
	if err != nil {
		return nil, err
	}
	ws.items[key] = w
	return w, nil
}

// adopt hands fresh credentials to an existing workspace after a new
// sign-in.
func (ws *workspaces) adopt(key string, t api.Tokens) {
	ws.mu.Lock()
	w, ok := ws.items[key]
	ws.mu.Unlock()
	if ok {
		w.tokens.SetTokens(t)
	}
}

func (ws *workspaces) end(key string) {
	ws.mu.Lock()
	w, ok := ws.items[key]
	delete(ws.items, key)
	ws.mu.Unlock()
	if ok {
		w.end()
	}
}

// expire ends every workspace whose editor has not been used since cutoff.
func (ws *workspaces) expire(cutoff time.Time) int {
	ws.mu.Lock()
	var stale []*workspace
	for key, w := range ws.items {
		if w.session.LastUsed().Before(cutoff) {
			stale = append(stale, w)
			delete(ws.items, key)
		}
	}
	ws.mu.Unlock()
	for _, w := range stale {
		ws.log.Info().Str("workspace", w.key).Msg("clinicweb: ended idle editor session")
		w.end()
	}
	return len(stale)
}

func (ws *workspaces) sweep(ctx context.Context) {
	every := min(max(ws.idle/4, time.Second), 10*time.Minute)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ws.expire(now.Add(-ws.idle))
		}
	}
}

func (ws *workspaces) closeAll() {
	ws.mu.Lock()
	items := ws.items
	ws.items = make(map[string]*workspace)
	ws.mu.Unlock()
	for _, w := range items {
		w.end()
	}
}

// workspaceKey identifies an admin across requests.
func workspaceKey(u *api.User) string {
	if u.ID != "" {
		return "id:" + u.ID.String()
	}
	return "email:" + strings.ToLower(u.Email)
}

// workspace returns the signed-in admin's workspace, creating it on first
// use. Routes using it sit behind requireAdmin.
func (a *App) workspace(c echo.Context) (*workspace, error) {
	u := currentUser(c)
	if u == nil {
		return nil, echo.ErrUnauthorized
	}
	cookie := tokensOf(c)
	w, err := a.workspaces.get(workspaceKey(u), cookie.Tokens())
	if err != nil {
		return nil, err
	}
	c.Set("tokens", w.sync(cookie))
	return w, nil
}

// tokens returns the credentials for backend calls made by this request.
func (a *App) tokens(c echo.Context) api.TokenStore {
	if t, ok := c.Get("tokens").(api.TokenStore); ok {
		return t
	}
	return tokensOf(c)
}

func (a *App) newWorkspace(key string, seed api.Tokens) (*workspace, error) {
	logger := a.log.With().Str("workspace", key).Logger()
	w := &workspace{
		key:     key,
		tokens:  api.NewMemoryTokens(seed),
		log:     logger,
		inlined: make(map[string]string),
	}
	session, err := editor.NewSession(editor.SessionConfig{
		Admin:    true,
		Blobs:    workspaceBlobs{BlobStore: a.blobs, w: w},
		Sanitize: a.Sanitizer.HTML,
		OnChange: func(snap editor.Snapshot) { a.autosave(w, snap) },
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	w.session = session
	w.notifier = notifier.ForClient(a.API, w.tokens,
		notifier.WithInterval(a.Config.ExpiringPollInterval),
		notifier.WithLogger(logger),
	)
	w.notifier.Start(a.ctx)
	return w, nil
}

// documentBody converts a snapshot into stored blocks. Local images are
// embedded; loaded images keep the URL they were stored with, so
// placeholders shown for embedded data never replace the original.
func (a *App) documentBody(w *workspace, snap editor.Snapshot) (content.Body, error) {
	byID := make(map[string]editor.EditorImage, len(snap.Images))
	for _, img := range snap.Images {
		byID[img.ID] = img
	}
	var inlineErr error
	fragment, err := editor.RewriteImageSources(snap.HTML, func(id, src string) string {
		img, ok := byID[id]
		if !ok {
			return src
		}
		if !img.Local() {
			return img.URL
		}
		u, err := w.inline(a.blobs, img.Ref)
		if err != nil {
			inlineErr = multierr.Append(inlineErr, err)
			return ""
		}
		return u
	})
	if err != nil {
		return nil, err
	}
	body, convErr := content.FromHTML(fragment)
	if convErr != nil {
		a.log.Warn().Err(convErr).Msg("clinicweb: skipped blocks while converting document")
	}
	return body, inlineErr
}

// autosave keeps the Drafts section current while the admin types.
func (a *App) autosave(w *workspace, snap editor.Snapshot) {
	if snap.Title == "" && snap.HTML == content.EmptyParagraph {
		return
	}
	body, err := a.documentBody(w, snap)
	if err != nil {
		a.log.Warn().Err(err).Msg("clinicweb: autosave dropped images")
	}
	d, err := a.Drafts.Save(drafts.Draft{
		ID:          snap.DraftID,
		Title:       snap.Title,
		Slug:        snap.Slug,
		Description: snap.Description,
		PublishDate: snap.PublishDate,
		Categories:  snap.Categories,
		Body:        body,
	})
	if err != nil {
		a.log.Error().Err(err).Msg("clinicweb: autosave draft")
		return
	}
	if snap.DraftID == "" {
		w.session.SetDraftID(d.ID)
	}
}
