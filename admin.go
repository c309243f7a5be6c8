package clinicweb

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nutriplan/clinicweb/api"
	"github.com/nutriplan/clinicweb/content"
	"github.com/nutriplan/clinicweb/drafts"
	"github.com/nutriplan/clinicweb/editor"
	"github.com/nutriplan/clinicweb/forms"
	"github.com/nutriplan/clinicweb/views"
)

const editorPath = "/admin/?section=editor"

func (a *App) handleAdmin(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	if sec, ok := editor.ParseSection(c.QueryParam("section")); ok {
		if err := ws.session.Shell().Switch(sec); err != nil {
			return err
		}
	}
	return a.renderAdminDashboard(c, ws, nil, http.StatusOK)
}

func (a *App) renderAdminDashboard(c echo.Context, ws *workspace, errs forms.FieldErrors, code int) error {
	ctx := c.Request().Context()
	shell := ws.session.Shell()
	data := views.AdminPage{
		Page:     a.page(c, "Admin"),
		Section:  shell.Active(),
		Sections: editor.Sections,
		Editor:   a.editorView(c, ws),
		Preview:  a.Sanitizer.Trusted(ws.session.Preview()),
		Expiring: ws.notifier.State(),
	}
	data.Editor.Errors = errs

	switch data.Section {
	case editor.SectionPublished:
		posts, err := a.Cache.ListPosts(ctx, "")
		if err != nil {
			a.log.Warn().Err(err).Msg("clinicweb: list published posts")
			data.Error = api.UserMessage(err)
		}
		data.Published = posts
	case editor.SectionDrafts:
		list, err := a.Drafts.List("")
		if err != nil {
			return err
		}
		data.Drafts = list
	}
	return RenderStatus(c, code, a.Views.Admin(data))
}

func (a *App) editorView(c echo.Context, ws *workspace) views.EditorView {
	s := ws.session
	shell := s.Shell()
	v := views.EditorView{
		SessionID: s.ID,
		CSRF:      CsrfToken(c),
		Meta:      s.Meta(),
		DraftID:   s.DraftID(),
		HTML:      a.Sanitizer.Trusted(s.HTML()),
		Images:    s.Snapshot().Images,
		CanMutate: shell.CanMutate(),
		ViewOnly:  shell.ViewOnly(),
		Unsaved:   shell.Unsaved(),
	}
	if sel, ok := s.Selection(); ok {
		v.Selection = &sel
	}
	return v
}

func (a *App) handleEditorNew(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	ws.session.Flush()
	if err := ws.session.Reset(); err != nil {
		a.log.Warn().Err(err).Msg("clinicweb: reset editor")
	}
	_ = ws.session.Shell().Switch(editor.SectionEditor)
	return c.Redirect(http.StatusSeeOther, editorPath)
}

// handleEditorLoad opens a published post for editing. Published posts
// are fetched fresh so the editor never works on a stale copy.
func (a *App) handleEditorLoad(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	post, err := a.API.GetBlog(c.Request().Context(), api.ID(c.Param("id")))
	if errors.Is(err, api.ErrNotFound) {
		addFlash(c, flashError, "That post no longer exists.")
		return c.Redirect(http.StatusSeeOther, "/admin/?section=published")
	}
	if err != nil {
		return a.fail(c, err, "/admin/?section=published")
	}
	meta := editor.Meta{
		Title:       post.Title,
		Description: post.Description,
		Slug:        post.Slug,
		PublishDate: post.PublishDate,
		Categories:  post.Categories,
	}
	return a.loadDocument(c, ws, meta, post.Body, "")
}

func (a *App) handleEditorDraft(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	d, err := a.Drafts.Get(c.Param("id"))
	if errors.Is(err, drafts.ErrNotFound) {
		addFlash(c, flashError, "That draft no longer exists.")
		return c.Redirect(http.StatusSeeOther, "/admin/?section=drafts")
	}
	if err != nil {
		return err
	}
	meta := editor.Meta{
		Title:       d.Title,
		Description: d.Description,
		Slug:        d.Slug,
		PublishDate: d.PublishDate,
		Categories:  d.Categories,
	}
	return a.loadDocument(c, ws, meta, d.Body, d.ID)
}

func (a *App) loadDocument(c echo.Context, ws *workspace, meta editor.Meta, body content.Body, draftID string) error {
	ws.session.Flush()
	if err := ws.session.Load(meta, body, draftID, a.contentOptions()); err != nil {
		a.log.Warn().Err(err).Msg("clinicweb: load document")
	}
	_ = ws.session.Shell().Switch(editor.SectionEditor)
	return c.Redirect(http.StatusSeeOther, editorPath)
}

func (a *App) handleEditorMeta(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	var form forms.BlogMetaForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}
	form.Slug = strings.TrimSpace(form.Slug)
	if form.Slug == "" {
		form.Slug = Slugify(form.Title)
	}
	errs, err := forms.Check(form)
	if err != nil {
		return err
	}
	if errs != nil {
		return a.renderAdminDashboard(c, ws, errs, http.StatusUnprocessableEntity)
	}
	if err := ws.session.SetMeta(editor.Meta{
		Title:       form.Title,
		Description: form.Description,
		Slug:        form.Slug,
		PublishDate: form.PublishDate,
	}); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, editorPath)
}

func (a *App) handleCategoryAdd(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	// "Diet, Recipes" adds both.
	for _, cat := range FilterEmpty(strings.Split(c.FormValue("category"), ",")) {
		if err := ws.session.AddCategory(normalizeCategory(cat)); err != nil {
			return err
		}
	}
	return c.Redirect(http.StatusSeeOther, editorPath)
}

func (a *App) handleCategoryRemove(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	if err := ws.session.RemoveCategory(c.FormValue("category")); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, editorPath)
}

// editorCommand is the JSON body posted by the editor script.
type editorCommand struct {
	Command   string            `json:"command"`
	Style     string            `json:"style"`
	Tag       string            `json:"tag"`
	ID        string            `json:"id"`
	Alignment string            `json:"alignment"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Lock      bool              `json:"lock"`
	Key       string            `json:"key"`
	Selection *editor.Selection `json:"selection"`
}

func (a *App) handleEditorCommand(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	var cmd editorCommand
	if err := c.Bind(&cmd); err != nil {
		return echo.ErrBadRequest
	}
	s := ws.session
	if err := s.SetSelection(cmd.Selection); err != nil {
		// The browser sent a caret the server cannot resolve; carry on
		// without one.
		_ = s.SetSelection(nil)
	}

	switch cmd.Command {
	case editor.FormatBold, editor.FormatItalic, editor.FormatUnderline,
		editor.FormatAlignLeft, editor.FormatAlignCenter, editor.FormatAlignRight:
		_, err = s.Do(editor.Format{Style: cmd.Command})
	case "list":
		style := content.Bullet
		if cmd.Style == string(content.Ordered) {
			style = content.Ordered
		}
		_, err = s.Do(editor.ToggleList{Style: style})
	case "block":
		_, err = s.Do(editor.SetBlockType{Tag: cmd.Tag})
	case "align-image":
		err = s.AlignImage(cmd.ID, cmd.Alignment)
	case "resize-image":
		err = s.ResizeImage(cmd.ID, cmd.Width, cmd.Height, cmd.Lock)
	case "remove-image":
		err = s.RemoveImage(cmd.ID)
	case "key":
		_, err = s.KeyPress(cmd.Key)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown editor command")
	}
	switch {
	case errors.Is(err, editor.ErrImageNotFound), errors.Is(err, editor.ErrUnknownCommand):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}
	return Render(c, a.Views.EditorSurface(a.editorView(c, ws)))
}

// editorContent is the document edited natively in the browser.
type editorContent struct {
	HTML      string            `json:"html"`
	Selection *editor.Selection `json:"selection"`
}

func (a *App) handleEditorContent(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	var body editorContent
	if err := c.Bind(&body); err != nil {
		return echo.ErrBadRequest
	}
	if strings.TrimSpace(body.HTML) == "" {
		body.HTML = content.EmptyParagraph
	}
	if err := ws.session.ReplaceHTML(body.HTML); err != nil {
		a.log.Warn().Err(err).Msg("clinicweb: replace editor content")
	}
	if err := ws.session.SetSelection(body.Selection); err != nil {
		_ = ws.session.SetSelection(nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleEditorSave publishes the document. Pending edits are flushed
// first; a response for a superseded save is discarded.
func (a *App) handleEditorSave(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	s := ws.session
	if !s.Shell().CanMutate() {
		addFlash(c, flashError, "The editor is in view-only mode.")
		return c.Redirect(http.StatusSeeOther, editorPath)
	}
	s.Flush()
	ticket, err := s.BeginSave()
	if err != nil {
		return err
	}
	snap := ticket.Snapshot

	form := forms.PublishForm{BlogMetaForm: forms.BlogMetaForm{
		Title:       snap.Title,
		Description: snap.Description,
		Slug:        snap.Slug,
		PublishDate: snap.PublishDate,
	}}
	if form.Slug == "" {
		form.Slug = Slugify(form.Title)
	}
	if form.PublishDate == "" {
		form.PublishDate = a.now().Format(forms.DateLayout)
	}
	errs, err := forms.Check(form)
	if err != nil {
		return err
	}
	if errs != nil {
		s.CompleteSave(ticket, api.ErrValidation)
		return a.renderAdminDashboard(c, ws, errs, http.StatusUnprocessableEntity)
	}

	body, err := a.documentBody(ws, snap)
	if err != nil {
		s.CompleteSave(ticket, err)
		a.log.Error().Err(err).Msg("clinicweb: prepare post images")
		addFlash(c, flashError, "Some images could not be prepared. Remove them and try again.")
		return c.Redirect(http.StatusSeeOther, editorPath)
	}
	post := api.BlogPost{
		Title:       form.Title,
		Description: form.Description,
		Slug:        form.Slug,
		PublishDate: form.PublishDate,
		Categories:  snap.Categories,
		Body:        body,
	}
	if post.Categories == nil {
		post.Categories = []string{}
	}
	_, saveErr := a.API.CreateBlog(c.Request().Context(), a.tokens(c), post)
	if !s.CompleteSave(ticket, saveErr) {
		return c.Redirect(http.StatusSeeOther, editorPath)
	}
	if saveErr != nil {
		return a.fail(c, saveErr, editorPath)
	}

	if snap.DraftID != "" {
		if err := a.Drafts.Delete(snap.DraftID); err != nil {
			a.log.Warn().Err(err).Str("draft", snap.DraftID).Msg("clinicweb: delete published draft")
		}
		if s.DraftID() == snap.DraftID {
			s.SetDraftID("")
		}
	}
	a.Cache.Invalidate()
	a.log.Info().Str("slug", post.Slug).Msg("clinicweb: post published")
	addFlash(c, flashOK, "Post published.")
	return c.Redirect(http.StatusSeeOther, "/admin/?section=published")
}

func (a *App) handleViewOnly(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	ws.session.Shell().SetViewOnly(c.FormValue("view_only") == "true")
	return c.Redirect(http.StatusSeeOther, refererPath(c, "/admin/"))
}

func (a *App) handleDraftDelete(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if err := a.Drafts.Delete(id); err != nil && !errors.Is(err, drafts.ErrNotFound) {
		return err
	}
	if ws.session.DraftID() == id {
		ws.session.SetDraftID("")
	}
	addFlash(c, flashOK, "Draft deleted.")
	return c.Redirect(http.StatusSeeOther, "/admin/?section=drafts")
}
