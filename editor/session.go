package editor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/nutriplan/clinicweb/content"
)

var ErrSessionEnded = errors.New("editor: session ended")

// Meta is the post metadata edited next to the body.
type Meta struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Slug        string   `json:"slug"`
	PublishDate string   `json:"publish_date"`
	Categories  []string `json:"categories"`
}

// Snapshot is a consistent copy of a session's document.
type Snapshot struct {
	Meta
	DraftID string
	HTML    string
	Images  []EditorImage
}

// SessionConfig wires a session to its collaborators.
type SessionConfig struct {
	Admin    bool
	Blobs    BlobStore
	BlobURL  func(ref string) string
	Sanitize func(string) string
	Debounce time.Duration
	// OnChange receives the debounced document after edits settle.
	OnChange func(Snapshot)
	Logger   zerolog.Logger
}

// SaveTicket identifies one save request. Only the most recent ticket may
// complete; older responses are discarded.
type SaveTicket struct {
	Seq      uint64
	edits    uint64
	Snapshot Snapshot
}

// Session is one admin's editing state: the document, its images, the
// shell, and save bookkeeping. All methods are safe for concurrent use.
type Session struct {
	ID string

	cfg      SessionConfig
	shell    *Shell
	debounce *Debouncer

	mu       sync.Mutex
	meta     Meta
	draftID  string
	surface  *HTMLSurface
	ctrl     *Controller
	images   map[string]*EditorImage
	preview  string
	edits    uint64
	saveSeq  uint64
	lastUsed time.Time
	ended    bool
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Blobs == nil {
		return nil, errors.New("editor: session needs a blob store")
	}
	if cfg.BlobURL == nil {
		cfg.BlobURL = func(ref string) string { return "/admin/editor/blob/" + ref }
	}
	if cfg.Sanitize == nil {
		cfg.Sanitize = func(s string) string { return s }
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}
	surface, err := NewHTMLSurface(content.EmptyParagraph)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:       uuid.NewString(),
		cfg:      cfg,
		shell:    NewShell(cfg.Admin),
		surface:  surface,
		images:   make(map[string]*EditorImage),
		preview:  surface.Serialize(),
		lastUsed: time.Now(),
	}
	s.debounce = NewDebouncer(cfg.Debounce, s.settled)
	s.ctrl = NewController(surface, s.shell.CanMutate, s.changed, cfg.Logger)
	return s, nil
}

func (s *Session) Shell() *Shell { return s.shell }

// changed runs under s.mu for every applied edit.
func (s *Session) changed(html string) {
	s.edits++
	s.shell.MarkDirty()
	s.debounce.Push(html)
}

func (s *Session) settled(html string) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.preview = html
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(snap)
	}
}

func (s *Session) lock() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	s.lastUsed = time.Now()
	return nil
}

// Load replaces the document with body and meta, releasing every image of
// the previous document. draftID is empty for published posts.
func (s *Session) Load(meta Meta, body content.Body, draftID string, opts content.Options) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	var ids []string
	opts.ImageID = func(int) string {
		id := uuid.NewString()
		ids = append(ids, id)
		return id
	}
	fragment, convErr := content.ToHTML(body, opts)
	if convErr != nil {
		s.cfg.Logger.Warn().Err(convErr).Msg("editor: skipped blocks while loading")
	}
	if err := s.surface.Load(s.cfg.Sanitize(fragment)); err != nil {
		return err
	}
	s.surface.ClearSelection()
	relErr := s.releaseAllLocked()

	n := 0
	for _, b := range body {
		img, ok := b.(content.Image)
		if !ok || content.Validate(img) != nil || n >= len(ids) {
			continue
		}
		rec := &EditorImage{
			ID:      ids[n],
			URL:     img.URL,
			Caption: img.Caption,
			Width:   img.Width,
			Height:  img.Height,
		}
		rec.SetAlignment(img.Alignment)
		if img.Height > 0 {
			rec.AspectRatio = float64(img.Width) / float64(img.Height)
		}
		s.images[rec.ID] = rec
		n++
	}

	meta.Categories = slices.Clone(meta.Categories)
	s.meta = meta
	s.draftID = draftID
	s.preview = s.surface.Serialize()
	s.edits++
	s.shell.MarkSaved()
	return relErr
}

// Reset clears the document for a new post.
func (s *Session) Reset() error {
	return s.Load(Meta{}, nil, "", content.Options{})
}

func (s *Session) Meta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta
	m.Categories = slices.Clone(m.Categories)
	return m
}

func (s *Session) DraftID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftID
}

func (s *Session) SetDraftID(id string) {
	s.mu.Lock()
	s.draftID = id
	s.mu.Unlock()
}

// SetMeta updates title, description, slug and date. Categories are
// managed through AddCategory and RemoveCategory.
func (s *Session) SetMeta(m Meta) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if !s.shell.CanMutate() {
		return nil
	}
	s.meta.Title = strings.TrimSpace(m.Title)
	s.meta.Description = strings.TrimSpace(m.Description)
	s.meta.Slug = strings.TrimSpace(m.Slug)
	s.meta.PublishDate = strings.TrimSpace(m.PublishDate)
	s.changed(s.surface.Serialize())
	return nil
}

// AddCategory appends a category. Blank and duplicate categories are
// ignored.
func (s *Session) AddCategory(c string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	c = strings.TrimSpace(c)
	if !s.shell.CanMutate() || c == "" || slices.Contains(s.meta.Categories, c) {
		return nil
	}
	s.meta.Categories = append(s.meta.Categories, c)
	s.changed(s.surface.Serialize())
	return nil
}

func (s *Session) RemoveCategory(c string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	i := slices.Index(s.meta.Categories, c)
	if !s.shell.CanMutate() || i < 0 {
		return nil
	}
	s.meta.Categories = slices.Delete(s.meta.Categories, i, i+1)
	s.changed(s.surface.Serialize())
	return nil
}

// SetSelection records the browser caret. A nil selection clears it.
func (s *Session) SetSelection(sel *Selection) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if sel == nil {
		s.surface.ClearSelection()
		return nil
	}
	return s.surface.SetSelection(*sel)
}

func (s *Session) Selection() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Selection()
}

// Do applies a toolbar command.
func (s *Session) Do(cmd Command) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.ctrl.Do(cmd)
}

func (s *Session) KeyPress(key string) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.ctrl.KeyPress(key)
}

// ReplaceHTML installs the fragment edited natively in the browser.
// Images that disappeared from the document are released.
func (s *Session) ReplaceHTML(fragment string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if !s.shell.CanMutate() {
		return nil
	}
	if err := s.surface.Load(s.cfg.Sanitize(fragment)); err != nil {
		return err
	}
	present := s.surface.ImageIDs()
	var errs error
	for id, img := range s.images {
		if !slices.Contains(present, id) {
			errs = multierr.Append(errs, s.releaseLocked(img))
			delete(s.images, id)
		}
	}
	s.changed(s.surface.Serialize())
	return errs
}

// AddImage stores an upload as a blob and inserts it at the caret, or at
// the end of the document when there is no caret.
func (s *Session) AddImage(data []byte, contentType, caption string) (EditorImage, error) {
	if err := s.lock(); err != nil {
		return EditorImage{}, err
	}
	defer s.mu.Unlock()
	if !s.shell.CanMutate() {
		return EditorImage{}, nil
	}
	w, h, _, err := ProbeDimensions(data)
	if err != nil {
		return EditorImage{}, err
	}
	ref, err := s.cfg.Blobs.Put(data, contentType)
	if err != nil {
		return EditorImage{}, err
	}
	img := &EditorImage{
		ID:          uuid.NewString(),
		URL:         s.cfg.BlobURL(ref),
		Ref:         ref,
		Caption:     caption,
		Width:       MaxImageSize,
		Alignment:   content.AlignCenter,
		AspectRatio: float64(w) / float64(h),
	}
	if _, ok := s.surface.Selection(); !ok {
		if err := s.surface.SetSelection(Caret(s.surface.End())); err != nil {
			_ = s.cfg.Blobs.Release(ref)
			return EditorImage{}, err
		}
	}
	if _, err := s.ctrl.Do(InsertImage{Image: *img}); err != nil {
		_ = s.cfg.Blobs.Release(ref)
		return EditorImage{}, err
	}
	s.images[img.ID] = img
	return *img, nil
}

func (s *Session) AlignImage(id, alignment string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	next := *img
	next.SetAlignment(alignment)
	applied, err := s.ctrl.Do(AlignImage{ID: id, Alignment: next.Alignment})
	if err == nil && applied {
		*img = next
	}
	return err
}

// ResizeImage applies the size controls. With lockAspect the height is
// derived from the width.
func (s *Session) ResizeImage(id string, width, height int, lockAspect bool) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	next := *img
	next.Resize(width, height, lockAspect)
	applied, err := s.ctrl.Do(ResizeImage{ID: id, Width: next.Width, Height: next.Height})
	if err == nil && applied {
		*img = next
	}
	return err
}

// RemoveImage deletes the container and releases its blob.
func (s *Session) RemoveImage(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	applied, err := s.ctrl.Do(RemoveImage{ID: id})
	if err != nil || !applied {
		return err
	}
	delete(s.images, id)
	return s.releaseLocked(img)
}

func (s *Session) Image(id string) (EditorImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return EditorImage{}, false
	}
	return *img, true
}

// HTML is the current document, before debouncing.
func (s *Session) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Serialize()
}

// Preview is the last settled document.
func (s *Session) Preview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// Flush delivers pending changes immediately.
func (s *Session) Flush() {
	s.debounce.Flush()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	m := s.meta
	m.Categories = slices.Clone(m.Categories)
	snap := Snapshot{Meta: m, DraftID: s.draftID, HTML: s.surface.Serialize()}
	for _, id := range s.surface.ImageIDs() {
		if img, ok := s.images[id]; ok {
			snap.Images = append(snap.Images, *img)
		}
	}
	return snap
}

// BeginSave starts a save and supersedes any save still in flight.
func (s *Session) BeginSave() (SaveTicket, error) {
	if err := s.lock(); err != nil {
		return SaveTicket{}, err
	}
	defer s.mu.Unlock()
	s.saveSeq++
	return SaveTicket{Seq: s.saveSeq, edits: s.edits, Snapshot: s.snapshotLocked()}, nil
}

// CompleteSave records the outcome of a save. It returns false when the
// ticket is stale, in which case the outcome is ignored. A successful
// save clears the unsaved flag unless the document changed meanwhile.
func (s *Session) CompleteSave(t SaveTicket, saveErr error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || t.Seq != s.saveSeq {
		return false
	}
	if saveErr == nil && t.edits == s.edits {
		s.shell.MarkSaved()
	}
	return true
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// End stops propagation and releases every local image. It is idempotent.
func (s *Session) End() error {
	s.debounce.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	return s.releaseAllLocked()
}

func (s *Session) releaseAllLocked() error {
	var errs error
	for id, img := range s.images {
		errs = multierr.Append(errs, s.releaseLocked(img))
		delete(s.images, id)
	}
	return errs
}

func (s *Session) releaseLocked(img *EditorImage) error {
	if !img.Local() {
		return nil
	}
	return s.cfg.Blobs.Release(img.Ref)
}
