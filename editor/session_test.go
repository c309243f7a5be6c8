package editor

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/clinicweb/content"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestSession(t *testing.T, onChange func(Snapshot)) (*Session, *TempBlobStore) {
	t.Helper()
	blobs, err := NewTempBlobStore(t.TempDir())
	require.NoError(t, err)
	s, err := NewSession(SessionConfig{
		Admin:    true,
		Blobs:    blobs,
		Debounce: 20 * time.Millisecond,
		OnChange: onChange,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.End()
		_ = blobs.Close()
	})
	return s, blobs
}

func TestSessionAddAndRemoveImage(t *testing.T) {
	s, blobs := newTestSession(t, nil)

	img, err := s.AddImage(pngBytes(t, 4, 2), "image/png", "plate")
	require.NoError(t, err)
	assert.True(t, blobs.Has(img.Ref))
	assert.InDelta(t, 2.0, img.AspectRatio, 0.0001)
	assert.Equal(t, "/admin/editor/blob/"+img.Ref, img.URL)
	assert.Contains(t, s.HTML(), `data-image-id="`+img.ID+`"`)
	assert.True(t, s.Shell().Unsaved())

	require.NoError(t, s.RemoveImage(img.ID))
	assert.False(t, blobs.Has(img.Ref))
	assert.NotContains(t, s.HTML(), img.ID)
	_, ok := s.Image(img.ID)
	assert.False(t, ok)
}

func TestSessionRejectsNonImageUpload(t *testing.T) {
	s, blobs := newTestSession(t, nil)
	_, err := s.AddImage([]byte("not an image"), "text/plain", "")
	require.Error(t, err)
	assert.Equal(t, 0, blobs.Len())
}

func TestSessionEndReleasesBlobs(t *testing.T) {
	s, blobs := newTestSession(t, nil)
	_, err := s.AddImage(pngBytes(t, 2, 2), "image/png", "")
	require.NoError(t, err)
	_, err = s.AddImage(pngBytes(t, 3, 1), "image/png", "")
	require.NoError(t, err)
	assert.Equal(t, 2, blobs.Len())

	require.NoError(t, s.End())
	assert.Equal(t, 0, blobs.Len())
	assert.ErrorIs(t, s.AddCategory("late"), ErrSessionEnded)
	require.NoError(t, s.End())
}

func TestSessionReplaceHTMLReleasesDroppedImages(t *testing.T) {
	s, blobs := newTestSession(t, nil)
	img, err := s.AddImage(pngBytes(t, 2, 2), "image/png", "")
	require.NoError(t, err)

	require.NoError(t, s.ReplaceHTML("<p>image deleted in the browser</p>"))
	assert.False(t, blobs.Has(img.Ref))
	assert.Equal(t, "<p>image deleted in the browser</p>", s.HTML())
}

func TestSessionResizeWithLockedAspect(t *testing.T) {
	s, _ := newTestSession(t, nil)
	img, err := s.AddImage(pngBytes(t, 4, 2), "image/png", "")
	require.NoError(t, err)

	require.NoError(t, s.ResizeImage(img.ID, 50, 90, true))
	got, ok := s.Image(img.ID)
	require.True(t, ok)
	assert.Equal(t, 50, got.Width)
	assert.Equal(t, 25, got.Height)
	assert.InDelta(t, 2.0, got.AspectRatio, 0.0001)
	assert.Contains(t, s.HTML(), "width:50%;height:25%")

	require.NoError(t, s.ResizeImage(img.ID, 5, 0, false))
	got, _ = s.Image(img.ID)
	assert.Equal(t, MinImageSize, got.Width)
	assert.Equal(t, 0, got.Height)

	require.NoError(t, s.AlignImage(img.ID, "right"))
	got, _ = s.Image(img.ID)
	assert.Equal(t, content.AlignRight, got.Alignment)
	assert.Contains(t, s.HTML(), "text-align:right")
}

func TestSessionCategoriesAreIdempotent(t *testing.T) {
	s, _ := newTestSession(t, nil)
	require.NoError(t, s.AddCategory("nutrition"))
	require.NoError(t, s.AddCategory(" nutrition "))
	require.NoError(t, s.AddCategory(""))
	require.NoError(t, s.AddCategory("recipes"))
	assert.Equal(t, []string{"nutrition", "recipes"}, s.Meta().Categories)

	require.NoError(t, s.RemoveCategory("nutrition"))
	require.NoError(t, s.RemoveCategory("unknown"))
	assert.Equal(t, []string{"recipes"}, s.Meta().Categories)
}

func TestSessionViewOnlyBlocksEdits(t *testing.T) {
	s, _ := newTestSession(t, nil)
	s.Shell().SetViewOnly(true)

	require.NoError(t, s.AddCategory("x"))
	require.NoError(t, s.SetMeta(Meta{Title: "ignored"}))
	require.NoError(t, s.SetSelection(&Selection{Anchor: Position{Path: []int{0}, Offset: 0}, Focus: Position{Path: []int{0}, Offset: 0}}))
	applied, err := s.Do(SetBlockType{Tag: "h1"})
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Empty(t, s.Meta().Categories)
	assert.Empty(t, s.Meta().Title)
	assert.False(t, s.Shell().Unsaved())
	assert.Equal(t, "<p><br/></p>", s.HTML())
}

func TestSessionSaveSequencing(t *testing.T) {
	s, _ := newTestSession(t, nil)
	require.NoError(t, s.SetMeta(Meta{Title: "First"}))

	first, err := s.BeginSave()
	require.NoError(t, err)
	second, err := s.BeginSave()
	require.NoError(t, err)

	// The older response arrives last and must not win.
	assert.True(t, s.CompleteSave(second, nil))
	assert.False(t, s.Shell().Unsaved())
	require.NoError(t, s.SetMeta(Meta{Title: "Second"}))
	assert.False(t, s.CompleteSave(first, nil))
	assert.True(t, s.Shell().Unsaved())
}

func TestSessionEditDuringSaveStaysDirty(t *testing.T) {
	s, _ := newTestSession(t, nil)
	require.NoError(t, s.SetMeta(Meta{Title: "Draft"}))
	ticket, err := s.BeginSave()
	require.NoError(t, err)
	require.NoError(t, s.AddCategory("late edit"))

	assert.True(t, s.CompleteSave(ticket, nil))
	assert.True(t, s.Shell().Unsaved())
}

func TestSessionFailedSaveStaysDirty(t *testing.T) {
	s, _ := newTestSession(t, nil)
	require.NoError(t, s.SetMeta(Meta{Title: "Draft"}))
	ticket, err := s.BeginSave()
	require.NoError(t, err)
	assert.True(t, s.CompleteSave(ticket, assert.AnError))
	assert.True(t, s.Shell().Unsaved())
}

func TestSessionDebouncesChanges(t *testing.T) {
	got := make(chan Snapshot, 10)
	s, _ := newTestSession(t, func(snap Snapshot) { got <- snap })

	require.NoError(t, s.SetMeta(Meta{Title: "one"}))
	require.NoError(t, s.SetMeta(Meta{Title: "two"}))
	require.NoError(t, s.SetMeta(Meta{Title: "three"}))

	select {
	case snap := <-got:
		assert.Equal(t, "three", snap.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced change was never delivered")
	}
	select {
	case snap := <-got:
		t.Fatalf("unexpected second delivery: %+v", snap.Meta)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionLoadRegistersImages(t *testing.T) {
	s, _ := newTestSession(t, nil)
	body := content.Body{
		content.Heading{Level: 2, Text: "Breakfast"},
		content.Image{URL: "data:image/jpeg;base64,AAAA", Caption: "oats", Width: 80, Height: 40, Alignment: content.AlignLeft},
		content.Image{URL: "", Caption: "invalid"},
		content.Paragraph{Text: "Eat well."},
	}
	require.NoError(t, s.Load(Meta{Title: "Breakfast", Categories: []string{"meals"}}, body, "d1", content.Options{}))

	snap := s.Snapshot()
	assert.Equal(t, "Breakfast", snap.Title)
	assert.Equal(t, "d1", snap.DraftID)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", snap.Images[0].URL)
	assert.InDelta(t, 2.0, snap.Images[0].AspectRatio, 0.0001)
	assert.Contains(t, snap.HTML, content.DefaultImagePlaceholder)
	assert.False(t, s.Shell().Unsaved())
}

func TestShellSections(t *testing.T) {
	sh := NewShell(true)
	assert.Equal(t, SectionEditor, sh.Active())
	require.NoError(t, sh.Switch(SectionDrafts))
	assert.Equal(t, SectionDrafts, sh.Active())
	assert.Error(t, sh.Switch(Section("settings")))
	assert.Equal(t, SectionDrafts, sh.Active())

	assert.True(t, sh.CanMutate())
	sh.SetViewOnly(true)
	assert.False(t, sh.CanMutate())

	assert.False(t, NewShell(false).CanMutate())
}

func TestDebouncerFlush(t *testing.T) {
	var got []string
	d := NewDebouncer(time.Hour, func(v string) { got = append(got, v) })
	d.Push("a")
	d.Push("b")
	d.Flush()
	d.Flush()
	assert.Equal(t, []string{"b"}, got)
	d.Stop()
	d.Push("c")
	d.Flush()
	assert.Equal(t, []string{"b"}, got)
}

func TestDebouncerIgnoresSupersededTimers(t *testing.T) {
	var got []string
	d := NewDebouncer(time.Hour, func(v string) { got = append(got, v) })
	d.Push("a")
	replaced := d.gen
	d.Push("b")

	// The first timer expired while the second push held the lock.
	d.fire(replaced)
	assert.Empty(t, got)

	d.Flush()
	assert.Equal(t, []string{"b"}, got)

	d.Push("c")
	flushed := d.gen
	d.Flush()
	d.fire(flushed)
	assert.Equal(t, []string{"b", "c"}, got)
	d.Stop()
}
