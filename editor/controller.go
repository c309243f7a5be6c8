package editor

import (
	"errors"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// ImageLocator is implemented by surfaces that can tell whether a position
// lies on an image container.
type ImageLocator interface {
	ImageAt(p Position) (string, bool)
}

// Controller mediates every edit: it checks the gate and the selection,
// applies the command, propagates the new HTML and puts the caret back.
type Controller struct {
	surface   Surface
	canMutate func() bool
	propagate func(html string)
	log       zerolog.Logger
}

// NewController wires a surface to its gate and change sink. Either
// callback may be nil.
func NewController(surface Surface, canMutate func() bool, propagate func(string), log zerolog.Logger) *Controller {
	if canMutate == nil {
		canMutate = func() bool { return true }
	}
	if propagate == nil {
		propagate = func(string) {}
	}
	return &Controller{surface: surface, canMutate: canMutate, propagate: propagate, log: log}
}

// Do runs one command. It reports whether the document changed; a command
// that does not apply is a silent no-op.
func (c *Controller) Do(cmd Command) (bool, error) {
	if !c.canMutate() {
		return false, nil
	}
	captured, hasSel := c.surface.Selection()
	if cmd.NeedsSelection() && !hasSel {
		return false, nil
	}
	if err := c.surface.Apply(cmd); err != nil {
		if errors.Is(err, ErrNotApplicable) {
			return false, nil
		}
		return false, err
	}
	c.propagate(c.surface.Serialize())
	if hasSel {
		c.restore(captured)
	}
	c.log.Debug().Str("command", cmd.Name()).Msg("editor: applied")
	return true, nil
}

// restore puts the caret back where it was before the command, unless the
// command moved it on purpose. A caret that no longer resolves falls back
// to the end of the document.
func (c *Controller) restore(captured Selection) {
	current, ok := c.surface.Selection()
	if ok && !current.Equal(captured) {
		return
	}
	if err := c.surface.SetSelection(captured); err != nil {
		_ = c.surface.SetSelection(Caret(c.surface.End()))
	}
}

// KeyPress handles keys the browser does not edit natively. Tab indents;
// Enter opens a paragraph; any printable key typed while an image is
// selected first moves the caret into a paragraph after the image.
func (c *Controller) KeyPress(key string) (bool, error) {
	if !c.canMutate() {
		return false, nil
	}
	sel, ok := c.surface.Selection()
	if !ok {
		return false, nil
	}
	if loc, isLoc := c.surface.(ImageLocator); isLoc {
		if id, onImage := loc.ImageAt(sel.Focus); onImage {
			if _, err := c.Do(ExitImage{ID: id}); err != nil {
				return false, err
			}
			if key == "Enter" || key == "Tab" || !printable(key) {
				return true, nil
			}
		}
	}
	switch key {
	case "Tab":
		return c.Do(InsertText{Text: "    "})
	case "Enter":
		return c.Do(InsertParagraph{})
	}
	if printable(key) {
		return c.Do(InsertText{Text: key})
	}
	return false, nil
}

func printable(key string) bool {
	if utf8.RuneCountInString(key) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(key)
	return r >= 0x20 && r != 0x7f
}
