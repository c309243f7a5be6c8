package editor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nutriplan/clinicweb/content"
)

// Command is a single editing operation.
type Command interface {
	// Name is the stable identifier used by forms and logs.
	Name() string
	// NeedsSelection reports whether the command acts on the selection.
	NeedsSelection() bool
}

// Inline formats and block alignments accepted by Format.
const (
	FormatBold        = "bold"
	FormatItalic      = "italic"
	FormatUnderline   = "underline"
	FormatAlignLeft   = "align-left"
	FormatAlignCenter = "align-center"
	FormatAlignRight  = "align-right"
)

type Format struct{ Style string }

type ToggleList struct{ Style content.ListStyle }

// SetBlockType converts the block at the caret to "p" or "h1".."h6".
type SetBlockType struct{ Tag string }

type InsertImage struct{ Image EditorImage }

type AlignImage struct{ ID, Alignment string }

type ResizeImage struct {
	ID            string
	Width, Height int
}

type RemoveImage struct{ ID string }

type InsertText struct{ Text string }

// InsertParagraph opens an empty paragraph after the current top-level block.
type InsertParagraph struct{}

// ExitImage moves the caret into a new paragraph after an image container.
type ExitImage struct{ ID string }

func (c Format) Name() string          { return c.Style }
func (ToggleList) Name() string        { return "list" }
func (c SetBlockType) Name() string    { return "block-" + c.Tag }
func (InsertImage) Name() string       { return "insert-image" }
func (AlignImage) Name() string        { return "align-image" }
func (ResizeImage) Name() string       { return "resize-image" }
func (RemoveImage) Name() string       { return "remove-image" }
func (InsertText) Name() string        { return "insert-text" }
func (InsertParagraph) Name() string   { return "insert-paragraph" }
func (ExitImage) Name() string         { return "exit-image" }

func (Format) NeedsSelection() bool          { return true }
func (ToggleList) NeedsSelection() bool      { return true }
func (SetBlockType) NeedsSelection() bool    { return true }
func (InsertImage) NeedsSelection() bool     { return true }
func (AlignImage) NeedsSelection() bool      { return false }
func (ResizeImage) NeedsSelection() bool     { return false }
func (RemoveImage) NeedsSelection() bool     { return false }
func (InsertText) NeedsSelection() bool      { return true }
func (InsertParagraph) NeedsSelection() bool { return true }
func (ExitImage) NeedsSelection() bool       { return false }

// Apply runs cmd against the tree. Commands that move the caret update the
// selection; the rest leave it for the caller to restore.
func (s *HTMLSurface) Apply(cmd Command) error {
	if cmd.NeedsSelection() && !s.hasSel {
		return ErrNotApplicable
	}
	var (
		next *Selection
		err  error
	)
	switch c := cmd.(type) {
	case Format:
		next, err = s.format(c.Style)
	case ToggleList:
		err = s.toggleList(c.Style)
	case SetBlockType:
		err = s.setBlockType(c.Tag)
	case InsertImage:
		next, err = s.insertImage(c.Image)
	case AlignImage:
		err = s.alignImage(c.ID, c.Alignment)
	case ResizeImage:
		err = s.resizeImage(c.ID, c.Width, c.Height)
	case RemoveImage:
		err = s.removeImage(c.ID)
	case InsertText:
		next, err = s.insertText(c.Text)
	case InsertParagraph:
		next, err = s.insertParagraph()
	case ExitImage:
		next, err = s.exitImage(c.ID)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	if err != nil {
		return err
	}
	if next != nil {
		s.sel, s.hasSel = *next, true
	}
	return nil
}

// anchorNode resolves the start of the selection to a node.
func (s *HTMLSurface) anchorNode() (*html.Node, []int) {
	start, _ := s.orderedKeys()
	path := start[:len(start)-1]
	n, err := s.nodeAt(path)
	if err != nil {
		return nil, nil
	}
	if n.Type == html.ElementNode {
		if c := childAt(n, start[len(start)-1]); c != nil {
			return c, append(slices.Clone(path), start[len(start)-1])
		}
	}
	return n, path
}

// blockOf returns the nearest paragraph-like ancestor of n.
func (s *HTMLSurface) blockOf(n *html.Node) *html.Node {
	for ; n != nil && n != s.root; n = n.Parent {
		if isBlock(n) {
			return n
		}
	}
	return nil
}

func (s *HTMLSurface) listOf(n *html.Node) *html.Node {
	for ; n != nil && n != s.root; n = n.Parent {
		if isList(n) {
			return n
		}
	}
	return nil
}

// topIndices returns the first and last top-level children the selection
// touches.
func (s *HTMLSurface) topIndices(start, end []int) (int, int) {
	n := childCount(s.root)
	first := start[0]
	last := end[0]
	if len(end) == 1 {
		last--
	}
	first = min(max(first, 0), n-1)
	last = min(max(last, first), n-1)
	return first, last
}

var inlineTags = map[string][]atom.Atom{
	FormatBold:      {atom.Strong, atom.B},
	FormatItalic:    {atom.Em, atom.I},
	FormatUnderline: {atom.U},
}

func (s *HTMLSurface) format(style string) (*Selection, error) {
	switch style {
	case FormatAlignLeft, FormatAlignCenter, FormatAlignRight:
		return nil, s.alignBlock(strings.TrimPrefix(style, "align-"))
	}
	tags, ok := inlineTags[style]
	if !ok {
		return nil, fmt.Errorf("%w: format %q", ErrUnknownCommand, style)
	}
	n, _ := s.anchorNode()
	if n == nil {
		return nil, ErrNotApplicable
	}
	// Inside the format already: toggle it off.
	for p := n; p != nil && p != s.root && !isBlock(p); p = p.Parent {
		if p.Type == html.ElementNode && slices.Contains(tags, p.DataAtom) {
			unwrap(p)
			return nil, nil
		}
	}
	if s.sel.Collapsed() {
		return nil, ErrNotApplicable
	}
	start, end := s.orderedKeys()
	spans := s.spans(start, end)
	if len(spans) == 0 {
		return nil, ErrNotApplicable
	}
	wrapped := make([]*html.Node, len(spans))
	for i := len(spans) - 1; i >= 0; i-- {
		wrapped[i] = wrapSpan(spans[i], tags[0])
	}
	first, last := wrapped[0], wrapped[len(wrapped)-1]
	sel := Selection{
		Anchor: Position{Path: s.pathOf(first), Offset: 0},
		Focus:  Position{Path: s.pathOf(last), Offset: utf8.RuneCountInString(last.Data)},
	}
	return &sel, nil
}

// wrapSpan splits the text node around the span and wraps the middle part.
// It returns the text node now inside the wrapper.
func wrapSpan(sp textSpan, tag atom.Atom) *html.Node {
	r := []rune(sp.node.Data)
	parent := sp.node.Parent
	before, mid, after := string(r[:sp.lo]), string(r[sp.lo:sp.hi]), string(r[sp.hi:])
	wrapper := element(tag)
	inner := textNode(mid)
	wrapper.AppendChild(inner)
	if before != "" {
		parent.InsertBefore(textNode(before), sp.node)
	}
	parent.InsertBefore(wrapper, sp.node)
	if after != "" {
		parent.InsertBefore(textNode(after), sp.node)
	}
	parent.RemoveChild(sp.node)
	return inner
}

func unwrap(n *html.Node) {
	parent := n.Parent
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

func (s *HTMLSurface) alignBlock(align string) error {
	n, _ := s.anchorNode()
	if c := imageContainerOf(n); c != nil {
		setStyle(c, "text-align", align)
		return nil
	}
	block := s.blockOf(n)
	if block == nil {
		return ErrNotApplicable
	}
	setStyle(block, "text-align", align)
	return nil
}

func (s *HTMLSurface) setBlockType(tag string) error {
	a := atom.Lookup([]byte(tag))
	switch a {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
	default:
		return fmt.Errorf("%w: block type %q", ErrUnknownCommand, tag)
	}
	n, _ := s.anchorNode()
	if n == nil || imageContainerOf(n) != nil || s.listOf(n) != nil {
		return ErrNotApplicable
	}
	block := s.blockOf(n)
	if block == nil {
		// Loose text at the root gets wrapped.
		if n.Type != html.TextNode || n.Parent != s.root {
			return ErrNotApplicable
		}
		el := element(a)
		s.root.InsertBefore(el, n)
		s.root.RemoveChild(n)
		el.AppendChild(n)
		return nil
	}
	if block.DataAtom == a {
		return ErrNotApplicable
	}
	el := element(a, slices.Clone(block.Attr)...)
	for c := block.FirstChild; c != nil; {
		next := c.NextSibling
		block.RemoveChild(c)
		el.AppendChild(c)
		c = next
	}
	block.Parent.InsertBefore(el, block)
	block.Parent.RemoveChild(block)
	return nil
}

func (s *HTMLSurface) imageByID(id string) (*html.Node, error) {
	var found *html.Node
	walk(s.root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if content.IsImageContainer(n) {
			if content.Attr(n, content.ImageIDAttr) == id {
				found = n
			}
			return false
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	return found, nil
}

func newImageContainer(img EditorImage) *html.Node {
	container := element(atom.Div,
		html.Attribute{Key: "class", Val: content.ImageContainerClass},
		html.Attribute{Key: "contenteditable", Val: "false"},
		html.Attribute{Key: content.ImageIDAttr, Val: img.ID},
		html.Attribute{Key: "style", Val: "text-align:" + img.Alignment},
	)
	container.AppendChild(element(atom.Img,
		html.Attribute{Key: "src", Val: img.URL},
		html.Attribute{Key: "alt", Val: img.Caption},
		html.Attribute{Key: "style", Val: content.ImageStyle(img.Width, img.Height)},
	))
	return container
}

func emptyParagraph() *html.Node {
	p := element(atom.P)
	p.AppendChild(element(atom.Br))
	return p
}

// insertImage places the container after the top-level block holding the
// caret, so images never land inside a list, and opens a paragraph below it.
func (s *HTMLSurface) insertImage(img EditorImage) (*Selection, error) {
	start, _ := s.orderedKeys()
	var ref *html.Node
	if len(start) == 1 {
		ref = childAt(s.root, start[0])
	} else if top := childAt(s.root, start[0]); top != nil {
		ref = top.NextSibling
	}
	container := newImageContainer(img)
	p := emptyParagraph()
	s.root.InsertBefore(container, ref)
	s.root.InsertBefore(p, ref)
	sel := Caret(Position{Path: []int{indexOf(p)}, Offset: 0})
	return &sel, nil
}

func (s *HTMLSurface) alignImage(id, align string) error {
	c, err := s.imageByID(id)
	if err != nil {
		return err
	}
	setStyle(c, "text-align", align)
	return nil
}

func (s *HTMLSurface) resizeImage(id string, width, height int) error {
	c, err := s.imageByID(id)
	if err != nil {
		return err
	}
	img := findElement(c, atom.Img)
	if img == nil {
		return fmt.Errorf("%w: %s has no <img>", ErrImageNotFound, id)
	}
	setAttr(img, "style", content.ImageStyle(width, height))
	return nil
}

func (s *HTMLSurface) removeImage(id string) error {
	c, err := s.imageByID(id)
	if err != nil {
		return err
	}
	c.Parent.RemoveChild(c)
	if s.root.FirstChild == nil {
		s.root.AppendChild(emptyParagraph())
	}
	return nil
}

func (s *HTMLSurface) exitImage(id string) (*Selection, error) {
	c, err := s.imageByID(id)
	if err != nil {
		return nil, err
	}
	top := c
	for top.Parent != s.root {
		top = top.Parent
	}
	p := emptyParagraph()
	s.root.InsertBefore(p, top.NextSibling)
	sel := Caret(Position{Path: []int{indexOf(p)}, Offset: 0})
	return &sel, nil
}

func (s *HTMLSurface) insertParagraph() (*Selection, error) {
	start, _ := s.orderedKeys()
	var ref *html.Node
	if len(start) == 1 {
		ref = childAt(s.root, start[0])
	} else if top := childAt(s.root, start[0]); top != nil {
		ref = top.NextSibling
	}
	p := emptyParagraph()
	s.root.InsertBefore(p, ref)
	sel := Caret(Position{Path: []int{indexOf(p)}, Offset: 0})
	return &sel, nil
}

func (s *HTMLSurface) insertText(text string) (*Selection, error) {
	if text == "" {
		return nil, ErrNotApplicable
	}
	start, _ := s.orderedKeys()
	path, offset := start[:len(start)-1], start[len(start)-1]
	n, err := s.nodeAt(path)
	if err != nil {
		return nil, err
	}
	if imageContainerOf(n) != nil {
		return nil, ErrNotApplicable
	}
	if n.Type == html.TextNode {
		r := []rune(n.Data)
		offset = min(offset, len(r))
		n.Data = string(r[:offset]) + text + string(r[offset:])
		sel := Caret(Position{Path: slices.Clone(path), Offset: offset + utf8.RuneCountInString(text)})
		return &sel, nil
	}
	t := textNode(text)
	if n.FirstChild != nil && n.FirstChild == n.LastChild && n.FirstChild.DataAtom == atom.Br {
		// Typing into an empty paragraph replaces its placeholder.
		n.RemoveChild(n.FirstChild)
		n.AppendChild(t)
	} else if n == s.root {
		p := element(atom.P)
		p.AppendChild(t)
		s.root.InsertBefore(p, childAt(n, offset))
	} else {
		n.InsertBefore(t, childAt(n, offset))
	}
	sel := Caret(Position{Path: s.pathOf(t), Offset: utf8.RuneCountInString(text)})
	return &sel, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found == nil && c.Type == html.ElementNode && c.DataAtom == a {
			found = c
		}
		return found == nil
	})
	return found
}

func listItemPrefix(style content.ListStyle, i int) string {
	if style == content.Ordered {
		return strconv.Itoa(i+1) + ". "
	}
	return "• "
}
