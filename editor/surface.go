// Package editor implements the block editor that runs behind the admin
// panel. Documents live in an HTML node tree; every mutation goes through a
// Command applied to a Surface, and a Controller gates, applies and
// propagates those commands.
package editor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nutriplan/clinicweb/content"
)

var (
	// ErrNotApplicable means a command had nothing to act on. Controllers
	// treat it as a no-op.
	ErrNotApplicable   = errors.New("editor: command not applicable here")
	ErrInvalidPosition = errors.New("editor: position does not exist")
	ErrImageNotFound   = errors.New("editor: image not found")
	ErrUnknownCommand  = errors.New("editor: unknown command")
)

// Position addresses a caret inside the document. Path is the child-index
// path from the editable root; Offset counts runes inside a text node or
// children inside an element.
type Position struct {
	Path   []int `json:"path"`
	Offset int   `json:"offset"`
}

// Selection is a DOM-style range. Anchor and Focus may be in either order.
type Selection struct {
	Anchor Position `json:"anchor"`
	Focus  Position `json:"focus"`
}

// Caret returns a collapsed selection at p.
func Caret(p Position) Selection {
	return Selection{Anchor: p, Focus: p}
}

// Collapsed reports whether the selection selects nothing.
func (s Selection) Collapsed() bool {
	return s.Anchor.Offset == s.Focus.Offset && slices.Equal(s.Anchor.Path, s.Focus.Path)
}

// Equal reports whether both ends of s and o coincide.
func (s Selection) Equal(o Selection) bool {
	return s.Anchor.Offset == o.Anchor.Offset && slices.Equal(s.Anchor.Path, o.Anchor.Path) &&
		s.Focus.Offset == o.Focus.Offset && slices.Equal(s.Focus.Path, o.Focus.Path)
}

// Surface is the editable document abstraction the Controller drives.
type Surface interface {
	Serialize() string
	Apply(cmd Command) error
	Selection() (Selection, bool)
	SetSelection(sel Selection) error
	// End is the last caret position of the document.
	End() Position
}

// HTMLSurface is a Surface backed by an x/net/html tree.
type HTMLSurface struct {
	root   *html.Node
	sel    Selection
	hasSel bool
}

// NewHTMLSurface parses fragment into a fresh surface with no selection.
func NewHTMLSurface(fragment string) (*HTMLSurface, error) {
	s := &HTMLSurface{}
	if err := s.Load(fragment); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the whole document. An existing selection is clamped to the
// new tree, or dropped when it no longer resolves.
func (s *HTMLSurface) Load(fragment string) error {
	if strings.TrimSpace(fragment) == "" {
		fragment = content.EmptyParagraph
	}
	nodes, err := content.ParseFragment(fragment)
	if err != nil {
		return fmt.Errorf("editor: parse document: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	s.root = root
	if s.hasSel {
		if err := s.SetSelection(s.sel); err != nil {
			s.hasSel = false
		}
	}
	return nil
}

func (s *HTMLSurface) Serialize() string {
	var sb strings.Builder
	for c := s.root.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

func (s *HTMLSurface) Selection() (Selection, bool) {
	if !s.hasSel {
		return Selection{}, false
	}
	return cloneSelection(s.sel), true
}

// SetSelection validates both ends against the tree. Offsets past the end
// of a node are clamped; unknown paths are rejected.
func (s *HTMLSurface) SetSelection(sel Selection) error {
	anchor, err := s.clamp(sel.Anchor)
	if err != nil {
		return err
	}
	focus, err := s.clamp(sel.Focus)
	if err != nil {
		return err
	}
	s.sel = Selection{Anchor: anchor, Focus: focus}
	s.hasSel = true
	return nil
}

// ClearSelection drops the active selection, as when focus leaves the editor.
func (s *HTMLSurface) ClearSelection() {
	s.hasSel = false
}

func (s *HTMLSurface) End() Position {
	var last *html.Node
	walk(s.root, func(n *html.Node) bool {
		if content.IsImageContainer(n) {
			return false
		}
		if n.Type == html.TextNode {
			last = n
		}
		return true
	})
	if last == nil {
		return Position{Path: []int{}, Offset: childCount(s.root)}
	}
	return Position{Path: s.pathOf(last), Offset: utf8.RuneCountInString(last.Data)}
}

// ImageAt returns the id of the image container that holds p.
func (s *HTMLSurface) ImageAt(p Position) (string, bool) {
	n, err := s.nodeAt(p.Path)
	if err != nil {
		return "", false
	}
	if c := imageContainerOf(n); c != nil {
		return content.Attr(c, content.ImageIDAttr), true
	}
	// An element-level caret directly before a container selects it.
	if n.Type == html.ElementNode {
		if c := childAt(n, p.Offset); content.IsImageContainer(c) {
			return content.Attr(c, content.ImageIDAttr), true
		}
	}
	return "", false
}

// ImageIDs lists the ids of every image container in document order.
func (s *HTMLSurface) ImageIDs() []string {
	var ids []string
	walk(s.root, func(n *html.Node) bool {
		if content.IsImageContainer(n) {
			ids = append(ids, content.Attr(n, content.ImageIDAttr))
			return false
		}
		return true
	})
	return ids
}

func (s *HTMLSurface) clamp(p Position) (Position, error) {
	n, err := s.nodeAt(p.Path)
	if err != nil {
		return Position{}, err
	}
	limit := childCount(n)
	if n.Type == html.TextNode {
		limit = utf8.RuneCountInString(n.Data)
	}
	return Position{Path: slices.Clone(p.Path), Offset: min(max(p.Offset, 0), limit)}, nil
}

func (s *HTMLSurface) nodeAt(path []int) (*html.Node, error) {
	n := s.root
	for _, idx := range path {
		c := childAt(n, idx)
		if c == nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, path)
		}
		n = c
	}
	return n, nil
}

func (s *HTMLSurface) pathOf(n *html.Node) []int {
	var path []int
	for ; n != nil && n != s.root; n = n.Parent {
		path = append(path, indexOf(n))
	}
	slices.Reverse(path)
	return path
}

// orderedKeys returns the selection ends as comparable keys, start first.
func (s *HTMLSurface) orderedKeys() (start, end []int) {
	a, f := key(s.sel.Anchor), key(s.sel.Focus)
	if compareKeys(a, f) <= 0 {
		return a, f
	}
	return f, a
}

// key appends the offset to the path. Lexicographic order of keys, with a
// prefix sorting first, is document order.
func key(p Position) []int {
	return append(slices.Clone(p.Path), p.Offset)
}

func compareKeys(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func hasPrefix(k, prefix []int) bool {
	return len(k) >= len(prefix) && slices.Equal(k[:len(prefix)], prefix)
}

// textSpan is the part of a text node covered by a range.
type textSpan struct {
	node   *html.Node
	lo, hi int
}

// spans returns the text node spans between two keys in document order,
// skipping image containers.
func (s *HTMLSurface) spans(start, end []int) []textSpan {
	var out []textSpan
	s.walkRange(start, end, func(n *html.Node, path []int) {
		if n.Type != html.TextNode {
			return
		}
		lo, hi := s.textBounds(n, path, start, end)
		if hi > lo {
			out = append(out, textSpan{node: n, lo: lo, hi: hi})
		}
	})
	return out
}

func (s *HTMLSurface) textBounds(n *html.Node, path, start, end []int) (int, int) {
	size := utf8.RuneCountInString(n.Data)
	first, last := append(slices.Clone(path), 0), append(slices.Clone(path), size)
	lo := size
	switch {
	case compareKeys(start, first) <= 0:
		lo = 0
	case len(start) == len(path)+1 && hasPrefix(start, path):
		lo = min(start[len(path)], size)
	}
	hi := 0
	switch {
	case compareKeys(end, last) >= 0:
		hi = size
	case len(end) == len(path)+1 && hasPrefix(end, path):
		hi = min(end[len(path)], size)
	}
	return lo, hi
}

// walkRange visits every node in document order with its path, skipping
// the inside of image containers.
func (s *HTMLSurface) walkRange(start, end []int, visit func(*html.Node, []int)) {
	var rec func(n *html.Node, path []int)
	rec = func(n *html.Node, path []int) {
		i := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p := append(slices.Clone(path), i)
			i++
			after := slices.Clone(p)
			after[len(after)-1]++
			if compareKeys(after, start) <= 0 {
				continue
			}
			if compareKeys(p, end) >= 0 {
				return
			}
			visit(c, p)
			if !content.IsImageContainer(c) {
				rec(c, p)
			}
		}
	}
	rec(s.root, nil)
}

// textBetween flattens the text between two keys. Block boundaries and
// <br> elements become newlines.
func (s *HTMLSurface) textBetween(start, end []int) string {
	var sb strings.Builder
	pendingBreak := false
	s.walkRange(start, end, func(n *html.Node, path []int) {
		switch {
		case n.Type == html.TextNode:
			lo, hi := s.textBounds(n, path, start, end)
			if hi <= lo {
				return
			}
			if pendingBreak && sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			pendingBreak = false
			r := []rune(n.Data)
			sb.WriteString(string(r[lo:hi]))
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			if compareKeys(start, path) <= 0 {
				sb.WriteByte('\n')
				pendingBreak = false
			}
		case isBlock(n):
			pendingBreak = true
		}
	})
	return sb.String()
}

func lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func walk(n *html.Node, visit func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if visit(c) {
			walk(c, visit)
		}
	}
}

func childAt(n *html.Node, idx int) *html.Node {
	if idx < 0 {
		return nil
	}
	c := n.FirstChild
	for ; c != nil && idx > 0; idx-- {
		c = c.NextSibling
	}
	return c
}

func childCount(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count++
	}
	return count
}

func indexOf(n *html.Node) int {
	i := 0
	for c := n.PrevSibling; c != nil; c = c.PrevSibling {
		i++
	}
	return i
}

func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.P, atom.Div, atom.Li, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return !content.IsImageContainer(n)
	}
	return false
}

func isList(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && (n.DataAtom == atom.Ul || n.DataAtom == atom.Ol)
}

func imageContainerOf(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if content.IsImageContainer(n) {
			return n
		}
	}
	return nil
}

func cloneSelection(sel Selection) Selection {
	return Selection{
		Anchor: Position{Path: slices.Clone(sel.Anchor.Path), Offset: sel.Anchor.Offset},
		Focus:  Position{Path: slices.Clone(sel.Focus.Path), Offset: sel.Focus.Offset},
	}
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a, Attr: attrs}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func setAttr(n *html.Node, k, v string) {
	for i := range n.Attr {
		if n.Attr[i].Key == k {
			n.Attr[i].Val = v
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: k, Val: v})
}

// setStyle updates one inline style property, keeping the others.
func setStyle(n *html.Node, prop, val string) {
	decl := content.ParseStyle(content.Attr(n, "style"))
	decl[prop] = val
	keys := make([]string, 0, len(decl))
	for k := range decl {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if decl[k] != "" {
			parts = append(parts, k+":"+decl[k])
		}
	}
	setAttr(n, "style", strings.Join(parts, ";"))
}

// replaceNodes swaps the contiguous siblings first..last for repl.
func replaceNodes(first, last *html.Node, repl ...*html.Node) {
	parent := first.Parent
	next := last.NextSibling
	for c := first; c != next; {
		following := c.NextSibling
		parent.RemoveChild(c)
		c = following
	}
	for _, r := range repl {
		parent.InsertBefore(r, next)
	}
}
