package editor

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nutriplan/clinicweb/content"
)

// toggleList implements the list button. Inside a list of the same style
// the list collapses into one paragraph with a line per item; inside a list
// of the other style it is rebuilt with literal markers. Outside a list the
// selected lines become items and any text around the selection stays in
// paragraphs.
func (s *HTMLSurface) toggleList(style content.ListStyle) error {
	if style == "" {
		style = content.Bullet
	}
	n, _ := s.anchorNode()
	if list := s.listOf(n); list != nil {
		s.retypeList(list, style)
		return nil
	}
	if s.root.FirstChild == nil {
		return ErrNotApplicable
	}

	start, end := s.orderedKeys()
	items := lines(s.textBetween(start, end))
	if len(items) == 0 {
		return ErrNotApplicable
	}
	first, last := s.topIndices(start, end)
	before := lines(s.textBetween([]int{first}, start))
	after := lines(s.textBetween(end, []int{last + 1}))

	firstNode, lastNode := childAt(s.root, first), childAt(s.root, last)
	var images []*html.Node
	for c := firstNode; c != nil; c = c.NextSibling {
		if content.IsImageContainer(c) {
			images = append(images, c)
		} else {
			walk(c, func(d *html.Node) bool {
				if content.IsImageContainer(d) {
					images = append(images, d)
					return false
				}
				return true
			})
		}
		if c == lastNode {
			break
		}
	}
	for _, img := range images {
		if img.Parent != s.root {
			img.Parent.RemoveChild(img)
		}
	}

	var repl []*html.Node
	for _, l := range before {
		repl = append(repl, paragraph(l))
	}
	repl = append(repl, newList(style, items, false))
	for _, l := range after {
		repl = append(repl, paragraph(l))
	}
	repl = append(repl, images...)
	replaceNodes(firstNode, lastNode, repl...)
	return nil
}

func (s *HTMLSurface) retypeList(list *html.Node, style content.ListStyle) {
	var items []string
	i := 0
	for li := list.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		text := strings.TrimSpace(content.StripListPrefix(content.TextContent(li, " "), i))
		i++
		if text != "" {
			items = append(items, text)
		}
	}
	current := content.Bullet
	if list.DataAtom == atom.Ol {
		current = content.Ordered
	}
	if current != style {
		replaceNodes(list, list, newList(style, items, true))
		return
	}
	p := element(atom.P)
	for i, item := range items {
		if i > 0 {
			p.AppendChild(element(atom.Br))
		}
		p.AppendChild(textNode(item))
	}
	if p.FirstChild == nil {
		p.AppendChild(element(atom.Br))
	}
	replaceNodes(list, list, p)
}

// newList builds a list element. Marked lists carry a literal bullet or
// number in front of each item.
func newList(style content.ListStyle, items []string, marked bool) *html.Node {
	tag := atom.Ul
	if style == content.Ordered {
		tag = atom.Ol
	}
	list := element(tag)
	for i, item := range items {
		if marked {
			item = listItemPrefix(style, i) + item
		}
		li := element(atom.Li)
		li.AppendChild(textNode(item))
		list.AppendChild(li)
	}
	return list
}

func paragraph(text string) *html.Node {
	p := element(atom.P)
	p.AppendChild(textNode(text))
	return p
}
