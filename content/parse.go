package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StripListPrefix removes the marker the editor writes in front of the
// item at index: a bullet, or the item's own 1-based ordinal followed by a
// dot. Other leading text is part of the item.
func StripListPrefix(s string, index int) string {
	t := strings.TrimLeft(s, " \t\n")
	if rest, ok := strings.CutPrefix(t, "•"); ok {
		return strings.TrimLeft(rest, " ")
	}
	if rest, ok := strings.CutPrefix(t, strconv.Itoa(index+1)+". "); ok {
		return rest
	}
	return s
}

// ParseFragment parses an editor fragment into its top-level nodes, in the
// context of a <div>.
func ParseFragment(fragment string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	return html.ParseFragment(strings.NewReader(fragment), ctx)
}

// FromHTML converts an editor fragment back into blocks. It never returns
// an empty body: when nothing survives, a single empty paragraph is
// returned. The error collects elements that could not be converted.
func FromHTML(fragment string) (Body, error) {
	nodes, err := ParseFragment(fragment)
	if err != nil {
		return Body{Paragraph{}}, fmt.Errorf("parse fragment: %w", err)
	}
	var (
		out  Body
		errs error
	)
	for _, n := range nodes {
		blocks, err := nodeBlocks(n)
		errs = multierr.Append(errs, err)
		out = append(out, blocks...)
	}
	if len(out) == 0 {
		out = Body{Paragraph{}}
	}
	return out, errs
}

func nodeBlocks(n *html.Node) ([]Block, error) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			return []Block{Paragraph{Text: t}}, nil
		}
		return nil, nil
	case html.ElementNode:
	default:
		return nil, nil
	}

	if IsImageContainer(n) || n.DataAtom == atom.Img {
		img, err := imageBlock(n)
		if err != nil {
			return nil, err
		}
		return []Block{img}, nil
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level, _ := strconv.Atoi(n.Data[1:])
		return []Block{Heading{Level: level, Text: strings.TrimSpace(TextContent(n, " "))}}, nil
	case atom.Ul, atom.Ol:
		style := Bullet
		if n.DataAtom == atom.Ol {
			style = Ordered
		}
		var items []string
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Li {
				items = append(items, strings.TrimSpace(StripListPrefix(TextContent(c, " "), len(items))))
			}
		}
		if len(items) == 0 {
			return nil, nil
		}
		return []Block{List{Style: style, Items: items}}, nil
	case atom.Br:
		return nil, nil
	}

	// Containers holding images or other blocks are flattened so each
	// inner block keeps its own boundary.
	if containsBlock(n) {
		return flatten(n)
	}

	if t := strings.TrimSpace(TextContent(n, " ")); t != "" {
		return []Block{Paragraph{Text: t}}, nil
	}
	return nil, nil
}

// flatten converts the children of a container. Runs of inline content
// between nested blocks become paragraphs.
func flatten(n *html.Node) ([]Block, error) {
	var (
		out  []Block
		errs error
		run  strings.Builder
	)
	flush := func() {
		if t := strings.TrimSpace(run.String()); t != "" {
			out = append(out, Paragraph{Text: t})
		}
		run.Reset()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (isBlock(c) || containsBlock(c)) {
			flush()
			blocks, err := nodeBlocks(c)
			errs = multierr.Append(errs, err)
			out = append(out, blocks...)
			continue
		}
		run.WriteString(TextContent(c, " "))
	}
	flush()
	return out, errs
}

func imageBlock(n *html.Node) (Block, error) {
	img := n
	if n.DataAtom != atom.Img {
		img = findFirst(n, func(c *html.Node) bool { return c.DataAtom == atom.Img })
	}
	if img == nil {
		return nil, errors.New("image container without <img>")
	}
	src := strings.TrimSpace(Attr(img, "src"))
	if src == "" {
		return nil, ErrMissingURL
	}
	decl := ParseStyle(Attr(img, "style"))
	block := Image{
		URL:       src,
		Caption:   Attr(img, "alt"),
		Width:     percent(decl["width"], DefaultImageWidth),
		Height:    percent(decl["height"], 0),
		Alignment: normalizeAlignment(ParseStyle(Attr(n, "style"))["text-align"]),
	}
	return block, nil
}

func percent(v string, fallback int) int {
	v = strings.TrimSpace(v)
	if !strings.HasSuffix(v, "%") {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return int(f + 0.5)
}

// IsImageContainer reports whether n is the wrapper element of an image.
func IsImageContainer(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if n.Data == ImageContainerClass || Attr(n, ImageIDAttr) != "" {
		return true
	}
	for _, cls := range strings.Fields(Attr(n, "class")) {
		if cls == ImageContainerClass {
			return true
		}
	}
	return false
}

func isBlock(n *html.Node) bool {
	if IsImageContainer(n) {
		return true
	}
	switch n.DataAtom {
	case atom.Img, atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Blockquote, atom.Section, atom.Article, atom.Pre:
		return true
	}
	return false
}

func containsBlock(n *html.Node) bool {
	return findFirst(n, isBlock) != nil
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// TextContent concatenates the text below n, writing br for each <br>.
func TextContent(n *html.Node, br string) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteString(br)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// ParseStyle splits an inline style attribute into lower-cased properties.
func ParseStyle(style string) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(prop))] = strings.TrimSpace(val)
	}
	return out
}
