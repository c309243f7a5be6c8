package editor

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nutriplan/clinicweb/content"
)

// RewriteImageSources returns fragment with the src of every image inside
// a container replaced by resolve(id, src). Sources resolved to "" drop
// the whole container.
func RewriteImageSources(fragment string, resolve func(id, src string) string) (string, error) {
	nodes, err := content.ParseFragment(fragment)
	if err != nil {
		return "", err
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	var drop []*html.Node
	walk(root, func(n *html.Node) bool {
		if !content.IsImageContainer(n) {
			return true
		}
		img := findElement(n, atom.Img)
		if img == nil {
			return false
		}
		src := resolve(content.Attr(n, content.ImageIDAttr), content.Attr(img, "src"))
		if src == "" {
			drop = append(drop, n)
			return false
		}
		setAttr(img, "src", src)
		return false
	})
	for _, n := range drop {
		n.Parent.RemoveChild(n)
	}
	var sb strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}
