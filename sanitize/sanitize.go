// Package sanitize filters untrusted HTML down to the markup the editor and
// the public blog pages are allowed to show.
package sanitize

import (
	"html/template"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// AllowedElements is the complete tag allow-list.
var AllowedElements = []string{
	"p", "h1", "h2", "h3", "h4", "h5", "h6",
	"ul", "ol", "li", "img", "div", "br",
	"strong", "em", "u", "a",
}

var (
	sizeValue     = regexp.MustCompile(`^(?:\d{1,3}(?:\.\d+)?%|auto)$`)
	alignValue    = regexp.MustCompile(`^(?:left|center|right|justify)$`)
	editableValue = regexp.MustCompile(`^(?:true|false)$`)
	classValue    = regexp.MustCompile(`^[a-zA-Z0-9_\- ]{1,128}$`)
	imageIDValue  = regexp.MustCompile(`^[a-zA-Z0-9_\-]{1,64}$`)
)

// Sanitizer wraps a bluemonday policy. It is safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New builds the policy used for all editor and blog markup.
func New() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(AllowedElements...)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("class").Matching(classValue).Globally()
	p.AllowAttrs("contenteditable").Matching(editableValue).Globally()
	p.AllowAttrs("data-image-id").Matching(imageIDValue).Globally()

	p.AllowStyles("width", "height").Matching(sizeValue).Globally()
	p.AllowStyles("text-align").Matching(alignValue).Globally()

	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnFullyQualifiedLinks(true)

	return &Sanitizer{policy: p}
}

// HTML returns the sanitized form of in.
func (s *Sanitizer) HTML(in string) string {
	return s.policy.Sanitize(in)
}

// Trusted sanitizes in and marks the result safe for html/template output.
func (s *Sanitizer) Trusted(in string) template.HTML {
	return template.HTML(s.policy.Sanitize(in))
}
