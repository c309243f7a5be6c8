package content

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/net/html"
)

// EmptyParagraph is the fragment produced for an empty body and for empty
// paragraphs, so the editor always has a caret target.
const EmptyParagraph = "<p><br></p>"

// ImageContainerClass marks the non-editable wrapper around an image.
const ImageContainerClass = "image-container"

// ImageIDAttr carries the editor-local identity of an image container.
const ImageIDAttr = "data-image-id"

// DefaultImagePlaceholder replaces inline data URLs on render.
const DefaultImagePlaceholder = "/public/img/image-placeholder.svg"

// Options controls how blocks are rendered.
type Options struct {
	// AssetOrigin is prepended to relative image URLs.
	AssetOrigin string
	// ImagePlaceholder is shown instead of data: URLs.
	ImagePlaceholder string
	// LocalPrefixes lists URL prefixes served by this process; they are
	// never rebased onto AssetOrigin.
	LocalPrefixes []string
	// ImageID assigns the container id of the n-th image. Defaults to "img-n".
	ImageID func(n int) string
}

// ToHTML renders blocks as an HTML fragment. Invalid blocks are skipped and
// reported through the returned error; the fragment is always usable. An
// empty result becomes EmptyParagraph.
func ToHTML(blocks []Block, opts Options) (string, error) {
	if opts.ImagePlaceholder == "" {
		opts.ImagePlaceholder = DefaultImagePlaceholder
	}
	if opts.ImageID == nil {
		opts.ImageID = func(n int) string { return "img-" + strconv.Itoa(n) }
	}

	var sb strings.Builder
	var errs error
	images := 0
	for i, b := range blocks {
		if b == nil {
			errs = multierr.Append(errs, fmt.Errorf("block %d: %w", i, ErrUnknownType))
			continue
		}
		if err := Validate(b); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("block %d: %w", i, err))
			continue
		}
		switch v := b.(type) {
		case Heading:
			fmt.Fprintf(&sb, "<h%d>%s</h%d>", v.Level, html.EscapeString(v.Text), v.Level)
		case Paragraph:
			if strings.TrimSpace(v.Text) == "" {
				sb.WriteString(EmptyParagraph)
				continue
			}
			sb.WriteString("<p>" + html.EscapeString(v.Text) + "</p>")
		case List:
			tag := "ul"
			if v.Style == Ordered {
				tag = "ol"
			}
			sb.WriteString("<" + tag + ">")
			for _, item := range v.Items {
				sb.WriteString("<li>" + html.EscapeString(item) + "</li>")
			}
			sb.WriteString("</" + tag + ">")
		case Image:
			images++
			writeImage(&sb, v, opts.ImageID(images), resolveImageURL(v.URL, opts))
		}
	}
	if sb.Len() == 0 {
		return EmptyParagraph, errs
	}
	return sb.String(), errs
}

func writeImage(sb *strings.Builder, img Image, id, src string) {
	width := img.Width
	if width <= 0 {
		width = DefaultImageWidth
	}
	fmt.Fprintf(sb, `<div class="%s" contenteditable="false" %s="%s" style="text-align:%s">`,
		ImageContainerClass, ImageIDAttr, html.EscapeString(id), normalizeAlignment(img.Alignment))
	fmt.Fprintf(sb, `<img src="%s" alt="%s" style="%s">`,
		html.EscapeString(src), html.EscapeString(img.Caption), ImageStyle(width, img.Height))
	sb.WriteString("</div>")
}

// ImageStyle formats the inline size declaration of an image element.
func ImageStyle(width, height int) string {
	h := "auto"
	if height > 0 {
		h = strconv.Itoa(height) + "%"
	}
	return "width:" + strconv.Itoa(width) + "%;height:" + h
}

func resolveImageURL(raw string, opts Options) string {
	u := strings.TrimSpace(raw)
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "data:") {
		return opts.ImagePlaceholder
	}
	if strings.Contains(lower, "://") || strings.HasPrefix(u, "//") {
		return u
	}
	for _, p := range opts.LocalPrefixes {
		if strings.HasPrefix(u, p) {
			return u
		}
	}
	if opts.AssetOrigin == "" {
		return u
	}
	return strings.TrimRight(opts.AssetOrigin, "/") + "/" + strings.TrimLeft(u, "/")
}
