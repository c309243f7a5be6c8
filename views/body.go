package views

import (
	"html/template"

	"github.com/rs/zerolog/log"

	"github.com/nutriplan/clinicweb/content"
	"github.com/nutriplan/clinicweb/sanitize"
)

// PostBody renders a stored body for readers. Blocks that cannot be
// rendered are skipped and logged; the page is still shown.
func PostBody(body content.Body, opts content.Options, s *sanitize.Sanitizer) template.HTML {
	fragment, err := content.ToHTML(body, opts)
	if err != nil {
		log.Warn().Err(err).Msg("views: skipped blocks while rendering post")
	}
	return s.Trusted(fragment)
}
