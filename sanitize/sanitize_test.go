package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizerStripsScript(t *testing.T) {
	s := New()
	tests := []string{
		`<p>hi</p><script>alert(1)</script>`,
		`<img src="x" onerror="alert(1)">`,
		`<a href="javascript:alert(1)">click</a>`,
		`<div onclick="steal()">x</div>`,
		`<iframe src="https://evil.example.com"></iframe>`,
		`<p style="background:url(javascript:alert(1))">x</p>`,
		`<svg onload="alert(1)"></svg>`,
		`<img src="data:text/html;base64,PHNjcmlwdD4=">`,
	}
	for _, in := range tests {
		out := strings.ToLower(s.HTML(in))
		for _, bad := range []string{"<script", "onerror", "onclick", "onload", "javascript:", "<iframe", "<svg", "data:text"} {
			assert.NotContains(t, out, bad, "input %q", in)
		}
	}
}

func TestSanitizerKeepsEditorMarkup(t *testing.T) {
	s := New()
	in := `<div class="image-container" contenteditable="false" data-image-id="img-1" style="text-align:left">` +
		`<img src="/uploads/a.jpg" alt="plate" style="width:50%;height:auto"></div>`
	out := s.HTML(in)

	assert.Contains(t, out, `class="image-container"`)
	assert.Contains(t, out, `contenteditable="false"`)
	assert.Contains(t, out, `data-image-id="img-1"`)
	assert.Contains(t, out, `text-align: left`)
	assert.Contains(t, out, `src="/uploads/a.jpg"`)
	assert.Contains(t, out, `width: 50%`)
}

func TestSanitizerDropsDisallowedStyleValues(t *testing.T) {
	s := New()
	out := s.HTML(`<img src="/a.png" style="width:expression(alert(1));height:40%;position:fixed">`)
	assert.NotContains(t, out, "expression")
	assert.NotContains(t, out, "position")
	assert.Contains(t, out, "height: 40%")
}

func TestSanitizerKeepsFormatting(t *testing.T) {
	s := New()
	in := `<h2>Intro</h2><p><strong>a</strong> <em>b</em> <u>c</u><br></p><ul><li>x</li></ul><ol><li>y</li></ol>`
	out := s.HTML(in)
	for _, tag := range []string{"<h2>", "<strong>", "<em>", "<u>", "<br", "<ul>", "<ol>", "<li>"} {
		assert.Contains(t, out, tag)
	}
}
