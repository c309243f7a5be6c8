package content

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestToHTMLScenario(t *testing.T) {
	blocks := []Block{
		Heading{Level: 2, Text: "Intro"},
		Paragraph{Text: "Hello"},
		List{Style: Bullet, Items: []string{"a", "b"}},
	}
	got, err := ToHTML(blocks, Options{})
	require.NoError(t, err)
	assert.Equal(t, "<h2>Intro</h2><p>Hello</p><ul><li>a</li><li>b</li></ul>", got)
}

func TestToHTMLEmpty(t *testing.T) {
	got, err := ToHTML(nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, EmptyParagraph, got)
}

func TestToHTMLSkipsInvalidHeading(t *testing.T) {
	got, err := ToHTML([]Block{
		Heading{Level: 9, Text: "Too deep"},
		Paragraph{Text: "kept"},
	}, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHeadingLevel))
	assert.Equal(t, "<p>kept</p>", got)
}

func TestToHTMLEscapesText(t *testing.T) {
	got, err := ToHTML([]Block{Paragraph{Text: `<script>alert("x")</script>`}}, Options{})
	require.NoError(t, err)
	assert.NotContains(t, got, "<script>")
	assert.Contains(t, got, "&lt;script&gt;")
}

func TestToHTMLImages(t *testing.T) {
	opts := Options{
		AssetOrigin:   "https://cdn.example.com/",
		LocalPrefixes: []string{"/admin/editor/blob/"},
	}
	got, err := ToHTML([]Block{
		Image{URL: "/uploads/a.jpg", Caption: "plate", Width: 50, Alignment: AlignLeft},
		Image{URL: "data:image/png;base64,AAAA", Width: 100, Height: 40},
		Image{URL: "/admin/editor/blob/xyz", Width: 80},
		Image{URL: "https://other.example.com/b.png", Width: 30},
	}, opts)
	require.NoError(t, err)

	assert.Contains(t, got, `<div class="image-container" contenteditable="false" data-image-id="img-1" style="text-align:left">`)
	assert.Contains(t, got, `src="https://cdn.example.com/uploads/a.jpg"`)
	assert.Contains(t, got, `style="width:50%;height:auto"`)
	assert.Contains(t, got, `src="`+DefaultImagePlaceholder+`"`)
	assert.Contains(t, got, `style="width:100%;height:40%"`)
	assert.Contains(t, got, `src="/admin/editor/blob/xyz"`)
	assert.Contains(t, got, `src="https://other.example.com/b.png"`)
	assert.NotContains(t, got, "data:image")
}

func TestFromHTMLScenario(t *testing.T) {
	got, err := FromHTML("<h2>Intro</h2><p>Hello</p><ul><li>a</li><li>b</li></ul>")
	require.NoError(t, err)
	want := Body{
		Heading{Level: 2, Text: "Intro"},
		Paragraph{Text: "Hello"},
		List{Style: Bullet, Items: []string{"a", "b"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FromHTML mismatch (-want +got):\n%s", diff)
	}
}

func TestFromHTMLEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Body
	}{
		{"empty", "", Body{Paragraph{}}},
		{"only empty paragraphs", "<p><br></p><p> </p>", Body{Paragraph{}}},
		{"loose text", "hello <b>world</b>", Body{Paragraph{Text: "hello"}, Paragraph{Text: "world"}}},
		{"div as paragraph", "<div> spaced </div>", Body{Paragraph{Text: "spaced"}}},
		{"br becomes space", "<p>a<br>b</p>", Body{Paragraph{Text: "a b"}}},
		{"ordered list with prefixes", "<ol><li>1. one</li><li>2. two</li></ol>",
			Body{List{Style: Ordered, Items: []string{"one", "two"}}}},
		{"bullet prefixes", "<ul><li>• milk</li><li>•eggs</li></ul>",
			Body{List{Style: Bullet, Items: []string{"milk", "eggs"}}}},
		{"item text that looks like a marker", "<ol><li>2024. A great year</li></ol><ul><li>- 5 grams salt</li><li>* optional</li></ul>",
			Body{List{Style: Ordered, Items: []string{"2024. A great year"}}, List{Style: Bullet, Items: []string{"- 5 grams salt", "* optional"}}}},
		{"nested paragraphs in div", "<div><p>Eat well</p><p>Sleep more</p></div>",
			Body{Paragraph{Text: "Eat well"}, Paragraph{Text: "Sleep more"}}},
		{"inline run around nested blocks", "<div>Eat <b>well</b><h2>Rest</h2><ul><li>sleep</li></ul>and <i>move</i></div>",
			Body{Paragraph{Text: "Eat well"}, Heading{Level: 2, Text: "Rest"}, List{Style: Bullet, Items: []string{"sleep"}}, Paragraph{Text: "and move"}}},
		{"image container", `<div class="image-container" data-image-id="i1" style="text-align:right"><img src="/a.png" alt="cap" style="width:40%;height:25%"></div>`,
			Body{Image{URL: "/a.png", Caption: "cap", Width: 40, Height: 25, Alignment: AlignRight}}},
		{"custom container tag", `<image-container><img src="/b.png"></image-container>`,
			Body{Image{URL: "/b.png", Width: DefaultImageWidth, Alignment: AlignCenter}}},
		{"image nested in paragraph", `<p>before<div class="image-container"><img src="/c.png" style="width:20%;height:auto"></div></p>`,
			Body{Paragraph{Text: "before"}, Image{URL: "/c.png", Width: 20, Alignment: AlignCenter}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := FromHTML(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FromHTML(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	bodies := []Body{
		{Paragraph{Text: "only"}},
		{Heading{Level: 1, Text: "Title"}, Paragraph{Text: "a & b < c"}},
		{List{Style: Ordered, Items: []string{"x", "y", "z"}}, Heading{Level: 6, Text: "end"}},
		{
			Paragraph{Text: "before"},
			Image{URL: "https://img.example.com/p.jpg", Caption: "meal", Width: 60, Height: 30, Alignment: AlignRight},
			List{Style: Bullet, Items: []string{"oats"}},
		},
	}
	for _, body := range bodies {
		fragment, err := ToHTML(body, Options{})
		require.NoError(t, err)
		got, err := FromHTML(fragment)
		require.NoError(t, err)
		if diff := cmp.Diff(body, got); diff != "" {
			t.Errorf("round trip of %s mismatch (-want +got):\n%s", fragment, diff)
		}
	}
}

func TestBodyJSONShape(t *testing.T) {
	body := Body{
		Heading{Level: 2, Text: "Intro"},
		Paragraph{Text: "Hello"},
		List{Style: Bullet, Items: []string{"a", "b"}},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"heading","level":2,"content":"Intro"},
		{"type":"paragraph","content":"Hello"},
		{"type":"list","style":"bullet","items":["a","b"]}
	]`, string(data))

	empty, err := json.Marshal(Body(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestDecodeBodyToleratesMalformedBlocks(t *testing.T) {
	data := []byte(`[
		{"type":"heading","level":7,"content":"bad level"},
		{"type":"heading","content":"no level"},
		{"type":"paragraph"},
		{"type":"list","style":"bullet","items":"not an array"},
		{"type":"list","items":[1,2]},
		{"type":"image","caption":"no url"},
		{"type":"video","url":"x"},
		"garbage",
		{"type":"paragraph","content":"survivor"},
		{"type":"image","url":"/a.png","height":-4}
	]`)
	got, err := DecodeBody(data)
	require.Error(t, err)
	want := Body{
		Paragraph{Text: "survivor"},
		Image{URL: "/a.png", Width: DefaultImageWidth, Alignment: AlignCenter},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("DecodeBody mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, multierr.Errors(err), 8)
}

func TestBodyUnmarshalNeverFails(t *testing.T) {
	var post struct {
		Body Body `json:"body"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"body":{"not":"an array"}}`), &post))
	assert.Empty(t, post.Body)

	require.NoError(t, json.Unmarshal([]byte(`{"body":[{"type":"paragraph","content":"ok"},{"type":"nope"}]}`), &post))
	assert.Equal(t, Body{Paragraph{Text: "ok"}}, post.Body)
}
