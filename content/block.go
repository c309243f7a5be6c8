// Package content models a blog body as an ordered list of typed blocks and
// converts it to and from the HTML fragment shown in the editor.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// BlockType is the wire discriminator of a block.
type BlockType string

const (
	TypeHeading   BlockType = "heading"
	TypeParagraph BlockType = "paragraph"
	TypeList      BlockType = "list"
	TypeImage     BlockType = "image"
)

// ListStyle selects bullet or numbered rendering of a list block.
type ListStyle string

const (
	Bullet  ListStyle = "bullet"
	Ordered ListStyle = "ordered"
)

// Image alignments accepted on the wire.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// DefaultImageWidth is the width percentage used when a block omits one.
const DefaultImageWidth = 100

var (
	ErrUnknownType    = errors.New("unknown block type")
	ErrMissingContent = errors.New("missing content")
	ErrHeadingLevel   = errors.New("heading level out of range")
	ErrListItems      = errors.New("list items must be a non-empty array of strings")
	ErrListStyle      = errors.New("unknown list style")
	ErrMissingURL     = errors.New("image url is required")
)

// Block is one unit of a body. The concrete types are Heading, Paragraph,
// List and Image.
type Block interface {
	Type() BlockType
}

type Heading struct {
	Level int
	Text  string
}

type Paragraph struct {
	Text string
}

type List struct {
	Style ListStyle
	Items []string
}

// Image is an embedded picture. Width and Height are percentages of the
// container; a zero Height means automatic.
type Image struct {
	URL       string
	Caption   string
	Width     int
	Height    int
	Alignment string
}

func (Heading) Type() BlockType   { return TypeHeading }
func (Paragraph) Type() BlockType { return TypeParagraph }
func (List) Type() BlockType      { return TypeList }
func (Image) Type() BlockType     { return TypeImage }

func (h Heading) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    BlockType `json:"type"`
		Level   int       `json:"level"`
		Content string    `json:"content"`
	}{TypeHeading, h.Level, h.Text})
}

func (p Paragraph) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    BlockType `json:"type"`
		Content string    `json:"content"`
	}{TypeParagraph, p.Text})
}

func (l List) MarshalJSON() ([]byte, error) {
	items := l.Items
	if items == nil {
		items = []string{}
	}
	style := l.Style
	if style == "" {
		style = Bullet
	}
	return json.Marshal(struct {
		Type  BlockType `json:"type"`
		Style ListStyle `json:"style"`
		Items []string  `json:"items"`
	}{TypeList, style, items})
}

func (i Image) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      BlockType `json:"type"`
		URL       string    `json:"url"`
		Caption   string    `json:"caption"`
		Width     int       `json:"width,omitempty"`
		Height    int       `json:"height,omitempty"`
		Alignment string    `json:"alignment,omitempty"`
	}{TypeImage, i.URL, i.Caption, i.Width, i.Height, i.Alignment})
}

// Validate reports why a block cannot be rendered or persisted.
func Validate(b Block) error {
	switch v := b.(type) {
	case Heading:
		if v.Level < 1 || v.Level > 6 {
			return fmt.Errorf("%w: %d", ErrHeadingLevel, v.Level)
		}
	case Paragraph:
	case List:
		if len(v.Items) == 0 {
			return ErrListItems
		}
		if v.Style != Bullet && v.Style != Ordered && v.Style != "" {
			return fmt.Errorf("%w: %q", ErrListStyle, v.Style)
		}
	case Image:
		if strings.TrimSpace(v.URL) == "" {
			return ErrMissingURL
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, b)
	}
	return nil
}

// Body is the ordered block list persisted as a post body. Decoding a Body
// never fails: malformed blocks are dropped and logged.
type Body []Block

func (b Body) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Block(b))
}

func (b *Body) UnmarshalJSON(data []byte) error {
	blocks, err := DecodeBody(data)
	if err != nil {
		log.Warn().Err(err).Int("kept", len(blocks)).Msg("content: dropped malformed blocks")
	}
	*b = blocks
	return nil
}

// wireBlock is the loose shape every block is decoded through. Pointer
// fields distinguish a missing key from a zero value.
type wireBlock struct {
	Type      string          `json:"type"`
	Level     *int            `json:"level"`
	Content   *string         `json:"content"`
	Style     string          `json:"style"`
	Items     json.RawMessage `json:"items"`
	URL       *string         `json:"url"`
	Caption   string          `json:"caption"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Alignment string          `json:"alignment"`
}

// DecodeBody parses a JSON array of blocks. Blocks that fail validation are
// skipped; the returned error lists every skipped block and is nil when all
// blocks decoded. A payload that is not an array yields an empty body.
func DecodeBody(data []byte) (Body, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return Body{}, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return Body{}, fmt.Errorf("body is not an array: %w", err)
	}
	out := make(Body, 0, len(raws))
	var errs error
	for i, raw := range raws {
		b, err := decodeBlock(raw)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("block %d: %w", i, err))
			continue
		}
		out = append(out, b)
	}
	return out, errs
}

func decodeBlock(raw json.RawMessage) (Block, error) {
	var w wireBlock
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	var b Block
	switch BlockType(w.Type) {
	case TypeHeading:
		if w.Content == nil {
			return nil, ErrMissingContent
		}
		if w.Level == nil {
			return nil, fmt.Errorf("%w: missing", ErrHeadingLevel)
		}
		b = Heading{Level: *w.Level, Text: *w.Content}
	case TypeParagraph:
		if w.Content == nil {
			return nil, ErrMissingContent
		}
		b = Paragraph{Text: *w.Content}
	case TypeList:
		var items []string
		if len(w.Items) == 0 || json.Unmarshal(w.Items, &items) != nil {
			return nil, ErrListItems
		}
		style, err := parseListStyle(w.Style)
		if err != nil {
			return nil, err
		}
		b = List{Style: style, Items: items}
	case TypeImage:
		if w.URL == nil {
			return nil, ErrMissingURL
		}
		width := w.Width
		if width <= 0 {
			width = DefaultImageWidth
		}
		b = Image{
			URL:       *w.URL,
			Caption:   w.Caption,
			Width:     width,
			Height:    max(w.Height, 0),
			Alignment: normalizeAlignment(w.Alignment),
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	if err := Validate(b); err != nil {
		return nil, err
	}
	return b, nil
}

func parseListStyle(s string) (ListStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bullet", "unordered":
		return Bullet, nil
	case "ordered", "numbered":
		return Ordered, nil
	}
	return "", fmt.Errorf("%w: %q", ErrListStyle, s)
}

func normalizeAlignment(a string) string {
	switch strings.ToLower(strings.TrimSpace(a)) {
	case AlignLeft:
		return AlignLeft
	case AlignRight:
		return AlignRight
	}
	return AlignCenter
}
