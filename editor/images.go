package editor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/webp"

	"github.com/nutriplan/clinicweb/content"
)

// Bounds of the image size controls, in percent of the container.
const (
	MinImageSize = 10
	MaxImageSize = 100
)

// EditorImage is the editor-side record of an image placed in the
// document. Ref names the local blob for uploads that have not been
// published yet; remote images have an empty Ref.
type EditorImage struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"`
	Ref         string  `json:"ref,omitempty"`
	Caption     string  `json:"caption"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Alignment   string  `json:"alignment"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// Local reports whether the image is backed by a blob in this process.
func (img EditorImage) Local() bool { return img.Ref != "" }

// ProbeDimensions decodes only the header of an uploaded image.
func ProbeDimensions(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("editor: unsupported image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, "", fmt.Errorf("editor: image has no pixels")
	}
	return cfg.Width, cfg.Height, format, nil
}

// Resize applies new size controls. With lockAspect the height follows the
// width through the aspect ratio; the aspect ratio itself never changes.
func (img *EditorImage) Resize(width, height int, lockAspect bool) {
	width = clampSize(width)
	if lockAspect && img.AspectRatio > 0 {
		height = int(math.Round(float64(width) / img.AspectRatio))
	}
	img.Width = width
	if height <= 0 {
		img.Height = 0
		return
	}
	img.Height = clampSize(height)
}

// SetAlignment accepts left, center or right; anything else centers.
func (img *EditorImage) SetAlignment(a string) {
	switch a {
	case content.AlignLeft, content.AlignRight:
		img.Alignment = a
	default:
		img.Alignment = content.AlignCenter
	}
}

func clampSize(v int) int {
	return min(max(v, MinImageSize), MaxImageSize)
}
