package clinicweb

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"

	"github.com/nutriplan/clinicweb/editor"
)

const (
	maxImageWidth = 800
	jpegQuality   = 80
	maxUploadSize = 10 << 20 // 10MB
)

// processImage decodes an image from src, resizes it to maxImageWidth if it
// is wider, and encodes it as JPEG on a white background.
func processImage(src io.Reader) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		h = h * maxImageWidth / w
		w = maxImageWidth
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, max(h, 1)))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// dataURL embeds a processed image so the post carries it to the backend.
func dataURL(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
}

// inlineBlob turns a local editor blob into a data URL.
func inlineBlob(blobs editor.BlobStore, ref string) (string, error) {
	rc, _, err := blobs.Open(ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := processImage(rc)
	if err != nil {
		return "", err
	}
	return dataURL(data), nil
}

func (a *App) handleImageUpload(c echo.Context) error {
	ws, err := a.workspace(c)
	if err != nil {
		return err
	}
	back := "/admin/?section=editor"

	file, err := c.FormFile("image")
	if err != nil {
		addFlash(c, flashError, "Choose an image to upload.")
		return c.Redirect(http.StatusSeeOther, back)
	}
	if file.Size > maxUploadSize {
		addFlash(c, flashError, "That image is too large (max 10MB).")
		return c.Redirect(http.StatusSeeOther, back)
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize+1))
	if err != nil {
		return err
	}

	img, err := ws.session.AddImage(data, http.DetectContentType(data), c.FormValue("caption"))
	if err != nil {
		a.log.Warn().Err(err).Str("file", file.Filename).Msg("clinicweb: rejected upload")
		addFlash(c, flashError, "That file is not an image we can use. Try a JPEG, PNG, GIF or WebP.")
		return c.Redirect(http.StatusSeeOther, back)
	}
	if img.ID == "" {
		addFlash(c, flashError, "The editor is in view-only mode.")
	}
	return c.Redirect(http.StatusSeeOther, back)
}

// handleImageBlob serves an image that has not been published yet.
func (a *App) handleImageBlob(c echo.Context) error {
	rc, contentType, err := a.blobs.Open(c.Param("ref"))
	if err != nil {
		return echo.ErrNotFound
	}
	defer rc.Close()
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.Stream(http.StatusOK, contentType, rc)
}
