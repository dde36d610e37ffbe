package imageutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/webp"
)

// DecodeConfig reads the dimensions and the format name without decoding the pixels.
func DecodeConfig(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to decode image header: %w", err)
	}

	return cfg.Width, cfg.Height, format, nil
}

// SquarePNG center-crops the image to a square, scales it down so the edge is at
// most maxEdge and encodes the result as PNG.
func SquarePNG(data []byte, maxEdge int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	side := min(bounds.Dx(), bounds.Dy())
	x0 := bounds.Min.X + (bounds.Dx()-side)/2
	y0 := bounds.Min.Y + (bounds.Dy()-side)/2

	var out image.Image = transform.Crop(img, image.Rect(x0, y0, x0+side, y0+side))
	if maxEdge > 0 && side > maxEdge {
		out = transform.Resize(out, maxEdge, maxEdge, transform.Linear)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	return buf.Bytes(), nil
}
