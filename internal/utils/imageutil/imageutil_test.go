package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeConfig(t *testing.T) {
	w, h, format, err := DecodeConfig(encodePNG(t, 40, 20))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if w != 40 || h != 20 || format != "png" {
		t.Fatalf("got %dx%d %s, want 40x20 png", w, h, format)
	}
}

func TestDecodeConfigRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeConfig([]byte("not an image")); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestSquarePNG(t *testing.T) {
	out, err := SquarePNG(encodePNG(t, 64, 32), 16)
	if err != nil {
		t.Fatalf("SquarePNG: %v", err)
	}

	w, h, format, err := DecodeConfig(out)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if w != 16 || h != 16 || format != "png" {
		t.Fatalf("got %dx%d %s, want 16x16 png", w, h, format)
	}
}

func TestSquarePNGKeepsSmallImages(t *testing.T) {
	out, err := SquarePNG(encodePNG(t, 10, 12), 1024)
	if err != nil {
		t.Fatalf("SquarePNG: %v", err)
	}

	w, h, _, err := DecodeConfig(out)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if w != 10 || h != 10 {
		t.Fatalf("got %dx%d, want 10x10", w, h)
	}
}
