package ocr

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mseitzer/pattern-spotting/internal/localization"
)

// drawText draws text on an image using basicfont
func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// createTextImage renders text onto a white canvas and scales it up by an
// integer factor so Tesseract can read the bitmap font.
func createTextImage(width, height int, scale int, texts map[image.Point]string) *image.RGBA {
	small := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	for p, text := range texts {
		drawText(small, p.X, p.Y, text, color.Black)
	}

	img := image.NewRGBA(image.Rect(0, 0, width*scale, height*scale))
	for y := 0; y < height*scale; y++ {
		for x := 0; x < width*scale; x++ {
			img.Set(x, y, small.At(x/scale, y/scale))
		}
	}
	return img
}

func TestNewReader_DefaultLanguage(t *testing.T) {
	r := NewReader(Options{})
	if len(r.opts.Languages) != 1 || r.opts.Languages[0] != DefaultLanguage {
		t.Errorf("Languages: got %v, want [%s]", r.opts.Languages, DefaultLanguage)
	}
}

func TestReadRegion_InvalidBox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	r := NewReader(Options{})

	tests := []struct {
		name string
		box  localization.Box
	}{
		{"inverted", localization.Box{Left: 20, Upper: 0, Right: 10, Lower: 10}},
		{"outside", localization.Box{Left: 60, Upper: 60, Right: 70, Lower: 70}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.ReadRegion(img, tt.box); err == nil {
				t.Errorf("ReadRegion(%v) should fail", tt.box)
			}
		})
	}
}

func TestToSource(t *testing.T) {
	region := localization.Box{Left: 100, Upper: 50, Right: 299, Lower: 149}

	tests := []struct {
		name  string
		rect  image.Rectangle
		scale float64
		want  localization.Box
	}{
		{"unscaled", image.Rect(10, 20, 30, 40), 1, localization.Box{Left: 110, Upper: 70, Right: 129, Lower: 89}},
		{"scaled", image.Rect(20, 40, 60, 80), 2, localization.Box{Left: 110, Upper: 70, Right: 129, Lower: 89}},
		{"clipped", image.Rect(190, 90, 260, 130), 1, localization.Box{Left: 290, Upper: 140, Right: 299, Lower: 149}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toSource(tt.rect, tt.scale, region); got != tt.want {
				t.Errorf("toSource: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadRegion_RealText(t *testing.T) {
	img := createTextImage(200, 100, 3, map[image.Point]string{
		{X: 60, Y: 55}: "CENTER TEXT",
		{X: 5, Y: 15}:  "TOP LEFT",
	})
	region := localization.Box{Left: 150, Upper: 120, Right: 449, Lower: 209}

	result, err := NewReader(Options{MinSide: 100}).ReadRegion(img, region)
	if err != nil {
		if strings.Contains(err.Error(), "tesseract") || strings.Contains(err.Error(), "language") {
			t.Skip("Tesseract not available")
		}
		t.Fatalf("ReadRegion failed: %v", err)
	}

	t.Logf("Extracted from region: %q", result.Text)
	if result.Box != region {
		t.Errorf("Box: got %v, want %v", result.Box, region)
	}
	if strings.Contains(result.Text, "TOP") {
		t.Errorf("text outside the region was read: %q", result.Text)
	}

	// Word boxes are in source coordinates, inside the region.
	for _, w := range result.Words {
		if w.Box.Left < region.Left || w.Box.Upper < region.Upper ||
			w.Box.Right > region.Right || w.Box.Lower > region.Lower {
			t.Errorf("word %q box %v outside region %v", w.Text, w.Box, region)
		}
	}
}

func TestVersion(t *testing.T) {
	t.Logf("Tesseract version: %q", Version())
}
