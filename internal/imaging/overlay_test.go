package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/mseitzer/pattern-spotting/internal/localization"
)

func rgb8(img image.Image, x, y int) (uint32, uint32, uint32) {
	r, g, b, _ := img.At(x, y).RGBA()
	return r >> 8, g >> 8, b >> 8
}

func TestDrawBoxes(t *testing.T) {
	img := createInMemoryImage(100, 80, color.RGBA{0, 0, 0, 255})
	boxes := []localization.Box{
		{Left: 10, Upper: 10, Right: 49, Lower: 39},
	}

	result, err := DrawBoxes(img, boxes, "#00FF00", 2, false)
	if err != nil {
		t.Fatalf("DrawBoxes failed: %v", err)
	}
	if result.Width != 100 || result.Height != 80 || result.Boxes != 1 {
		t.Errorf("unexpected result: %dx%d with %d boxes", result.Width, result.Height, result.Boxes)
	}

	out := decodeResult(t, result.ImageBase64)
	tests := []struct {
		x, y    int
		r, g, b uint32
	}{
		{10, 10, 0, 255, 0}, // corner
		{11, 25, 0, 255, 0}, // left edge, second line
		{49, 39, 0, 255, 0}, // bottom-right corner
		{12, 25, 0, 0, 0},   // inside
		{9, 25, 0, 0, 0},    // outside
		{50, 25, 0, 0, 0},
	}
	for _, tt := range tests {
		r, g, b := rgb8(out, tt.x, tt.y)
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("pixel (%d,%d): got (%d,%d,%d), want (%d,%d,%d)", tt.x, tt.y, r, g, b, tt.r, tt.g, tt.b)
		}
	}

	// The source image is not modified.
	if r, g, b := rgb8(img, 10, 10); r != 0 || g != 0 || b != 0 {
		t.Error("DrawBoxes modified its input")
	}
}

func TestDrawBoxes_Clipped(t *testing.T) {
	img := createInMemoryImage(20, 20, color.Black)
	boxes := []localization.Box{{Left: 15, Upper: 15, Right: 40, Lower: 40}}

	result, err := DrawBoxes(img, boxes, "", 1, true)
	if err != nil {
		t.Fatalf("DrawBoxes failed: %v", err)
	}
	out := decodeResult(t, result.ImageBase64)
	if r, g, b := rgb8(out, 15, 19); r != 255 || g != 0 || b != 0 {
		t.Errorf("left edge: got (%d,%d,%d), want default red", r, g, b)
	}
}

func TestDrawBoxes_Translucent(t *testing.T) {
	img := createInMemoryImage(10, 10, color.RGBA{0, 0, 0, 255})
	boxes := []localization.Box{{Left: 0, Upper: 0, Right: 9, Lower: 9}}

	result, err := DrawBoxes(img, boxes, "#FFFFFF80", 1, false)
	if err != nil {
		t.Fatalf("DrawBoxes failed: %v", err)
	}
	r, _, _ := rgb8(decodeResult(t, result.ImageBase64), 0, 5)
	if r < 120 || r > 135 {
		t.Errorf("blended value: got %d, want about 128", r)
	}
}

func TestDrawBoxes_Errors(t *testing.T) {
	img := createInMemoryImage(10, 10, color.Black)
	if _, err := DrawBoxes(img, nil, "#12345", 1, false); err == nil {
		t.Error("DrawBoxes should fail for a malformed colour")
	}
	if _, err := DrawBoxes(img, []localization.Box{{Left: 5, Right: 2}}, "", 1, false); err == nil {
		t.Error("DrawBoxes should fail for an inverted box")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input   string
		want    color.NRGBA
		wantErr bool
	}{
		{"#FF0000", color.NRGBA{255, 0, 0, 255}, false},
		{"00ff00", color.NRGBA{0, 255, 0, 255}, false},
		{"#0000FF80", color.NRGBA{0, 0, 255, 128}, false},
		{"", color.NRGBA{}, true},
		{"#FFF", color.NRGBA{}, true},
		{"#GGGGGG", color.NRGBA{}, true},
		{"#FF0000ZZ", color.NRGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseHexColor(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHexColor(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseHexColor(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDrawLabel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 20))
	fg := color.RGBA{255, 255, 255, 255}
	bg := color.RGBA{0, 0, 0, 255}

	drawLabel(img, 5, 5, "17", fg, bg)

	// '1' has its top stroke in the middle column.
	if got := img.RGBAAt(6, 5); got != fg {
		t.Errorf("glyph pixel: got %v, want %v", got, fg)
	}
	if got := img.RGBAAt(5, 5); got != bg {
		t.Errorf("background pixel: got %v, want %v", got, bg)
	}

	// Labels running off the image are clipped.
	drawLabel(img, 28, 18, "123", fg, bg)
}
