package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/mseitzer/pattern-spotting/internal/localization"
)

// DefaultBoxColor is the outline colour used when none is given.
const DefaultBoxColor = "#FF0000"

// OverlayResult contains an image with result boxes drawn on it.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Boxes       int    `json:"boxes"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// DrawBoxes outlines each inclusive pixel box on a copy of img.
//
// Parameters:
//   - boxes: Boxes in pixel coordinates relative to the image origin.
//     Parts outside the image are clipped.
//   - colorHex: Outline colour as "#RRGGBB" or "#RRGGBBAA". Empty uses
//     DefaultBoxColor. A translucent colour is blended over the image.
//   - thickness: Line width in pixels, drawn inside the box. Values below 1
//     are treated as 1.
//   - numbered: Draw the 1-based rank of each box at its top-left corner.
func DrawBoxes(img image.Image, boxes []localization.Box, colorHex string, thickness int, numbered bool) (*OverlayResult, error) {
	if colorHex == "" {
		colorHex = DefaultBoxColor
	}
	boxColor, err := parseHexColor(colorHex)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", colorHex, err)
	}
	thickness = max(thickness, 1)

	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)
	src := image.NewUniform(boxColor)

	for _, b := range boxes {
		if b.Right < b.Left || b.Lower < b.Upper {
			return nil, fmt.Errorf("invalid box %v", b)
		}
		outer := image.Rect(b.Left, b.Upper, b.Right+1, b.Lower+1).Add(bounds.Min)
		t := min(thickness, outer.Dx(), outer.Dy())
		edges := []image.Rectangle{
			{Min: outer.Min, Max: image.Pt(outer.Max.X, outer.Min.Y+t)},
			{Min: image.Pt(outer.Min.X, outer.Max.Y-t), Max: outer.Max},
			{Min: image.Pt(outer.Min.X, outer.Min.Y+t), Max: image.Pt(outer.Min.X+t, outer.Max.Y-t)},
			{Min: image.Pt(outer.Max.X-t, outer.Min.Y+t), Max: image.Pt(outer.Max.X, outer.Max.Y-t)},
		}
		for _, e := range edges {
			e = e.Intersect(bounds)
			if !e.Empty() {
				draw.Draw(result, e, src, image.Point{}, draw.Over)
			}
		}
	}

	if numbered {
		fg := color.RGBA{255, 255, 255, 255}
		bg := color.RGBA{0, 0, 0, 255}
		for i, b := range boxes {
			drawLabel(result, bounds.Min.X+b.Left+thickness+1, bounds.Min.Y+b.Upper+thickness+1, strconv.Itoa(i+1), fg, bg)
		}
	}

	encoded, err := EncodePNG(result)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Boxes:       len(boxes),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// parseHexColor parses "#RRGGBB" or "#RRGGBBAA"; the leading '#' is
// optional.
func parseHexColor(hex string) (color.NRGBA, error) {
	if hex == "" {
		return color.NRGBA{}, fmt.Errorf("empty color string")
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}

	alpha := uint8(255)
	switch len(hex) {
	case 7:
	case 9:
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, err
		}
		alpha = uint8(a)
		hex = hex[:7]
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color length")
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// drawLabel draws digits with a 3x5 pixel font on a filled background.
// Characters without a glyph leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
	}

	const charWidth, labelHeight = 4, 6
	label := image.Rect(x-1, y-1, x+len(text)*charWidth, y+labelHeight).Intersect(img.Bounds())
	draw.Draw(img, label, image.NewUniform(bg), image.Point{}, draw.Src)

	cx := x
	for _, ch := range text {
		for row, line := range glyphs[ch] {
			for col, pixel := range line {
				if pixel != '1' {
					continue
				}
				if p := image.Pt(cx+col, y+row); p.In(img.Bounds()) {
					img.SetRGBA(p.X, p.Y, fg)
				}
			}
		}
		cx += charWidth
	}
}
