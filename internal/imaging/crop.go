package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/mseitzer/pattern-spotting/internal/localization"
)

// CropResult contains a cropped region encoded as PNG.
type CropResult struct {
	// Box is the region that was cut, inclusive, in source pixels.
	Box         localization.Box `json:"bbox"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	ImageBase64 string           `json:"image_base64"`
	MimeType    string           `json:"mime_type"`
}

// ROI converts half-open query coordinates to a rectangle. Unlike
// image.Rect it does not reorder the corners, so an inverted region is
// reported instead of silently flipped.
func ROI(x1, y1, x2, y2 int) (image.Rectangle, error) {
	if x1 >= x2 || y1 >= y2 {
		return image.Rectangle{}, fmt.Errorf("invalid region (%d,%d)-(%d,%d): x1 must be < x2, y1 must be < y2", x1, y1, x2, y2)
	}
	return image.Rectangle{Min: image.Pt(x1, y1), Max: image.Pt(x2, y2)}, nil
}

// CropBox cuts the inclusive pixel box out of img and encodes it.
//
// The box is clamped to the image. A box that does not overlap the image is
// an error. A positive scale other than 1 resizes the crop with Lanczos
// resampling.
func CropBox(img image.Image, box localization.Box, scale float64) (*CropResult, error) {
	if box.Right < box.Left || box.Lower < box.Upper {
		return nil, fmt.Errorf("invalid box %v", box)
	}
	bounds := img.Bounds()
	r := image.Rect(box.Left, box.Upper, box.Right+1, box.Lower+1).Add(bounds.Min).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("box %v outside image bounds %v", box, bounds)
	}

	cropped := imaging.Crop(img, r)
	if scale > 0 && scale != 1.0 {
		w := max(1, int(float64(cropped.Bounds().Dx())*scale))
		h := max(1, int(float64(cropped.Bounds().Dy())*scale))
		cropped = imaging.Resize(cropped, w, h, imaging.Lanczos)
	}

	encoded, err := EncodePNG(cropped)
	if err != nil {
		return nil, err
	}
	return &CropResult{
		Box: localization.Box{
			Left:  r.Min.X - bounds.Min.X,
			Upper: r.Min.Y - bounds.Min.Y,
			Right: r.Max.X - bounds.Min.X - 1,
			Lower: r.Max.Y - bounds.Min.Y - 1,
		},
		Width:       cropped.Bounds().Dx(),
		Height:      cropped.Bounds().Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// EncodePNG returns img as base64-encoded PNG.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
