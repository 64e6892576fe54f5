package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/mseitzer/pattern-spotting/internal/localization"
)

// DefaultLanguage is used when no language is given.
const DefaultLanguage = "eng"

// Options configures a Reader.
type Options struct {
	// Languages are Tesseract language codes, e.g. "lat" or "deu".
	// Empty uses DefaultLanguage.
	Languages []string

	// TessdataPrefix overrides the directory Tesseract loads language data
	// from. Empty uses the system default.
	TessdataPrefix string

	// Regions whose shorter side is below MinSide pixels are enlarged
	// before recognition. Zero disables upscaling.
	MinSide int
}

// Word is a recognized word with its location.
type Word struct {
	Text string `json:"text"`

	// Confidence is Tesseract's confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Box is the word's inclusive bounding box in source image pixels.
	Box localization.Box `json:"bbox"`
}

// Result is the transcription of one region.
type Result struct {
	// Box is the region that was read, clamped to the image.
	Box  localization.Box `json:"bbox"`
	Text string           `json:"text"`

	// Words may be empty when word boxes are unavailable; Text is still
	// set.
	Words []Word `json:"words"`
}

// Reader transcribes image regions. A Reader holds no Tesseract state; each
// call opens its own client, so a Reader is safe for concurrent use.
type Reader struct {
	opts Options
}

// NewReader returns a Reader with the given options.
func NewReader(opts Options) *Reader {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{DefaultLanguage}
	}
	return &Reader{opts: opts}
}

// ReadRegion transcribes the inclusive pixel box of img.
//
// The box is clamped to the image; a box that does not overlap it is an
// error. Word boxes in the result are in the coordinates of img, not of the
// cut-out region.
func (r *Reader) ReadRegion(img image.Image, box localization.Box) (*Result, error) {
	if box.Right < box.Left || box.Lower < box.Upper {
		return nil, fmt.Errorf("invalid box %v", box)
	}
	bounds := img.Bounds()
	rect := image.Rect(box.Left, box.Upper, box.Right+1, box.Lower+1).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("box %v outside image bounds %v", box, bounds)
	}

	region := imaging.Crop(img, rect)
	scale := 1.0
	if short := min(rect.Dx(), rect.Dy()); r.opts.MinSide > 0 && short < r.opts.MinSide {
		scale = float64(r.opts.MinSide) / float64(short)
		region = imaging.Resize(region, int(float64(rect.Dx())*scale+0.5), 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, region); err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if r.opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(r.opts.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(r.opts.Languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	res := &Result{
		Box: localization.Box{
			Left:  rect.Min.X - bounds.Min.X,
			Upper: rect.Min.Y - bounds.Min.Y,
			Right: rect.Max.X - bounds.Min.X - 1,
			Lower: rect.Max.Y - bounds.Min.Y - 1,
		},
		Text:  strings.TrimSpace(text),
		Words: []Word{},
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Text without word boxes.
		return res, nil
	}
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		res.Words = append(res.Words, Word{
			Text:       b.Word,
			Confidence: float64(b.Confidence) / 100.0,
			Box:        toSource(b.Box, scale, res.Box),
		})
	}
	return res, nil
}

// toSource maps a half-open box in the (possibly scaled) region back to an
// inclusive box in source image coordinates.
func toSource(b image.Rectangle, scale float64, region localization.Box) localization.Box {
	left := region.Left + int(float64(b.Min.X)/scale)
	upper := region.Upper + int(float64(b.Min.Y)/scale)
	right := region.Left + int(float64(b.Max.X)/scale+0.5) - 1
	lower := region.Upper + int(float64(b.Max.Y)/scale+0.5) - 1
	return localization.Box{
		Left:  left,
		Upper: upper,
		Right: min(max(right, left), region.Right),
		Lower: min(max(lower, upper), region.Lower),
	}
}

// Version returns the version of the linked Tesseract library.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}
