package features

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Extractor turns an image into a feature map.
//
// Implementations must be safe for concurrent use; the search pipeline may
// extract several queries at once.
type Extractor interface {
	// Name identifies the extractor in configuration and store metadata.
	Name() string

	// Channels is the channel count of every map the extractor produces.
	Channels() int

	// Extract computes the feature map of img.
	Extract(ctx context.Context, img image.Image) (*Map, error)
}

// NewExtractor returns the extractor registered under name.
func NewExtractor(name string) (Extractor, error) {
	switch name {
	case "", GridExtractorName:
		return NewGridExtractor(), nil
	}
	return nil, fmt.Errorf("unknown feature extractor %q", name)
}

// GridExtractorName is the configuration name of GridExtractor.
const GridExtractorName = "grid"

const (
	orientationBins = 8
	gridChannels    = orientationBins + 8
)

// GridExtractor is a model-free extractor. The image is downscaled to at
// most MaxSide pixels, divided into CellSize × CellSize cells, and every cell
// becomes a vector of non-negative activations:
//
//	0-7   gradient orientation histogram weighted by magnitude
//	8     mean ink (1 - luminance)
//	9     fraction of dark pixels
//	10    mean CIE L*
//	11    mean chroma
//	12-15 positive and negative parts of a* and b*
//
// All channels are non-negative, which approximate max-pooling relies on.
type GridExtractor struct {
	CellSize   int
	MaxSide    int
	BlurRadius float64
}

// NewGridExtractor returns a GridExtractor with default parameters.
func NewGridExtractor() *GridExtractor {
	return &GridExtractor{
		CellSize:   16,
		MaxSide:    1024,
		BlurRadius: 1.0,
	}
}

func (g *GridExtractor) Name() string { return GridExtractorName }

func (g *GridExtractor) Channels() int { return gridChannels }

// Extract computes the cell grid of img.
func (g *GridExtractor) Extract(ctx context.Context, img image.Image) (*Map, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty image %v", b)
	}
	cell := g.CellSize
	if cell <= 0 {
		cell = 16
	}

	src := image.Image(imaging.Clone(img))
	if g.MaxSide > 0 && (b.Dx() > g.MaxSide || b.Dy() > g.MaxSide) {
		src = imaging.Fit(img, g.MaxSide, g.MaxSide, imaging.Lanczos)
	}
	sb := src.Bounds()
	width, height := sb.Dx(), sb.Dy()

	gray := effect.Grayscale(src)
	smooth := blur.Gaussian(gray, g.BlurRadius)

	lum := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := smooth.At(x+smooth.Bounds().Min.X, y+smooth.Bounds().Min.Y).RGBA()
			lum[y*width+x] = float64(r>>8) / 255.0
		}
	}

	fw := (width + cell - 1) / cell
	fh := (height + cell - 1) / cell
	m := New(fh, fw, gridChannels)
	counts := make([]float32, fh*fw)

	sobelX := [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sobelY := [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}

	for y := 0; y < height; y++ {
		if y%cell == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v := lum[clamp(y+ky, 0, height-1)*width+clamp(x+kx, 0, width-1)]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			mag := math.Sqrt(gx*gx + gy*gy)

			// Unsigned orientation in [0, pi).
			angle := math.Atan2(gy, gx)
			if angle < 0 {
				angle += math.Pi
			}
			bin := int(angle / math.Pi * orientationBins)
			if bin >= orientationBins {
				bin = orientationBins - 1
			}

			ci := (y/cell)*fw + x/cell
			v := m.Data[ci*gridChannels : (ci+1)*gridChannels]
			v[bin] += float32(mag)

			ink := 1 - lum[y*width+x]
			v[8] += float32(ink)
			if ink > 0.5 {
				v[9]++
			}

			if c, ok := colorful.MakeColor(src.At(x+sb.Min.X, y+sb.Min.Y)); ok {
				l, a, bb := c.Lab()
				v[10] += float32(l)
				v[11] += float32(math.Hypot(a, bb))
				if a > 0 {
					v[12] += float32(a)
				} else {
					v[13] += float32(-a)
				}
				if bb > 0 {
					v[14] += float32(bb)
				} else {
					v[15] += float32(-bb)
				}
			}
			counts[ci]++
		}
	}

	for ci, n := range counts {
		if n == 0 {
			continue
		}
		v := m.Data[ci*gridChannels : (ci+1)*gridChannels]
		for c := range v {
			v[c] /= n
		}
	}
	return m, nil
}

func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
