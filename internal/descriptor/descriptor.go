package descriptor

import (
	"fmt"
	"math"

	"github.com/mseitzer/pattern-spotting/internal/features"
)

// DefaultOverlap is the overlap between neighbouring regions.
const DefaultOverlap = 0.4

// Scales is an inclusive range of R-MAC scale parameters. Scale 1 is a
// single region spanning the shorter side; larger scales give smaller,
// more numerous regions.
type Scales struct {
	Min, Max int
}

// DefaultScales is the scale range used for retrieval.
var DefaultScales = Scales{Min: 1, Max: 4}

// Region is a half-open rectangle of feature map cells.
type Region struct {
	Y0, X0 int
	Y1, X1 int
}

// Normalize returns v scaled to unit L2 norm. The zero vector maps to
// itself.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// MAC returns the per-channel maximum over all cells of fm.
func MAC(fm *features.Map) ([]float32, error) {
	if err := fm.Validate(); err != nil {
		return nil, err
	}
	return regionMax(fm, Region{0, 0, fm.Height, fm.Width}), nil
}

// Localization returns the normalized MAC vector used to score candidate
// areas.
func Localization(fm *features.Map) ([]float32, error) {
	mac, err := MAC(fm)
	if err != nil {
		return nil, err
	}
	return Normalize(mac), nil
}

func regionMax(fm *features.Map, r Region) []float32 {
	out := make([]float32, fm.Channels)
	copy(out, fm.At(r.Y0, r.X0))
	for y := r.Y0; y < r.Y1; y++ {
		for x := r.X0; x < r.X1; x++ {
			for c, v := range fm.At(y, x) {
				if v > out[c] {
					out[c] = v
				}
			}
		}
	}
	return out
}

// Regions tiles a height × width grid with square regions of the given
// side. Origins advance by max(1, round(size·(1-overlap))) along each axis
// until a region reaches the far edge; the last region is clipped to the
// grid. Regions are returned in row-major order.
func Regions(height, width, size int, overlap float64) []Region {
	if height <= 0 || width <= 0 || size <= 0 {
		return nil
	}
	step := int(math.Round(float64(size) * (1 - overlap)))
	if step < 1 {
		step = 1
	}

	rows := origins(height, size, step)
	cols := origins(width, size, step)
	out := make([]Region, 0, len(rows)*len(cols))
	for _, y := range rows {
		for _, x := range cols {
			out = append(out, Region{
				Y0: y,
				X0: x,
				Y1: min(y+size, height),
				X1: min(x+size, width),
			})
		}
	}
	return out
}

func origins(n, size, step int) []int {
	var out []int
	for p := 0; ; p += step {
		out = append(out, p)
		if p+size >= n {
			return out
		}
	}
}

// RegionSize is the region side at scale l for a map of the given size.
func RegionSize(height, width, l int) int {
	r := int(math.Round(2 * float64(min(height, width)) / float64(l+1)))
	return max(r, 1)
}

// RegionalDescriptors returns the normalized max-pooled vector of every
// region, ordered by ascending scale and then row-major.
func RegionalDescriptors(fm *features.Map, scales Scales, overlap float64) ([][]float32, error) {
	if err := fm.Validate(); err != nil {
		return nil, err
	}
	if scales.Min < 1 || scales.Max < scales.Min {
		return nil, fmt.Errorf("invalid scale range [%d, %d]", scales.Min, scales.Max)
	}
	if overlap < 0 || overlap >= 1 {
		return nil, fmt.Errorf("invalid region overlap %v", overlap)
	}

	var out [][]float32
	for l := scales.Min; l <= scales.Max; l++ {
		size := RegionSize(fm.Height, fm.Width, l)
		for _, r := range Regions(fm.Height, fm.Width, size, overlap) {
			out = append(out, Normalize(regionMax(fm, r)))
		}
	}
	return out, nil
}

// Global computes the R-MAC descriptor of fm with the default scales and
// overlap. When w is non-nil each regional vector is whitened and
// renormalized before summation, and the result has w.OutputDim() entries.
func Global(fm *features.Map, w Whitening) ([]float32, error) {
	regional, err := RegionalDescriptors(fm, DefaultScales, DefaultOverlap)
	if err != nil {
		return nil, err
	}

	dim := fm.Channels
	if w != nil {
		if w.InputDim() != fm.Channels {
			return nil, fmt.Errorf("whitening expects %d channels, feature map has %d", w.InputDim(), fm.Channels)
		}
		dim = w.OutputDim()
	}

	sum := make([]float64, dim)
	for _, v := range regional {
		if w != nil {
			v = Normalize(w.Transform(v))
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	out := make([]float32, dim)
	for i, x := range sum {
		out[i] = float32(x)
	}
	return Normalize(out), nil
}
