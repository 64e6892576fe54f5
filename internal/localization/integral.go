package localization

import (
	"fmt"
	"math"

	"github.com/mseitzer/pattern-spotting/internal/features"
)

// AMLExp is the approximate max-pooling exponent. Higher values approach
// the true maximum but overflow sooner.
const AMLExp = 10.0

// IntegralImage holds prefix sums of a feature map raised to an exponent.
// Entry (y, x, c) is the sum of value^exp over all cells (y', x') with
// y' <= y and x' <= x.
type IntegralImage struct {
	Height, Width, Channels int
	Exp                     float64
	data                    []float64
}

// NewIntegralImage computes the integral image of fm^exp.
func NewIntegralImage(fm *features.Map, exp float64) (*IntegralImage, error) {
	if err := fm.Validate(); err != nil {
		return nil, err
	}
	h, w, c := fm.Height, fm.Width, fm.Channels
	ii := &IntegralImage{Height: h, Width: w, Channels: c, Exp: exp, data: make([]float64, h*w*c)}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cur := ii.at(y, x)
			for k, v := range fm.At(y, x) {
				s := math.Pow(float64(v), exp)
				if y > 0 {
					s += ii.at(y-1, x)[k]
				}
				if x > 0 {
					s += ii.at(y, x-1)[k]
				}
				if x > 0 && y > 0 {
					s -= ii.at(y-1, x-1)[k]
				}
				cur[k] = s
			}
		}
	}
	return ii, nil
}

// At returns the prefix sum vector at (y, x). The slice aliases the image.
func (ii *IntegralImage) At(y, x int) []float64 {
	return ii.at(y, x)
}

func (ii *IntegralImage) at(y, x int) []float64 {
	off := (y*ii.Width + x) * ii.Channels
	return ii.data[off : off+ii.Channels]
}

// Sum returns the per-channel sum over box. NaN and infinite components
// are replaced by 0.
func (ii *IntegralImage) Sum(b Box) ([]float64, error) {
	if !b.Valid(ii.Height, ii.Width) {
		return nil, fmt.Errorf("area %v outside %dx%d integral image", b, ii.Width, ii.Height)
	}
	out := make([]float64, ii.Channels)
	copy(out, ii.at(b.Lower, b.Right))
	if b.Left > 0 {
		sub(out, ii.at(b.Lower, b.Left-1))
	}
	if b.Upper > 0 {
		sub(out, ii.at(b.Upper-1, b.Right))
	}
	if b.Left > 0 && b.Upper > 0 {
		for k, v := range ii.at(b.Upper-1, b.Left-1) {
			out[k] += v
		}
	}
	sanitize(out)
	return out, nil
}

func sub(dst, v []float64) {
	for k := range dst {
		dst[k] -= v[k]
	}
}

func sanitize(v []float64) {
	for k, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[k] = 0
		}
	}
}

// AreaScore is the cosine similarity between query and the approximate
// max-pooled descriptor of box. query is expected to be normalized.
func AreaScore(query []float32, ii *IntegralImage, b Box) (float64, error) {
	if len(query) != ii.Channels {
		return 0, fmt.Errorf("query has %d channels, feature map has %d", len(query), ii.Channels)
	}
	pooled, err := ii.Sum(b)
	if err != nil {
		return 0, err
	}
	return score(query, pooled, ii.Exp), nil
}

func score(query []float32, pooled []float64, exp float64) float64 {
	inv := 1 / exp
	var norm float64
	for k, v := range pooled {
		p := math.Pow(v, inv)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			p = 0
		}
		pooled[k] = p
		norm += p * p
	}
	if norm == 0 {
		// An area without activations has no direction and never wins.
		return math.Inf(-1)
	}
	norm = math.Sqrt(norm)

	var dot float64
	for k, p := range pooled {
		dot += p / norm * float64(query[k])
	}
	return dot
}
