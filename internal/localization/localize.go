package localization

import (
	"fmt"
	"math"

	"github.com/mseitzer/pattern-spotting/internal/features"
)

// Options controls the area sweep.
type Options struct {
	// StepSize is the granularity of area edges in cells.
	StepSize int `json:"step_size" yaml:"step_size"`

	// AspectRatioFactor bounds how far an area's aspect ratio may deviate
	// from the query's, as a multiplicative factor.
	AspectRatioFactor float64 `json:"aspect_ratio_factor" yaml:"aspect_ratio_factor"`

	// Exponent is the approximate max-pooling exponent.
	Exponent float64 `json:"exponent" yaml:"exponent"`

	// Refine greedily shrinks the best area while the score does not drop.
	Refine bool `json:"refine" yaml:"refine"`
}

// DefaultOptions returns the sweep parameters used for retrieval.
func DefaultOptions() Options {
	return Options{
		StepSize:          3,
		AspectRatioFactor: 1.1,
		Exponent:          AMLExp,
	}
}

// Result is the outcome of a localization.
type Result struct {
	Box   Box     `json:"box"`
	Score float64 `json:"score"`
}

// Localize finds the area of fm whose approximate max-pooled descriptor is
// most similar to query. queryHeight and queryWidth give the query image's
// size; its aspect ratio restricts the candidate shapes. A non-positive
// size disables the aspect filter.
//
// The first area reaching the highest score wins.
func Localize(query []float32, fm *features.Map, queryHeight, queryWidth int, opts Options) (Result, error) {
	if err := fm.Validate(); err != nil {
		return Result{}, err
	}
	if len(query) != fm.Channels {
		return Result{}, fmt.Errorf("query has %d channels, feature map has %d", len(query), fm.Channels)
	}
	if opts.StepSize <= 0 {
		return Result{}, fmt.Errorf("invalid step size %d", opts.StepSize)
	}
	exp := opts.Exponent
	if exp <= 0 {
		exp = AMLExp
	}

	ii, err := NewIntegralImage(fm, exp)
	if err != nil {
		return Result{}, err
	}

	var aspect float64
	if queryHeight > 0 && queryWidth > 0 {
		aspect = float64(queryWidth) / float64(queryHeight)
	}

	best := Result{Score: math.Inf(-1)}
	found := false
	EachArea(fm.Height, fm.Width, opts.StepSize, aspect, opts.AspectRatioFactor, func(b Box) bool {
		pooled, _ := ii.Sum(b)
		if s := score(query, pooled, exp); s > best.Score {
			best = Result{Box: b, Score: s}
			found = true
		}
		return true
	})
	if !found {
		// Every area was filtered out or empty; fall back to the whole map.
		b := Box{Right: fm.Width - 1, Lower: fm.Height - 1}
		pooled, _ := ii.Sum(b)
		best = Result{Box: b, Score: score(query, pooled, exp)}
	}

	if opts.Refine {
		best = refine(query, ii, best)
	}
	return best, nil
}

// refine moves one side of the box inward at a time, trying left, upper,
// right and lower in that order, and keeps the first move that does not
// lower the score. It stops when no side can move.
func refine(query []float32, ii *IntegralImage, cur Result) Result {
	if math.IsInf(cur.Score, -1) {
		return cur
	}
	for {
		moved := false
		for _, next := range shrinks(cur.Box) {
			pooled, err := ii.Sum(next)
			if err != nil {
				continue
			}
			if s := score(query, pooled, ii.Exp); s >= cur.Score {
				cur = Result{Box: next, Score: s}
				moved = true
				break
			}
		}
		if !moved {
			return cur
		}
	}
}

func shrinks(b Box) []Box {
	var out []Box
	if b.Left < b.Right {
		out = append(out, Box{b.Left + 1, b.Upper, b.Right, b.Lower})
	}
	if b.Upper < b.Lower {
		out = append(out, Box{b.Left, b.Upper + 1, b.Right, b.Lower})
	}
	if b.Left < b.Right {
		out = append(out, Box{b.Left, b.Upper, b.Right - 1, b.Lower})
	}
	if b.Upper < b.Lower {
		out = append(out, Box{b.Left, b.Upper, b.Right, b.Lower - 1})
	}
	return out
}
