package search

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mseitzer/pattern-spotting/internal/descriptor"
	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/mseitzer/pattern-spotting/internal/localization"
	"github.com/mseitzer/pattern-spotting/internal/similarity"
)

// Result is a ranked list of corpus images.
type Result struct {
	// Indices are feature indices, best first.
	Indices []int
	// Similarities holds the final-stage score of each index.
	Similarities []float32
	// Boxes holds the match location of each index in image pixels. Nil
	// when localization is disabled.
	Boxes []localization.Box
}

// Len is the number of results.
func (r *Result) Len() int { return len(r.Indices) }

// Search extracts img and runs the pipeline.
func Search(ctx context.Context, gw Gateway, img image.Image, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	fm, err := gw.ExtractFeatures(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("extract query features: %w", err)
	}
	logrus.WithField("elapsed", time.Since(start)).Debug("query features extracted")

	b := img.Bounds()
	return run(ctx, gw, fm, Size{Width: b.Dx(), Height: b.Dy()}, opts)
}

// SearchROI crops img to roi and runs the pipeline. roi is half-open and is
// clamped to the image; nil searches the whole image.
func SearchROI(ctx context.Context, gw Gateway, img image.Image, roi *image.Rectangle, opts Options) (*Result, error) {
	if roi != nil {
		r := roi.Intersect(img.Bounds())
		if r.Empty() {
			return nil, fmt.Errorf("%w: %v outside %v", ErrInvalidROI, *roi, img.Bounds())
		}
		img = imaging.Crop(img, r)
	}
	return Search(ctx, gw, img, opts)
}

// SearchFeatures runs the pipeline on an extracted query feature map.
func SearchFeatures(ctx context.Context, gw Gateway, fm *features.Map, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := fm.Validate(); err != nil {
		return nil, err
	}
	return run(ctx, gw, fm, Size{Width: fm.Width, Height: fm.Height}, opts)
}

// candidates tracks the working set after the initial query. order holds
// positions into indices, best first.
type candidates struct {
	indices []int
	sims    []float32
	boxes   []localization.Box
	maps    []*features.Map
	order   []int
	rows    *similarity.Matrix
}

func run(ctx context.Context, gw Gateway, fm *features.Map, query Size, opts Options) (*Result, error) {
	log := logrus.WithFields(logrus.Fields{
		"localize": opts.Localize,
		"rerank":   opts.Rerank,
		"avg_qe":   opts.AvgQE,
	})

	start := time.Now()
	whitening := gw.Whitening()
	q, err := descriptor.Global(fm, whitening)
	if err != nil {
		return nil, fmt.Errorf("query descriptor: %w", err)
	}
	store := gw.Descriptors()
	if len(q) != store.Dim {
		return nil, &DimensionMismatchError{Query: len(q), Store: store.Dim}
	}

	n := opts.TopN
	if opts.Localize {
		n = opts.LocalizeN
	}
	idx, sims, err := similarity.Query(q, store, n)
	if err != nil {
		return nil, fmt.Errorf("initial query: %w", err)
	}
	c := &candidates{indices: idx, sims: sims, order: identity(len(idx))}
	log.WithFields(logrus.Fields{
		"candidates": len(idx),
		"elapsed":    time.Since(start),
	}).Debug("initial query done")

	if opts.Localize {
		start = time.Now()
		if err := c.localize(ctx, gw, fm, query, opts); err != nil {
			return nil, err
		}
		log.WithField("elapsed", time.Since(start)).Debug("localization done")
	}

	if opts.Rerank {
		start = time.Now()
		if err := c.rerank(q, whitening); err != nil {
			return nil, err
		}
		log.WithField("elapsed", time.Since(start)).Debug("rerank done")
	}

	if opts.AvgQE && len(c.indices) > 0 {
		start = time.Now()
		if c.rows == nil {
			c.rows = storeRows(store, c.indices)
		}
		if err := c.expand(q, opts.QENeighbors); err != nil {
			return nil, err
		}
		log.WithField("elapsed", time.Since(start)).Debug("query expansion done")
	}

	k := len(c.order)
	if opts.TopN > 0 {
		k = min(k, opts.TopN)
	}
	res := &Result{
		Indices:      make([]int, k),
		Similarities: make([]float32, k),
	}
	if opts.Localize {
		res.Boxes = make([]localization.Box, k)
	}
	for i, pos := range c.order[:k] {
		res.Indices[i] = c.indices[pos]
		res.Similarities[i] = c.sims[i]
		if res.Boxes == nil {
			continue
		}
		meta, err := gw.Metadata(c.indices[pos])
		if err != nil {
			return nil, fmt.Errorf("metadata of %d: %w", c.indices[pos], err)
		}
		res.Boxes[i] = ScaleBox(c.boxes[pos], meta.FeatureSize(), meta.PixelSize())
	}
	return res, nil
}

// localize finds a box in every candidate. Candidates are split into
// contiguous chunks, one per worker; the first failure cancels the rest.
func (c *candidates) localize(ctx context.Context, gw Gateway, fm *features.Map, query Size, opts Options) error {
	loc, err := descriptor.Localization(fm)
	if err != nil {
		return fmt.Errorf("localization descriptor: %w", err)
	}

	n := len(c.indices)
	c.boxes = make([]localization.Box, n)
	c.maps = make([]*features.Map, n)
	if n == 0 {
		return nil
	}

	workers := min(opts.workers(), n)
	chunk := (n + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				cfm, err := gw.Features(ctx, c.indices[i])
				if err != nil {
					return fmt.Errorf("features of %d: %w", c.indices[i], err)
				}
				r, err := localization.Localize(loc, cfm, query.Height, query.Width, opts.Localization)
				if err != nil {
					return fmt.Errorf("localize in %d: %w", c.indices[i], err)
				}
				c.boxes[i] = r.Box
				c.maps[i] = cfm
			}
			return nil
		})
	}
	return g.Wait()
}

// rerank replaces the ranking by the similarity of q to the descriptor of
// each candidate's localized region.
func (c *candidates) rerank(q []float32, whitening descriptor.Whitening) error {
	rows := make([][]float32, len(c.indices))
	for i, fm := range c.maps {
		b := c.boxes[i]
		crop, err := fm.Crop(b.Left, b.Upper, b.Right, b.Lower)
		if err != nil {
			return fmt.Errorf("crop candidate %d: %w", c.indices[i], err)
		}
		rows[i], err = descriptor.Global(crop, whitening)
		if err != nil {
			return fmt.Errorf("region descriptor of %d: %w", c.indices[i], err)
		}
	}
	m, err := similarity.NewMatrix(rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		m.Dim = len(q)
	}
	c.rows = m
	return c.requery(q)
}

// expand averages q with the descriptors of the best k candidates and
// ranks again.
func (c *candidates) expand(q []float32, k int) error {
	sum := make([]float32, len(q))
	copy(sum, q)
	for _, pos := range c.order[:min(k, len(c.order))] {
		for j, v := range c.rows.Row(pos) {
			sum[j] += v
		}
	}
	return c.requery(descriptor.Normalize(sum))
}

func (c *candidates) requery(q []float32) error {
	order, sims, err := similarity.Query(q, c.rows, 0)
	if err != nil {
		return err
	}
	c.order = order
	c.sims = sims
	return nil
}

func storeRows(m *similarity.Matrix, indices []int) *similarity.Matrix {
	out := &similarity.Matrix{Rows: len(indices), Dim: m.Dim, Data: make([]float32, 0, len(indices)*m.Dim)}
	for _, i := range indices {
		out.Data = append(out.Data, m.Row(i)...)
	}
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
