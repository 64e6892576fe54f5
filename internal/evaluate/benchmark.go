package evaluate

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/mseitzer/pattern-spotting/internal/search"
)

// BenchmarkMinRelevant is the label size benchmark queries are drawn from.
const BenchmarkMinRelevant = 2

// Timing is the outcome of Benchmark.
type Timing struct {
	Queries int           `json:"queries"`
	Total   time.Duration `json:"total"`
	Mean    time.Duration `json:"mean"`
}

// Benchmark times the pipeline over every usable crop. Each query asks
// for MapN results with RerankN localized candidates. The first warmup
// queries run untimed. Crop decoding is not timed.
func Benchmark(ctx context.Context, gw search.Gateway, annotations []Annotation, opts Options, warmup int) (*Timing, error) {
	minRelevant := opts.MinRelevant
	if minRelevant <= 0 {
		minRelevant = BenchmarkMinRelevant
	}
	byLabel := Queries(annotations, minRelevant)

	var paths []string
	for label, crops := range byLabel {
		for _, c := range crops {
			paths = append(paths, filepath.Join(opts.CropDir, strconv.Itoa(label), c.Name))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no label has at least %d crops", minRelevant)
	}
	sort.Strings(paths)

	sopts := opts.Search
	sopts.TopN = opts.MapN
	if sopts.Localize {
		sopts.LocalizeN = opts.RerankN
	}

	images := make([]image.Image, len(paths))
	for i, p := range paths {
		img, err := imaging.Open(p)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", p, err)
		}
		images[i] = img
	}

	for i := 0; i < warmup; i++ {
		if _, err := search.Search(ctx, gw, images[0], sopts); err != nil {
			return nil, fmt.Errorf("warmup: %w", err)
		}
	}

	t := &Timing{Queries: len(images)}
	for i, img := range images {
		start := time.Now()
		if _, err := search.Search(ctx, gw, img, sopts); err != nil {
			return nil, fmt.Errorf("query %s: %w", paths[i], err)
		}
		elapsed := time.Since(start)
		t.Total += elapsed
		logrus.WithFields(logrus.Fields{
			"query":   paths[i],
			"elapsed": elapsed,
		}).Debug("query timed")
	}
	t.Mean = t.Total / time.Duration(t.Queries)
	return t, nil
}
