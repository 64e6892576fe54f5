// Package evaluate measures retrieval quality on a labeled query set.
//
// Every labeled crop is used as a query. A result is relevant when its
// corpus image is one that some crop of the same label was cut from.
// Quality is reported as mean average precision over the first MapN
// results (mAP@MapN).
package evaluate

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/mseitzer/pattern-spotting/internal/localization"
	"github.com/mseitzer/pattern-spotting/internal/search"
)

// MinRelevant is the number of crops a label needs to be used for queries.
const MinRelevant = 5

// AveragePrecision scores a ranked prediction list against a relevance
// set. Precision is accumulated at every relevant position and divided by
// min(|relevant|, |predicted|).
func AveragePrecision(relevant *roaring.Bitmap, predicted []int) float64 {
	k := min(int(relevant.GetCardinality()), len(predicted))
	if k == 0 {
		return 0
	}
	var score, correct float64
	for i, p := range predicted {
		if p >= 0 && relevant.Contains(uint32(p)) {
			correct++
			score += correct / float64(i+1)
		}
	}
	return score / float64(k)
}

// Options configures Run.
type Options struct {
	// CropDir holds the crops as <CropDir>/<label>/<name>.
	CropDir string

	Search search.Options

	// RerankN is the number of results requested from the pipeline and
	// MapN the number scored.
	RerankN int
	MapN    int

	// MinRelevant overrides the package default when positive.
	MinRelevant int
}

// Prediction is one scored result.
type Prediction struct {
	Image    string           `json:"image"`
	Box      localization.Box `json:"bbox"`
	Relevant bool             `json:"relevant"`
}

// QueryReport is the outcome of one query.
type QueryReport struct {
	Query       string       `json:"query"`
	Label       int          `json:"label"`
	AP          float64      `json:"ap"`
	Predictions []Prediction `json:"predictions"`
}

// Report is the outcome of an evaluation.
type Report struct {
	MAP     float64       `json:"map"`
	MapN    int           `json:"map_n"`
	Queries []QueryReport `json:"queries"`
}

// Queries drops unlabeled crops and labels with fewer than minRelevant
// crops, and groups the rest by label.
func Queries(annotations []Annotation, minRelevant int) map[int][]Annotation {
	byLabel := make(map[int][]Annotation)
	for _, a := range annotations {
		if a.Label == 0 {
			continue
		}
		byLabel[a.Label] = append(byLabel[a.Label], a)
	}
	for label, crops := range byLabel {
		if len(crops) < minRelevant {
			delete(byLabel, label)
		}
	}
	return byLabel
}

// Run searches with every usable crop and reports mAP@MapN.
func Run(ctx context.Context, gw search.Gateway, annotations []Annotation, opts Options) (*Report, error) {
	minRelevant := opts.MinRelevant
	if minRelevant <= 0 {
		minRelevant = MinRelevant
	}
	if opts.MapN <= 0 {
		return nil, fmt.Errorf("map_n must be positive, got %d", opts.MapN)
	}
	byLabel := Queries(annotations, minRelevant)
	if len(byLabel) == 0 {
		return nil, fmt.Errorf("no label has at least %d crops", minRelevant)
	}

	// Corpus images by file name. Names are assumed to be unique.
	corpus := make(map[string]*roaring.Bitmap)
	for i := 0; i < gw.Descriptors().Rows; i++ {
		meta, err := gw.Metadata(i)
		if err != nil {
			return nil, err
		}
		name := path.Base(filepath.ToSlash(meta.Image))
		if corpus[name] == nil {
			corpus[name] = roaring.New()
		}
		corpus[name].Add(uint32(i))
	}

	labels := make([]int, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	sopts := opts.Search
	sopts.TopN = opts.RerankN

	report := &Report{MapN: opts.MapN}
	var sum float64
	for _, label := range labels {
		crops := byLabel[label]
		relevant := roaring.New()
		for _, c := range crops {
			if b := corpus[c.SourceImage()]; b != nil {
				relevant.Or(b)
			}
		}

		for _, c := range crops {
			qpath := filepath.Join(opts.CropDir, strconv.Itoa(label), c.Name)
			img, err := imaging.Open(qpath)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", qpath, err)
			}
			res, err := search.Search(ctx, gw, img, sopts)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", qpath, err)
			}

			n := min(res.Len(), opts.MapN)
			qr := QueryReport{Query: c.Name, Label: label, Predictions: make([]Prediction, n)}
			for i, idx := range res.Indices[:n] {
				meta, err := gw.Metadata(idx)
				if err != nil {
					return nil, err
				}
				qr.Predictions[i] = Prediction{Image: meta.Image, Relevant: relevant.Contains(uint32(idx))}
				if res.Boxes != nil {
					qr.Predictions[i].Box = res.Boxes[i]
				}
			}
			qr.AP = AveragePrecision(relevant, res.Indices[:n])
			sum += qr.AP
			report.Queries = append(report.Queries, qr)

			logrus.WithFields(logrus.Fields{
				"query": c.Name,
				"label": label,
				"ap":    qr.AP,
			}).Debug("query evaluated")
		}
	}
	report.MAP = sum / float64(len(report.Queries))
	return report, nil
}
