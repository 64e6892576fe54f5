package search

import (
	"fmt"
	"runtime"

	"github.com/mseitzer/pattern-spotting/internal/localization"
)

// Options selects the pipeline stages.
type Options struct {
	// TopN limits the result length; 0 returns every candidate.
	TopN int

	// Localize finds a bounding box in each of the first LocalizeN
	// candidates.
	Localize  bool
	LocalizeN int

	// Rerank ranks the localized candidates by the descriptor of their box.
	// Requires Localize.
	Rerank bool

	// AvgQE averages the query with its QENeighbors best candidates and
	// queries again.
	AvgQE       bool
	QENeighbors int

	// Workers bounds localization parallelism; 0 uses GOMAXPROCS.
	Workers int

	Localization localization.Options
}

// DefaultOptions enables every stage.
func DefaultOptions() Options {
	return Options{
		TopN:         0,
		Localize:     true,
		LocalizeN:    50,
		Rerank:       true,
		AvgQE:        true,
		QENeighbors:  5,
		Localization: localization.DefaultOptions(),
	}
}

// Validate checks option ranges. Errors are input errors.
func (o Options) Validate() error {
	if o.Rerank && !o.Localize {
		return ErrRerankRequiresLocalize
	}
	if o.TopN < 0 {
		return fmt.Errorf("%w: top_n %d is negative", ErrInvalidOptions, o.TopN)
	}
	if o.Localize {
		if o.LocalizeN <= 0 {
			return fmt.Errorf("%w: localize_n must be positive, got %d", ErrInvalidOptions, o.LocalizeN)
		}
		if o.Localization.StepSize <= 0 {
			return fmt.Errorf("%w: step_size must be positive, got %d", ErrInvalidOptions, o.Localization.StepSize)
		}
	}
	if o.AvgQE && o.QENeighbors < 0 {
		return fmt.Errorf("%w: qe_neighbors %d is negative", ErrInvalidOptions, o.QENeighbors)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers %d is negative", ErrInvalidOptions, o.Workers)
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}
