package search

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidROI is returned when the region of interest does not
	// overlap the query image.
	ErrInvalidROI = errors.New("region of interest is empty after clamping to the image")

	// ErrRerankRequiresLocalize is returned when reranking is requested
	// without localization.
	ErrRerankRequiresLocalize = errors.New("rerank requires localize")

	// ErrInvalidOptions is returned for out-of-range search options.
	ErrInvalidOptions = errors.New("invalid search options")
)

// DimensionMismatchError reports that the descriptors computed for a query
// do not have the dimension of the descriptor store. This is a
// configuration error: the extractor, the whitening and the store do not
// belong together.
type DimensionMismatchError struct {
	Query int
	Store int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: query descriptors have %d entries, store has %d", e.Query, e.Store)
}

// IsInputError reports whether err was caused by the caller's input rather
// than by a failure inside the pipeline.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidROI) ||
		errors.Is(err, ErrRerankRequiresLocalize) ||
		errors.Is(err, ErrInvalidOptions)
}
