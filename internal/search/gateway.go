package search

import (
	"context"
	"image"

	"github.com/mseitzer/pattern-spotting/internal/descriptor"
	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/mseitzer/pattern-spotting/internal/similarity"
)

// Gateway gives the pipeline access to the feature extractor and the
// corpus. Implementations must be safe for concurrent reads.
type Gateway interface {
	// ExtractFeatures runs the feature extractor on a query image.
	ExtractFeatures(ctx context.Context, img image.Image) (*features.Map, error)

	// Descriptors is the global descriptor matrix of the corpus.
	Descriptors() *similarity.Matrix

	// Features loads the feature map of corpus image index.
	Features(ctx context.Context, index int) (*features.Map, error)

	// Metadata describes corpus image index.
	Metadata(index int) (Metadata, error)

	// Whitening is applied to regional descriptors, or nil.
	Whitening() descriptor.Whitening
}

// Metadata describes one row of the descriptor store.
type Metadata struct {
	Image         string `json:"image"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FeatureWidth  int    `json:"feature_width"`
	FeatureHeight int    `json:"feature_height"`
}

// PixelSize is the size of the corpus image.
func (m Metadata) PixelSize() Size { return Size{Width: m.Width, Height: m.Height} }

// FeatureSize is the size of the corpus image's feature map.
func (m Metadata) FeatureSize() Size { return Size{Width: m.FeatureWidth, Height: m.FeatureHeight} }

// Size is a width × height grid.
type Size struct {
	Width  int
	Height int
}
