package search

import (
	"context"
	"errors"
	"image"
	"math/rand"

	"github.com/mseitzer/pattern-spotting/internal/descriptor"
	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/mseitzer/pattern-spotting/internal/similarity"
)

// memGateway is an in-memory corpus.
type memGateway struct {
	maps      []*features.Map
	meta      []Metadata
	matrix    *similarity.Matrix
	whitening descriptor.Whitening

	query      *features.Map
	failIndex  int
	failErr    error
	extractErr error
}

func newMemGateway(maps []*features.Map, meta []Metadata, w descriptor.Whitening) *memGateway {
	rows := make([][]float32, len(maps))
	for i, m := range maps {
		d, err := descriptor.Global(m, w)
		if err != nil {
			panic(err)
		}
		rows[i] = d
	}
	matrix, err := similarity.NewMatrix(rows)
	if err != nil {
		panic(err)
	}
	return &memGateway{maps: maps, meta: meta, matrix: matrix, whitening: w, failIndex: -1}
}

func (g *memGateway) ExtractFeatures(_ context.Context, _ image.Image) (*features.Map, error) {
	if g.extractErr != nil {
		return nil, g.extractErr
	}
	return g.query, nil
}

func (g *memGateway) Descriptors() *similarity.Matrix { return g.matrix }

func (g *memGateway) Features(_ context.Context, index int) (*features.Map, error) {
	if index == g.failIndex {
		return nil, g.failErr
	}
	if index < 0 || index >= len(g.maps) {
		return nil, errors.New("no such feature map")
	}
	return g.maps[index], nil
}

func (g *memGateway) Metadata(index int) (Metadata, error) {
	if index < 0 || index >= len(g.meta) {
		return Metadata{}, errors.New("no such record")
	}
	return g.meta[index], nil
}

func (g *memGateway) Whitening() descriptor.Whitening { return g.whitening }

// randomCorpus builds n random maps whose metadata maps cells one to one
// onto pixels.
func randomCorpus(rng *rand.Rand, n, h, w, c int) ([]*features.Map, []Metadata) {
	maps := make([]*features.Map, n)
	meta := make([]Metadata, n)
	for i := range maps {
		m := features.New(h, w, c)
		for j := range m.Data {
			if rng.Float32() < 0.5 {
				m.Data[j] = rng.Float32()
			}
		}
		maps[i] = m
		meta[i] = Metadata{Image: "img", Width: w, Height: h, FeatureWidth: w, FeatureHeight: h}
	}
	return maps, meta
}
