package localization

import (
	"math"
	"testing"

	"github.com/mseitzer/pattern-spotting/internal/descriptor"
	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitStep() Options {
	return Options{StepSize: 1, AspectRatioFactor: 1, Exponent: AMLExp}
}

func TestLocalizeDegenerate(t *testing.T) {
	// With a single channel every area scores 1; the first one wins.
	m := mapOf(t, [][][]float32{
		{{0.1}, {0.1}, {0.1}},
		{{0.1}, {0.1}, {0.1}},
		{{0.1}, {0.1}, {10}},
	})
	res, err := Localize([]float32{1}, m, 1, 1, unitStep())
	require.NoError(t, err)
	assert.Equal(t, Box{0, 0, 0, 0}, res.Box)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestLocalizeDiscriminative(t *testing.T) {
	m := mapOf(t, [][][]float32{
		{{5, 1}, {1, 1}, {3, 1}},
		{{1, 1}, {1, 1}, {1, 1}},
		{{1, 3}, {1, 1}, {1, 10}},
	})
	res, err := Localize(descriptor.Normalize([]float32{1, 10}), m, 1, 1, unitStep())
	require.NoError(t, err)
	assert.Equal(t, Box{2, 2, 2, 2}, res.Box)
	assert.InDelta(t, 1.0, res.Score, 1e-6)
}

func TestLocalizeDefaults(t *testing.T) {
	m := features.New(12, 15, 2)
	for y := 0; y < 12; y++ {
		for x := 0; x < 15; x++ {
			m.At(y, x)[0] = 1
		}
	}
	// A patch of the second channel on the right.
	for y := 3; y < 9; y++ {
		for x := 9; x < 15; x++ {
			m.At(y, x)[1] = 5
		}
	}
	res, err := Localize(descriptor.Normalize([]float32{1, 5}), m, 100, 100, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Box.Valid(12, 15))
	assert.GreaterOrEqual(t, res.Box.Left, 6)
	assert.LessOrEqual(t, res.Box.Upper, 6)
	assert.GreaterOrEqual(t, res.Box.Lower, 5)
}

func TestLocalizeRefine(t *testing.T) {
	m := features.New(4, 4, 2)
	for i := 0; i < 16; i++ {
		m.Data[2*i] = 1
	}
	m.At(1, 1)[1] = 1
	m.At(1, 1)[0] = 0

	opts := Options{StepSize: 4, AspectRatioFactor: 1, Exponent: AMLExp}
	coarse, err := Localize([]float32{0, 1}, m, 1, 1, opts)
	require.NoError(t, err)
	assert.Equal(t, Box{0, 0, 3, 3}, coarse.Box)

	opts.Refine = true
	refined, err := Localize([]float32{0, 1}, m, 1, 1, opts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, refined.Score, coarse.Score)
	assert.Equal(t, Box{1, 1, 1, 1}, refined.Box)
	assert.InDelta(t, 1.0, refined.Score, 1e-9)
}

func TestLocalizeErrors(t *testing.T) {
	m := features.New(3, 3, 2)
	_, err := Localize([]float32{1}, m, 1, 1, DefaultOptions())
	assert.Error(t, err)

	_, err = Localize([]float32{1, 0}, m, 1, 1, Options{StepSize: 0})
	assert.Error(t, err)

	_, err = Localize([]float32{1, 0}, &features.Map{Height: 3}, 1, 1, DefaultOptions())
	assert.Error(t, err)
}

func TestLocalizeAllFiltered(t *testing.T) {
	m := features.New(2, 2, 1)
	res, err := Localize([]float32{1}, m, 1, 100, Options{StepSize: 1, AspectRatioFactor: 1})
	require.NoError(t, err)
	assert.Equal(t, Box{0, 0, 1, 1}, res.Box)
}

func TestLocalizeIgnoresEmptyAreas(t *testing.T) {
	// Every non-empty cell anti-correlates with the query, so an empty cell
	// scoring zero would beat them all.
	m := mapOf(t, [][][]float32{
		{{0, 0}, {1, 1}, {1, 0}},
	})
	res, err := Localize([]float32{-1, 0}, m, 1, 1, Options{StepSize: 1, AspectRatioFactor: 1, Refine: true})
	require.NoError(t, err)
	assert.Equal(t, Box{1, 0, 1, 0}, res.Box)
	assert.InDelta(t, -math.Sqrt2/2, res.Score, 1e-6)
}

func TestLocalizeEmptyMap(t *testing.T) {
	m := features.New(2, 3, 2)
	res, err := Localize([]float32{1, 0}, m, 1, 1, Options{StepSize: 1, AspectRatioFactor: 1, Refine: true})
	require.NoError(t, err)
	assert.Equal(t, Box{0, 0, 2, 1}, res.Box)
	assert.True(t, math.IsInf(res.Score, -1))
}
