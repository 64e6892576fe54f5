package descriptor

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func randomMap(rng *rand.Rand, h, w, c int) *features.Map {
	m := features.New(h, w, c)
	for i := range m.Data {
		m.Data[i] = rng.Float32()
	}
	return m
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		v := make([]float32, 1+rng.Intn(50))
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		assert.InDelta(t, 1.0, norm(Normalize(v)), 1e-5)
	}
}

func TestNormalizeDoesNotAlias(t *testing.T) {
	v := []float32{1, 1}
	_ = Normalize(v)
	assert.Equal(t, []float32{1, 1}, v)
}

func TestMAC(t *testing.T) {
	m, err := features.FromCells([][][]float32{
		{{1, 9}, {4, 0}},
		{{7, 2}, {3, 3}},
	})
	require.NoError(t, err)

	mac, err := MAC(m)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 9}, mac)

	loc, err := Localization(m)
	require.NoError(t, err)
	assert.InDelta(t, 7/math.Sqrt(130), loc[0], 1e-6)
	assert.InDelta(t, 9/math.Sqrt(130), loc[1], 1e-6)
}

func TestMalformedMap(t *testing.T) {
	bad := &features.Map{Height: 2, Width: 2, Channels: 2, Data: make([]float32, 3)}
	var shapeErr *features.ShapeError

	_, err := MAC(bad)
	assert.True(t, errors.As(err, &shapeErr))
	_, err = RegionalDescriptors(bad, DefaultScales, DefaultOverlap)
	assert.True(t, errors.As(err, &shapeErr))
	_, err = Global(bad, nil)
	assert.True(t, errors.As(err, &shapeErr))
	_, err = Localization(nil)
	assert.True(t, errors.As(err, &shapeErr))
}

func TestRegions(t *testing.T) {
	// size 5, overlap 0.4 -> step 3; origins 0, 3, 6 on a 10-wide axis.
	regions := Regions(5, 10, 5, 0.4)
	require.Len(t, regions, 3)
	assert.Equal(t, Region{0, 0, 5, 5}, regions[0])
	assert.Equal(t, Region{0, 3, 5, 8}, regions[1])
	assert.Equal(t, Region{0, 6, 5, 10}, regions[2])
}

func TestRegionsCoverGrid(t *testing.T) {
	for _, tc := range []struct{ h, w, size int }{
		{7, 7, 7}, {7, 13, 4}, {20, 9, 3}, {1, 1, 1}, {6, 11, 2},
	} {
		covered := make([]bool, tc.h*tc.w)
		var prev Region
		for i, r := range Regions(tc.h, tc.w, tc.size, DefaultOverlap) {
			assert.LessOrEqual(t, r.Y1, tc.h)
			assert.LessOrEqual(t, r.X1, tc.w)
			if i > 0 {
				// Row-major order.
				assert.True(t, r.Y0 > prev.Y0 || (r.Y0 == prev.Y0 && r.X0 > prev.X0))
			}
			prev = r
			for y := r.Y0; y < r.Y1; y++ {
				for x := r.X0; x < r.X1; x++ {
					covered[y*tc.w+x] = true
				}
			}
		}
		for i, c := range covered {
			assert.True(t, c, "cell %d uncovered in %dx%d size %d", i, tc.h, tc.w, tc.size)
		}
	}
}

func TestRegionSize(t *testing.T) {
	assert.Equal(t, 10, RegionSize(10, 30, 1))
	assert.Equal(t, 7, RegionSize(10, 30, 2))
	assert.Equal(t, 5, RegionSize(10, 30, 3))
	assert.Equal(t, 4, RegionSize(10, 30, 4))
	assert.Equal(t, 1, RegionSize(1, 1, 4))
}

func TestRegionalDescriptors(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := randomMap(rng, 6, 9, 8)

	regional, err := RegionalDescriptors(m, DefaultScales, DefaultOverlap)
	require.NoError(t, err)

	want := 0
	for l := 1; l <= 4; l++ {
		want += len(Regions(6, 9, RegionSize(6, 9, l), DefaultOverlap))
	}
	require.Len(t, regional, want)
	for _, v := range regional {
		assert.Len(t, v, 8)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}

	// The first region at scale 1 is the top-left 6x6 square.
	sub, err := m.Crop(0, 0, 5, 5)
	require.NoError(t, err)
	mac, err := MAC(sub)
	require.NoError(t, err)
	assert.InDeltaSlice(t, Normalize(mac), regional[0], 1e-6)
}

func TestRegionalDescriptorsInvalidScales(t *testing.T) {
	m := features.New(2, 2, 1)
	_, err := RegionalDescriptors(m, Scales{Min: 0, Max: 2}, DefaultOverlap)
	assert.Error(t, err)
	_, err = RegionalDescriptors(m, Scales{Min: 3, Max: 2}, DefaultOverlap)
	assert.Error(t, err)
	_, err = RegionalDescriptors(m, DefaultScales, 1)
	assert.Error(t, err)
}

func TestGlobal(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := randomMap(rng, 8, 5, 12)

	g, err := Global(m, nil)
	require.NoError(t, err)
	assert.Len(t, g, 12)
	assert.InDelta(t, 1.0, norm(g), 1e-5)

	regional, err := RegionalDescriptors(m, DefaultScales, DefaultOverlap)
	require.NoError(t, err)
	sum := make([]float32, 12)
	for _, v := range regional {
		for i, x := range v {
			sum[i] += x
		}
	}
	assert.InDeltaSlice(t, Normalize(sum), g, 1e-5)
}

func TestGlobalZeroMap(t *testing.T) {
	g, err := Global(features.New(3, 3, 4), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, g)
}

func TestGlobalWhitened(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m := randomMap(rng, 4, 4, 3)

	pca := &PCA{
		Mean:              []float32{0.1, 0.2, 0.3},
		Components:        [][]float32{{1, 0, 0}, {0, 0, 1}},
		ExplainedVariance: []float32{4, 0.25},
		Whiten:            true,
	}
	g, err := Global(m, pca)
	require.NoError(t, err)
	assert.Len(t, g, 2)
	assert.InDelta(t, 1.0, norm(g), 1e-5)

	_, err = Global(features.New(2, 2, 5), pca)
	assert.Error(t, err)
}
