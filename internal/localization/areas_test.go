package localization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAreasUnitStep(t *testing.T) {
	got := Areas(2, 2, 1, 0, 1)
	want := []Box{
		{0, 0, 0, 0}, {0, 0, 0, 1}, {0, 1, 0, 1},
		{0, 0, 1, 0}, {0, 0, 1, 1}, {0, 1, 1, 1},
		{1, 0, 1, 0}, {1, 0, 1, 1}, {1, 1, 1, 1},
	}
	assert.Equal(t, want, got)
}

func TestAreasAlignedStep(t *testing.T) {
	got := Areas(4, 4, 2, 0, 1)
	assert.ElementsMatch(t, []Box{
		{0, 0, 1, 1}, {0, 0, 1, 3},
		{0, 0, 3, 1}, {0, 0, 3, 3},
		{0, 2, 1, 3}, {0, 2, 3, 3},
		{2, 0, 3, 1}, {2, 0, 3, 3},
		{2, 2, 3, 3},
	}, got)
}

func TestAreasReachBoundary(t *testing.T) {
	// Squares only on a 5x5 grid with step 2: the last row and column are
	// covered even though 5 is not a multiple of the step.
	got := Areas(5, 5, 2, 1, 1)
	assert.ElementsMatch(t, []Box{
		{0, 0, 1, 1}, {0, 2, 1, 3}, {2, 0, 3, 1}, {2, 2, 3, 3},
		{0, 0, 3, 3},
		{0, 0, 4, 4},
		{2, 2, 4, 4},
		{4, 4, 4, 4},
	}, got)
}

func TestAreasProperties(t *testing.T) {
	for _, tc := range []struct{ h, w, step int }{
		{1, 1, 1}, {3, 7, 1}, {7, 3, 2}, {10, 13, 3}, {9, 9, 3}, {4, 5, 10},
	} {
		areas := Areas(tc.h, tc.w, tc.step, 0, 1)
		require.NotEmpty(t, areas)

		seen := make(map[Box]bool, len(areas))
		full := false
		for _, b := range areas {
			assert.False(t, seen[b], "duplicate %v", b)
			seen[b] = true
			assert.True(t, b.Valid(tc.h, tc.w), "invalid %v", b)
			assert.Zero(t, b.Left%tc.step)
			assert.Zero(t, b.Upper%tc.step)
			if b.Right != tc.w-1 {
				assert.Zero(t, b.Width()%tc.step)
			}
			if b.Lower != tc.h-1 {
				assert.Zero(t, b.Height()%tc.step)
			}
			if b == (Box{0, 0, tc.w - 1, tc.h - 1}) {
				full = true
			}
		}
		assert.True(t, full, "full image box missing for %+v", tc)
	}
}

func TestAreasAspectRatioSymmetric(t *testing.T) {
	areas := Areas(8, 8, 1, 1, 2)
	var wide, tall int
	for _, b := range areas {
		r := float64(b.Width()) / float64(b.Height())
		assert.LessOrEqual(t, math.Abs(math.Log(r)), math.Log(2)+1e-12)
		if b.Width() == 2*b.Height() {
			wide++
		}
		if b.Height() == 2*b.Width() {
			tall++
		}
	}
	assert.Positive(t, wide)
	assert.Equal(t, wide, tall)
}

func TestEachAreaStops(t *testing.T) {
	n := 0
	EachArea(10, 10, 1, 0, 1, func(Box) bool {
		n++
		return n < 5
	})
	assert.Equal(t, 5, n)
}

func TestAreasInvalidInput(t *testing.T) {
	assert.Empty(t, Areas(0, 5, 1, 0, 1))
	assert.Empty(t, Areas(5, 5, 0, 0, 1))
}
