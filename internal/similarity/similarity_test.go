package similarity

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryEndToEnd(t *testing.T) {
	m, err := NewMatrix([][]float32{
		{1, 0},
		{0, 1},
		{0.7071, 0.7071},
	})
	require.NoError(t, err)

	idx, sims, err := Query([]float32{1, 0}, m, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, idx)
	assert.InDeltaSlice(t, []float32{1, 0.7071, 0}, sims, 1e-6)

	idx, sims, err = Query([]float32{1, 0}, m, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, idx)
	assert.InDeltaSlice(t, []float32{1}, sims, 1e-6)

	idx, _, err = Query([]float32{1, 0}, m, -1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, idx)
}

func TestQueryDimensionMismatch(t *testing.T) {
	m, err := NewMatrix([][]float32{{1, 0}})
	require.NoError(t, err)

	_, _, err = Query([]float32{1, 0, 0}, m, 0)
	var dimErr *DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Got)
	assert.Equal(t, 2, dimErr.Want)
}

func TestNewMatrixRagged(t *testing.T) {
	_, err := NewMatrix([][]float32{{1, 0}, {1}})
	var dimErr *DimensionError
	assert.True(t, errors.As(err, &dimErr))

	m, err := NewMatrix(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Rows)
}

func TestQueryTies(t *testing.T) {
	m, err := NewMatrix([][]float32{
		{0.5}, {1}, {0.5}, {1}, {0}, {0.5},
	})
	require.NoError(t, err)

	idx, _, err := Query([]float32{1}, m, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 0, 2, 5, 4}, idx)

	idx, _, err = Query([]float32{1}, m, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 0}, idx)

	idx, _, err = Query([]float32{1}, m, -3)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 0, 2}, idx)
}

func TestQueryMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n, dim = 500, 16

	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = make([]float32, dim)
		for j := range rows[i] {
			// Few distinct values so ties occur.
			rows[i][j] = float32(rng.Intn(4))
		}
	}
	m, err := NewMatrix(rows)
	require.NoError(t, err)
	q := make([]float32, dim)
	for j := range q {
		q[j] = float32(rng.Intn(3))
	}

	sims, err := Similarities(q, m)
	require.NoError(t, err)
	desc := make([]int, n)
	for i := range desc {
		desc[i] = i
	}
	sort.SliceStable(desc, func(a, b int) bool { return sims[desc[a]] > sims[desc[b]] })
	asc := make([]int, n)
	for i := range asc {
		asc[i] = i
	}
	sort.SliceStable(asc, func(a, b int) bool { return sims[asc[a]] < sims[asc[b]] })

	for _, topN := range []int{0, 1, 7, 50, 499, 500, 1000, -1, -13, -500, -1000} {
		idx, scores, err := Query(q, m, topN)
		require.NoError(t, err)

		var want []int
		switch {
		case topN == 0:
			want = desc
		case topN > 0:
			want = desc[:min(topN, n)]
		default:
			want = asc[:min(-topN, n)]
		}
		assert.Equal(t, want, idx, "topN=%d", topN)
		for i, r := range idx {
			assert.Equal(t, sims[r], scores[i])
		}
	}
}

func TestQueryEmptyMatrix(t *testing.T) {
	m := &Matrix{Dim: 3}
	idx, sims, err := Query([]float32{1, 0, 0}, m, 5)
	require.NoError(t, err)
	assert.Empty(t, idx)
	assert.Empty(t, sims)
}

func TestRow(t *testing.T) {
	m, err := NewMatrix([][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, m.Row(1))
}
