// Package similarity ranks the rows of a descriptor matrix by cosine
// similarity to a query descriptor.
//
// Rows are assumed to be L2-normalized, so cosine similarity reduces to a
// dot product. Among equal similarities the lower row index ranks first,
// both when selecting the best and the worst rows.
package similarity

import (
	"fmt"
	"sort"
)

// DimensionError reports a query whose length differs from the matrix
// dimension.
type DimensionError struct {
	Got, Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("query has dimension %d, descriptor store has %d", e.Got, e.Want)
}

// Matrix is an N×D row-major descriptor matrix. Row order is the feature
// index.
type Matrix struct {
	Rows int
	Dim  int
	Data []float32
}

// NewMatrix copies rows into a matrix. All rows must have the same length.
func NewMatrix(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return &Matrix{}, nil
	}
	dim := len(rows[0])
	m := &Matrix{Rows: len(rows), Dim: dim, Data: make([]float32, 0, len(rows)*dim)}
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("row %d: %w", i, &DimensionError{Got: len(r), Want: dim})
		}
		m.Data = append(m.Data, r...)
	}
	return m, nil
}

// Row returns row i. The slice aliases the matrix.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Dim : (i+1)*m.Dim]
}

// Similarities returns the dot product of q with every row.
func Similarities(q []float32, m *Matrix) ([]float32, error) {
	if len(q) != m.Dim {
		return nil, &DimensionError{Got: len(q), Want: m.Dim}
	}
	out := make([]float32, m.Rows)
	for i := 0; i < m.Rows; i++ {
		row := m.Row(i)
		var dot float64
		for j, v := range q {
			dot += float64(v) * float64(row[j])
		}
		out[i] = float32(dot)
	}
	return out, nil
}

// Query ranks the rows of m against q.
//
// topN == 0 returns every row by descending similarity. topN > 0 returns
// the best min(N, topN) rows, descending. topN < 0 returns the worst
// min(N, -topN) rows in ascending order.
func Query(q []float32, m *Matrix, topN int) ([]int, []float32, error) {
	sims, err := Similarities(q, m)
	if err != nil {
		return nil, nil, err
	}

	idx := make([]int, len(sims))
	for i := range idx {
		idx[i] = i
	}

	var before func(a, b int) bool
	k := len(idx)
	if topN >= 0 {
		before = func(a, b int) bool {
			if sims[a] != sims[b] {
				return sims[a] > sims[b]
			}
			return a < b
		}
		if topN > 0 {
			k = min(topN, k)
		}
	} else {
		before = func(a, b int) bool {
			if sims[a] != sims[b] {
				return sims[a] < sims[b]
			}
			return a < b
		}
		k = min(-topN, k)
	}

	if k < len(idx) {
		selectK(idx, k, before)
	}
	top := idx[:k]
	sort.Slice(top, func(i, j int) bool { return before(top[i], top[j]) })

	scores := make([]float32, k)
	for i, r := range top {
		scores[i] = sims[r]
	}
	return top, scores, nil
}

// selectK reorders idx so that its first k entries are the k smallest
// under less, in no particular order. Average O(n).
func selectK(idx []int, k int, less func(a, b int) bool) {
	lo, hi := 0, len(idx)-1
	for lo < hi {
		p := partition(idx, lo, hi, less)
		switch {
		case p == k-1 || p == k:
			return
		case p < k:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition uses the median of three as pivot and returns its final
// position.
func partition(idx []int, lo, hi int, less func(a, b int) bool) int {
	mid := lo + (hi-lo)/2
	if less(idx[mid], idx[lo]) {
		idx[mid], idx[lo] = idx[lo], idx[mid]
	}
	if less(idx[hi], idx[lo]) {
		idx[hi], idx[lo] = idx[lo], idx[hi]
	}
	if less(idx[hi], idx[mid]) {
		idx[hi], idx[mid] = idx[mid], idx[hi]
	}
	idx[mid], idx[hi] = idx[hi], idx[mid]
	pivot := idx[hi]

	store := lo
	for i := lo; i < hi; i++ {
		if less(idx[i], pivot) {
			idx[i], idx[store] = idx[store], idx[i]
			store++
		}
	}
	idx[store], idx[hi] = idx[hi], idx[store]
	return store
}
