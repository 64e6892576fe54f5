package search

import (
	"math"

	"github.com/mseitzer/pattern-spotting/internal/localization"
)

// ScaleBox maps an inclusive box from one grid to another, independently
// per axis. Mapping to a grid at least as fine and back returns the
// original box.
func ScaleBox(b localization.Box, from, to Size) localization.Box {
	left, right := scaleSpan(b.Left, b.Right, from.Width, to.Width)
	upper, lower := scaleSpan(b.Upper, b.Lower, from.Height, to.Height)
	return localization.Box{Left: left, Upper: upper, Right: right, Lower: lower}
}

func scaleSpan(lo, hi, from, to int) (int, int) {
	if from <= 0 || to <= 0 {
		return lo, hi
	}
	r := float64(to) / float64(from)
	a := clamp(int(math.Round(float64(lo)*r)), 0, to-1)
	b := clamp(int(math.Round(float64(hi+1)*r))-1, 0, to-1)
	return a, max(a, b)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
