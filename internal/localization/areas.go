package localization

import "math"

// EachArea calls fn for every candidate area of a height × width grid until
// fn returns false.
//
// Left edges step by step from 0; right edges are left+step-1,
// left+2·step-1, … and then width-1 if that was not reached on the step
// grid. Top and bottom edges follow the same rule. Loops nest as left,
// right, upper, lower.
//
// When aspectRatio is positive, areas whose width/height ratio r satisfies
// |log(aspectRatio/r)| > log(maxAspectRatioDiv) are skipped. The test is
// symmetric: with aspectRatio 1 and a factor of 2, both 1:2 and 2:1 pass.
func EachArea(height, width, step int, aspectRatio, maxAspectRatioDiv float64, fn func(Box) bool) {
	if height <= 0 || width <= 0 || step <= 0 {
		return
	}
	filter := aspectRatio > 0
	var maxDiv float64
	if filter {
		maxDiv = math.Log(maxAspectRatioDiv)
	}

	for x1 := 0; x1 < width; x1 += step {
		for _, x2 := range ends(x1, width, step) {
			for y1 := 0; y1 < height; y1 += step {
				for _, y2 := range ends(y1, height, step) {
					if filter {
						ar := float64(x2-x1+1) / float64(y2-y1+1)
						if math.Abs(math.Log(aspectRatio/ar)) > maxDiv {
							continue
						}
					}
					if !fn(Box{Left: x1, Upper: y1, Right: x2, Lower: y2}) {
						return
					}
				}
			}
		}
	}
}

// ends lists the far edges for an area starting at start on an axis of
// length n.
func ends(start, n, step int) []int {
	var out []int
	last := -1
	for e := start + step - 1; e < n; e += step {
		out = append(out, e)
		last = e
	}
	if last != n-1 {
		out = append(out, n-1)
	}
	return out
}

// Areas collects the output of EachArea.
func Areas(height, width, step int, aspectRatio, maxAspectRatioDiv float64) []Box {
	var out []Box
	EachArea(height, width, step, aspectRatio, maxAspectRatioDiv, func(b Box) bool {
		out = append(out, b)
		return true
	})
	return out
}
