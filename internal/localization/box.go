package localization

import "fmt"

// Box is an axis-aligned rectangle with inclusive corners. A single cell
// box has Left == Right and Upper == Lower.
type Box struct {
	Left  int `json:"x1"`
	Upper int `json:"y1"`
	Right int `json:"x2"`
	Lower int `json:"y2"`
}

// Width is the number of columns covered by b.
func (b Box) Width() int { return b.Right - b.Left + 1 }

// Height is the number of rows covered by b.
func (b Box) Height() int { return b.Lower - b.Upper + 1 }

// Valid reports whether b is non-empty and lies within a height × width
// grid.
func (b Box) Valid(height, width int) bool {
	return b.Left >= 0 && b.Upper >= 0 &&
		b.Left <= b.Right && b.Upper <= b.Lower &&
		b.Right < width && b.Lower < height
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", b.Left, b.Upper, b.Right, b.Lower)
}
