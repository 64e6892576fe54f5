package features

import (
	"fmt"
)

// ShapeError reports a feature map whose dimensions are unusable.
type ShapeError struct {
	Height, Width, Channels int
	DataLen                 int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("malformed feature map: %dx%dx%d with %d values",
		e.Height, e.Width, e.Channels, e.DataLen)
}

// Map is a height × width × channels feature map.
type Map struct {
	Height   int
	Width    int
	Channels int

	// Data holds Height*Width*Channels values laid out as [y][x][c].
	Data []float32
}

// New allocates a zeroed feature map.
func New(height, width, channels int) *Map {
	return &Map{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float32, height*width*channels),
	}
}

// FromCells builds a map from a nested [y][x][c] slice. All rows must have
// the same width and all cells the same channel count.
func FromCells(cells [][][]float32) (*Map, error) {
	if len(cells) == 0 || len(cells[0]) == 0 || len(cells[0][0]) == 0 {
		return nil, &ShapeError{}
	}
	h, w, c := len(cells), len(cells[0]), len(cells[0][0])
	m := New(h, w, c)
	for y, row := range cells {
		if len(row) != w {
			return nil, fmt.Errorf("row %d has width %d, want %d: %w", y, len(row), w, &ShapeError{h, w, c, 0})
		}
		for x, cell := range row {
			if len(cell) != c {
				return nil, fmt.Errorf("cell (%d,%d) has %d channels, want %d: %w", y, x, len(cell), c, &ShapeError{h, w, c, 0})
			}
			copy(m.At(y, x), cell)
		}
	}
	return m, nil
}

// Validate checks that the map is three-dimensional and fully populated.
func (m *Map) Validate() error {
	if m == nil {
		return &ShapeError{}
	}
	if m.Height <= 0 || m.Width <= 0 || m.Channels <= 0 || len(m.Data) != m.Height*m.Width*m.Channels {
		return &ShapeError{m.Height, m.Width, m.Channels, len(m.Data)}
	}
	return nil
}

// At returns the channel vector of cell (y, x). The slice aliases the map.
func (m *Map) At(y, x int) []float32 {
	off := (y*m.Width + x) * m.Channels
	return m.Data[off : off+m.Channels]
}

// Crop copies the inclusive box (left, upper)-(right, lower) into a new map.
func (m *Map) Crop(left, upper, right, lower int) (*Map, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if left < 0 || upper < 0 || right >= m.Width || lower >= m.Height || left > right || upper > lower {
		return nil, fmt.Errorf("crop box (%d,%d,%d,%d) outside %dx%d feature map",
			left, upper, right, lower, m.Width, m.Height)
	}

	out := New(lower-upper+1, right-left+1, m.Channels)
	rowLen := out.Width * m.Channels
	for y := upper; y <= lower; y++ {
		src := (y*m.Width + left) * m.Channels
		dst := (y - upper) * rowLen
		copy(out.Data[dst:dst+rowLen], m.Data[src:src+rowLen])
	}
	return out, nil
}
