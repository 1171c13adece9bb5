// Package chip models the addressable block grid of a sample chip and the
// selection state a user builds on top of it.
package chip

import (
	"fmt"
	"math"
)

// Point is a pixel coordinate on the chip canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in canvas coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectFromCorners builds a normalised rectangle from two arbitrary corners.
// Swapped or inverted corners yield the same rectangle.
func RectFromCorners(a, b Point) Rect {
	x0, x1 := math.Min(a.X, b.X), math.Max(a.X, b.X)
	y0, y1 := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Contains reports whether p lies in the half-open rectangle [X, X+W) × [Y, Y+H).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width &&
		p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Touches reports whether the closed rectangles r and o share at least one point.
func (r Rect) Touches(o Rect) bool {
	return r.X <= o.X+o.Width && o.X <= r.X+r.Width &&
		r.Y <= o.Y+o.Height && o.Y <= r.Y+r.Height
}

// Geometry describes the layout of blocks on a chip. A zero BlockHeight
// means square blocks of BlockWidth.
type Geometry struct {
	Rows        int     `json:"rows" yaml:"rows"`
	Cols        int     `json:"cols" yaml:"cols"`
	BlockWidth  float64 `json:"block_width" yaml:"block_width"`
	BlockHeight float64 `json:"block_height,omitempty" yaml:"block_height,omitempty"`
	Spacing     float64 `json:"spacing" yaml:"spacing"`
	Offset      float64 `json:"offset" yaml:"offset"`
	ChipWidth   float64 `json:"chip_width,omitempty" yaml:"chip_width,omitempty"`
	ChipHeight  float64 `json:"chip_height,omitempty" yaml:"chip_height,omitempty"`
}

// DefaultGeometry is the 10x10 diamond chip layout.
func DefaultGeometry() Geometry {
	return Geometry{
		Rows:       10,
		Cols:       10,
		BlockWidth: 25,
		Spacing:    15,
		Offset:     15,
		ChipWidth:  415,
		ChipHeight: 415,
	}
}

// DetailGeometry is the 25x25 sub-block layout shown next to the chip.
func DetailGeometry() Geometry {
	return Geometry{
		Rows:       25,
		Cols:       25,
		BlockWidth: 2.5,
		Spacing:    15,
		Offset:     15,
		ChipWidth:  415,
		ChipHeight: 415,
	}
}

// Validate checks that the geometry admits hit testing.
func (g Geometry) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("%w: rows and cols must be positive (got %dx%d)", ErrInvalidGeometry, g.Rows, g.Cols)
	}
	if !(g.BlockWidth > 0) || g.BlockHeight < 0 || math.IsNaN(g.BlockHeight) {
		return fmt.Errorf("%w: block size must be positive", ErrInvalidGeometry)
	}
	if g.Spacing < 0 || g.Offset < 0 || math.IsNaN(g.Spacing) || math.IsNaN(g.Offset) {
		return fmt.Errorf("%w: spacing and offset must be non-negative", ErrInvalidGeometry)
	}
	return nil
}

// Grid is an immutable, validated chip layout.
type Grid struct {
	g Geometry
}

// NewGrid validates g and returns the grid it describes.
func NewGrid(g Geometry) (*Grid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.BlockHeight == 0 {
		g.BlockHeight = g.BlockWidth
	}
	return &Grid{g: g}, nil
}

// Geometry returns the layout the grid was built from, with BlockHeight filled in.
func (gr *Grid) Geometry() Geometry { return gr.g }

// Rows returns the number of block rows.
func (gr *Grid) Rows() int { return gr.g.Rows }

// Cols returns the number of block columns.
func (gr *Grid) Cols() int { return gr.g.Cols }

// InBounds reports whether a addresses a block of this grid.
func (gr *Grid) InBounds(a Address) bool {
	return a.Row >= 0 && a.Row < gr.g.Rows && a.Col >= 0 && a.Col < gr.g.Cols
}

// BlockRect returns the canvas rectangle covered by the block at a.
func (gr *Grid) BlockRect(a Address) Rect {
	return Rect{
		X:      gr.g.Offset + float64(a.Col)*(gr.g.BlockWidth+gr.g.Spacing),
		Y:      gr.g.Offset + float64(a.Row)*(gr.g.BlockHeight+gr.g.Spacing),
		Width:  gr.g.BlockWidth,
		Height: gr.g.BlockHeight,
	}
}

// HitTest returns the block covering p. Points on spacing, on the chip
// margin or outside the grid return false.
func (gr *Grid) HitTest(p Point) (Address, bool) {
	col, ok := axisIndex(p.X, gr.g.Offset, gr.g.BlockWidth, gr.g.Spacing, gr.g.Cols)
	if !ok {
		return Address{}, false
	}
	row, ok := axisIndex(p.Y, gr.g.Offset, gr.g.BlockHeight, gr.g.Spacing, gr.g.Rows)
	if !ok {
		return Address{}, false
	}
	return Address{Row: row, Col: col}, true
}

// Covered returns every block whose closed rectangle touches the
// rectangle spanned by a and b, in row-major order.
func (gr *Grid) Covered(a, b Point) []Address {
	r := RectFromCorners(a, b)
	cols := axisSpan(r.X, r.X+r.Width, gr.g.Offset, gr.g.BlockWidth, gr.g.Spacing, gr.g.Cols)
	rows := axisSpan(r.Y, r.Y+r.Height, gr.g.Offset, gr.g.BlockHeight, gr.g.Spacing, gr.g.Rows)

	out := make([]Address, 0, len(rows)*len(cols))
	for _, row := range rows {
		for _, col := range cols {
			out = append(out, Address{Row: row, Col: col})
		}
	}
	return out
}

// axisIndex maps a coordinate on one axis to a block index.
func axisIndex(v, offset, size, spacing float64, n int) (int, bool) {
	rel := v - offset
	if rel < 0 || math.IsNaN(rel) {
		return 0, false
	}
	pitch := size + spacing
	idx := int(math.Floor(rel / pitch))
	if idx >= n {
		return 0, false
	}
	if rel-float64(idx)*pitch >= size {
		return 0, false
	}
	return idx, true
}

// axisSpan returns the indices of blocks whose closed extent on one axis
// intersects [lo, hi].
func axisSpan(lo, hi, offset, size, spacing float64, n int) []int {
	var out []int
	pitch := size + spacing
	for i := 0; i < n; i++ {
		start := offset + float64(i)*pitch
		if start > hi {
			break
		}
		if start+size >= lo {
			out = append(out, i)
		}
	}
	return out
}
