// Package raster models georeferenced grids (land-cover classes, green
// masks, population counts) and the pixel-level operations the
// accessibility engine needs: coordinate lookup, reclassification and
// connected-component reduction.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Sentinel errors for grid construction and lookup.
var (
	ErrInvalidGrid = eris.New("raster: invalid grid")
	ErrOutOfBounds = eris.New("raster: coordinate outside raster extent")
)

// Grid is a single-band raster stored row-major. Values are float64 so the
// same type carries class codes, {0,1} masks and population counts. Build
// grids with New or FromRows so the transform is validated.
type Grid struct {
	Data      []float64 `json:"data"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	Transform Affine    `json:"transform"`
	CRS       string    `json:"crs"`

	inverse Affine
}

// New validates the inputs and returns a Grid. The data slice is not copied.
func New(data []float64, rows, cols int, transform Affine, crs string) (*Grid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, eris.Wrapf(ErrInvalidGrid, "raster: shape %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, eris.Wrapf(ErrInvalidGrid, "raster: %d values for shape %dx%d", len(data), rows, cols)
	}
	inv, err := transform.Invert()
	if err != nil {
		return nil, eris.Wrap(err, "raster: new grid")
	}
	return &Grid{
		Data:      data,
		Rows:      rows,
		Cols:      cols,
		Transform: transform,
		CRS:       crs,
		inverse:   inv,
	}, nil
}

// FromRows builds a Grid from a slice of equally sized rows.
func FromRows(rows [][]float64, transform Affine, crs string) (*Grid, error) {
	if len(rows) == 0 {
		return nil, eris.Wrap(ErrInvalidGrid, "raster: no rows")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, eris.Wrapf(ErrInvalidGrid, "raster: row %d has %d columns, want %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return New(data, len(rows), cols, transform, crs)
}

// Shape returns (rows, cols).
func (g *Grid) Shape() (int, int) {
	return g.Rows, g.Cols
}

// SameShape reports whether two grids have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return o != nil && g.Rows == o.Rows && g.Cols == o.Cols
}

// Contains reports whether (row, col) is inside the grid.
func (g *Grid) Contains(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// At returns the value at (row, col). The caller checks bounds.
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// Index maps a geo coordinate to the containing cell. Fractional pixel
// indices are floored rather than truncated toward zero, so points just
// west/north of the origin land on negative indices instead of aliasing
// onto the first row or column.
func (g *Grid) Index(x, y float64) (row, col int) {
	fc, fr := g.inv().Apply(x, y)
	if math.IsNaN(fc) || math.IsNaN(fr) {
		return -1, -1
	}
	return int(math.Floor(fr)), int(math.Floor(fc))
}

// inv returns the cached inverse, computing it for grids built without New.
func (g *Grid) inv() Affine {
	if g.inverse.Determinant() != 0 {
		return g.inverse
	}
	inv, err := g.Transform.Invert()
	if err != nil {
		nan := math.NaN()
		return Affine{A: nan, B: nan, C: nan, D: nan, E: nan, F: nan}
	}
	return inv
}

// Locate maps (lat, lon) to a cell and fails with ErrOutOfBounds outside
// the extent.
func (g *Grid) Locate(lat, lon float64) (row, col int, err error) {
	row, col = g.Index(lon, lat)
	if !g.Contains(row, col) {
		return row, col, eris.Wrapf(ErrOutOfBounds, "raster: (%.6f, %.6f) -> cell (%d, %d) of %dx%d", lat, lon, row, col, g.Rows, g.Cols)
	}
	return row, col, nil
}

// ValueAt returns the value of the cell containing (lat, lon).
func (g *Grid) ValueAt(lat, lon float64) (float64, error) {
	row, col, err := g.Locate(lat, lon)
	if err != nil {
		return 0, err
	}
	return g.At(row, col), nil
}

// CellCenter returns the (lat, lon) of a cell center.
func (g *Grid) CellCenter(row, col int) (lat, lon float64) {
	x, y := g.Transform.PixelCenter(row, col)
	return y, x
}

// PixelToGeo maps a fractional pixel position (already including any
// center offset) to (lat, lon).
func (g *Grid) PixelToGeo(row, col float64) (lat, lon float64) {
	x, y := g.Transform.Apply(col, row)
	return y, x
}

// CountNonZero returns the number of cells with a non-zero value.
func (g *Grid) CountNonZero() int {
	n := 0
	for _, v := range g.Data {
		if v != 0 && !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Sum adds up all finite cell values.
func (g *Grid) Sum() float64 {
	var s float64
	for _, v := range g.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s += v
	}
	return s
}

// Reclassify returns a {0,1} mask marking cells whose value is in codes.
func (g *Grid) Reclassify(codes map[int]bool) *Grid {
	out := make([]float64, len(g.Data))
	for i, v := range g.Data {
		if codes[int(v)] && v == math.Trunc(v) {
			out[i] = 1
		}
	}
	return &Grid{
		Data:      out,
		Rows:      g.Rows,
		Cols:      g.Cols,
		Transform: g.Transform,
		CRS:       g.CRS,
		inverse:   g.inverse,
	}
}

// MaxCell returns the center coordinate of the cell holding the largest
// value, scanning row-major so the first maximum wins.
func (g *Grid) MaxCell() (lat, lon, value float64) {
	best := -1
	for i, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > g.Data[best] {
			best = i
		}
	}
	if best < 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	lat, lon = g.CellCenter(best/g.Cols, best%g.Cols)
	return lat, lon, g.Data[best]
}
