package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// ErrSingularTransform is returned when an affine transform has no inverse.
var ErrSingularTransform = eris.New("raster: affine transform is not invertible")

// Affine maps pixel space (col, row) to geo space (x, y):
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// The coefficient order matches the GDAL/rasterio Affine(a, b, c, d, e, f)
// convention.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// NewAffine builds a transform from its six coefficients.
func NewAffine(a, b, c, d, e, f float64) Affine {
	return Affine{A: a, B: b, C: c, D: d, E: e, F: f}
}

// Apply maps a pixel-space point to geo space.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Determinant returns A*E - B*D.
func (t Affine) Determinant() float64 {
	return t.A*t.E - t.B*t.D
}

// Invert returns the inverse transform (geo -> pixel).
func (t Affine) Invert() (Affine, error) {
	det := t.Determinant()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Affine{}, ErrSingularTransform
	}
	ia := t.E / det
	ib := -t.B / det
	id := -t.D / det
	ie := t.A / det
	return Affine{
		A: ia, B: ib, C: -ia*t.C - ib*t.F,
		D: id, E: ie, F: -id*t.C - ie*t.F,
	}, nil
}

// PixelCenter returns the geo coordinate of the center of a cell.
func (t Affine) PixelCenter(row, col int) (x, y float64) {
	return t.Apply(float64(col)+0.5, float64(row)+0.5)
}

// PixelArea returns the area of one cell in CRS units squared.
func (t Affine) PixelArea() float64 {
	return math.Abs(t.Determinant())
}
