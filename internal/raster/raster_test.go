package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockGrid is a 10x10 mask over lon 10..11, lat 49..50 with a 3x3 green
// block at rows 3-5, cols 3-5.
func blockGrid(t *testing.T) *Grid {
	t.Helper()
	data := make([]float64, 100)
	for r := 3; r <= 5; r++ {
		for c := 3; c <= 5; c++ {
			data[r*10+c] = 1
		}
	}
	g, err := New(data, 10, 10, NewAffine(0.1, 0, 10, 0, -0.1, 50), "EPSG:4326")
	require.NoError(t, err)
	return g
}

func TestAffine_InvertRoundTrip(t *testing.T) {
	tr := NewAffine(0.1, 0.02, 10, 0.01, -0.1, 50)
	inv, err := tr.Invert()
	require.NoError(t, err)

	x, y := tr.Apply(3.25, 7.5)
	col, row := inv.Apply(x, y)
	assert.InDelta(t, 3.25, col, 1e-9)
	assert.InDelta(t, 7.5, row, 1e-9)
}

func TestAffine_Singular(t *testing.T) {
	_, err := NewAffine(1, 2, 0, 2, 4, 0).Invert()
	assert.ErrorIs(t, err, ErrSingularTransform)

	_, err = New(make([]float64, 4), 2, 2, Affine{}, "")
	assert.ErrorIs(t, err, ErrSingularTransform)
}

func TestAffine_PixelArea(t *testing.T) {
	assert.InDelta(t, 100.0, NewAffine(10, 0, 500000, 0, -10, 4000000).PixelArea(), 1e-9)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(make([]float64, 5), 2, 2, NewAffine(1, 0, 0, 0, -1, 0), "")
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = New(nil, 0, 3, NewAffine(1, 0, 0, 0, -1, 0), "")
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = FromRows([][]float64{{1, 2}, {3}}, NewAffine(1, 0, 0, 0, -1, 0), "")
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = FromRows(nil, NewAffine(1, 0, 0, 0, -1, 0), "")
	assert.ErrorIs(t, err, ErrInvalidGrid)
}

func TestGrid_CellCenterAndLocate(t *testing.T) {
	g := blockGrid(t)

	lat, lon := g.CellCenter(3, 3)
	assert.InDelta(t, 49.65, lat, 1e-9)
	assert.InDelta(t, 10.35, lon, 1e-9)

	row, col, err := g.Locate(lat, lon)
	require.NoError(t, err)
	assert.Equal(t, 3, row)
	assert.Equal(t, 3, col)

	v, err := g.ValueAt(lat, lon)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestGrid_LocateOutOfBounds(t *testing.T) {
	g := blockGrid(t)

	for _, pt := range [][2]float64{
		{50.1, 10.1},  // north of the extent
		{50.02, 10.5}, // less than one pixel north still misses
		{49.5, 9.99},  // west
		{48.9, 10.5},  // south
		{49.5, 11.01}, // east
	} {
		_, err := g.ValueAt(pt[0], pt[1])
		assert.ErrorIs(t, err, ErrOutOfBounds, "point %v", pt)
	}

	// floored, not truncated: half a pixel north-west is row/col -1, not 0
	row, col := g.Index(9.95, 50.05)
	assert.Equal(t, -1, row)
	assert.Equal(t, -1, col)
}

func TestGrid_StructLiteralStillLocates(t *testing.T) {
	g := &Grid{Data: []float64{0, 1, 2, 3}, Rows: 2, Cols: 2, Transform: NewAffine(1, 0, 0, 0, -1, 2)}
	v, err := g.ValueAt(0.5, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestGrid_CountAndSum(t *testing.T) {
	g := blockGrid(t)
	assert.Equal(t, 9, g.CountNonZero())
	assert.Equal(t, 9.0, g.Sum())

	g.Data[0] = math.NaN()
	assert.Equal(t, 9, g.CountNonZero())
	assert.Equal(t, 9.0, g.Sum())
}

func TestGrid_Reclassify(t *testing.T) {
	lc, err := FromRows([][]float64{
		{10, 50, 30},
		{80, 20, 10.5},
	}, NewAffine(1, 0, 0, 0, -1, 2), "EPSG:3857")
	require.NoError(t, err)

	mask := lc.Reclassify(map[int]bool{10: true, 20: true, 30: true})
	assert.Equal(t, []float64{1, 0, 1, 0, 1, 0}, mask.Data)
	assert.Equal(t, "EPSG:3857", mask.CRS)
	assert.True(t, mask.SameShape(lc))
}

func TestGrid_MaxCell(t *testing.T) {
	pop, err := FromRows([][]float64{
		{1, 5, 2},
		{5, 0, 3},
	}, NewAffine(0.1, 0, 10, 0, -0.1, 50), "")
	require.NoError(t, err)

	lat, lon, v := pop.MaxCell()
	assert.Equal(t, 5.0, v)
	assert.InDelta(t, 49.95, lat, 1e-9)
	assert.InDelta(t, 10.15, lon, 1e-9)
}

func TestComponents_Block(t *testing.T) {
	g := blockGrid(t)

	comps, labels := g.Components(func(v float64) bool { return v == 1 })
	require.Len(t, comps, 1)
	assert.Equal(t, 9, comps[0].Pixels)
	assert.InDelta(t, 4.0, comps[0].Row, 1e-9)
	assert.InDelta(t, 4.0, comps[0].Col, 1e-9)
	assert.Equal(t, 1, labels[4*10+4])
	assert.Equal(t, 0, labels[0])

	lat, lon := g.Centroid(comps[0])
	assert.InDelta(t, 49.55, lat, 1e-9)
	assert.InDelta(t, 10.45, lon, 1e-9)
}

func TestComponents_DiagonalIsConnected(t *testing.T) {
	g, err := FromRows([][]float64{
		{1, 0, 0, 1},
		{0, 1, 0, 0},
		{0, 0, 0, 1},
	}, NewAffine(1, 0, 0, 0, -1, 3), "")
	require.NoError(t, err)

	comps, _ := g.Components(func(v float64) bool { return v == 1 })
	require.Len(t, comps, 3)

	// labels follow row-major discovery order
	assert.Equal(t, 2, comps[0].Pixels)
	assert.Equal(t, 0, comps[0].MinRow)
	assert.Equal(t, 1, comps[1].Pixels)
	assert.Equal(t, 3, comps[1].MinCol)
	assert.Equal(t, 1, comps[2].Pixels)
	assert.Equal(t, 2, comps[2].MinRow)
}

func TestComponents_Empty(t *testing.T) {
	g, err := New(make([]float64, 9), 3, 3, NewAffine(1, 0, 0, 0, -1, 3), "")
	require.NoError(t, err)
	comps, _ := g.Components(func(v float64) bool { return v == 1 })
	assert.Empty(t, comps)
}
