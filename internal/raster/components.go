package raster

// Component is one 8-connected patch of selected cells.
type Component struct {
	Label  int     `json:"label"`
	Pixels int     `json:"pixels"`
	Row    float64 `json:"row"` // mean row index of member cells
	Col    float64 `json:"col"` // mean column index of member cells
	MinRow int     `json:"min_row"`
	MinCol int     `json:"min_col"`
}

// neighbors8 lists the offsets of the 8-connected neighborhood.
var neighbors8 = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Components labels the 8-connected patches of cells for which keep returns
// true. Labels start at 1 and follow row-major discovery order, so the
// output is deterministic for a given grid. The returned label slice is
// row-major with 0 for unselected cells.
func (g *Grid) Components(keep func(v float64) bool) ([]Component, []int) {
	labels := make([]int, len(g.Data))
	var comps []Component
	var stack []int

	for start, v := range g.Data {
		if labels[start] != 0 || !keep(v) {
			continue
		}

		label := len(comps) + 1
		c := Component{Label: label, MinRow: start / g.Cols, MinCol: start % g.Cols}
		var sumRow, sumCol float64

		labels[start] = label
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			r, col := idx/g.Cols, idx%g.Cols
			c.Pixels++
			sumRow += float64(r)
			sumCol += float64(col)
			if col < c.MinCol {
				c.MinCol = col
			}

			for _, off := range neighbors8 {
				nr, nc := r+off[0], col+off[1]
				if !g.Contains(nr, nc) {
					continue
				}
				n := nr*g.Cols + nc
				if labels[n] != 0 || !keep(g.Data[n]) {
					continue
				}
				labels[n] = label
				stack = append(stack, n)
			}
		}

		c.Row = sumRow / float64(c.Pixels)
		c.Col = sumCol / float64(c.Pixels)
		comps = append(comps, c)
	}

	return comps, labels
}

// Centroid returns the geo coordinate of a component's center of mass,
// using the pixel-center convention.
func (g *Grid) Centroid(c Component) (lat, lon float64) {
	return g.PixelToGeo(c.Row+0.5, c.Col+0.5)
}
