package green

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/greento/greento/internal/raster"
)

// RasterOptions configures a RasterSource. Zero values take the defaults.
type RasterOptions struct {
	GreenCodes   []int
	Labels       map[int]string
	PixelAreaSqm float64
	Strategy     Strategy
	MaxPixels    int
}

// RasterSource derives green space from a {0,1} mask, a land-cover class
// grid, or both. With a mask the mask decides greenness and the class grid
// only supplies categories.
type RasterSource struct {
	mask      *raster.Grid
	classes   *raster.Grid
	labels    map[int]string
	pixelArea float64
	strategy  Strategy
	maxPixels int
}

// NewRasterSource validates the grids and options. At least one grid is
// required; when both are given they must share a shape.
func NewRasterSource(mask, classes *raster.Grid, opts RasterOptions) (*RasterSource, error) {
	if mask == nil && classes == nil {
		return nil, eris.Wrap(raster.ErrInvalidGrid, "green: raster source needs a mask or a class grid")
	}
	if mask != nil && classes != nil && !mask.SameShape(classes) {
		return nil, eris.Wrapf(raster.ErrInvalidGrid, "green: mask %dx%d and classes %dx%d differ",
			mask.Rows, mask.Cols, classes.Rows, classes.Cols)
	}

	codes := opts.GreenCodes
	if len(codes) == 0 {
		codes = DefaultCodes()
	}
	s := &RasterSource{
		mask:      mask,
		classes:   classes,
		labels:    opts.Labels,
		pixelArea: opts.PixelAreaSqm,
		strategy:  opts.Strategy,
		maxPixels: opts.MaxPixels,
	}
	if s.mask == nil {
		s.mask = classes.Reclassify(CodeSet(codes))
	}
	if s.labels == nil {
		s.labels = DefaultLabels()
	}
	if s.pixelArea <= 0 {
		s.pixelArea = DefaultPixelAreaSqm
	}
	switch s.strategy {
	case "":
		s.strategy = StrategyComponents
	case StrategyComponents, StrategyPixels:
	default:
		return nil, eris.Errorf("green: unknown candidate strategy %q", s.strategy)
	}
	if s.maxPixels <= 0 {
		s.maxPixels = DefaultMaxPixels
	}
	return s, nil
}

// Mask returns the green mask the source decides on.
func (s *RasterSource) Mask() *raster.Grid { return s.mask }

// PixelAreaSqm implements Source.
func (s *RasterSource) PixelAreaSqm() float64 { return s.pixelArea }

// isGreen reports whether a mask cell is green. Only 1 counts; nodata
// values such as 255 do not.
func isGreen(v float64) bool { return v == 1 }

// IsGreenAt implements Source.
func (s *RasterSource) IsGreenAt(lat, lon float64) (bool, error) {
	v, err := s.mask.ValueAt(lat, lon)
	if err != nil {
		return false, err
	}
	return isGreen(v), nil
}

// Sample implements Source.
func (s *RasterSource) Sample(lat, lon float64) (Sample, bool) {
	row, col, err := s.mask.Locate(lat, lon)
	if err != nil {
		return Sample{}, false
	}
	if !isGreen(s.mask.At(row, col)) {
		return Sample{}, true
	}
	return Sample{Green: true, Category: s.categoryAt(row, col)}, true
}

func (s *RasterSource) categoryAt(row, col int) string {
	if s.classes == nil {
		return "Green"
	}
	v := s.classes.At(row, col)
	if math.IsNaN(v) {
		return "Green"
	}
	return ClassLabel(s.labels, int(v))
}

// Candidates implements Source.
func (s *RasterSource) Candidates() ([]Candidate, error) {
	if s.strategy == StrategyPixels {
		return s.pixelCandidates(), nil
	}
	return s.componentCandidates(), nil
}

// componentCandidates returns one candidate per 8-connected green patch at
// its centroid, in label order. The category is the patch's most common
// class; ties go to the lower code.
func (s *RasterSource) componentCandidates() []Candidate {
	comps, labels := s.mask.Components(isGreen)
	out := make([]Candidate, len(comps))

	var votes []map[int]int
	if s.classes != nil {
		votes = make([]map[int]int, len(comps))
		for i, l := range labels {
			v := s.classes.Data[i]
			if l == 0 || math.IsNaN(v) {
				continue
			}
			if votes[l-1] == nil {
				votes[l-1] = make(map[int]int)
			}
			votes[l-1][int(v)]++
		}
	}

	for i, c := range comps {
		lat, lon := s.mask.Centroid(c)
		category := "Green"
		if votes != nil && len(votes[i]) > 0 {
			category = ClassLabel(s.labels, majority(votes[i]))
		}
		out[i] = Candidate{Lat: lat, Lon: lon, Category: category, Pixels: c.Pixels}
	}
	zap.L().Debug("green: component candidates", zap.Int("components", len(out)))
	return out
}

func majority(counts map[int]int) int {
	codes := make([]int, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	best := codes[0]
	for _, c := range codes[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// pixelCandidates returns green pixel centers in row-major order. Above
// maxPixels a fixed stride keeps every k-th pixel so the result is
// deterministic and at most maxPixels long.
func (s *RasterSource) pixelCandidates() []Candidate {
	var idx []int
	for i, v := range s.mask.Data {
		if isGreen(v) {
			idx = append(idx, i)
		}
	}
	total := len(idx)
	if total > s.maxPixels {
		stride := (total + s.maxPixels - 1) / s.maxPixels
		kept := idx[:0]
		for i := 0; i < total; i += stride {
			kept = append(kept, idx[i])
		}
		idx = kept
		zap.L().Debug("green: subsampled pixel candidates",
			zap.Int("total", total),
			zap.Int("stride", stride),
			zap.Int("kept", len(idx)),
		)
	}

	out := make([]Candidate, len(idx))
	for i, p := range idx {
		row, col := p/s.mask.Cols, p%s.mask.Cols
		lat, lon := s.mask.CellCenter(row, col)
		out[i] = Candidate{Lat: lat, Lon: lon, Category: s.categoryAt(row, col), Pixels: 1}
	}
	return out
}
