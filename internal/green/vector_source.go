package green

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// Feature is an OSM-style feature: a geometry in lon/lat plus its tags.
type Feature struct {
	ID       string            `json:"id,omitempty"`
	Geometry geom.T            `json:"-"`
	Tags     map[string]string `json:"tags"`
}

// VectorOptions configures a VectorSource. Zero values take the defaults.
type VectorOptions struct {
	Tags         map[string][]string
	CellSizeDeg  float64
	PixelAreaSqm float64
}

type greenFeature struct {
	category string
	centroid geom.Coord
	shape    orb.Geometry
	areal    bool
}

// VectorSource serves green candidates and samples from tagged features.
type VectorSource struct {
	features  []greenFeature
	tolerance float64
	pixelArea float64
}

// NewVectorSource keeps the features whose tags match the filter. Features
// with empty or unsupported geometry are skipped.
func NewVectorSource(features []Feature, opts VectorOptions) (*VectorSource, error) {
	tags := opts.Tags
	if len(tags) == 0 {
		tags = DefaultTags()
	}
	cell := opts.CellSizeDeg
	if cell <= 0 {
		cell = DefaultCellSizeDeg
	}
	area := opts.PixelAreaSqm
	if area <= 0 {
		area = DefaultPixelAreaSqm
	}

	s := &VectorSource{tolerance: cell / 2, pixelArea: area}
	keys := sortedKeys(tags)
	skipped := 0
	for _, f := range features {
		value, ok := MatchTags(f.Tags, tags, keys)
		if !ok {
			continue
		}
		gf, err := toGreenFeature(f.Geometry)
		if err != nil {
			skipped++
			zap.L().Debug("green: skipping feature", zap.String("id", f.ID), zap.Error(err))
			continue
		}
		gf.category = TagLabel(value)
		s.features = append(s.features, gf)
	}
	if skipped > 0 {
		zap.L().Debug("green: skipped vector features", zap.Int("skipped", skipped))
	}
	return s, nil
}

// MatchTags returns the tag value that makes a feature green. Keys are
// checked in the given order so a feature tagged under several keys always
// resolves the same way.
func MatchTags(featureTags map[string]string, filter map[string][]string, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := featureTags[k]
		if !ok {
			continue
		}
		for _, allowed := range filter[k] {
			if v == allowed {
				return v, true
			}
		}
	}
	return "", false
}

func toGreenFeature(g geom.T) (greenFeature, error) {
	if g == nil || len(g.FlatCoords()) == 0 {
		return greenFeature{}, eris.New("green: empty geometry")
	}
	c, err := xy.Centroid(g)
	if err != nil {
		return greenFeature{}, eris.Wrap(err, "green: centroid")
	}

	var gf greenFeature
	gf.centroid = c
	switch t := g.(type) {
	case *geom.Point:
		gf.shape = orb.Point{t.X(), t.Y()}
	case *geom.MultiPoint:
		mp := make(orb.MultiPoint, 0, t.NumPoints())
		for i := 0; i < t.NumPoints(); i++ {
			p := t.Point(i)
			mp = append(mp, orb.Point{p.X(), p.Y()})
		}
		gf.shape = mp
	case *geom.LineString:
		gf.shape = toLineString(t.Coords())
	case *geom.MultiLineString:
		ml := make(orb.MultiLineString, 0, t.NumLineStrings())
		for i := 0; i < t.NumLineStrings(); i++ {
			ml = append(ml, toLineString(t.LineString(i).Coords()))
		}
		gf.shape = ml
	case *geom.Polygon:
		gf.shape, gf.areal = toPolygon(t), true
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			mp = append(mp, toPolygon(t.Polygon(i)))
		}
		gf.shape, gf.areal = mp, true
	default:
		return greenFeature{}, eris.Errorf("green: unsupported geometry %T", g)
	}
	return gf, nil
}

func toLineString(coords []geom.Coord) orb.LineString {
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c.X(), c.Y()}
	}
	return ls
}

func toPolygon(p *geom.Polygon) orb.Polygon {
	poly := make(orb.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		ring := make(orb.Ring, len(coords))
		for j, c := range coords {
			ring[j] = orb.Point{c.X(), c.Y()}
		}
		poly = append(poly, ring)
	}
	return poly
}

// PixelAreaSqm implements Source.
func (s *VectorSource) PixelAreaSqm() float64 { return s.pixelArea }

// Len returns the number of green features.
func (s *VectorSource) Len() int { return len(s.features) }

// Candidates implements Source. Points map to themselves, lines and
// polygons to their centroid; the result is sorted by (lat, lon).
func (s *VectorSource) Candidates() ([]Candidate, error) {
	out := make([]Candidate, len(s.features))
	for i, f := range s.features {
		out[i] = Candidate{Lat: f.centroid.Y(), Lon: f.centroid.X(), Category: f.category}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Lat != out[j].Lat {
			return out[i].Lat < out[j].Lat
		}
		return out[i].Lon < out[j].Lon
	})
	return out, nil
}

// IsGreenAt implements Source. A vector source has no extent, so it never
// fails.
func (s *VectorSource) IsGreenAt(lat, lon float64) (bool, error) {
	smp, _ := s.Sample(lat, lon)
	return smp.Green, nil
}

// Sample implements Source. Polygons match by containment; points and lines
// match within half a cell. The first matching feature supplies the
// category.
func (s *VectorSource) Sample(lat, lon float64) (Sample, bool) {
	pt := orb.Point{lon, lat}
	for _, f := range s.features {
		if f.contains(pt, s.tolerance) {
			return Sample{Green: true, Category: f.category}, true
		}
	}
	return Sample{}, true
}

func (f greenFeature) contains(pt orb.Point, tolerance float64) bool {
	if !f.areal {
		return planar.DistanceFrom(f.shape, pt) <= tolerance
	}
	switch sh := f.shape.(type) {
	case orb.Polygon:
		return planar.PolygonContains(sh, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(sh, pt)
	}
	return false
}
