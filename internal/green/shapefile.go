package green

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// LoadShapefile reads every record of a shapefile as a Feature. Attribute
// names become lowercase tag keys; blank attributes are dropped. Records
// whose shape cannot be converted are skipped.
func LoadShapefile(path string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "green: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var features []Feature
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		tags := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				tags[name] = val
			}
		}
		id := tags["osm_id"]
		if id == "" {
			id = strconv.Itoa(n)
		}
		features = append(features, Feature{ID: id, Geometry: g, Tags: tags})
	}

	if skipped > 0 {
		zap.L().Debug("green: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// shapeToGeom converts a go-shp shape to a go-geom geometry in lon/lat.
// It returns nil for nil, empty or unsupported shapes.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, flatPoints(s.Points)).SetSRID(4326)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s.NumParts, s.Parts, s.Points)
	case *shp.Polygon:
		return ringsToMultiPolygon(s.NumParts, s.Parts, s.Points)
	default:
		return nil
	}
}

// parts splits a shapefile point array at the part offsets.
func parts(numParts int32, offsets []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := offsets[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = offsets[i+1]
		}
		if start < 0 || start > end || end > int32(len(points)) {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

func polyLineToMultiLineString(numParts int32, offsets []int32, points []shp.Point) geom.T {
	if numParts == 0 || len(points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i, part := range parts(numParts, offsets, points) {
		if len(part) < 2 {
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flatPoints(part))); err != nil {
			zap.L().Debug("green: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// ringsToMultiPolygon groups shapefile rings into polygons. Clockwise rings
// start a new polygon; counter-clockwise rings are holes of the polygon
// before them.
func ringsToMultiPolygon(numParts int32, offsets []int32, points []shp.Point) geom.T {
	if numParts == 0 || len(points) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	var cur *geom.Polygon
	flush := func() {
		if cur == nil {
			return
		}
		if err := mp.Push(cur); err != nil {
			zap.L().Debug("green: skipping malformed polygon", zap.Error(err))
		}
		cur = nil
	}

	for i, part := range parts(numParts, offsets, points) {
		if len(part) < 4 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flatPoints(part))
		if signedArea(part) <= 0 || cur == nil {
			flush()
			cur = geom.NewPolygon(geom.XY)
		}
		if err := cur.Push(ring); err != nil {
			zap.L().Debug("green: skipping malformed polygon ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var a float64
	for i := 0; i < len(ring)-1; i++ {
		a += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return a / 2
}

func flatPoints(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
