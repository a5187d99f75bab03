package green

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/greento/greento/internal/network"
	"github.com/greento/greento/internal/raster"
)

var fixtureTransform = raster.NewAffine(0.1, 0, 10, 0, -0.1, 50)

// blockMask is a 10x10 mask with a 3x3 green block at rows/cols 3-5.
func blockMask(t *testing.T) *raster.Grid {
	t.Helper()
	data := make([]float64, 100)
	for r := 3; r <= 5; r++ {
		for c := 3; c <= 5; c++ {
			data[r*10+c] = 1
		}
	}
	g, err := raster.New(data, 10, 10, fixtureTransform, "EPSG:4326")
	require.NoError(t, err)
	return g
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Nature Reserve", TagLabel("nature_reserve"))
	assert.Equal(t, "Park", TagLabel("park"))
	assert.Equal(t, "Grassland", ClassLabel(DefaultLabels(), 30))
	assert.Equal(t, "Class 7", ClassLabel(DefaultLabels(), 7))
	assert.Equal(t, map[int]bool{10: true, 20: true}, CodeSet([]int{10, 20}))
	assert.Equal(t, []int{10, 20, 30, 60, 95, 100}, DefaultCodes())
}

func TestRasterSource_Components(t *testing.T) {
	src, err := NewRasterSource(blockMask(t), nil, RasterOptions{})
	require.NoError(t, err)

	cands, err := src.Candidates()
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.InDelta(t, 49.55, cands[0].Lat, 1e-9)
	assert.InDelta(t, 10.45, cands[0].Lon, 1e-9)
	assert.Equal(t, 9, cands[0].Pixels)
	assert.Equal(t, "Green", cands[0].Category)
	assert.Equal(t, DefaultPixelAreaSqm, src.PixelAreaSqm())
}

func TestRasterSource_IsGreenAtAndSample(t *testing.T) {
	src, err := NewRasterSource(blockMask(t), nil, RasterOptions{PixelAreaSqm: 25})
	require.NoError(t, err)
	assert.Equal(t, 25.0, src.PixelAreaSqm())

	ok, err := src.IsGreenAt(49.55, 10.45)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = src.IsGreenAt(49.95, 10.05)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = src.IsGreenAt(50.1, 10.1)
	assert.ErrorIs(t, err, raster.ErrOutOfBounds)

	s, inside := src.Sample(49.55, 10.45)
	assert.True(t, inside)
	assert.Equal(t, Sample{Green: true, Category: "Green"}, s)

	s, inside = src.Sample(49.95, 10.05)
	assert.True(t, inside)
	assert.False(t, s.Green)

	_, inside = src.Sample(51, 10.5)
	assert.False(t, inside)
}

func TestRasterSource_ClassesOnly(t *testing.T) {
	classes, err := raster.FromRows([][]float64{
		{10, 10, 50, 80},
		{30, 10, 50, 30},
		{50, 50, 50, 30},
	}, raster.NewAffine(1, 0, 0, 0, -1, 3), "")
	require.NoError(t, err)

	src, err := NewRasterSource(nil, classes, RasterOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 0, 1}, src.Mask().Data)

	cands, err := src.Candidates()
	require.NoError(t, err)
	require.Len(t, cands, 2)
	// majority of {10, 10, 30, 10}
	assert.Equal(t, "Forest and trees", cands[0].Category)
	assert.Equal(t, 4, cands[0].Pixels)
	assert.Equal(t, "Grassland", cands[1].Category)

	s, ok := src.Sample(1.5, 0.5) // row 1, col 0
	assert.True(t, ok)
	assert.Equal(t, "Grassland", s.Category)
}

func TestRasterSource_MaskWithClassesCategorizes(t *testing.T) {
	mask := blockMask(t)
	classData := make([]float64, 100)
	for i := range classData {
		classData[i] = 20
	}
	classes, err := raster.New(classData, 10, 10, fixtureTransform, "")
	require.NoError(t, err)

	src, err := NewRasterSource(mask, classes, RasterOptions{Labels: map[int]string{20: "Scrub"}})
	require.NoError(t, err)

	cands, err := src.Candidates()
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Scrub", cands[0].Category)

	// the mask decides: class 20 outside the block is not green
	ok, err := src.IsGreenAt(49.95, 10.05)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRasterSource_NodataIsNotGreen(t *testing.T) {
	mask := blockMask(t)
	mask.Data[0] = 255 // nodata at row 0, col 0
	mask.Data[99] = 30 // stray class code at row 9, col 9

	src, err := NewRasterSource(mask, nil, RasterOptions{})
	require.NoError(t, err)

	cands, err := src.Candidates()
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 9, cands[0].Pixels)

	ok, err := src.IsGreenAt(49.95, 10.05)
	require.NoError(t, err)
	assert.False(t, ok)

	s, inside := src.Sample(49.05, 10.95)
	assert.True(t, inside)
	assert.False(t, s.Green)

	pixels, err := NewRasterSource(mask, nil, RasterOptions{Strategy: StrategyPixels})
	require.NoError(t, err)
	pc, err := pixels.Candidates()
	require.NoError(t, err)
	assert.Len(t, pc, 9)
}

func TestRasterSource_PixelsStride(t *testing.T) {
	src, err := NewRasterSource(blockMask(t), nil, RasterOptions{Strategy: StrategyPixels})
	require.NoError(t, err)

	cands, err := src.Candidates()
	require.NoError(t, err)
	require.Len(t, cands, 9)
	assert.InDelta(t, 49.65, cands[0].Lat, 1e-9)
	assert.InDelta(t, 10.35, cands[0].Lon, 1e-9)
	assert.InDelta(t, 10.45, cands[1].Lon, 1e-9)

	capped, err := NewRasterSource(blockMask(t), nil, RasterOptions{Strategy: StrategyPixels, MaxPixels: 4})
	require.NoError(t, err)
	sub, err := capped.Candidates()
	require.NoError(t, err)
	// stride ceil(9/4) = 3 keeps pixels 0, 3 and 6 in row-major order
	require.Len(t, sub, 3)
	assert.Equal(t, cands[0], sub[0])
	assert.Equal(t, cands[3], sub[1])
	assert.Equal(t, cands[6], sub[2])
}

func TestNewRasterSource_Errors(t *testing.T) {
	_, err := NewRasterSource(nil, nil, RasterOptions{})
	assert.ErrorIs(t, err, raster.ErrInvalidGrid)

	small, err := raster.New(make([]float64, 4), 2, 2, fixtureTransform, "")
	require.NoError(t, err)
	_, err = NewRasterSource(blockMask(t), small, RasterOptions{})
	assert.ErrorIs(t, err, raster.ErrInvalidGrid)

	_, err = NewRasterSource(blockMask(t), nil, RasterOptions{Strategy: "hexbin"})
	assert.Error(t, err)
}

func square(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, minX, maxY, maxX, maxY, maxX, minY, minX, minY,
	}, []int{10})
}

func vectorFixture() []Feature {
	return []Feature{
		{ID: "park", Geometry: square(10.3, 49.6, 10.4, 49.7), Tags: map[string]string{"leisure": "park"}},
		{ID: "tree", Geometry: geom.NewPointFlat(geom.XY, []float64{10.5, 49.5}), Tags: map[string]string{"natural": "tree"}},
		{ID: "road", Geometry: geom.NewLineStringFlat(geom.XY, []float64{10, 49, 11, 50}), Tags: map[string]string{"highway": "residential"}},
		{ID: "row", Geometry: geom.NewLineStringFlat(geom.XY, []float64{10.0, 49.8, 10.2, 49.8}), Tags: map[string]string{"natural": "tree_row"}},
		{ID: "empty", Geometry: geom.NewPolygon(geom.XY), Tags: map[string]string{"leisure": "garden"}},
	}
}

func TestVectorSource_Candidates(t *testing.T) {
	src, err := NewVectorSource(vectorFixture(), VectorOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, src.Len())

	cands, err := src.Candidates()
	require.NoError(t, err)
	require.Len(t, cands, 3)

	assert.Equal(t, Candidate{Lat: 49.5, Lon: 10.5, Category: "Tree"}, cands[0])
	assert.Equal(t, "Park", cands[1].Category)
	assert.InDelta(t, 49.65, cands[1].Lat, 1e-9)
	assert.InDelta(t, 10.35, cands[1].Lon, 1e-9)
	assert.Equal(t, "Tree Row", cands[2].Category)
	assert.InDelta(t, 10.1, cands[2].Lon, 1e-9)
}

func TestVectorSource_Sample(t *testing.T) {
	src, err := NewVectorSource(vectorFixture(), VectorOptions{})
	require.NoError(t, err)

	s, ok := src.Sample(49.65, 10.35)
	assert.True(t, ok)
	assert.Equal(t, Sample{Green: true, Category: "Park"}, s)

	s, _ = src.Sample(49.5003, 10.5002)
	assert.Equal(t, "Tree", s.Category)

	s, _ = src.Sample(49.8004, 10.1)
	assert.Equal(t, "Tree Row", s.Category)

	s, ok = src.Sample(49.0, 10.0)
	assert.True(t, ok)
	assert.False(t, s.Green)

	green, err := src.IsGreenAt(49.61, 10.39)
	require.NoError(t, err)
	assert.True(t, green)
}

func TestVectorSource_CustomTags(t *testing.T) {
	src, err := NewVectorSource(vectorFixture(), VectorOptions{
		Tags: map[string][]string{"highway": {"residential"}},
	})
	require.NoError(t, err)
	cands, err := src.Candidates()
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Residential", cands[0].Category)
	assert.InDelta(t, 49.5, cands[0].Lat, 1e-9)
}

func TestMatchTags_KeyOrder(t *testing.T) {
	tags := DefaultTags()
	keys := sortedKeys(tags)
	v, ok := MatchTags(map[string]string{"leisure": "park", "landuse": "grass"}, tags, keys)
	assert.True(t, ok)
	assert.Equal(t, "grass", v)

	_, ok = MatchTags(map[string]string{"leisure": "stadium"}, tags, keys)
	assert.False(t, ok)
}

func TestLoadGeoJSON(t *testing.T) {
	doc := `{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"id": "way/1",
				"geometry": {"type": "Polygon", "coordinates": [[[10.3, 49.6], [10.3, 49.7], [10.4, 49.7], [10.4, 49.6], [10.3, 49.6]]]},
				"properties": {"name": "Stadtpark", "tags": {"leisure": "park"}, "area": 1200}
			},
			{
				"type": "Feature",
				"id": "node/2",
				"geometry": {"type": "Point", "coordinates": [10.5, 49.5]},
				"properties": {"natural": "tree", "ref": null}
			}
		]
	}`
	features, err := LoadGeoJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, "way/1", features[0].ID)
	assert.Equal(t, "park", features[0].Tags["leisure"])
	assert.Equal(t, "Stadtpark", features[0].Tags["name"])
	assert.Equal(t, "1200", features[0].Tags["area"])
	assert.NotContains(t, features[1].Tags, "ref")

	src, err := NewVectorSource(features, VectorOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())
}

func TestLoadGeoJSON_Invalid(t *testing.T) {
	_, err := LoadGeoJSON(strings.NewReader(`{"type": "FeatureCollection", "features": [`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "green: decode geojson")
}

func writeShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "green.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("OSM_ID", 16),
		shp.StringField("LEISURE", 16),
	}))

	// clockwise outer ring, counter-clockwise hole
	points := []shp.Point{
		{X: 10.3, Y: 49.6}, {X: 10.3, Y: 49.7}, {X: 10.4, Y: 49.7}, {X: 10.4, Y: 49.6}, {X: 10.3, Y: 49.6},
		{X: 10.33, Y: 49.63}, {X: 10.37, Y: 49.63}, {X: 10.37, Y: 49.67}, {X: 10.33, Y: 49.67}, {X: 10.33, Y: 49.63},
	}
	row := w.Write(&shp.Polygon{
		Box:       shp.Box{MinX: 10.3, MinY: 49.6, MaxX: 10.4, MaxY: 49.7},
		NumParts:  2,
		NumPoints: int32(len(points)),
		Parts:     []int32{0, 5},
		Points:    points,
	})
	require.NoError(t, w.WriteAttribute(int(row), 0, "way123"))
	require.NoError(t, w.WriteAttribute(int(row), 1, "park"))
	w.Close()

	// the writer names the attribute table "<base>dbf"; readers expect "<base>.dbf"
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

func TestLoadShapefile(t *testing.T) {
	features, err := LoadShapefile(writeShapefile(t))
	require.NoError(t, err)
	require.Len(t, features, 1)

	f := features[0]
	assert.Equal(t, "way123", f.ID)
	assert.Equal(t, "park", f.Tags["leisure"])

	mp, ok := f.Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())

	src, err := NewVectorSource(features, VectorOptions{})
	require.NoError(t, err)

	s, _ := src.Sample(49.61, 10.31)
	assert.True(t, s.Green)
	// inside the hole
	s, _ = src.Sample(49.65, 10.35)
	assert.False(t, s.Green)
}

func TestLoadShapefile_Missing(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "green: open shapefile")
}

func TestShapeToGeom(t *testing.T) {
	assert.Nil(t, shapeToGeom(nil))
	assert.Nil(t, shapeToGeom(&shp.PolyLine{}))

	pt := shapeToGeom(&shp.Point{X: 10.5, Y: 49.5})
	require.NotNil(t, pt)
	assert.Equal(t, []float64{10.5, 49.5}, pt.FlatCoords())

	ml := shapeToGeom(&shp.PolyLine{
		NumParts: 2,
		Parts:    []int32{0, 2},
		Points:   []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}},
	})
	require.NotNil(t, ml)
	assert.Equal(t, 2, ml.(*geom.MultiLineString).NumLineStrings())
}

func TestLoadPostgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	geometry, err := wkb.Marshal(square(10.3, 49.6, 10.4, 49.7), wkb.NDR)
	require.NoError(t, err)

	bbox := network.BBox{MinLng: 10, MinLat: 49, MaxLng: 11, MaxLat: 50}
	mock.ExpectQuery(`SELECT osm_id::text, tags, ST_AsBinary\(geom\) FROM "osm"\."green_features" WHERE geom && ST_MakeEnvelope`).
		WithArgs(bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat).
		WillReturnRows(pgxmock.NewRows([]string{"osm_id", "tags", "geom"}).
			AddRow("42", []byte(`{"leisure": "park"}`), geometry))

	features, err := LoadPostgres(context.Background(), mock, "osm", bbox)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "42", features[0].ID)
	assert.Equal(t, "park", features[0].Tags["leisure"])
	_, ok := features[0].Geometry.(*geom.Polygon)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPostgres_Errors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = LoadPostgres(context.Background(), mock, "osm;drop", network.BBox{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema name")

	mock.ExpectQuery(`FROM "osm"\."green_features" ORDER BY osm_id`).
		WillReturnError(fmt.Errorf("relation does not exist"))
	_, err = LoadPostgres(context.Background(), mock, "osm", network.BBox{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "green: query features")
}
