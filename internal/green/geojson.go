package green

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// LoadGeoJSON decodes a FeatureCollection. Scalar properties become tags;
// a nested "tags" object, as written by common OSM exporters, is merged in.
func LoadGeoJSON(r io.Reader) ([]Feature, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "green: read geojson")
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "green: decode geojson")
	}

	features := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		tags := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if nested, ok := v.(map[string]any); ok && k == "tags" {
				for nk, nv := range nested {
					if s, ok := scalarString(nv); ok {
						tags[nk] = s
					}
				}
				continue
			}
			if s, ok := scalarString(v); ok {
				tags[k] = s
			}
		}
		features = append(features, Feature{ID: f.ID, Geometry: f.Geometry, Tags: tags})
	}
	return features, nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64, bool:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}
