package green

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/greento/greento/internal/db"
	"github.com/greento/greento/internal/network"
)

var schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// LoadPostgres reads tagged features from <schema>.green_features, an
// osm2pgsql-style table with columns osm_id, tags (jsonb) and geom
// (EPSG:4326). A zero bbox reads the whole table.
func LoadPostgres(ctx context.Context, pool db.Pool, schema string, bbox network.BBox) ([]Feature, error) {
	if !schemaPattern.MatchString(schema) {
		return nil, eris.Errorf("green: invalid schema name %q", schema)
	}
	sql := fmt.Sprintf(`SELECT osm_id::text, tags, ST_AsBinary(geom) FROM %s`,
		pgx.Identifier{schema, "green_features"}.Sanitize())
	var args []any
	if !bbox.IsZero() {
		sql += ` WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)`
		args = []any{bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat}
	}
	sql += ` ORDER BY osm_id`

	rows, err := db.Query(ctx, pool, "green: features", sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "green: query features")
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		var (
			f        Feature
			rawTags  []byte
			geometry []byte
		)
		if err := rows.Scan(&f.ID, &rawTags, &geometry); err != nil {
			return nil, eris.Wrap(err, "green: scan feature")
		}
		if len(rawTags) > 0 {
			if err := json.Unmarshal(rawTags, &f.Tags); err != nil {
				return nil, eris.Wrapf(err, "green: decode tags of %s", f.ID)
			}
		}
		if f.Geometry, err = wkb.Unmarshal(geometry); err != nil {
			return nil, eris.Wrapf(err, "green: decode geometry of %s", f.ID)
		}
		features = append(features, f)
	}
	return features, eris.Wrap(rows.Err(), "green: iterate features")
}
