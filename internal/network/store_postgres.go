package network

import (
	"context"
	"fmt"
	"math"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/greento/greento/internal/db"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// validateSchema restricts the schema name to a plain lowercase identifier
// because it is interpolated into SQL.
func validateSchema(schema string) error {
	if !identPattern.MatchString(schema) {
		return eris.Errorf("network: invalid schema name %q", schema)
	}
	return nil
}

// PostgresSource reads an OSM-derived network from <schema>.nodes and
// <schema>.edges.
type PostgresSource struct {
	pool   db.Pool
	schema string
}

// NewPostgresSource creates a PostgresSource. The schema must be a plain
// identifier.
func NewPostgresSource(pool db.Pool, schema string) (*PostgresSource, error) {
	if err := validateSchema(schema); err != nil {
		return nil, err
	}
	return &PostgresSource{pool: pool, schema: schema}, nil
}

func (s *PostgresSource) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// Load implements Source. Missing coordinates come back as NaN so Build can
// reject them.
func (s *PostgresSource) Load(ctx context.Context, bbox BBox) ([]Node, []Edge, error) {
	nodes, err := s.loadNodes(ctx, bbox)
	if err != nil {
		return nil, nil, err
	}
	edges, err := s.loadEdges(ctx, bbox)
	if err != nil {
		return nil, nil, err
	}
	if !bbox.IsZero() {
		edges = keepInternal(nodes, edges)
	}
	return nodes, edges, nil
}

func (s *PostgresSource) loadNodes(ctx context.Context, bbox BBox) ([]Node, error) {
	sql := fmt.Sprintf(`SELECT id, COALESCE(x, 'NaN'::float8), COALESCE(y, 'NaN'::float8) FROM %s`, s.table("nodes"))
	var args []any
	if !bbox.IsZero() {
		sql += ` WHERE x BETWEEN $1 AND $3 AND y BETWEEN $2 AND $4`
		args = []any{bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat}
	}
	sql += ` ORDER BY id`

	rows, err := db.Query(ctx, s.pool, "network: nodes", sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "network: query nodes")
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.X, &n.Y); err != nil {
			return nil, eris.Wrap(err, "network: scan node")
		}
		n.HasCoords = !math.IsNaN(n.X) && !math.IsNaN(n.Y)
		nodes = append(nodes, n)
	}
	return nodes, eris.Wrap(rows.Err(), "network: iterate nodes")
}

func (s *PostgresSource) loadEdges(ctx context.Context, bbox BBox) ([]Edge, error) {
	sql := fmt.Sprintf(`SELECT e.u, e.v, COALESCE(e.length, 'NaN'::float8), COALESCE(e.speed_kph, 0), COALESCE(e.travel_time, 0), COALESCE(e.highway, '') FROM %s e`, s.table("edges"))
	var args []any
	if !bbox.IsZero() {
		sql += fmt.Sprintf(` JOIN %s n ON n.id = e.u WHERE n.x BETWEEN $1 AND $3 AND n.y BETWEEN $2 AND $4`, s.table("nodes"))
		args = []any{bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat}
	}
	sql += ` ORDER BY e.u, e.v`

	rows, err := db.Query(ctx, s.pool, "network: edges", sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "network: query edges")
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.U, &e.V, &e.Length, &e.SpeedKPH, &e.TravelTime, &e.Highway); err != nil {
			return nil, eris.Wrap(err, "network: scan edge")
		}
		edges = append(edges, e)
	}
	return edges, eris.Wrap(rows.Err(), "network: iterate edges")
}

// Import bulk-loads nodes and edges into <schema>.nodes and <schema>.edges.
func (s *PostgresSource) Import(ctx context.Context, nodes []Node, edges []Edge) error {
	if _, err := db.CopySlice(ctx, s.pool, pgx.Identifier{s.schema, "nodes"},
		[]string{"id", "x", "y"}, nodes, nodeRow); err != nil {
		return eris.Wrap(err, "network: import nodes")
	}
	if _, err := db.CopySlice(ctx, s.pool, pgx.Identifier{s.schema, "edges"},
		[]string{"u", "v", "length", "speed_kph", "travel_time", "highway"}, edges, edgeRow); err != nil {
		return eris.Wrap(err, "network: import edges")
	}
	return nil
}

func nodeRow(n Node) []any {
	if !n.HasCoords {
		return []any{n.ID, nil, nil}
	}
	return []any{n.ID, n.X, n.Y}
}

func edgeRow(e Edge) []any {
	return []any{e.U, e.V, e.Length, nullIfZero(e.SpeedKPH), nullIfZero(e.TravelTime), e.Highway}
}

func nullIfZero(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}
