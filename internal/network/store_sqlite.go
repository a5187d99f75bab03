package network

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteSource reads a network from a local SQLite file with the same
// nodes/edges layout as the Postgres schema.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource opens a SQLite database at dsn.
func NewSQLiteSource(dsn string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "network: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "network: sqlite exec %s", pragma)
		}
	}
	return &SQLiteSource{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY,
	x  REAL,
	y  REAL
);

CREATE TABLE IF NOT EXISTS edges (
	u           INTEGER NOT NULL,
	v           INTEGER NOT NULL,
	length      REAL,
	speed_kph   REAL,
	travel_time REAL,
	highway     TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_xy ON nodes(x, y);
CREATE INDEX IF NOT EXISTS idx_edges_u ON edges(u);
`

// Migrate creates the nodes and edges tables.
func (s *SQLiteSource) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "network: sqlite migrate")
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Import writes nodes and edges in one transaction.
func (s *SQLiteSource) Import(ctx context.Context, nodes []Node, edges []Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "network: sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, n := range nodes {
		var x, y any
		if n.HasCoords {
			x, y = n.X, n.Y
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO nodes (id, x, y) VALUES (?, ?, ?)`, n.ID, x, y); err != nil {
			return eris.Wrapf(err, "network: sqlite insert node %d", n.ID)
		}
	}
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edges (u, v, length, speed_kph, travel_time, highway) VALUES (?, ?, ?, ?, ?, ?)`,
			e.U, e.V, e.Length, nullIfZero(e.SpeedKPH), nullIfZero(e.TravelTime), e.Highway,
		); err != nil {
			return eris.Wrapf(err, "network: sqlite insert edge %d->%d", e.U, e.V)
		}
	}
	return eris.Wrap(tx.Commit(), "network: sqlite commit")
}

// Load implements Source.
func (s *SQLiteSource) Load(ctx context.Context, bbox BBox) ([]Node, []Edge, error) {
	q := `SELECT id, x, y FROM nodes`
	var args []any
	if !bbox.IsZero() {
		q += ` WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ?`
		args = []any{bbox.MinLng, bbox.MaxLng, bbox.MinLat, bbox.MaxLat}
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, nil, eris.Wrap(err, "network: sqlite query nodes")
	}
	var nodes []Node
	for rows.Next() {
		var (
			n    Node
			x, y sql.NullFloat64
		)
		if err := rows.Scan(&n.ID, &x, &y); err != nil {
			rows.Close()
			return nil, nil, eris.Wrap(err, "network: sqlite scan node")
		}
		n.X, n.Y, n.HasCoords = x.Float64, y.Float64, x.Valid && y.Valid
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "network: sqlite iterate nodes")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT u, v, length, COALESCE(speed_kph, 0), COALESCE(travel_time, 0), COALESCE(highway, '') FROM edges ORDER BY rowid`)
	if err != nil {
		return nil, nil, eris.Wrap(err, "network: sqlite query edges")
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var (
			e      Edge
			length sql.NullFloat64
		)
		if err := rows.Scan(&e.U, &e.V, &length, &e.SpeedKPH, &e.TravelTime, &e.Highway); err != nil {
			return nil, nil, eris.Wrap(err, "network: sqlite scan edge")
		}
		e.Length = length.Float64
		if !length.Valid {
			e.Length = -1
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "network: sqlite iterate edges")
	}
	if !bbox.IsZero() {
		edges = keepInternal(nodes, edges)
	}
	return nodes, edges, nil
}
