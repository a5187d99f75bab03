package network

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BBox is a lon/lat bounding box. The zero value selects everything.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// IsZero reports whether the box is unset.
func (b BBox) IsZero() bool { return b == BBox{} }

// Contains reports whether (lat, lon) lies inside the box, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	return lon >= b.MinLng && lon <= b.MaxLng && lat >= b.MinLat && lat <= b.MaxLat
}

// Buffer grows the box by meters on every side.
func (b BBox) Buffer(meters float64) BBox {
	const metersPerDegree = 111_320.0
	dLat := meters / metersPerDegree
	midLat := (b.MinLat + b.MaxLat) / 2
	cos := math.Cos(midLat * math.Pi / 180)
	dLng := dLat
	if cos > 1e-9 {
		dLng = dLat / cos
	}
	return BBox{
		MinLng: b.MinLng - dLng,
		MinLat: b.MinLat - dLat,
		MaxLng: b.MaxLng + dLng,
		MaxLat: b.MaxLat + dLat,
	}
}

// Source loads raw node and edge collections from a store.
type Source interface {
	Load(ctx context.Context, bbox BBox) ([]Node, []Edge, error)
}

// LoadGraph reads a source and builds a graph from it.
func LoadGraph(ctx context.Context, src Source, bbox BBox) (*Graph, error) {
	nodes, edges, err := src.Load(ctx, bbox)
	if err != nil {
		return nil, eris.Wrap(err, "network: load graph")
	}
	g, err := Build(nodes, edges)
	if err != nil {
		return nil, eris.Wrap(err, "network: build graph")
	}
	zap.L().Debug("network: graph loaded",
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()),
	)
	return g, nil
}

// keepInternal drops edges with an endpoint outside the loaded node set, so
// a bbox-clipped load still builds.
func keepInternal(nodes []Node, edges []Edge) []Edge {
	ids := make(map[int64]struct{}, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = struct{}{}
	}
	out := edges[:0]
	for _, e := range edges {
		_, u := ids[e.U]
		_, v := ids[e.V]
		if u && v {
			out = append(out, e)
		}
	}
	return out
}
