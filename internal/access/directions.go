package access

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/greento/greento/internal/network"
	"github.com/greento/greento/internal/travel"
)

// Directions is a routed trip between two snapped endpoints.
type Directions struct {
	Mode                 travel.Mode `json:"mode"`
	DistanceKM           float64     `json:"distance_km"`
	EstimatedTimeMinutes float64     `json:"estimated_time_minutes"`
	// RoutingTimeSeconds is the sum of edge travel times the route was
	// minimized on. It is kept apart from EstimatedTimeMinutes, which
	// comes from the mode's speed and delay model.
	RoutingTimeSeconds float64 `json:"routing_time_seconds"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	Nodes              []int64 `json:"nodes"`
}

// Directions routes from (lat1, lon1) to (lat2, lon2) by travel time.
// Length is summed over the edges actually chosen, so parallel edges count
// with the travel time that won.
func (e *Engine) Directions(ctx context.Context, lat1, lon1, lat2, lon2 float64, mode travel.Mode) (dir *Directions, err error) {
	_, span := startSpan(ctx, "access.Directions",
		attribute.String("mode", string(mode)),
	)
	defer func() { endSpan(span, err) }()

	mode, err = e.model.Resolve(mode)
	if err != nil {
		return nil, err
	}
	if err := validateCoord(lat1, lon1); err != nil {
		return nil, err
	}
	if err := validateCoord(lat2, lon2); err != nil {
		return nil, err
	}

	g, idx, err := e.routableGraph(mode)
	if err != nil {
		return nil, err
	}
	from, _ := idx.Nearest(lat1, lon1)
	to, _ := idx.Nearest(lat2, lon2)

	path, err := g.ShortestPath(from, to, network.ByTravelTime)
	if err != nil {
		return nil, err
	}

	minutes, err := e.model.EstimateMinutes(path.Length, mode)
	if err != nil {
		return nil, err
	}
	dest, _ := g.Node(to)

	zap.L().Debug("access: directions",
		zap.String("mode", string(mode)),
		zap.Int64("from", from),
		zap.Int64("to", to),
		zap.Int("hops", len(path.Nodes)-1),
	)
	return &Directions{
		Mode:                 mode,
		DistanceKM:           travel.Round(path.Length/1000, 4),
		EstimatedTimeMinutes: minutes,
		RoutingTimeSeconds:   path.TravelTime,
		Lat:                  dest.Y,
		Lon:                  dest.X,
		Nodes:                path.Nodes,
	}, nil
}
