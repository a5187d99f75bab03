package access

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/greento/greento/internal/green"
	"github.com/greento/greento/internal/network"
	"github.com/greento/greento/internal/raster"
)

// Point is a query coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NearestResult is the closest green location reached over the network.
type NearestResult struct {
	Candidate      green.Candidate `json:"candidate"`
	DistanceMeters float64         `json:"distance_meters"` // network distance plus the candidate's snap distance
	Node           int64           `json:"node,omitempty"`
	StartNode      int64           `json:"start_node,omitempty"`
	AtStart        bool            `json:"at_start"` // the start itself is green; no graph search ran
}

type rankedCandidate struct {
	green.Candidate
	straight float64
}

// FindNearest returns the green candidate with the shortest network
// distance from (lat, lon). A nil result with a nil error means no green
// candidate exists or none is reachable within the cutoff.
func (e *Engine) FindNearest(ctx context.Context, lat, lon float64) (res *NearestResult, err error) {
	ctx, span := startSpan(ctx, "access.FindNearest",
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
	)
	defer func() { endSpan(span, err) }()

	if err := validateCoord(lat, lon); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "access: find nearest")
	}

	onGreen, err := e.green.IsGreenAt(lat, lon)
	switch {
	case eris.Is(err, raster.ErrOutOfBounds) && !e.opts.StrictExtent:
		zap.L().Debug("access: start outside green extent, searching network",
			zap.Float64("lat", lat), zap.Float64("lon", lon))
	case err != nil:
		return nil, err
	case onGreen:
		smp, _ := e.green.Sample(lat, lon)
		return &NearestResult{
			Candidate: green.Candidate{Lat: lat, Lon: lon, Category: smp.Category},
			AtStart:   true,
		}, nil
	}

	cands, err := e.green.Candidates()
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		zap.L().Warn("access: no green candidates", zap.Float64("lat", lat), zap.Float64("lon", lon))
		return nil, nil
	}

	ranked := make([]rankedCandidate, len(cands))
	for i, c := range cands {
		ranked[i] = rankedCandidate{Candidate: c, straight: network.Haversine(lat, lon, c.Lat, c.Lon)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].straight < ranked[j].straight })
	kept := ranked[:e.opts.CandidateCap(len(ranked))]
	zap.L().Debug("access: pruned candidates",
		zap.Int("total", len(ranked)),
		zap.Int("kept", len(kept)),
	)
	if len(kept) == 0 {
		return nil, nil
	}

	g, idx := e.snapshot()
	start, startSnap := idx.Nearest(lat, lon)

	points := make([][2]float64, len(kept))
	for i, c := range kept {
		points[i] = [2]float64{c.Lat, c.Lon}
	}
	snaps := idx.NearestBatch(points, e.opts.BatchSize)

	dist, err := g.ShortestPathLengths(start, network.ByLength, e.opts.CutoffMeters)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("access: snapped candidates",
		zap.Int64("start_node", start),
		zap.Float64("start_snap_m", startSnap),
		zap.Int("reached_nodes", len(dist)),
	)

	best := -1
	bestDist := math.Inf(1)
	for i, s := range snaps {
		d, ok := dist[s.Node]
		if !ok {
			continue
		}
		if total := d + s.Meters; total < bestDist {
			best, bestDist = i, total
		}
	}
	if best < 0 {
		zap.L().Warn("access: no green candidate reachable",
			zap.Int64("start_node", start),
			zap.Float64("cutoff_m", e.opts.CutoffMeters),
		)
		return nil, nil
	}

	return &NearestResult{
		Candidate:      kept[best].Candidate,
		DistanceMeters: bestDist,
		Node:           snaps[best].Node,
		StartNode:      start,
	}, nil
}

// FindNearestMany runs FindNearest for every point with bounded
// concurrency. Results keep the input order; the first error cancels the
// remaining work.
func (e *Engine) FindNearestMany(ctx context.Context, points []Point) ([]*NearestResult, error) {
	results := make([]*NearestResult, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrency)
	for i, p := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.FindNearest(gctx, p.Lat, p.Lon)
			if err != nil {
				return eris.Wrapf(err, "access: point %d", i)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
