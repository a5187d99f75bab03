package access

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/greento/greento/internal/travel"
)

// IsochroneRequest asks for the green share reachable within a budget.
type IsochroneRequest struct {
	Lat            float64     `json:"lat"`
	Lon            float64     `json:"lon"`
	MaxTimeMinutes float64     `json:"max_time_minutes"`
	Mode           travel.Mode `json:"mode"`
}

// GreenAccess is one reachable green node.
type GreenAccess struct {
	Node     int64   `json:"node"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Category string  `json:"category"`
	// NetworkSeconds is the graph travel time to the node.
	NetworkSeconds float64 `json:"network_seconds"`
	// DistanceMeters and TimeMinutes restate NetworkSeconds through the
	// mode model: distance from the inverse estimate, time re-estimated
	// from that distance.
	DistanceMeters float64 `json:"distance_meters"`
	TimeMinutes    float64 `json:"time_minutes"`
}

// IsochroneResult summarizes the green space inside an isochrone.
type IsochroneResult struct {
	QueryID             string         `json:"query_id"`
	Mode                travel.Mode    `json:"mode"`
	MaxTimeMinutes      float64        `json:"max_time_minutes"`
	Reachable           bool           `json:"reachable"`
	ReachableNodes      int            `json:"reachable_nodes"`
	TotalSamples        int            `json:"total_samples"`
	GreenSamples        int            `json:"green_samples"`
	Categories          map[string]int `json:"categories"`
	GreenAreaPercentage float64        `json:"green_area_percentage"`
	GreenAreaSqm        float64        `json:"green_area_sqm"`
	GreenAccess         []GreenAccess  `json:"green_access"`
}

func validateRequest(req IsochroneRequest) error {
	if err := validateCoord(req.Lat, req.Lon); err != nil {
		return err
	}
	if !(req.MaxTimeMinutes > 0) || math.IsInf(req.MaxTimeMinutes, 1) {
		return eris.Wrapf(ErrInvalidParameter, "access: max time %v minutes must be positive and finite", req.MaxTimeMinutes)
	}
	return nil
}

// Isochrone expands the network from the node nearest to the request point
// within the time left after the mode's fixed delay, then overlays every
// reached node on the green source. Reached nodes outside the green
// source's extent are not sampled; when no node is sampled the result is
// returned with Reachable false.
func (e *Engine) Isochrone(ctx context.Context, req IsochroneRequest) (res *IsochroneResult, err error) {
	queryID := uuid.New().String()
	_, span := startSpan(ctx, "access.Isochrone",
		attribute.String("query_id", queryID),
		attribute.String("mode", string(req.Mode)),
		attribute.Float64("max_time_minutes", req.MaxTimeMinutes),
	)
	defer func() { endSpan(span, err) }()
	log := zap.L().With(zap.String("query_id", queryID))

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	mode, err := e.model.Resolve(req.Mode)
	if err != nil {
		return nil, err
	}
	delay, err := e.model.FixedDelaySeconds(mode)
	if err != nil {
		return nil, err
	}
	budget := req.MaxTimeMinutes*60 - delay
	if budget <= 0 {
		return nil, eris.Wrapf(ErrInsufficientTime,
			"access: %v minutes leave no travel time after the %v s %s delay", req.MaxTimeMinutes, delay, mode)
	}

	g, idx, err := e.routableGraph(mode)
	if err != nil {
		return nil, err
	}
	start, _ := idx.Nearest(req.Lat, req.Lon)
	times, err := g.Reach(start, budget, e.opts.IsochroneStrategy)
	if err != nil {
		return nil, err
	}

	res = &IsochroneResult{
		QueryID:        queryID,
		Mode:           mode,
		MaxTimeMinutes: req.MaxTimeMinutes,
		ReachableNodes: len(times),
		Categories:     make(map[string]int),
		GreenAccess:    []GreenAccess{},
	}

	for _, n := range g.Reached(times) {
		smp, inside := e.green.Sample(n.Y, n.X)
		if !inside {
			continue
		}
		res.TotalSamples++
		if !smp.Green {
			continue
		}
		res.GreenSamples++
		res.Categories[smp.Category]++

		meters, err := e.model.EstimateDistanceMeters(n.Seconds, mode)
		if err != nil {
			return nil, err
		}
		minutes, err := e.model.EstimateMinutes(meters, mode)
		if err != nil {
			return nil, err
		}
		res.GreenAccess = append(res.GreenAccess, GreenAccess{
			Node:           n.ID,
			Lat:            n.Y,
			Lon:            n.X,
			Category:       smp.Category,
			NetworkSeconds: n.Seconds,
			DistanceMeters: travel.Round(meters, 2),
			TimeMinutes:    minutes,
		})
	}

	if res.TotalSamples == 0 {
		log.Warn("access: no reachable area",
			zap.Int64("start_node", start),
			zap.Int("reachable_nodes", res.ReachableNodes),
		)
		return res, nil
	}

	res.Reachable = true
	res.GreenAreaPercentage = travel.Round(float64(res.GreenSamples)/float64(res.TotalSamples)*100, 2)
	res.GreenAreaSqm = float64(res.GreenSamples) * e.green.PixelAreaSqm()
	log.Debug("access: isochrone",
		zap.String("mode", string(mode)),
		zap.Float64("budget_s", budget),
		zap.Int("reachable_nodes", res.ReachableNodes),
		zap.Int("green_samples", res.GreenSamples),
	)
	return res, nil
}
