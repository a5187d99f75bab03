// Package access answers green-space accessibility queries: the nearest
// green area over the road network, point-to-point directions and the
// green share of a travel-time isochrone.
package access

import (
	"context"
	"math"
	"sync"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/greento/greento/internal/config"
	"github.com/greento/greento/internal/green"
	"github.com/greento/greento/internal/network"
	"github.com/greento/greento/internal/travel"
)

// Sentinel errors for query validation.
var (
	ErrInvalidParameter = eris.New("access: invalid parameter")
	ErrInsufficientTime = eris.New("access: fixed delay exceeds the time budget")
)

var tracer = otel.Tracer("greento/access")

// Options tunes the engine searches.
type Options struct {
	LowWater          int
	HighWater         int
	MaxCandidates     int
	BatchSize         int
	CutoffMeters      float64
	StrictExtent      bool
	IsochroneStrategy network.ReachStrategy
	MaxConcurrency    int
}

// DefaultOptions returns the stock search settings.
func DefaultOptions() Options {
	return Options{
		LowWater:          2000,
		HighWater:         10000,
		MaxCandidates:     5000,
		BatchSize:         network.DefaultBatchSize,
		CutoffMeters:      100_000,
		StrictExtent:      false,
		IsochroneStrategy: network.ReachDijkstra,
		MaxConcurrency:    4,
	}
}

// OptionsFromConfig maps the nearest, isochrone and engine sections.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	strategy, err := network.ParseReachStrategy(cfg.Isochrone.Strategy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		LowWater:          cfg.Nearest.LowWater,
		HighWater:         cfg.Nearest.HighWater,
		MaxCandidates:     cfg.Nearest.MaxCandidates,
		BatchSize:         cfg.Nearest.BatchSize,
		CutoffMeters:      cfg.Nearest.CutoffMeters,
		StrictExtent:      cfg.Nearest.StrictExtent,
		IsochroneStrategy: strategy,
		MaxConcurrency:    cfg.Engine.MaxConcurrency,
	}.withDefaults(), nil
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LowWater <= 0 {
		o.LowWater = d.LowWater
	}
	if o.HighWater <= 0 {
		o.HighWater = d.HighWater
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.CutoffMeters <= 0 {
		o.CutoffMeters = d.CutoffMeters
	}
	if o.IsochroneStrategy == "" {
		o.IsochroneStrategy = d.IsochroneStrategy
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = d.MaxConcurrency
	}
	return o
}

// CandidateCap returns how many of n distance-sorted candidates are
// snapped and routed: all of them below the low-water mark, a fifth below
// the high-water mark, and a fixed maximum above it.
func (o Options) CandidateCap(n int) int {
	switch {
	case n < o.LowWater:
		return n
	case n < o.HighWater:
		return n / 5
	default:
		return min(n, o.MaxCandidates)
	}
}

// Engine runs accessibility queries against one travel model, one green
// source and one road network. It is safe for concurrent use.
type Engine struct {
	model *travel.Model
	green green.Source
	opts  Options

	mu       sync.RWMutex
	graph    *network.Graph
	index    *network.NodeIndex
	routable map[travel.Mode]*network.Graph
}

// NewEngine validates the inputs and indexes the graph nodes.
func NewEngine(model *travel.Model, src green.Source, g *network.Graph, opts Options) (*Engine, error) {
	if model == nil {
		model = travel.Default()
	}
	if src == nil {
		return nil, eris.Wrap(ErrInvalidParameter, "access: green source is required")
	}
	e := &Engine{model: model, green: src, opts: opts.withDefaults()}
	if err := e.SetGraph(g); err != nil {
		return nil, err
	}
	return e, nil
}

// Options returns the effective engine options.
func (e *Engine) Options() Options { return e.opts }

// SetGraph replaces the road network and drops every cached routable graph.
func (e *Engine) SetGraph(g *network.Graph) error {
	if g == nil || g.NumNodes() == 0 {
		return eris.Wrap(network.ErrGraphConstruction, "access: graph is empty")
	}
	idx, err := network.NewNodeIndex(g)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph = g
	e.index = idx
	e.routable = make(map[travel.Mode]*network.Graph)
	return nil
}

// Invalidate drops the cached routable graphs; the next query per mode
// rebuilds them.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routable = make(map[travel.Mode]*network.Graph)
}

// snapshot returns the current graph and node index.
func (e *Engine) snapshot() (*network.Graph, *network.NodeIndex) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph, e.index
}

// routableGraph returns the graph with travel times derived for mode,
// building and caching it on first use.
func (e *Engine) routableGraph(mode travel.Mode) (*network.Graph, *network.NodeIndex, error) {
	e.mu.RLock()
	g, ok := e.routable[mode]
	idx := e.index
	e.mu.RUnlock()
	if ok {
		return g, idx, nil
	}

	profile, err := e.model.Profile(mode)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok := e.routable[mode]; ok {
		return g, e.index, nil
	}
	g, err = e.graph.Prepare(profile.SpeedMPS(), profile.EdgeSpeeds)
	if err != nil {
		return nil, nil, err
	}
	e.routable[mode] = g
	zap.L().Debug("access: built routable graph",
		zap.String("mode", string(mode)),
		zap.Int("edges", g.NumEdges()),
	)
	return g, e.index, nil
}

// validateCoord rejects non-finite or out-of-range coordinates.
func validateCoord(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return eris.Wrapf(ErrInvalidParameter, "access: coordinate (%v, %v) is not finite", lat, lon)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return eris.Wrapf(ErrInvalidParameter, "access: coordinate (%v, %v) out of range", lat, lon)
	}
	return nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
