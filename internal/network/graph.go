// Package network builds routable transport graphs from node/edge
// collections and runs the searches the accessibility engine needs:
// nearest-node snapping, cutoff-bounded Dijkstra and time-bounded reach.
package network

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Sentinel errors for graph construction and routing.
var (
	ErrGraphConstruction = eris.New("network: cannot construct graph")
	ErrUnreachable       = eris.New("network: destination unreachable")
)

// Node is a graph vertex. X is longitude and Y is latitude. HasCoords must
// be set by the producer; a node without coordinates cannot be routed.
type Node struct {
	ID        int64   `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	HasCoords bool    `json:"-"`
}

// NewNode returns a node with coordinates.
func NewNode(id int64, x, y float64) Node {
	return Node{ID: id, X: x, Y: y, HasCoords: true}
}

// Edge is a directed link u -> v. SpeedKPH and TravelTime are optional;
// zero means absent.
type Edge struct {
	U          int64   `json:"u"`
	V          int64   `json:"v"`
	Length     float64 `json:"length"`
	SpeedKPH   float64 `json:"speed_kph,omitempty"`
	TravelTime float64 `json:"travel_time,omitempty"`
	Highway    string  `json:"highway,omitempty"`
}

// Graph is an immutable directed multigraph with adjacency lists.
type Graph struct {
	nodes []Node
	index map[int64]int // node id -> position in nodes
	out   [][]int       // node position -> edge positions
	edges []Edge
}

// Build validates node and edge collections and returns a Graph. Missing
// coordinates, dangling edge endpoints and negative lengths are fatal.
func Build(nodes []Node, edges []Edge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, eris.Wrap(ErrGraphConstruction, "network: graph has no nodes")
	}

	g := &Graph{
		nodes: make([]Node, 0, len(nodes)),
		index: make(map[int64]int, len(nodes)),
		edges: make([]Edge, 0, len(edges)),
	}
	for _, n := range nodes {
		if !n.HasCoords || math.IsNaN(n.X) || math.IsNaN(n.Y) {
			return nil, eris.Wrapf(ErrGraphConstruction, "network: node %d has no x/y coordinates", n.ID)
		}
		if _, dup := g.index[n.ID]; dup {
			return nil, eris.Wrapf(ErrGraphConstruction, "network: duplicate node %d", n.ID)
		}
		g.index[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	g.out = make([][]int, len(g.nodes))
	for _, e := range edges {
		ui, ok := g.index[e.U]
		if !ok {
			return nil, eris.Wrapf(ErrGraphConstruction, "network: edge %d->%d references unknown node %d", e.U, e.V, e.U)
		}
		if _, ok := g.index[e.V]; !ok {
			return nil, eris.Wrapf(ErrGraphConstruction, "network: edge %d->%d references unknown node %d", e.U, e.V, e.V)
		}
		if e.Length < 0 || math.IsNaN(e.Length) {
			return nil, eris.Wrapf(ErrGraphConstruction, "network: edge %d->%d has invalid length %v", e.U, e.V, e.Length)
		}
		g.out[ui] = append(g.out[ui], len(g.edges))
		g.edges = append(g.edges, e)
	}

	return g, nil
}

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the number of edges, counting parallel edges.
func (g *Graph) NumEdges() int { return len(g.edges) }

// Node returns a node by id.
func (g *Graph) Node(id int64) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns the nodes in insertion order. The slice must not be modified.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns the edges in insertion order. The slice must not be modified.
func (g *Graph) Edges() []Edge { return g.edges }

// Weight selects the edge attribute a search minimizes.
type Weight int

// Edge weights.
const (
	ByLength Weight = iota
	ByTravelTime
)

func (w Weight) of(e Edge) float64 {
	if w == ByTravelTime {
		return e.TravelTime
	}
	return e.Length
}

// Arc is an outgoing neighbor with parallel edges collapsed to the cheapest.
type Arc struct {
	To     int64
	Weight float64
	Edge   Edge // the parallel edge that achieved Weight
}

// Arcs returns the outgoing neighbors of a node under the given weight.
// Among parallel edges the minimum weight wins; ties keep the first edge.
// Neighbors are ordered by first appearance.
func (g *Graph) Arcs(id int64, w Weight) []Arc {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	var arcs []Arc
	pos := make(map[int64]int, len(g.out[i]))
	for _, ei := range g.out[i] {
		e := g.edges[ei]
		wt := w.of(e)
		if j, seen := pos[e.V]; seen {
			if wt < arcs[j].Weight {
				arcs[j] = Arc{To: e.V, Weight: wt, Edge: e}
			}
			continue
		}
		pos[e.V] = len(arcs)
		arcs = append(arcs, Arc{To: e.V, Weight: wt, Edge: e})
	}
	return arcs
}

// Prepare returns a copy of the graph where every edge carries a travel
// time in seconds. Existing travel times are kept; otherwise the time is
// length / modeSpeedMPS. Stored edge speeds are road speeds and only
// replace the mode speed when edgeSpeeds is set.
func (g *Graph) Prepare(modeSpeedMPS float64, edgeSpeeds bool) (*Graph, error) {
	if !(modeSpeedMPS > 0) {
		return nil, eris.Wrapf(ErrGraphConstruction, "network: mode speed must be positive, got %v", modeSpeedMPS)
	}
	cp := &Graph{
		nodes: g.nodes,
		index: g.index,
		out:   g.out,
		edges: make([]Edge, len(g.edges)),
	}
	for i, e := range g.edges {
		if e.TravelTime <= 0 || math.IsNaN(e.TravelTime) {
			speed := modeSpeedMPS
			if edgeSpeeds && e.SpeedKPH > 0 {
				speed = e.SpeedKPH / 3.6
			}
			e.TravelTime = e.Length / speed
		}
		cp.edges[i] = e
	}
	return cp, nil
}

// Bounds returns the lon/lat bounding box of all nodes.
func (g *Graph) Bounds() BBox {
	b := BBox{MinLng: math.Inf(1), MinLat: math.Inf(1), MaxLng: math.Inf(-1), MaxLat: math.Inf(-1)}
	for _, n := range g.nodes {
		b.MinLng = math.Min(b.MinLng, n.X)
		b.MaxLng = math.Max(b.MaxLng, n.X)
		b.MinLat = math.Min(b.MinLat, n.Y)
		b.MaxLat = math.Max(b.MaxLat, n.Y)
	}
	return b
}

// sortedIDs returns node ids in ascending order.
func sortedIDs(m map[int64]float64) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
