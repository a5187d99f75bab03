package network

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// DefaultBatchSize is the number of points snapped per k-d tree batch.
const DefaultBatchSize = 100

// site is a node projected onto an equirectangular plane around the graph's
// mean latitude, so squared plane distance tracks ground distance closely
// at city scale.
type site struct {
	id   int64
	x, y float64
}

func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	o := c.(site)
	if d == 0 {
		return s.x - o.x
	}
	return s.y - o.y
}

func (s site) Dims() int { return 2 }

func (s site) Distance(c kdtree.Comparable) float64 {
	o := c.(site)
	dx, dy := s.x-o.x, s.y-o.y
	return dx*dx + dy*dy
}

type sites []site

func (s sites) Index(i int) kdtree.Comparable         { return s[i] }
func (s sites) Len() int                              { return len(s) }
func (s sites) Pivot(d kdtree.Dim) int                { return plane{sites: s, Dim: d}.Pivot() }
func (s sites) Slice(start, end int) kdtree.Interface { return s[start:end] }

// plane sorts sites along one dimension for median partitioning.
type plane struct {
	kdtree.Dim
	sites
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.sites[i].x < p.sites[j].x
	}
	return p.sites[i].y < p.sites[j].y
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.sites = p.sites[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.sites[i], p.sites[j] = p.sites[j], p.sites[i] }

// Snap is the result of mapping a point onto its nearest graph node.
type Snap struct {
	Lat, Lon float64
	Node     int64
	Meters   float64 // haversine distance from the point to the node
}

// NodeIndex answers nearest-node queries over a graph.
type NodeIndex struct {
	tree   *kdtree.Tree
	cosLat float64
	graph  *Graph
}

// NewNodeIndex builds a k-d tree over all graph nodes.
func NewNodeIndex(g *Graph) (*NodeIndex, error) {
	if g == nil || g.NumNodes() == 0 {
		return nil, eris.Wrap(ErrGraphConstruction, "network: index over empty graph")
	}
	var meanLat float64
	for _, n := range g.nodes {
		meanLat += n.Y
	}
	meanLat /= float64(len(g.nodes))

	idx := &NodeIndex{cosLat: math.Cos(meanLat * math.Pi / 180), graph: g}
	pts := make(sites, len(g.nodes))
	for i, n := range g.nodes {
		pts[i] = idx.project(n.ID, n.Y, n.X)
	}
	idx.tree = kdtree.New(pts, false)
	return idx, nil
}

func (idx *NodeIndex) project(id int64, lat, lon float64) site {
	return site{id: id, x: lon * idx.cosLat, y: lat}
}

// Nearest returns the node closest to (lat, lon) and the haversine distance
// to it in meters.
func (idx *NodeIndex) Nearest(lat, lon float64) (int64, float64) {
	got, _ := idx.tree.Nearest(idx.project(0, lat, lon))
	s := got.(site)
	n, _ := idx.graph.Node(s.id)
	return s.id, Haversine(lat, lon, n.Y, n.X)
}

// NearestBatch snaps points (lat, lon pairs) to nodes in fixed-size batches.
// Each batch reuses one scratch buffer so the transient allocation is
// bounded by batchSize regardless of the number of points.
func (idx *NodeIndex) NearestBatch(points [][2]float64, batchSize int) []Snap {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([]Snap, 0, len(points))
	scratch := make([]site, 0, batchSize)
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))

		scratch = scratch[:0]
		for _, p := range points[start:end] {
			scratch = append(scratch, idx.project(0, p[0], p[1]))
		}
		for j, q := range scratch {
			got, _ := idx.tree.Nearest(q)
			s := got.(site)
			n, _ := idx.graph.Node(s.id)
			p := points[start+j]
			out = append(out, Snap{
				Lat:    p[0],
				Lon:    p[1],
				Node:   s.id,
				Meters: Haversine(p[0], p[1], n.Y, n.X),
			})
		}
	}
	return out
}

// Haversine returns the great-circle distance in meters between two
// (lat, lon) points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.DistanceHaversine(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}
