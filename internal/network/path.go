package network

import (
	"container/heap"
	"math"

	"github.com/rotisserie/eris"
)

type pqItem struct {
	node     int64
	priority float64
}

// priorityQueue is a binary min-heap on priority. Ties break on node id so
// searches are deterministic.
type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority == pq[j].priority {
		return pq[i].node < pq[j].node
	}
	return pq[i].priority < pq[j].priority
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) { *pq = append(*pq, x.(pqItem)) }

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// ShortestPathLengths runs single-source Dijkstra and returns the distance
// to every node whose distance does not exceed cutoff. A non-positive or
// infinite cutoff explores the whole reachable component.
func (g *Graph) ShortestPathLengths(src int64, w Weight, cutoff float64) (map[int64]float64, error) {
	dist, _, err := g.dijkstra(src, -1, w, cutoff)
	return dist, err
}

// Path is a routed node sequence.
type Path struct {
	Nodes      []int64
	Length     float64 // meters, summed over the chosen parallel edges
	TravelTime float64 // seconds, summed over the chosen parallel edges
	Cost       float64 // total of the minimized weight
}

// ShortestPath returns the cheapest path from src to dst under w. Each hop
// uses the parallel edge that minimizes w, and Length/TravelTime are summed
// from that same edge. It fails with ErrUnreachable when dst cannot be
// reached.
func (g *Graph) ShortestPath(src, dst int64, w Weight) (*Path, error) {
	if _, ok := g.index[dst]; !ok {
		return nil, eris.Wrapf(ErrGraphConstruction, "network: unknown destination node %d", dst)
	}
	dist, prev, err := g.dijkstra(src, dst, w, math.Inf(1))
	if err != nil {
		return nil, err
	}
	cost, ok := dist[dst]
	if !ok {
		return nil, eris.Wrapf(ErrUnreachable, "network: no path from %d to %d", src, dst)
	}

	p := &Path{Cost: cost}
	for cur := dst; ; {
		p.Nodes = append(p.Nodes, cur)
		hop, ok := prev[cur]
		if !ok {
			break
		}
		p.Length += hop.Edge.Length
		p.TravelTime += hop.Edge.TravelTime
		cur = hop.To // To holds the predecessor here
	}
	for i, j := 0, len(p.Nodes)-1; i < j; i, j = i+1, j-1 {
		p.Nodes[i], p.Nodes[j] = p.Nodes[j], p.Nodes[i]
	}
	return p, nil
}

// dijkstra returns settled distances and, for each reached node, the arc
// used to enter it with To rewritten to the predecessor. It stops early
// once dst (if >= 0 and known) is settled.
func (g *Graph) dijkstra(src, dst int64, w Weight, cutoff float64) (map[int64]float64, map[int64]Arc, error) {
	if _, ok := g.index[src]; !ok {
		return nil, nil, eris.Wrapf(ErrGraphConstruction, "network: unknown source node %d", src)
	}
	if cutoff <= 0 || math.IsNaN(cutoff) {
		cutoff = math.Inf(1)
	}

	dist := map[int64]float64{src: 0}
	prev := make(map[int64]Arc)
	settled := make(map[int64]bool)

	pq := &priorityQueue{}
	heap.Push(pq, pqItem{node: src, priority: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if settled[item.node] {
			continue
		}
		settled[item.node] = true
		if item.node == dst {
			break
		}

		for _, a := range g.Arcs(item.node, w) {
			if settled[a.To] {
				continue
			}
			nd := item.priority + a.Weight
			if nd > cutoff {
				continue
			}
			if old, ok := dist[a.To]; ok && nd >= old {
				continue
			}
			dist[a.To] = nd
			prev[a.To] = Arc{To: item.node, Weight: a.Weight, Edge: a.Edge}
			heap.Push(pq, pqItem{node: a.To, priority: nd})
		}
	}

	// drop tentative labels that were never settled
	for id := range dist {
		if !settled[id] {
			delete(dist, id)
		}
	}
	return dist, prev, nil
}
