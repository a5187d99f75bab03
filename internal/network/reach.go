package network

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// ReachStrategy selects how a time-bounded expansion orders its frontier.
type ReachStrategy string

// Reach strategies.
const (
	// ReachDijkstra settles nodes in increasing time order; recorded times
	// are exact shortest travel times.
	ReachDijkstra ReachStrategy = "dijkstra"
	// ReachFlood pops a FIFO frontier and never revises a visited node, so
	// recorded times can exceed the true minimum on weighted graphs. The
	// reachable set can also miss nodes only reachable through the faster
	// route.
	ReachFlood ReachStrategy = "flood"
)

// ParseReachStrategy validates a strategy name. Empty means ReachDijkstra.
func ParseReachStrategy(s string) (ReachStrategy, error) {
	switch ReachStrategy(s) {
	case "", ReachDijkstra:
		return ReachDijkstra, nil
	case ReachFlood:
		return ReachFlood, nil
	default:
		return "", eris.Errorf("network: unknown reach strategy %q", s)
	}
}

// Reach returns the travel time in seconds to every node reachable from src
// within budget seconds. The graph must be prepared so every edge carries
// a travel time; parallel edges contribute their minimum.
func (g *Graph) Reach(src int64, budget float64, strategy ReachStrategy) (map[int64]float64, error) {
	if !(budget > 0) || math.IsInf(budget, 1) {
		return nil, eris.Errorf("network: reach budget must be positive and finite, got %v", budget)
	}
	switch strategy {
	case ReachFlood:
		return g.flood(src, budget)
	case ReachDijkstra, "":
		return g.ShortestPathLengths(src, ByTravelTime, budget)
	default:
		return nil, eris.Errorf("network: unknown reach strategy %q", strategy)
	}
}

type frontierItem struct {
	node int64
	time float64
}

func (g *Graph) flood(src int64, budget float64) (map[int64]float64, error) {
	if _, ok := g.index[src]; !ok {
		return nil, eris.Wrapf(ErrGraphConstruction, "network: unknown source node %d", src)
	}

	reached := make(map[int64]float64)
	queue := []frontierItem{{node: src}}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		if _, visited := reached[cur.node]; visited {
			continue
		}
		reached[cur.node] = cur.time

		for _, a := range g.Arcs(cur.node, ByTravelTime) {
			if _, visited := reached[a.To]; visited {
				continue
			}
			if t := cur.time + a.Weight; t <= budget {
				queue = append(queue, frontierItem{node: a.To, time: t})
			}
		}
	}
	return reached, nil
}

// ReachedNode is one entry of a reach result with its coordinates.
type ReachedNode struct {
	Node
	Seconds float64
}

// Reached expands a reach map into nodes ordered by time, then id.
func (g *Graph) Reached(times map[int64]float64) []ReachedNode {
	out := make([]ReachedNode, 0, len(times))
	for _, id := range sortedIDs(times) {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		out = append(out, ReachedNode{Node: n, Seconds: times[id]})
	}
	// stable so equal times keep ascending id order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seconds < out[j].Seconds })
	return out
}
