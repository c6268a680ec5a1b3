// Package grouping partitions recognized faces into identity groups.
//
// Faces are nodes of a graph; two faces are connected when the distance between
// their descriptors is at most the configured threshold. Every connected
// component becomes one Group, so membership is transitive: A and C share a
// group when both are close to B even if A and C are far apart. This chaining
// assumes the distance function behaves roughly like a metric.
//
// Comparison is exhaustive and pairwise, O(n²) in the number of faces. That is
// fine for batches of tens to a few hundred images and is the scaling limit of
// this package.
package grouping

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidThreshold is returned for negative or NaN thresholds.
var ErrInvalidThreshold = errors.New("threshold must be a non-negative number")

// Face is one recognized face: the image reference it came from and the
// descriptor of the face chosen for that image.
type Face struct {
	Ref        string
	Descriptor []float32
}

// Group is a set of image references believed to show the same person.
// Refs are listed in input order.
type Group struct {
	Refs []string
}

// Engine groups faces by descriptor distance.
type Engine struct {
	threshold float64
	distance  DistanceFunc
}

// New creates an engine. A nil distance selects EuclideanDistance.
func New(threshold float64, distance DistanceFunc) (*Engine, error) {
	if math.IsNaN(threshold) || threshold < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if distance == nil {
		distance = EuclideanDistance
	}
	return &Engine{threshold: threshold, distance: distance}, nil
}

// Threshold returns the inclusive distance threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Similar reports whether two descriptors are within the threshold.
// The comparison is inclusive; NaN distances are never similar.
func (e *Engine) Similar(a, b []float32) bool {
	return e.distance(a, b) <= e.threshold
}

// Group partitions faces into connected components.
//
// Groups are ordered by the position of their first member in faces, and every
// input face lands in exactly one group. Duplicate references are independent
// nodes. The result is never nil.
func (e *Engine) Group(faces []Face) []Group {
	n := len(faces)
	uf := newUnionFind(n)

	for i := range n {
		for j := i + 1; j < n; j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if e.Similar(faces[i].Descriptor, faces[j].Descriptor) {
				uf.union(i, j)
			}
		}
	}

	groups := make([]Group, 0)
	slot := make([]int, n)
	for i := range slot {
		slot[i] = -1
	}
	for i := range n {
		root := uf.find(i)
		if slot[root] < 0 {
			slot[root] = len(groups)
			groups = append(groups, Group{})
		}
		g := &groups[slot[root]]
		g.Refs = append(g.Refs, faces[i].Ref)
	}
	return groups
}

// unionFind is a disjoint-set forest over face indices.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}
