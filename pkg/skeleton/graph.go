package skeleton

import (
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// neighborShifts holds the 26 unit shifts of the Moore neighborhood in
// ascending (dz, dy, dx) order, zero shift excluded. Populated once at
// package init.
var neighborShifts [][3]int

func init() {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dz == 0 && dy == 0 && dx == 0 {
					continue
				}
				neighborShifts = append(neighborShifts, [3]int{dz, dy, dx})
			}
		}
	}
}

// Graph is the undirected adjacency structure over skeleton voxels.
// Node ids are dense integers assigned in ascending flat-index
// (lexicographic Z, Y, X) scan order, and each adjacency list is built
// by visiting shifts in ascending order, so neighbor ids come out
// sorted. That canonical ordering is what makes traversal — and
// therefore serialized output — reproducible across runs.
type Graph struct {
	coords []volume.Coord
	adj    [][]int32
	index  map[volume.Coord]int32
}

// BuildGraph creates one node per set voxel of the skeleton mask and
// an undirected edge between every pair of set voxels within each
// other's 26-neighborhood. Neighbor enumeration is bounds-checked
// shifts of -1/0/+1 per axis, excluding the zero shift.
func BuildGraph(m *volume.Mask) *Graph {
	g := &Graph{index: make(map[volume.Coord]int32)}

	for idx, on := range m.Data {
		if !on {
			continue
		}
		c := m.CoordAt(idx)
		g.index[c] = int32(len(g.coords))
		g.coords = append(g.coords, c)
	}

	g.adj = make([][]int32, len(g.coords))
	for id, c := range g.coords {
		for _, shift := range neighborShifts {
			n := volume.Coord{c[0] + shift[0], c[1] + shift[1], c[2] + shift[2]}
			if !m.InBounds(n) {
				continue
			}
			if nid, ok := g.index[n]; ok {
				g.adj[id] = append(g.adj[id], nid)
			}
		}
	}

	return g
}

// NumNodes returns the number of skeleton voxels in the graph.
func (g *Graph) NumNodes() int {
	return len(g.coords)
}

// Coord returns the voxel coordinate of a node.
func (g *Graph) Coord(id int32) volume.Coord {
	return g.coords[id]
}

// Coords returns the coordinates of all nodes in id order. The slice
// is shared with the graph and must not be modified.
func (g *Graph) Coords() []volume.Coord {
	return g.coords
}

// Degree returns the number of skeleton voxels adjacent to a node.
func (g *Graph) Degree(id int32) int {
	return len(g.adj[id])
}

// NodeAt looks up the node occupying the given voxel coordinate.
func (g *Graph) NodeAt(c volume.Coord) (int32, bool) {
	id, ok := g.index[c]
	return id, ok
}

// Node is one emitted skeleton point: its voxel coordinate and the
// index of its parent in emission order, -1 for the root.
type Node struct {
	Coord  volume.Coord
	Parent int32
}

// Tree is a rooted spanning structure over one connected component of
// the skeleton graph, nodes in breadth-first emission order with the
// root first. Every non-root node's parent precedes it in the slice.
type Tree struct {
	Nodes []Node
}

// SpanningTree traverses the graph breadth-first from root, assigning
// each newly discovered node its discovery predecessor as parent.
// Neighbor lists are walked in ascending id order, so ties among
// same-depth nodes resolve identically on every run. Nodes not
// reachable from the root are excluded.
func (g *Graph) SpanningTree(root int32) *Tree {
	emitted := make([]int32, len(g.coords))
	for i := range emitted {
		emitted[i] = -1
	}

	tree := &Tree{Nodes: make([]Node, 0, len(g.coords))}
	queue := make([]int32, 0, len(g.coords))

	emitted[root] = 0
	tree.Nodes = append(tree.Nodes, Node{Coord: g.coords[root], Parent: -1})
	queue = append(queue, root)

	for qi := 0; qi < len(queue); qi++ {
		u := queue[qi]
		for _, v := range g.adj[u] {
			if emitted[v] != -1 {
				continue
			}
			emitted[v] = int32(len(tree.Nodes))
			tree.Nodes = append(tree.Nodes, Node{Coord: g.coords[v], Parent: emitted[u]})
			queue = append(queue, v)
		}
	}

	return tree
}
