package volume

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// coordPoint pairs a voxel coordinate with its float position so it can
// live in a k-d tree. Queries may use fractional positions (e.g. an
// un-rounded centroid), stored points are always whole voxels.
type coordPoint struct {
	pos   [3]float64
	coord Coord
}

// Compare returns the signed distance of p from the plane through q
// along the given dimension. Implements kdtree.Comparable.
func (p coordPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(coordPoint)
	return p.pos[d] - q.pos[d]
}

// Dims returns the number of dimensions described by the point.
func (p coordPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points.
func (p coordPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(coordPoint)
	dz := p.pos[0] - q.pos[0]
	dy := p.pos[1] - q.pos[1]
	dx := p.pos[2] - q.pos[2]
	return dz*dz + dy*dy + dx*dx
}

// coordPoints implements kdtree.Interface over a set of coordPoints.
type coordPoints []coordPoint

func (p coordPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p coordPoints) Len() int                      { return len(p) }
func (p coordPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot partitions the set around a median along the given dimension.
// MedianOfMedians keeps tree construction deterministic so that
// equidistant candidates resolve identically across runs.
func (p coordPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(coordPlane{coordPoints: p, Dim: d}, kdtree.MedianOfMedians(coordPlane{coordPoints: p, Dim: d}))
}

// coordPlane implements sort.Interface and kdtree.SortSlicer for
// coordPoints along a single dimension.
type coordPlane struct {
	coordPoints
	kdtree.Dim
}

func (p coordPlane) Less(i, j int) bool {
	return p.coordPoints[i].pos[p.Dim] < p.coordPoints[j].pos[p.Dim]
}

func (p coordPlane) Slice(start, end int) kdtree.SortSlicer {
	return coordPlane{coordPoints: p.coordPoints[start:end], Dim: p.Dim}
}

func (p coordPlane) Swap(i, j int) {
	p.coordPoints[i], p.coordPoints[j] = p.coordPoints[j], p.coordPoints[i]
}

// CoordSet is a spatial index over a fixed set of voxel coordinates,
// supporting nearest-neighbor queries by Euclidean distance. It backs
// the lost-seed fallback during isolation and root snapping during
// skeletonization.
type CoordSet struct {
	tree *kdtree.Tree
	n    int
}

// NewCoordSet builds the index over the given coordinates. The input
// slice is not retained.
func NewCoordSet(coords []Coord) *CoordSet {
	pts := make(coordPoints, len(coords))
	for i, c := range coords {
		pts[i] = coordPoint{
			pos:   [3]float64{float64(c[0]), float64(c[1]), float64(c[2])},
			coord: c,
		}
	}
	return &CoordSet{tree: kdtree.New(pts, false), n: len(pts)}
}

// Len returns the number of indexed coordinates.
func (s *CoordSet) Len() int { return s.n }

// Nearest returns the indexed coordinate closest to the given (Z, Y, X)
// position and its Euclidean distance. The set must be non-empty.
func (s *CoordSet) Nearest(pos [3]float64) (Coord, float64) {
	got, dist := s.tree.Nearest(coordPoint{pos: pos})
	return got.(coordPoint).coord, math.Sqrt(dist)
}

// NearestCoord is a convenience wrapper for whole-voxel queries.
func (s *CoordSet) NearestCoord(c Coord) (Coord, float64) {
	return s.Nearest([3]float64{float64(c[0]), float64(c[1]), float64(c[2])})
}
