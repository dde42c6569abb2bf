// Package skeleton reduces an isolated arbor volume to a rooted
// centerline tree and serializes it as SWC. The stages are thinning of
// the foreground mask, dust filtering of small fragments, adjacency
// graph construction over the surviving voxels, root selection near
// the soma centroid, and a breadth-first spanning tree whose emission
// order fixes the output.
package skeleton

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/serg-bg/arbortrace/pkg/morphology"
	"github.com/serg-bg/arbortrace/pkg/swc"
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// DefaultDustThreshold is the minimum voxel count a skeleton fragment
// needs to survive dust filtering when the caller does not override it.
const DefaultDustThreshold = 100

// Placeholder comments written to zero-record SWC files.
const (
	// PlaceholderNoSegments marks a volume with no labeled voxels at
	// all: nothing was available to skeletonize.
	PlaceholderNoSegments = "No segments found to skeletonize"

	// PlaceholderEmptySkeleton marks a skeleton fully removed by dust
	// filtering.
	PlaceholderEmptySkeleton = "Empty skeleton"
)

// Options configures one skeletonization run.
type Options struct {
	// Anisotropy is the physical unit size per voxel along (Z, Y, X),
	// applied when converting voxel coordinates to SWC positions.
	Anisotropy volume.Anisotropy

	// DustThreshold is the minimum voxel count for a thinned skeleton
	// fragment to be kept; fragments below it are removed before graph
	// construction. Zero disables filtering.
	DustThreshold int
}

// DefaultOptions returns isotropic scaling with the default dust
// threshold.
func DefaultOptions() Options {
	return Options{
		Anisotropy:    volume.DefaultAnisotropy(),
		DustThreshold: DefaultDustThreshold,
	}
}

// Result summarizes one skeletonization run. Tree is nil when the run
// produced no skeleton, in which case Placeholder carries the comment
// for the zero-record output file.
type Result struct {
	// Tree holds the rooted centerline in emission order, nil when no
	// skeleton was produced.
	Tree *Tree

	// Placeholder is the comment for a zero-record file when Tree is
	// nil, empty otherwise.
	Placeholder string

	// ThinnedVoxels counts skeleton voxels after thinning, before dust
	// filtering.
	ThinnedVoxels int

	// DustRemoved counts voxels discarded by dust filtering.
	DustRemoved int
}

// Build runs thinning, dust filtering, graph construction and rooted
// tree extraction without touching the file system. An input with no
// labeled voxels, or one whose skeleton is fully removed by dust
// filtering, yields a nil tree and a placeholder comment: both are
// valid outcomes, not errors.
func Build(vol *volume.Volume, dustThreshold int) *Result {
	res := &Result{}

	hint, ok := rootHint(vol)
	if !ok {
		res.Placeholder = PlaceholderNoSegments
		return res
	}

	mask := Thin(vol.Foreground())
	res.ThinnedVoxels = mask.Count()
	res.DustRemoved = dustFilter(mask, dustThreshold)
	if res.ThinnedVoxels-res.DustRemoved == 0 {
		res.Placeholder = PlaceholderEmptySkeleton
		return res
	}

	g := BuildGraph(mask)
	res.Tree = g.SpanningTree(selectRoot(g, hint))
	return res
}

// WriteSWC skeletonizes the volume and writes the result to path.
// Logical-empty input writes a placeholder file and returns nil; only
// I/O failures surface as errors. The file appears atomically once the
// computation has succeeded.
func WriteSWC(vol *volume.Volume, path string, opts Options) error {
	res := Build(vol, opts.DustThreshold)
	if res.Tree == nil {
		log.Info().
			Str("path", path).
			Str("reason", res.Placeholder).
			Msg("writing placeholder skeleton file")
		return swc.WritePlaceholderFile(path, res.Placeholder)
	}
	return swc.WriteFile(path, res.Tree.Records(opts.Anisotropy))
}

// Records converts the tree to SWC records: sequential 1-based ids in
// emission order, type tag 3, voxel coordinates scaled by the per-axis
// anisotropy into physical (X, Y, Z), a placeholder radius of 1.0, and
// the 1-based id of the parent record (-1 for the root). Parents
// always precede children, so the output contains no forward
// references.
func (t *Tree) Records(aniso volume.Anisotropy) []swc.Record {
	records := make([]swc.Record, len(t.Nodes))
	for i, n := range t.Nodes {
		parent := -1
		if n.Parent >= 0 {
			parent = int(n.Parent) + 1
		}
		records[i] = swc.Record{
			ID:     i + 1,
			Type:   swc.TypeDendrite,
			X:      float64(n.Coord.X()) * aniso[2],
			Y:      float64(n.Coord.Y()) * aniso[1],
			Z:      float64(n.Coord.Z()) * aniso[0],
			Radius: 1.0,
			Parent: parent,
		}
	}
	return records
}

// rootHint returns the un-rounded centroid of soma voxels, falling
// back to dendrite voxels when the volume has no soma. ok is false
// when neither label is present.
func rootHint(vol *volume.Volume) (hint [3]float64, ok bool) {
	var sum [3]float64
	count := 0
	accumulate := func(label uint8) {
		for idx, val := range vol.Data {
			if val != label {
				continue
			}
			c := vol.CoordAt(idx)
			sum[0] += float64(c[0])
			sum[1] += float64(c[1])
			sum[2] += float64(c[2])
			count++
		}
	}

	accumulate(volume.Soma)
	if count == 0 {
		accumulate(volume.Dendrite)
	}
	if count == 0 {
		return hint, false
	}

	n := float64(count)
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}, true
}

// selectRoot picks the root node for the spanning tree: the rounded
// hint voxel when it lands on a skeleton node, otherwise the node
// closest to the un-rounded hint by Euclidean distance.
func selectRoot(g *Graph, hint [3]float64) int32 {
	rounded := volume.Coord{
		int(math.Round(hint[0])),
		int(math.Round(hint[1])),
		int(math.Round(hint[2])),
	}
	if id, ok := g.NodeAt(rounded); ok {
		return id
	}

	nearest, _ := volume.NewCoordSet(g.Coords()).Nearest(hint)
	id, _ := g.NodeAt(nearest)
	return id
}

// dustFilter removes 26-connected skeleton components smaller than
// threshold voxels and returns the number of voxels removed. The mask
// is modified in place.
func dustFilter(m *volume.Mask, threshold int) int {
	if threshold <= 0 {
		return 0
	}

	comps := morphology.LabelComponents(m)
	removed := 0
	for idx, id := range comps.Grid {
		if id != morphology.BackgroundID && comps.Size(id) < threshold {
			m.Data[idx] = false
			removed++
		}
	}
	return removed
}
