// Package morphology provides binary morphology and connectivity
// operations over voxel masks: spherical structuring elements,
// dilation, erosion, closing, and 26-connectivity connected-component
// labeling. These are the building blocks of arbor isolation and
// skeleton dust filtering.
package morphology

import (
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// neighborOffsets holds the 26 unit shifts of the 3D Moore
// neighborhood in ascending (dz, dy, dx) order, zero shift excluded.
// Populated once at package init.
var neighborOffsets [][3]int

func init() {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dz == 0 && dy == 0 && dx == 0 {
					continue
				}
				neighborOffsets = append(neighborOffsets, [3]int{dz, dy, dx})
			}
		}
	}
}

// Ball returns the voxel offsets of a spherical structuring element of
// the given radius: every (dz, dy, dx) with dz²+dy²+dx² <= radius².
// Radius 0 degenerates to the single center offset.
func Ball(radius int) [][3]int {
	if radius <= 0 {
		return [][3]int{{0, 0, 0}}
	}
	r2 := radius * radius
	var offsets [][3]int
	for dz := -radius; dz <= radius; dz++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dz*dz+dy*dy+dx*dx <= r2 {
					offsets = append(offsets, [3]int{dz, dy, dx})
				}
			}
		}
	}
	return offsets
}

// Dilate returns the binary dilation of the mask by the structuring
// element: a voxel is set in the output if any element offset from a
// set input voxel reaches it. Out-of-bounds space is background.
func Dilate(m *volume.Mask, se [][3]int) *volume.Mask {
	out := volume.NewMask(m.Depth, m.Height, m.Width)
	for idx, on := range m.Data {
		if !on {
			continue
		}
		c := m.CoordAt(idx)
		for _, off := range se {
			n := volume.Coord{c[0] + off[0], c[1] + off[1], c[2] + off[2]}
			if out.InBounds(n) {
				out.Data[out.Index(n)] = true
			}
		}
	}
	return out
}

// Erode returns the binary erosion of the mask by the structuring
// element: a voxel survives only if every element offset from it lands
// on a set voxel. Out-of-bounds space is background, so foreground
// touching the volume border erodes from that side.
func Erode(m *volume.Mask, se [][3]int) *volume.Mask {
	out := volume.NewMask(m.Depth, m.Height, m.Width)
	for idx, on := range m.Data {
		if !on {
			continue
		}
		c := m.CoordAt(idx)
		keep := true
		for _, off := range se {
			n := volume.Coord{c[0] + off[0], c[1] + off[1], c[2] + off[2]}
			if !m.InBounds(n) || !m.Data[m.Index(n)] {
				keep = false
				break
			}
		}
		if keep {
			out.Data[idx] = true
		}
	}
	return out
}

// Close applies morphological closing (dilate then erode) with a
// spherical structuring element of the given radius. Radius <= 0
// returns an unmodified copy. Closing bridges gaps up to roughly twice
// the radius without adding net new isolated material.
func Close(m *volume.Mask, radius int) *volume.Mask {
	if radius <= 0 {
		return m.Clone()
	}
	se := Ball(radius)
	return Erode(Dilate(m, se), se)
}
