package morphology

import (
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// ComponentID identifies one connected component within a single
// labeling pass. Ids are assigned in scan order and carry no meaning
// beyond equality against other ids from the same Components value;
// they must not be persisted or compared across calls.
type ComponentID int32

// BackgroundID marks background voxels in a component grid.
const BackgroundID ComponentID = 0

// Components is the result of one connected-component labeling pass
// over a mask.
type Components struct {
	// Grid assigns each voxel its component id, BackgroundID for
	// background, in the mask's flat (Z, Y, X) indexing.
	Grid []ComponentID

	// Sizes holds the voxel count per component, indexed by id.
	// Index 0 belongs to the background and stays zero.
	Sizes []int

	// Depth, Height, Width mirror the labeled mask's extents.
	Depth, Height, Width int
}

// Count returns the number of components found (background excluded).
func (c *Components) Count() int {
	return len(c.Sizes) - 1
}

// At returns the component id at the given coordinate.
func (c *Components) At(coord volume.Coord) ComponentID {
	return c.Grid[coord[0]*c.Height*c.Width+coord[1]*c.Width+coord[2]]
}

// Size returns the voxel count of the given component.
func (c *Components) Size(id ComponentID) int {
	return c.Sizes[id]
}

// LabelComponents labels the 26-connected components of the mask using
// breadth-first flood fill. Two set voxels belong to the same component
// when a chain of set voxels connects them, each consecutive pair
// differing by at most 1 along every axis.
func LabelComponents(m *volume.Mask) *Components {
	comps := &Components{
		Grid:   make([]ComponentID, len(m.Data)),
		Sizes:  []int{0},
		Depth:  m.Depth,
		Height: m.Height,
		Width:  m.Width,
	}

	next := ComponentID(1)
	queue := make([]int, 0, 64)
	for start, on := range m.Data {
		if !on || comps.Grid[start] != BackgroundID {
			continue
		}

		// Flood-fill one component from its first-encountered voxel.
		size := 0
		queue = append(queue[:0], start)
		comps.Grid[start] = next
		for qi := 0; qi < len(queue); qi++ {
			idx := queue[qi]
			size++
			c := m.CoordAt(idx)
			for _, off := range neighborOffsets {
				n := volume.Coord{c[0] + off[0], c[1] + off[1], c[2] + off[2]}
				if !m.InBounds(n) {
					continue
				}
				nIdx := m.Index(n)
				if !m.Data[nIdx] || comps.Grid[nIdx] != BackgroundID {
					continue
				}
				comps.Grid[nIdx] = next
				queue = append(queue, nIdx)
			}
		}

		comps.Sizes = append(comps.Sizes, size)
		next++
	}

	return comps
}
