package skeleton

import (
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// The thinner peels border voxels off a binary mask until only a
// unit-width centerline remains. A voxel may be deleted only when it
// is a simple point: removing it changes neither the number of
// foreground components, nor the number of background components, nor
// the holes of the object. Simplicity is decided locally on the 3x3x3
// neighborhood with the standard characterization: exactly one
// 26-connected foreground component among the 26 neighbors, and
// exactly one 6-connected background component in the 18-neighborhood
// touching a face of the center voxel.
//
// Peeling runs in rounds of six directional subiterations (one per
// face direction) so material erodes evenly from all sides and the
// surviving voxels track the medial axis. Within a subiteration,
// candidates are collected first and then deleted one at a time with
// re-validation against the partially updated mask, which keeps
// simultaneous deletions from breaking topology. Candidates are
// visited in ascending flat-index order, making the result
// deterministic for a given input.

// Lattice cell index of offset (dz, dy, dx), each in {-1, 0, 1}.
// Cell 13 is the center.
const centerCell = 13

var (
	// cellOffsets maps a 3x3x3 lattice cell to its (dz, dy, dx) shift.
	cellOffsets [27][3]int

	// adj26 lists, per lattice cell, the cells 26-adjacent to it,
	// center excluded. Used to count foreground components.
	adj26 [27][]int

	// adj6 lists, per lattice cell, the 18-neighborhood cells
	// 6-adjacent to it. Used to count background components.
	adj6 [27][]int

	// isFaceCell marks the six cells sharing a face with the center.
	isFaceCell [27]bool

	// n18Cells holds the 18 cells at Manhattan distance 1 or 2 from
	// the center, in ascending cell order.
	n18Cells []int
)

func init() {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				cellOffsets[cellIndex(dz, dy, dx)] = [3]int{dz, dy, dx}
			}
		}
	}

	manhattan := func(c [3]int) int {
		return abs(c[0]) + abs(c[1]) + abs(c[2])
	}
	for i := 0; i < 27; i++ {
		m := manhattan(cellOffsets[i])
		isFaceCell[i] = m == 1
		if m == 1 || m == 2 {
			n18Cells = append(n18Cells, i)
		}
	}

	for i := 0; i < 27; i++ {
		for j := 0; j < 27; j++ {
			if i == j {
				continue
			}
			dz := cellOffsets[i][0] - cellOffsets[j][0]
			dy := cellOffsets[i][1] - cellOffsets[j][1]
			dx := cellOffsets[i][2] - cellOffsets[j][2]
			cheb := max3(abs(dz), abs(dy), abs(dx))
			if cheb == 1 && j != centerCell {
				adj26[i] = append(adj26[i], j)
			}
			if abs(dz)+abs(dy)+abs(dx) == 1 && inN18(j) {
				adj6[i] = append(adj6[i], j)
			}
		}
	}
}

func cellIndex(dz, dy, dx int) int {
	return (dz+1)*9 + (dy+1)*3 + (dx + 1)
}

func inN18(cell int) bool {
	m := abs(cellOffsets[cell][0]) + abs(cellOffsets[cell][1]) + abs(cellOffsets[cell][2])
	return m == 1 || m == 2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c int) int {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}

// borderDirections are the six peel directions of one thinning round,
// in fixed up/down/north/south/west/east order.
var borderDirections = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

type thinner struct {
	data                 []bool
	depth, height, width int
	candidates           []int
}

// Thin reduces the foreground of the mask to a topology-preserving
// centerline skeleton. The input mask is not modified. Components of a
// single voxel survive unchanged; components of two or more voxels are
// never disconnected.
func Thin(m *volume.Mask) *volume.Mask {
	out := m.Clone()
	t := &thinner{
		data:   out.Data,
		depth:  m.Depth,
		height: m.Height,
		width:  m.Width,
	}
	for t.round() > 0 {
	}
	return out
}

// round runs one full cycle of six directional subiterations and
// returns the number of voxels deleted.
func (t *thinner) round() int {
	deleted := 0
	for _, dir := range borderDirections {
		deleted += t.subiteration(dir)
	}
	return deleted
}

// subiteration peels simple border points facing one direction.
// Candidates are re-validated at deletion time so that each removal
// sees the effects of the ones before it.
func (t *thinner) subiteration(dir [3]int) int {
	t.candidates = t.candidates[:0]
	for idx, on := range t.data {
		if on && t.deletable(idx, dir) {
			t.candidates = append(t.candidates, idx)
		}
	}

	deleted := 0
	for _, idx := range t.candidates {
		if !t.deletable(idx, dir) {
			continue
		}
		t.data[idx] = false
		deleted++
	}
	return deleted
}

// deletable reports whether the voxel at idx is a border point in the
// given direction, is not a curve endpoint, and is simple.
func (t *thinner) deletable(idx int, dir [3]int) bool {
	var nb [27]bool
	t.neighborhood(idx, &nb)

	// Border check: the face neighbor in the peel direction is empty.
	if nb[cellIndex(dir[0], dir[1], dir[2])] {
		return false
	}

	// Endpoints anchor curves; a voxel with at most one neighbor is
	// the tip of a line (or an isolated voxel) and must survive.
	neighbors := 0
	for i := 0; i < 27; i++ {
		if i != centerCell && nb[i] {
			neighbors++
		}
	}
	if neighbors <= 1 {
		return false
	}

	return foregroundComponents(&nb) == 1 && backgroundComponents(&nb) == 1
}

// neighborhood fills nb with the 3x3x3 region around the voxel at idx.
// Space outside the mask reads as background.
func (t *thinner) neighborhood(idx int, nb *[27]bool) {
	plane := t.height * t.width
	z := idx / plane
	rem := idx % plane
	y := rem / t.width
	x := rem % t.width

	cell := 0
	for dz := -1; dz <= 1; dz++ {
		zz := z + dz
		for dy := -1; dy <= 1; dy++ {
			yy := y + dy
			for dx := -1; dx <= 1; dx++ {
				xx := x + dx
				if zz < 0 || zz >= t.depth || yy < 0 || yy >= t.height || xx < 0 || xx >= t.width {
					nb[cell] = false
				} else {
					nb[cell] = t.data[zz*plane+yy*t.width+xx]
				}
				cell++
			}
		}
	}
}

// foregroundComponents counts the 26-connected components of the
// foreground cells in the neighborhood, the center excluded.
func foregroundComponents(nb *[27]bool) int {
	var visited [27]bool
	var stack [27]int

	count := 0
	for i := 0; i < 27; i++ {
		if i == centerCell || !nb[i] || visited[i] {
			continue
		}
		count++
		visited[i] = true
		stack[0] = i
		top := 1
		for top > 0 {
			top--
			cell := stack[top]
			for _, next := range adj26[cell] {
				if nb[next] && !visited[next] {
					visited[next] = true
					stack[top] = next
					top++
				}
			}
		}
	}
	return count
}

// backgroundComponents counts the 6-connected components of background
// cells within the 18-neighborhood that touch a face of the center.
func backgroundComponents(nb *[27]bool) int {
	var visited [27]bool
	var stack [27]int

	count := 0
	for _, i := range n18Cells {
		if nb[i] || visited[i] {
			continue
		}
		touchesFace := isFaceCell[i]
		visited[i] = true
		stack[0] = i
		top := 1
		for top > 0 {
			top--
			cell := stack[top]
			for _, next := range adj6[cell] {
				if !nb[next] && !visited[next] {
					visited[next] = true
					if isFaceCell[next] {
						touchesFace = true
					}
					stack[top] = next
					top++
				}
			}
		}
		if touchesFace {
			count++
		}
	}
	return count
}
