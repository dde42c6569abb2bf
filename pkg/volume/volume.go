package volume

import (
	"fmt"
	"strconv"
	"strings"
)

// Label values stored in a segmentation volume. Any other value is
// rejected at the I/O boundary.
const (
	// Background marks voxels outside every cell.
	Background uint8 = 0

	// Dendrite marks neuron process voxels.
	Dendrite uint8 = 1

	// Soma marks neuron cell body voxels.
	Soma uint8 = 2
)

// Coord is a voxel coordinate in (Z, Y, X) axis order. All core
// computations use this order; conversion from any caller-side (X, Y, Z)
// convention happens before a coordinate enters this package.
type Coord [3]int

// Z returns the coordinate along the slice axis.
func (c Coord) Z() int { return c[0] }

// Y returns the coordinate along the row axis.
func (c Coord) Y() int { return c[1] }

// X returns the coordinate along the column axis.
func (c Coord) X() int { return c[2] }

// String formats the coordinate as "(z, y, x)" for log and error messages.
func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c[0], c[1], c[2])
}

// ParseCoord parses a comma-separated "z,y,x" triple as written on the
// command line into a Coord.
func ParseCoord(s string) (Coord, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Coord{}, fmt.Errorf("expected 3 comma-separated values, got %q", s)
	}
	var c Coord
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Coord{}, fmt.Errorf("invalid coordinate component %q: %v", part, err)
		}
		c[i] = v
	}
	return c, nil
}

// Anisotropy is the physical unit size per voxel along (Z, Y, X).
// Default is isotropic (1, 1, 1); every component must be positive for
// physical output to be meaningful.
type Anisotropy [3]float64

// DefaultAnisotropy returns the isotropic unit scaling.
func DefaultAnisotropy() Anisotropy {
	return Anisotropy{1, 1, 1}
}

// Valid reports whether every axis scale is strictly positive.
func (a Anisotropy) Valid() bool {
	return a[0] > 0 && a[1] > 0 && a[2] > 0
}

// ParseAnisotropy parses a comma-separated "z,y,x" triple of floats.
func ParseAnisotropy(s string) (Anisotropy, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Anisotropy{}, fmt.Errorf("expected 3 comma-separated values, got %q", s)
	}
	var a Anisotropy
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Anisotropy{}, fmt.Errorf("invalid anisotropy component %q: %v", part, err)
		}
		a[i] = v
	}
	if !a.Valid() {
		return Anisotropy{}, fmt.Errorf("anisotropy components must be positive, got %v", a)
	}
	return a, nil
}

// Volume is a 3D label volume over neuron segmentation data.
type Volume struct {
	// Data is the label data as a 1D array in row-major (Z, Y, X) order,
	// indexed as z*Height*Width + y*Width + x.
	Data []uint8

	// Depth is the extent of the volume along Z in voxels.
	Depth int

	// Height is the extent of the volume along Y in voxels.
	Height int

	// Width is the extent of the volume along X in voxels.
	Width int
}

// New creates a zeroed label volume with the given (Z, Y, X) extents.
func New(depth, height, width int) *Volume {
	return &Volume{
		Data:   make([]uint8, depth*height*width),
		Depth:  depth,
		Height: height,
		Width:  width,
	}
}

// Shape returns the volume extents in (Z, Y, X) order.
func (v *Volume) Shape() [3]int {
	return [3]int{v.Depth, v.Height, v.Width}
}

// NumVoxels returns the total number of voxels in the volume.
func (v *Volume) NumVoxels() int {
	return v.Depth * v.Height * v.Width
}

// Index converts a voxel coordinate to its flat Data offset. The
// coordinate must be in bounds.
func (v *Volume) Index(c Coord) int {
	return c[0]*v.Height*v.Width + c[1]*v.Width + c[2]
}

// CoordAt converts a flat Data offset back to its (Z, Y, X) coordinate.
func (v *Volume) CoordAt(idx int) Coord {
	plane := v.Height * v.Width
	z := idx / plane
	rem := idx % plane
	return Coord{z, rem / v.Width, rem % v.Width}
}

// InBounds reports whether the coordinate lies inside the volume on
// every axis.
func (v *Volume) InBounds(c Coord) bool {
	shape := v.Shape()
	for i := 0; i < 3; i++ {
		if c[i] < 0 || c[i] >= shape[i] {
			return false
		}
	}
	return true
}

// At returns the label at the given coordinate.
func (v *Volume) At(c Coord) uint8 {
	return v.Data[v.Index(c)]
}

// Set stores a label at the given coordinate.
func (v *Volume) Set(c Coord, label uint8) {
	v.Data[v.Index(c)] = label
}

// Clone returns a deep copy of the volume. Stage boundaries produce new
// volumes rather than mutating inputs in place.
func (v *Volume) Clone() *Volume {
	out := New(v.Depth, v.Height, v.Width)
	copy(out.Data, v.Data)
	return out
}

// SameShape reports whether two volumes have identical extents.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Depth == o.Depth && v.Height == o.Height && v.Width == o.Width
}

// CountLabel returns the number of voxels carrying the given label.
func (v *Volume) CountLabel(label uint8) int {
	n := 0
	for _, val := range v.Data {
		if val == label {
			n++
		}
	}
	return n
}

// LabelCoords collects the coordinates of every voxel carrying the given
// label, in ascending flat-index (lexicographic Z, Y, X) order.
func (v *Volume) LabelCoords(label uint8) []Coord {
	var coords []Coord
	for idx, val := range v.Data {
		if val == label {
			coords = append(coords, v.CoordAt(idx))
		}
	}
	return coords
}

// Foreground builds a binary mask of all voxels with label > 0.
func (v *Volume) Foreground() *Mask {
	m := NewMask(v.Depth, v.Height, v.Width)
	for idx, val := range v.Data {
		if val != Background {
			m.Data[idx] = true
		}
	}
	return m
}

// Mask is a binary voxel grid sharing the Volume's shape and flat
// indexing. Used for candidate masks during isolation and for thinned
// skeletons.
type Mask struct {
	// Data holds one boolean per voxel in row-major (Z, Y, X) order.
	Data []bool

	// Depth, Height, Width are the (Z, Y, X) extents in voxels.
	Depth, Height, Width int
}

// NewMask creates an all-background mask with the given extents.
func NewMask(depth, height, width int) *Mask {
	return &Mask{
		Data:   make([]bool, depth*height*width),
		Depth:  depth,
		Height: height,
		Width:  width,
	}
}

// Index converts a voxel coordinate to its flat Data offset.
func (m *Mask) Index(c Coord) int {
	return c[0]*m.Height*m.Width + c[1]*m.Width + c[2]
}

// CoordAt converts a flat Data offset back to its (Z, Y, X) coordinate.
func (m *Mask) CoordAt(idx int) Coord {
	plane := m.Height * m.Width
	z := idx / plane
	rem := idx % plane
	return Coord{z, rem / m.Width, rem % m.Width}
}

// InBounds reports whether the coordinate lies inside the mask.
func (m *Mask) InBounds(c Coord) bool {
	return c[0] >= 0 && c[0] < m.Depth &&
		c[1] >= 0 && c[1] < m.Height &&
		c[2] >= 0 && c[2] < m.Width
}

// At returns the mask value at the given coordinate.
func (m *Mask) At(c Coord) bool {
	return m.Data[m.Index(c)]
}

// Set stores a mask value at the given coordinate.
func (m *Mask) Set(c Coord, on bool) {
	m.Data[m.Index(c)] = on
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	out := NewMask(m.Depth, m.Height, m.Width)
	copy(out.Data, m.Data)
	return out
}

// Count returns the number of set voxels.
func (m *Mask) Count() int {
	n := 0
	for _, on := range m.Data {
		if on {
			n++
		}
	}
	return n
}

// TrueCoords collects the coordinates of every set voxel in ascending
// flat-index order.
func (m *Mask) TrueCoords() []Coord {
	var coords []Coord
	for idx, on := range m.Data {
		if on {
			coords = append(coords, m.CoordAt(idx))
		}
	}
	return coords
}
