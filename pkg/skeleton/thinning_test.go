package skeleton

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serg-bg/arbortrace/pkg/morphology"
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// TestThinPreservesTinyComponents verifies that components too small to
// peel survive thinning unchanged: a lone voxel and a two-voxel pair
// are all endpoints.
func TestThinPreservesTinyComponents(t *testing.T) {
	m := volume.NewMask(5, 5, 5)
	m.Set(volume.Coord{2, 2, 2}, true)
	m.Set(volume.Coord{4, 0, 0}, true)
	m.Set(volume.Coord{4, 0, 1}, true)

	out := Thin(m)

	require.Equal(t, 3, out.Count())
	require.True(t, out.At(volume.Coord{2, 2, 2}))
	require.True(t, out.At(volume.Coord{4, 0, 0}))
	require.True(t, out.At(volume.Coord{4, 0, 1}))
}

// TestThinPreservesLine verifies that an already unit-width curve is a
// fixed point of thinning: interior voxels are not simple and the tips
// are endpoints.
func TestThinPreservesLine(t *testing.T) {
	m := volume.NewMask(3, 3, 9)
	for x := 0; x < 9; x++ {
		m.Set(volume.Coord{1, 1, x}, true)
	}

	out := Thin(m)

	require.Equal(t, 9, out.Count())
	for x := 0; x < 9; x++ {
		require.True(t, out.At(volume.Coord{1, 1, x}), "line voxel at x=%d should survive", x)
	}
}

// TestThinTubeToCenterline verifies that a solid 3x3 tube collapses to
// its exact one-voxel centerline. The directional peel eats one slab
// from each end, so the centerline is one voxel shorter on both sides.
func TestThinTubeToCenterline(t *testing.T) {
	m := volume.NewMask(7, 3, 3)
	for i := range m.Data {
		m.Data[i] = true
	}

	out := Thin(m)

	require.Equal(t, 5, out.Count())
	for z := 1; z <= 5; z++ {
		require.True(t, out.At(volume.Coord{z, 1, 1}), "centerline voxel at z=%d missing", z)
	}
}

// TestThinDoesNotModifyInput verifies that thinning works on a copy.
func TestThinDoesNotModifyInput(t *testing.T) {
	m := volume.NewMask(7, 3, 3)
	for i := range m.Data {
		m.Data[i] = true
	}

	Thin(m)

	require.Equal(t, 63, m.Count())
}

// TestThinPreservesConnectivity verifies the topological contract on a
// branched arbor: the skeleton is a subset of the input and has the
// same number of connected components.
func TestThinPreservesConnectivity(t *testing.T) {
	v := volume.New(20, 20, 20)
	for z := 8; z < 12; z++ {
		for y := 8; y < 12; y++ {
			for x := 8; x < 12; x++ {
				v.Set(volume.Coord{z, y, x}, volume.Soma)
			}
		}
	}
	for i := 12; i < 18; i++ {
		v.Set(volume.Coord{10, 10, i}, volume.Dendrite)
		v.Set(volume.Coord{10, i, 10}, volume.Dendrite)
		v.Set(volume.Coord{i, 10, 10}, volume.Dendrite)
	}

	mask := v.Foreground()
	require.Equal(t, 1, morphology.LabelComponents(mask).Count())

	out := Thin(mask)

	require.Greater(t, out.Count(), 0)
	require.Equal(t, 1, morphology.LabelComponents(out).Count())
	for i, on := range out.Data {
		if on {
			require.True(t, mask.Data[i], "skeleton voxel %d not in input foreground", i)
		}
	}

	// Arm tips are endpoints from the start and must survive
	require.True(t, out.At(volume.Coord{10, 10, 17}))
	require.True(t, out.At(volume.Coord{10, 17, 10}))
	require.True(t, out.At(volume.Coord{17, 10, 10}))
}

// TestThinIdempotent verifies that a thinned mask is a fixed point of
// thinning.
func TestThinIdempotent(t *testing.T) {
	m := volume.NewMask(7, 3, 3)
	for i := range m.Data {
		m.Data[i] = true
	}

	once := Thin(m)
	twice := Thin(once)

	require.Equal(t, once.Data, twice.Data)
}
