package isolation

import (
	"fmt"

	"github.com/serg-bg/arbortrace/pkg/volume"
)

// OutOfBoundsError reports a seed coordinate outside the volume extent
// on at least one axis. Always fatal to the call.
type OutOfBoundsError struct {
	// Seed is the offending coordinate.
	Seed volume.Coord

	// Shape is the (Z, Y, X) extent of the volume that rejected it.
	Shape [3]int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("seed %v out of bounds for volume of shape (%d, %d, %d)",
		e.Seed, e.Shape[0], e.Shape[1], e.Shape[2])
}

// InvalidSeedError reports a seed placed on a background voxel. The
// isolator never guesses a nearby cell when the click was not on
// tissue.
type InvalidSeedError struct {
	// Seed is the offending coordinate.
	Seed volume.Coord

	// Label is the original label found there.
	Label uint8
}

func (e *InvalidSeedError) Error() string {
	return fmt.Sprintf("seed %v lies on background (label %d), not on dendrite or soma tissue",
		e.Seed, e.Label)
}

// NoComponentFoundError reports that the processed volume contains no
// foreground voxels at all, leaving nothing to isolate.
type NoComponentFoundError struct {
	// Seed is the coordinate the caller asked to isolate from.
	Seed volume.Coord
}

func (e *NoComponentFoundError) Error() string {
	return fmt.Sprintf("no connected components found in volume while isolating from seed %v", e.Seed)
}
