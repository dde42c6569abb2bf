// Package isolation extracts a single connected arbor (soma plus
// dendrites) from a multi-cell segmentation volume given one seed
// voxel. Connectivity is decided over a candidate mask that may be
// morphologically closed to bridge small segmentation gaps; the
// returned volume carries only original labels.
package isolation

import (
	"github.com/rs/zerolog/log"

	"github.com/serg-bg/arbortrace/pkg/morphology"
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// Isolate returns a new volume of identical shape containing exactly
// the labels of the connected structure touching the seed; every other
// voxel is background.
//
// The steps are:
//  1. Build a candidate mask of all tissue voxels (label 1 or 2).
//  2. If closeRadius > 0, close the mask with a spherical structuring
//     element of that radius. This is the only gap-bridging performed.
//  3. Label 26-connected components of the candidate mask.
//  4. Select the component at the seed. A seed on real tissue that
//     fell outside the processed mask snaps to the nearest foreground
//     voxel's component; a seed on background is rejected.
//  5. Copy the original label of every voxel in the selected component
//     into the output. Voxels added by closing exist only for
//     connectivity inference and are never emitted.
//  6. If the seed was soma but lost that label, re-assert soma at the
//     seed voxel.
//
// Isolate is a pure function of its inputs; the warnings it may log
// are advisory and never change the result.
func Isolate(vol *volume.Volume, seed volume.Coord, closeRadius int) (*volume.Volume, error) {
	if !vol.InBounds(seed) {
		return nil, &OutOfBoundsError{Seed: seed, Shape: vol.Shape()}
	}

	origLabel := vol.At(seed)

	candidate := vol.Foreground()
	if closeRadius > 0 {
		candidate = morphology.Close(candidate, closeRadius)
	}

	comps := morphology.LabelComponents(candidate)

	target := comps.At(seed)
	if target == morphology.BackgroundID {
		if origLabel == volume.Background {
			return nil, &InvalidSeedError{Seed: seed, Label: origLabel}
		}

		// The seed marked real tissue but sits outside the processed
		// candidate mask, e.g. a lone voxel removed by erosion. Snap to
		// the component of the nearest remaining foreground voxel.
		fg := candidate.TrueCoords()
		if len(fg) == 0 {
			return nil, &NoComponentFoundError{Seed: seed}
		}
		nearest, dist := volume.NewCoordSet(fg).NearestCoord(seed)
		target = comps.At(nearest)
		log.Warn().
			Stringer("seed", seed).
			Stringer("snapped_to", nearest).
			Float64("distance", dist).
			Msg("seed not inside any component, using nearest foreground voxel")
	}

	out := volume.New(vol.Depth, vol.Height, vol.Width)
	for idx, id := range comps.Grid {
		if id != target {
			continue
		}
		if l := vol.Data[idx]; l == volume.Dendrite || l == volume.Soma {
			out.Data[idx] = l
		}
	}

	// The seed voxel must come back labeled exactly as clicked.
	if origLabel == volume.Soma && out.At(seed) != volume.Soma {
		out.Set(seed, volume.Soma)
		log.Warn().
			Stringer("seed", seed).
			Msg("re-asserting soma label at seed voxel")
	}

	return out, nil
}
