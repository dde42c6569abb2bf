package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/serg-bg/arbortrace/pkg/volume"
)

// Label colors used in preview images: background stays black,
// dendrite renders green and soma magenta so the cell body stands out
// against its processes.
var (
	dendriteColor = color.RGBA{R: 40, G: 200, B: 80, A: 255}
	somaColor     = color.RGBA{R: 230, G: 60, B: 200, A: 255}
)

// labelColor maps a label value to its preview color.
func labelColor(label uint8) color.RGBA {
	switch label {
	case volume.Dendrite:
		return dendriteColor
	case volume.Soma:
		return somaColor
	default:
		return color.RGBA{A: 255}
	}
}

// Viewer renders preview images of a label volume: orthogonal slices,
// slice sequences, and per-axis maximum-label projections.
type Viewer struct {
	// vol is the label volume being rendered
	vol *volume.Volume
}

// NewViewer creates a viewer over the given label volume.
func NewViewer(vol *volume.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// ExtractSlice renders a 2D slice of the volume along the specified
// axis at the given position.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.RGBA

	switch axis {
	case "x", "X":
		// Slice along the YZ plane
		if position >= v.vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.vol.Width)
		}

		img = image.NewRGBA(image.Rect(0, 0, v.vol.Depth, v.vol.Height))
		for y := 0; y < v.vol.Height; y++ {
			for z := 0; z < v.vol.Depth; z++ {
				img.SetRGBA(z, y, labelColor(v.vol.At(volume.Coord{z, y, position})))
			}
		}

	case "y", "Y":
		// Slice along the XZ plane
		if position >= v.vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.vol.Height)
		}

		img = image.NewRGBA(image.Rect(0, 0, v.vol.Width, v.vol.Depth))
		for z := 0; z < v.vol.Depth; z++ {
			for x := 0; x < v.vol.Width; x++ {
				img.SetRGBA(x, z, labelColor(v.vol.At(volume.Coord{z, position, x})))
			}
		}

	case "z", "Z":
		// Slice along the XY plane
		if position >= v.vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.vol.Depth)
		}

		img = image.NewRGBA(image.Rect(0, 0, v.vol.Width, v.vol.Height))
		for y := 0; y < v.vol.Height; y++ {
			for x := 0; x < v.vol.Width; x++ {
				img.SetRGBA(x, y, labelColor(v.vol.At(volume.Coord{position, y, x})))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// MaxProjection renders the maximum-label projection of the volume
// along the specified axis. Labels are ordered background < dendrite <
// soma, so soma voxels win wherever a ray passes through both.
func (v *Viewer) MaxProjection(axis string) (image.Image, error) {
	var img *image.RGBA

	switch axis {
	case "x", "X":
		img = image.NewRGBA(image.Rect(0, 0, v.vol.Depth, v.vol.Height))
		for y := 0; y < v.vol.Height; y++ {
			for z := 0; z < v.vol.Depth; z++ {
				var best uint8
				for x := 0; x < v.vol.Width; x++ {
					if l := v.vol.At(volume.Coord{z, y, x}); l > best {
						best = l
					}
				}
				img.SetRGBA(z, y, labelColor(best))
			}
		}

	case "y", "Y":
		img = image.NewRGBA(image.Rect(0, 0, v.vol.Width, v.vol.Depth))
		for z := 0; z < v.vol.Depth; z++ {
			for x := 0; x < v.vol.Width; x++ {
				var best uint8
				for y := 0; y < v.vol.Height; y++ {
					if l := v.vol.At(volume.Coord{z, y, x}); l > best {
						best = l
					}
				}
				img.SetRGBA(x, z, labelColor(best))
			}
		}

	case "z", "Z":
		img = image.NewRGBA(image.Rect(0, 0, v.vol.Width, v.vol.Height))
		for y := 0; y < v.vol.Height; y++ {
			for x := 0; x < v.vol.Width; x++ {
				var best uint8
				for z := 0; z < v.vol.Depth; z++ {
					if l := v.vol.At(volume.Coord{z, y, x}); l > best {
						best = l
					}
				}
				img.SetRGBA(x, y, labelColor(best))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion extracts a 3D subregion of the volume as a new label
// volume. Start coordinates and sizes are in (Z, Y, X) order.
func (v *Viewer) ExtractRegion(start volume.Coord, size [3]int) (*volume.Volume, error) {
	// Validate parameters
	if start[0] < 0 || start[1] < 0 || start[2] < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}

	if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}

	if start[0]+size[0] > v.vol.Depth || start[1]+size[1] > v.vol.Height || start[2]+size[2] > v.vol.Width {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := volume.New(size[0], size[1], size[2])
	for z := 0; z < size[0]; z++ {
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[2]; x++ {
				label := v.vol.At(volume.Coord{start[0] + z, start[1] + y, start[2] + x})
				region.Set(volume.Coord{z, y, x}, label)
			}
		}
	}

	return region, nil
}

// SaveSlice saves a rendered image as a PNG file.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence renders and saves every slice along the specified
// axis into outputDir as slice_<axis>_<position>.png.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Width
	case "y", "Y":
		maxPos = v.vol.Height
	case "z", "Z":
		maxPos = v.vol.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
