// Package pipeline orchestrates the full arbor extraction run: load a
// label volume from a directory of slice images, isolate the arbor
// around a seed voxel, write the isolated volume and its skeleton, and
// report morphometry metrics.
package pipeline

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/stat"

	_ "image/jpeg"
	_ "image/png"

	"github.com/serg-bg/arbortrace/pkg/isolation"
	"github.com/serg-bg/arbortrace/pkg/skeleton"
	"github.com/serg-bg/arbortrace/pkg/visualization"
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// Metrics holds the summary numbers of one extraction run: how much of
// the input tissue the isolated arbor kept and the shape statistics of
// its skeleton.
type Metrics struct {
	// TotalForeground is the number of labeled voxels in the input
	// volume before isolation.
	TotalForeground int

	// SomaVoxels and DendriteVoxels count the labels retained in the
	// isolated volume.
	SomaVoxels     int
	DendriteVoxels int

	// KeptFraction is the share of input foreground that belongs to
	// the isolated arbor.
	KeptFraction float64

	// ThinnedVoxels counts skeleton voxels after thinning, before dust
	// filtering; DustRemoved counts voxels the dust filter discarded.
	ThinnedVoxels int
	DustRemoved   int

	// SkeletonNodes is the number of points in the emitted tree.
	// BranchPoints have two or more children, EndPoints have none.
	SkeletonNodes int
	BranchPoints  int
	EndPoints     int

	// CableLength is the summed physical length of all parent-child
	// steps in the tree; MeanStepLength and MaxStepLength describe the
	// individual steps.
	CableLength    float64
	MeanStepLength float64
	MaxStepLength  float64
}

// Params holds the extraction parameters.
type Params struct {
	// InputDir is the directory containing the label volume as a
	// sequence of grayscale slice images (PNG, TIFF or JPEG), one per
	// Z position, ordered by the number embedded in each filename.
	InputDir string

	// OutputDir is where result files are written. Empty derives an
	// isolated_outputs directory next to the input directory.
	OutputDir string

	// Seed is the voxel the arbor is isolated around, in (Z, Y, X).
	Seed volume.Coord

	// CloseRadius is the structuring element radius in voxels used to
	// bridge small segmentation gaps. Zero disables closing.
	CloseRadius int

	// Anisotropy is the physical unit size per voxel along (Z, Y, X),
	// applied to SWC coordinates and cable statistics.
	Anisotropy volume.Anisotropy

	// DustThreshold is the minimum voxel count for a skeleton fragment
	// to survive dust filtering.
	DustThreshold int

	// SaveVolume writes the isolated volume as a TIFF slice sequence.
	SaveVolume bool

	// SavePreviews writes PNG maximum-projection previews of the
	// isolated arbor along each axis.
	SavePreviews bool
}

// ProgressCallback receives the name of the stage about to run and the
// overall completed fraction in [0, 1].
type ProgressCallback func(stage string, fraction float64)

// Extraction runs the arbor extraction pipeline for one seed.
type Extraction struct {
	// params stores the extraction configuration
	params *Params

	// vol is the loaded input label volume
	vol *volume.Volume

	// isolated is the single-arbor volume produced by isolation
	isolated *volume.Volume

	// result is the skeletonization outcome for the isolated volume
	result *skeleton.Result

	// metrics stores the summary numbers after a successful run
	metrics Metrics

	// progress, when set, is notified at each stage boundary
	progress ProgressCallback
}

// New creates an extraction run with the provided parameters.
//
// Parameters:
//   - params: configuration for the run; the seed is interpreted in
//     (Z, Y, X) voxel coordinates of the loaded volume
//
// Returns:
//   - An Extraction ready for Process
func New(params *Params) *Extraction {
	return &Extraction{params: params}
}

// SetProgressCallback registers a callback invoked at stage
// boundaries during Process.
func (e *Extraction) SetProgressCallback(cb ProgressCallback) {
	e.progress = cb
}

func (e *Extraction) reportProgress(stage string, fraction float64) {
	if e.progress != nil {
		e.progress(stage, fraction)
	}
}

// Metrics returns the summary numbers of the last successful Process.
func (e *Extraction) Metrics() Metrics {
	return e.metrics
}

// IsolatedVolume returns the isolated label volume of the last
// successful Process.
func (e *Extraction) IsolatedVolume() *volume.Volume {
	return e.isolated
}

// SkeletonResult returns the skeletonization outcome of the last
// successful Process.
func (e *Extraction) SkeletonResult() *skeleton.Result {
	return e.result
}

// SWCPath returns the path the skeleton file is written to.
func (e *Extraction) SWCPath() string {
	return filepath.Join(e.outputDir(), e.baseName()+"_isolated.swc")
}

// VolumeDir returns the directory the isolated TIFF sequence is
// written to.
func (e *Extraction) VolumeDir() string {
	return filepath.Join(e.outputDir(), e.baseName()+"_isolated")
}

func (e *Extraction) outputDir() string {
	if e.params.OutputDir != "" {
		return e.params.OutputDir
	}
	parent := filepath.Dir(filepath.Clean(e.params.InputDir))
	return filepath.Join(parent, "isolated_outputs")
}

func (e *Extraction) baseName() string {
	return filepath.Base(filepath.Clean(e.params.InputDir))
}

// Process runs the complete extraction pipeline.
func (e *Extraction) Process() error {
	if !e.params.Anisotropy.Valid() {
		return fmt.Errorf("anisotropy must be positive on every axis, got %v", e.params.Anisotropy)
	}

	// Step 1: Load the label volume from slice images
	log.Info().Str("dir", e.params.InputDir).Msg("step 1: loading label volume")
	e.reportProgress("load", 0.0)
	if err := e.loadVolume(); err != nil {
		return fmt.Errorf("failed to load volume: %v", err)
	}

	// Step 2: Isolate the arbor around the seed
	log.Info().
		Stringer("seed", e.params.Seed).
		Int("close_radius", e.params.CloseRadius).
		Msg("step 2: isolating arbor")
	e.reportProgress("isolate", 0.2)
	isolated, err := isolation.Isolate(e.vol, e.params.Seed, e.params.CloseRadius)
	if err != nil {
		return fmt.Errorf("failed to isolate arbor: %w", err)
	}
	e.isolated = isolated

	if err := os.MkdirAll(e.outputDir(), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	// Step 3: Save the isolated volume as a TIFF slice sequence
	if e.params.SaveVolume {
		log.Info().Str("dir", e.VolumeDir()).Msg("step 3: saving isolated volume")
		e.reportProgress("save volume", 0.5)
		if err := e.saveIsolatedVolume(); err != nil {
			return fmt.Errorf("failed to save isolated volume: %v", err)
		}
	}

	// Step 4: Skeletonize and write the SWC file
	log.Info().Str("path", e.SWCPath()).Msg("step 4: writing skeleton")
	e.reportProgress("skeletonize", 0.6)
	e.result = skeleton.Build(e.isolated, e.params.DustThreshold)
	if e.result.Tree == nil {
		log.Info().Str("reason", e.result.Placeholder).Msg("no skeleton produced, writing placeholder")
	}
	if err := e.writeSkeleton(); err != nil {
		return fmt.Errorf("failed to write skeleton: %v", err)
	}

	// Step 5: Save projection previews
	if e.params.SavePreviews {
		log.Info().Msg("step 5: saving projection previews")
		e.reportProgress("previews", 0.8)
		if err := e.savePreviews(); err != nil {
			return fmt.Errorf("failed to save previews: %v", err)
		}
	}

	// Step 6: Compute morphometry metrics
	log.Info().Msg("step 6: computing metrics")
	e.reportProgress("metrics", 0.9)
	e.computeMetrics()
	e.reportProgress("done", 1.0)

	return nil
}

// loadVolume reads and sorts the input slice images and stacks them
// into a label volume. Slice order follows the number embedded in each
// filename, so "slice_2.png" precedes "slice_10.png" regardless of
// lexicographic order.
func (e *Extraction) loadVolume() error {
	entries, err := os.ReadDir(e.params.InputDir)
	if err != nil {
		return err
	}

	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".tif", ".tiff", ".jpg", ".jpeg":
			imageFiles = append(imageFiles, entry.Name())
		}
	}

	if len(imageFiles) == 0 {
		return fmt.Errorf("no slice images found in input directory")
	}

	// Sort by the numeric part of the filename to keep anatomical order.
	sort.Slice(imageFiles, func(i, j int) bool {
		return extractNumber(imageFiles[i]) < extractNumber(imageFiles[j])
	})

	var vol *volume.Volume
	for z, filename := range imageFiles {
		img, err := loadImage(filepath.Join(e.params.InputDir, filename))
		if err != nil {
			return fmt.Errorf("failed to load slice %s: %v", filename, err)
		}

		bounds := img.Bounds()
		if vol == nil {
			vol = volume.New(len(imageFiles), bounds.Dy(), bounds.Dx())
		} else if bounds.Dx() != vol.Width || bounds.Dy() != vol.Height {
			return fmt.Errorf("slice %s has dimensions %dx%d, expected %dx%d",
				filename, bounds.Dx(), bounds.Dy(), vol.Width, vol.Height)
		}

		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				label, err := pixelLabel(img, bounds.Min.X+x, bounds.Min.Y+y)
				if err != nil {
					return fmt.Errorf("slice %s at (%d, %d): %v", filename, x, y, err)
				}
				vol.Set(volume.Coord{z, y, x}, label)
			}
		}
	}

	e.vol = vol
	log.Info().
		Int("slices", vol.Depth).
		Int("height", vol.Height).
		Int("width", vol.Width).
		Msg("loaded label volume")

	return nil
}

// extractNumber extracts the numeric part from a filename.
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// loadImage opens and decodes a single slice image.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// pixelLabel reads one pixel as a segmentation label. Only the values
// 0 (background), 1 (dendrite) and 2 (soma) are accepted.
func pixelLabel(img image.Image, x, y int) (uint8, error) {
	var value int
	switch im := img.(type) {
	case *image.Gray:
		value = int(im.GrayAt(x, y).Y)
	case *image.Gray16:
		value = int(im.Gray16At(x, y).Y)
	default:
		r, g, b, _ := img.At(x, y).RGBA()
		if r != g || g != b {
			return 0, fmt.Errorf("non-grayscale pixel")
		}
		value = int(r >> 8)
	}

	if value > int(volume.Soma) {
		return 0, fmt.Errorf("label value %d out of range, expected 0, 1 or 2", value)
	}
	return uint8(value), nil
}

// saveIsolatedVolume writes the isolated volume as one grayscale TIFF
// per Z slice, preserving raw label values.
func (e *Extraction) saveIsolatedVolume() error {
	dir := e.VolumeDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for z := 0; z < e.isolated.Depth; z++ {
		img := image.NewGray(image.Rect(0, 0, e.isolated.Width, e.isolated.Height))
		for y := 0; y < e.isolated.Height; y++ {
			for x := 0; x < e.isolated.Width; x++ {
				img.Pix[y*img.Stride+x] = e.isolated.At(volume.Coord{z, y, x})
			}
		}

		path := filepath.Join(dir, fmt.Sprintf("slice_%04d.tif", z))
		if err := saveTIFF(path, img); err != nil {
			return fmt.Errorf("failed to save slice %d: %v", z, err)
		}
	}

	return nil
}

func saveTIFF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tiff.Encode(f, img, nil)
}

// savePreviews writes a maximum-projection PNG along each axis.
func (e *Extraction) savePreviews() error {
	viewer := visualization.NewViewer(e.isolated)
	for _, axis := range []string{"x", "y", "z"} {
		img, err := viewer.MaxProjection(axis)
		if err != nil {
			return err
		}
		path := filepath.Join(e.outputDir(), fmt.Sprintf("%s_preview_%s.png", e.baseName(), axis))
		if err := viewer.SaveSlice(img, path); err != nil {
			return err
		}
	}
	return nil
}

// writeSkeleton serializes the skeletonization result to the SWC path.
func (e *Extraction) writeSkeleton() error {
	return skeleton.WriteSWC(e.isolated, e.SWCPath(), skeleton.Options{
		Anisotropy:    e.params.Anisotropy,
		DustThreshold: e.params.DustThreshold,
	})
}

// computeMetrics fills the metrics summary from the isolated volume
// and the skeleton tree.
func (e *Extraction) computeMetrics() {
	m := Metrics{
		TotalForeground: e.vol.NumVoxels() - e.vol.CountLabel(volume.Background),
		SomaVoxels:      e.isolated.CountLabel(volume.Soma),
		DendriteVoxels:  e.isolated.CountLabel(volume.Dendrite),
		ThinnedVoxels:   e.result.ThinnedVoxels,
		DustRemoved:     e.result.DustRemoved,
	}
	if m.TotalForeground > 0 {
		m.KeptFraction = float64(m.SomaVoxels+m.DendriteVoxels) / float64(m.TotalForeground)
	}

	if e.result.Tree != nil {
		nodes := e.result.Tree.Nodes
		m.SkeletonNodes = len(nodes)

		children := make([]int, len(nodes))
		steps := make([]float64, 0, len(nodes))
		aniso := e.params.Anisotropy
		for _, n := range nodes {
			if n.Parent < 0 {
				continue
			}
			children[n.Parent]++
			p := nodes[n.Parent]
			dz := float64(n.Coord.Z()-p.Coord.Z()) * aniso[0]
			dy := float64(n.Coord.Y()-p.Coord.Y()) * aniso[1]
			dx := float64(n.Coord.X()-p.Coord.X()) * aniso[2]
			steps = append(steps, dist3(dz, dy, dx))
		}

		for _, c := range children {
			switch {
			case c == 0:
				m.EndPoints++
			case c >= 2:
				m.BranchPoints++
			}
		}

		for _, s := range steps {
			m.CableLength += s
			if s > m.MaxStepLength {
				m.MaxStepLength = s
			}
		}
		if len(steps) > 0 {
			m.MeanStepLength = stat.Mean(steps, nil)
		}
	}

	e.metrics = m
}

func dist3(dz, dy, dx float64) float64 {
	return math.Sqrt(dz*dz + dy*dy + dx*dx)
}
