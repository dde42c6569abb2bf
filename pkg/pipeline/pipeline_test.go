package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/serg-bg/arbortrace/pkg/isolation"
	"github.com/serg-bg/arbortrace/pkg/swc"
	"github.com/serg-bg/arbortrace/pkg/volume"
)

// makeArborVolume builds the synthetic two-cell label volume used by
// the end-to-end tests: a soma cube with three dendrite arms, plus a
// disconnected soma and dendrite that isolation must drop.
func makeArborVolume() *volume.Volume {
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

	for z := 3; z < 5; z++ {
		for y := 3; y < 5; y++ {
			for x := 3; x < 5; x++ {
				v.Set(volume.Coord{z, y, x}, volume.Soma)
			}
		}
	}
	for z := 15; z < 18; z++ {
		for y := 15; y < 18; y++ {
			for x := 15; x < 18; x++ {
				v.Set(volume.Coord{z, y, x}, volume.Dendrite)
			}
		}
	}

	return v
}

// writeSliceSequence writes the volume as one grayscale PNG per Z
// slice, raw label values as pixel intensities.
func writeSliceSequence(t *testing.T, dir string, vol *volume.Volume) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create slice directory: %v", err)
	}

	for z := 0; z < vol.Depth; z++ {
		img := image.NewGray(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.Pix[y*img.Stride+x] = vol.At(volume.Coord{z, y, x})
			}
		}

		path := filepath.Join(dir, fmt.Sprintf("slice_%03d.png", z))
		f, err := os.Create(path)
		if err != nil {
			t.Fatalf("Failed to create slice file: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			t.Fatalf("Failed to encode slice: %v", err)
		}
		f.Close()
	}
}

// TestProcessEndToEnd verifies the complete pipeline on the synthetic
// two-cell volume: loading, isolation, volume and preview output, the
// SWC file, metrics and progress reporting.
func TestProcessEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end pipeline test in short mode")
	}

	tmpDir, err := os.MkdirTemp("", "arbortrace_test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	inputDir := filepath.Join(tmpDir, "cell7")
	writeSliceSequence(t, inputDir, makeArborVolume())

	params := &Params{
		InputDir:      inputDir,
		Seed:          volume.Coord{10, 10, 10},
		CloseRadius:   1,
		Anisotropy:    volume.DefaultAnisotropy(),
		DustThreshold: 0,
		SaveVolume:    true,
		SavePreviews:  true,
	}

	ext := New(params)

	var stages []string
	var fractions []float64
	ext.SetProgressCallback(func(stage string, fraction float64) {
		stages = append(stages, stage)
		fractions = append(fractions, fraction)
	})

	if err := ext.Process(); err != nil {
		t.Fatalf("Failed to process: %v", err)
	}

	// Metrics reflect the fixture exactly: 117 labeled voxels in, the
	// 82-voxel connected cell kept
	m := ext.Metrics()
	if m.TotalForeground != 117 {
		t.Errorf("Expected 117 foreground voxels, got %d", m.TotalForeground)
	}
	if m.SomaVoxels != 64 {
		t.Errorf("Expected 64 soma voxels, got %d", m.SomaVoxels)
	}
	if m.DendriteVoxels != 18 {
		t.Errorf("Expected 18 dendrite voxels, got %d", m.DendriteVoxels)
	}
	wantKept := 82.0 / 117.0
	if diff := m.KeptFraction - wantKept; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected kept fraction %.6f, got %.6f", wantKept, m.KeptFraction)
	}
	if m.ThinnedVoxels == 0 {
		t.Error("Expected a non-empty thinned skeleton")
	}
	if m.SkeletonNodes == 0 {
		t.Error("Expected skeleton nodes in the metrics")
	}
	if m.EndPoints < 3 {
		t.Errorf("Expected at least 3 end points for a three-arm cell, got %d", m.EndPoints)
	}
	if m.CableLength <= 0 {
		t.Error("Expected positive cable length")
	}

	// Output paths derive from the input directory name
	wantSWC := filepath.Join(tmpDir, "isolated_outputs", "cell7_isolated.swc")
	if ext.SWCPath() != wantSWC {
		t.Errorf("Expected SWC path %s, got %s", wantSWC, ext.SWCPath())
	}

	records, err := swc.ParseFile(ext.SWCPath())
	if err != nil {
		t.Fatalf("Failed to parse SWC output: %v", err)
	}
	if err := swc.Validate(records); err != nil {
		t.Errorf("SWC output failed validation: %v", err)
	}
	if len(records) != m.SkeletonNodes {
		t.Errorf("Expected %d SWC records, got %d", m.SkeletonNodes, len(records))
	}

	// The isolated volume round-trips through the TIFF sequence
	entries, err := os.ReadDir(ext.VolumeDir())
	if err != nil {
		t.Fatalf("Failed to read volume directory: %v", err)
	}
	if len(entries) != 20 {
		t.Errorf("Expected 20 slice files, got %d", len(entries))
	}

	img, err := loadImage(filepath.Join(ext.VolumeDir(), "slice_0010.tif"))
	if err != nil {
		t.Fatalf("Failed to load saved slice: %v", err)
	}
	if label, _ := pixelLabel(img, 10, 10); label != volume.Soma {
		t.Errorf("Expected soma label at seed pixel, got %d", label)
	}
	if label, _ := pixelLabel(img, 15, 10); label != volume.Dendrite {
		t.Errorf("Expected dendrite label on the arm, got %d", label)
	}

	img, err = loadImage(filepath.Join(ext.VolumeDir(), "slice_0016.tif"))
	if err != nil {
		t.Fatalf("Failed to load saved slice: %v", err)
	}
	if label, _ := pixelLabel(img, 16, 16); label != volume.Background {
		t.Errorf("Expected disconnected dendrite to be dropped, got label %d", label)
	}

	// Previews exist for all three axes
	for _, axis := range []string{"x", "y", "z"} {
		path := filepath.Join(tmpDir, "isolated_outputs", "cell7_preview_"+axis+".png")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected preview for axis %s: %v", axis, err)
		}
	}

	// Progress runs from load to done with non-decreasing fractions
	if len(stages) == 0 || stages[0] != "load" {
		t.Errorf("Expected first progress stage to be load, got %v", stages)
	}
	if stages[len(stages)-1] != "done" || fractions[len(fractions)-1] != 1.0 {
		t.Error("Expected progress to finish at done with fraction 1.0")
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Errorf("Expected non-decreasing progress, got %v", fractions)
		}
	}
}

// TestProcessWithExplicitOutputDir verifies that an explicit output
// directory overrides the derived default.
func TestProcessWithExplicitOutputDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "arbortrace_test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	inputDir := filepath.Join(tmpDir, "cell")
	writeSliceSequence(t, inputDir, makeArborVolume())
	outDir := filepath.Join(tmpDir, "results")

	ext := New(&Params{
		InputDir:    inputDir,
		OutputDir:   outDir,
		Seed:        volume.Coord{10, 10, 10},
		CloseRadius: 1,
		Anisotropy:  volume.DefaultAnisotropy(),
	})

	if err := ext.Process(); err != nil {
		t.Fatalf("Failed to process: %v", err)
	}

	wantSWC := filepath.Join(outDir, "cell_isolated.swc")
	if ext.SWCPath() != wantSWC {
		t.Errorf("Expected SWC path %s, got %s", wantSWC, ext.SWCPath())
	}
	if _, err := os.Stat(wantSWC); err != nil {
		t.Errorf("Expected SWC file to exist: %v", err)
	}
}

// TestProcessErrors verifies the pipeline's input validation paths.
func TestProcessErrors(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "arbortrace_test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	t.Run("InvalidAnisotropy", func(t *testing.T) {
		ext := New(&Params{
			InputDir:   filepath.Join(tmpDir, "unused"),
			Seed:       volume.Coord{0, 0, 0},
			Anisotropy: volume.Anisotropy{0, 1, 1},
		})
		err := ext.Process()
		if err == nil || !strings.Contains(err.Error(), "anisotropy") {
			t.Errorf("Expected anisotropy error, got %v", err)
		}
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "empty")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		ext := New(&Params{
			InputDir:   dir,
			Seed:       volume.Coord{0, 0, 0},
			Anisotropy: volume.DefaultAnisotropy(),
		})
		err := ext.Process()
		if err == nil || !strings.Contains(err.Error(), "no slice images") {
			t.Errorf("Expected missing-slices error, got %v", err)
		}
	})

	t.Run("MismatchedSliceSizes", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "mismatched")
		writeSliceSequence(t, dir, volume.New(1, 4, 4))

		img := image.NewGray(image.Rect(0, 0, 6, 4))
		f, err := os.Create(filepath.Join(dir, "slice_001.png"))
		if err != nil {
			t.Fatalf("Failed to create slice file: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("Failed to encode slice: %v", err)
		}
		f.Close()

		ext := New(&Params{
			InputDir:   dir,
			Seed:       volume.Coord{0, 0, 0},
			Anisotropy: volume.DefaultAnisotropy(),
		})
		err = ext.Process()
		if err == nil || !strings.Contains(err.Error(), "dimensions") {
			t.Errorf("Expected dimension-mismatch error, got %v", err)
		}
	})

	t.Run("LabelOutOfRange", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "badlabels")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}

		img := image.NewGray(image.Rect(0, 0, 3, 3))
		img.Pix[4] = 7
		f, err := os.Create(filepath.Join(dir, "slice_000.png"))
		if err != nil {
			t.Fatalf("Failed to create slice file: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("Failed to encode slice: %v", err)
		}
		f.Close()

		ext := New(&Params{
			InputDir:   dir,
			Seed:       volume.Coord{0, 0, 0},
			Anisotropy: volume.DefaultAnisotropy(),
		})
		err = ext.Process()
		if err == nil || !strings.Contains(err.Error(), "out of range") {
			t.Errorf("Expected label-range error, got %v", err)
		}
	})

	t.Run("SeedOutOfBounds", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "oob")
		writeSliceSequence(t, dir, makeArborVolume())

		ext := New(&Params{
			InputDir:   dir,
			Seed:       volume.Coord{50, 0, 0},
			Anisotropy: volume.DefaultAnisotropy(),
		})
		err := ext.Process()
		if err == nil {
			t.Fatal("Expected an error for an out-of-bounds seed, got nil")
		}

		// Isolation errors keep their type through the pipeline wrap
		var oob *isolation.OutOfBoundsError
		if !errors.As(err, &oob) {
			t.Errorf("Expected an OutOfBoundsError, got %v", err)
		}
	})
}

// TestSliceOrderIsNumeric verifies that slices load in the order of the
// number embedded in the filename, not lexicographic order.
func TestSliceOrderIsNumeric(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "arbortrace_test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Lexicographic order would be slice_1, slice_10, slice_2
	values := map[string]uint8{
		"slice_1.png":  1,
		"slice_2.png":  2,
		"slice_10.png": 0,
	}
	for name, value := range values {
		img := image.NewGray(image.Rect(0, 0, 1, 1))
		img.Pix[0] = value
		f, err := os.Create(filepath.Join(tmpDir, name))
		if err != nil {
			t.Fatalf("Failed to create slice file: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("Failed to encode slice: %v", err)
		}
		f.Close()
	}

	ext := New(&Params{InputDir: tmpDir})
	if err := ext.loadVolume(); err != nil {
		t.Fatalf("Failed to load volume: %v", err)
	}

	expected := []uint8{1, 2, 0}
	for z, want := range expected {
		if got := ext.vol.At(volume.Coord{z, 0, 0}); got != want {
			t.Errorf("Expected label %d at slice %d, got %d", want, z, got)
		}
	}
}
