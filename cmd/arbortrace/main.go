package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/serg-bg/arbortrace/internal/logging"
	"github.com/serg-bg/arbortrace/pkg/config"
	"github.com/serg-bg/arbortrace/pkg/pipeline"
	"github.com/serg-bg/arbortrace/pkg/visualization"
	"github.com/serg-bg/arbortrace/pkg/volume"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing label volume slices (PNG/TIFF/JPEG)")
	outputDir := flag.String("output", "", "Output directory (default: isolated_outputs next to the input)")
	seedArg := flag.String("seed", "", "Seed voxel as z,y,x (required)")
	closeRadius := flag.Int("close-radius", 1, "Morphological closing radius in voxels (0 disables gap bridging)")
	anisotropyArg := flag.String("anisotropy", "1,1,1", "Physical voxel size per axis as z,y,x")
	dustThreshold := flag.Int("dust", 100, "Minimum skeleton fragment size in voxels")
	saveVolume := flag.Bool("save-volume", true, "Save the isolated volume as a TIFF slice sequence")
	savePreviews := flag.Bool("previews", false, "Save PNG projection previews of the isolated arbor")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save isolated-volume slices along all axes")
	slicesDir := flag.String("slices-dir", "", "Directory for extracted slices (default: <output>/slices)")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	writeConfig := flag.String("write-config", "", "Write a default configuration file to the given path and exit")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	logging.Setup(*verbose)

	// Write a default config and exit when requested
	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatal().Err(err).Msg("failed to write default configuration")
		}
		fmt.Printf("Default configuration written to: %s\n", *writeConfig)
		return
	}

	// Validate inputs
	if *inputDir == "" || *seedArg == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration and overlay any flags given explicitly
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["close-radius"] {
		*closeRadius = cfg.Isolation.CloseRadius
	}
	if !set["dust"] {
		*dustThreshold = cfg.Skeleton.DustThreshold
	}
	if !set["output"] {
		*outputDir = cfg.Output.Directory
	}
	if !set["save-volume"] {
		*saveVolume = cfg.Output.SaveVolume
	}
	if !set["previews"] {
		*savePreviews = cfg.Output.SavePreviews
	}
	if !set["verbose"] && cfg.Logging.Verbose {
		logging.Setup(true)
	}

	seed, err := volume.ParseCoord(*seedArg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid seed")
	}

	anisotropy := volume.Anisotropy{
		cfg.Skeleton.Anisotropy.Z,
		cfg.Skeleton.Anisotropy.Y,
		cfg.Skeleton.Anisotropy.X,
	}
	if set["anisotropy"] {
		anisotropy, err = volume.ParseAnisotropy(*anisotropyArg)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid anisotropy")
		}
	}

	fmt.Println("================================")
	fmt.Println("ARBORTRACE - single-neuron arbor isolation and skeletonization")
	fmt.Println("================================")

	// Initialize extraction parameters
	params := &pipeline.Params{
		InputDir:      *inputDir,
		OutputDir:     *outputDir,
		Seed:          seed,
		CloseRadius:   *closeRadius,
		Anisotropy:    anisotropy,
		DustThreshold: *dustThreshold,
		SaveVolume:    *saveVolume,
		SavePreviews:  *savePreviews,
	}

	// Create the extraction run
	ext := pipeline.New(params)
	ext.SetProgressCallback(func(stage string, fraction float64) {
		log.Debug().Str("stage", stage).Float64("fraction", fraction).Msg("progress")
	})

	// Run the extraction pipeline
	fmt.Println("Starting arbor extraction...")
	startTime := time.Now()
	if err := ext.Process(); err != nil {
		log.Fatal().Err(err).Msg("extraction failed")
	}
	processingTime := time.Since(startTime)

	// Display the morphometry summary
	metrics := ext.Metrics()
	fmt.Printf("\nExtraction completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Skeleton saved to: %s\n", ext.SWCPath())
	if *saveVolume {
		fmt.Printf("Isolated volume saved to: %s\n", ext.VolumeDir())
	}

	fmt.Printf("\nMorphometry summary:\n")
	fmt.Printf("====================\n")
	fmt.Printf("Soma voxels: %d\n", metrics.SomaVoxels)
	fmt.Printf("Dendrite voxels: %d\n", metrics.DendriteVoxels)
	fmt.Printf("Foreground kept: %.1f%%\n", metrics.KeptFraction*100)
	fmt.Printf("Skeleton nodes: %d\n", metrics.SkeletonNodes)
	fmt.Printf("Branch points: %d\n", metrics.BranchPoints)
	fmt.Printf("End points: %d\n", metrics.EndPoints)
	fmt.Printf("Cable length: %.3f\n", metrics.CableLength)
	fmt.Printf("Mean step length: %.3f\n", metrics.MeanStepLength)

	// Extract and save slices of the isolated volume if requested
	if *extractSlices {
		fmt.Println("\nExtracting isolated-volume slices along all axes...")

		viewer := visualization.NewViewer(ext.IsolatedVolume())

		slicesPath := *slicesDir
		if slicesPath == "" {
			slicesPath = filepath.Join(filepath.Dir(ext.SWCPath()), "slices")
		}

		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(slicesPath, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Warn().Err(err).Str("axis", axis).Msg("failed to save slices")
			}
		}

		fmt.Println("Slice extraction completed!")
	}
}
