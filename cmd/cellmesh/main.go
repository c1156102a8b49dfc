package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/unixpickle/essentials"

	"cellmesh/internal/models"
	"cellmesh/pkg/config"
	"cellmesh/pkg/reconstruction"
	"cellmesh/pkg/stack"
	"cellmesh/pkg/surface"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "Directory of slice images or a .npy volume")
	outputPath := flag.String("output", "cell.stl", "Output STL filename")
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	stepSize := flag.Int("step", 0, "Marching cubes step size (overrides config)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (overrides config)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save intermediary results during processing")
	intermediaryDir := flag.String("intermediary-dir", "", "Directory to save intermediary results (overrides config)")
	xyRes := flag.Float64("xy-res", 0, "In-plane pixel size (overrides config)")
	zRes := flag.Float64("z-res", 0, "Slice spacing (overrides config)")
	channel := flag.Int("channel", -1, "Image channel used as intensity (overrides config)")
	extractSlices := flag.Bool("extract-slices", false, "Save the segmented cell as slices along all axes")
	slicesDir := flag.String("slices-dir", "cell_slices", "Directory to save extracted slices")
	flag.Parse()

	logger := initLogger(*debugMode)

	if *writeConfig {
		essentials.Must(config.CreateDefaultConfigFile(*configPath))
		logger.WithField("path", *configPath).Info("Default configuration written")
		return
	}

	// Validate inputs
	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	applyOverrides(cfg, overrides{
		stepSize:         *stepSize,
		numCores:         *numCores,
		saveIntermediary: *saveIntermediary,
		intermediaryDir:  *intermediaryDir,
		xyRes:            *xyRes,
		zRes:             *zRes,
		channel:          *channel,
	})

	params, err := reconstruction.ParamsFromConfig(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	vol, err := stack.Load(*inputPath, cfg.Acquisition.Channel, params.Spacing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load input")
	}
	logger.WithFields(logrus.Fields{
		"input": *inputPath,
		"shape": vol.Shape(),
	}).Info("Loaded volume")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconstructor := reconstruction.NewReconstructor(params, logger)
	startTime := time.Now()
	mesh, err := reconstructor.Process(ctx, vol)
	if err != nil {
		logger.WithError(err).Fatal("Reconstruction failed")
	}
	processingTime := time.Since(startTime)

	if err := surface.SaveToSTL(*outputPath, mesh); err != nil {
		logger.WithError(err).Fatal("Failed to save mesh")
	}

	printMetrics(reconstructor.GetMetrics(), *outputPath, processingTime)

	if *extractSlices {
		saveCellSlices(logger, reconstructor.GetCellMask(), *slicesDir)
	}

	if cfg.Output.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", cfg.Output.IntermediaryDir)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 01_mask.npy: Thresholded mask")
		fmt.Println("- 02_labels.npy: Component labels after area filtering")
		fmt.Println("- 03_bridged.npy: Mask after bridging")
		fmt.Println("- 04_cell.npy: Isolated cell mask")
		fmt.Println("- 04_cell_slices: Isolated cell mask as PNG slices")
	}
}

// overrides holds the command line values that replace configuration keys.
// Zero values (and a negative channel) leave the configuration untouched.
type overrides struct {
	stepSize         int
	numCores         int
	saveIntermediary bool
	intermediaryDir  string
	xyRes            float64
	zRes             float64
	channel          int
}

func applyOverrides(cfg *config.Config, o overrides) {
	if o.stepSize > 0 {
		cfg.Surface.StepSize = o.stepSize
	}
	if o.numCores > 0 {
		cfg.Processing.NumCores = o.numCores
	}
	if o.saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}
	if o.intermediaryDir != "" {
		cfg.Output.IntermediaryDir = o.intermediaryDir
	}
	if o.xyRes > 0 {
		cfg.Acquisition.XYResolution = o.xyRes
	}
	if o.zRes > 0 {
		cfg.Acquisition.ZResolution = o.zRes
	}
	if o.channel >= 0 {
		cfg.Acquisition.Channel = o.channel
	}
}

func printMetrics(m reconstruction.Metrics, outputPath string, elapsed time.Duration) {
	fmt.Printf("\nReconstruction completed successfully in %.2f seconds!\n", elapsed.Seconds())
	fmt.Printf("Output mesh saved to: %s\n\n", outputPath)

	fmt.Printf("Segmentation:\n")
	fmt.Printf("=============\n")
	fmt.Printf("Foreground voxels: %d\n", m.ForegroundVoxels)
	fmt.Printf("Regions found: %d (retained %d, removed %d)\n", m.RegionsFound, m.RegionsRetained, m.RegionsRemoved)
	fmt.Printf("Region area: %.1f ± %.1f voxels\n", m.MeanRegionArea, m.StdRegionArea)

	fmt.Printf("\nBridging:\n")
	fmt.Printf("=========\n")
	fmt.Printf("Pairs bridged: %d\n", m.BridgedPairs)
	fmt.Printf("Correspondences: %d\n", m.Correspondences)
	fmt.Printf("Lines drawn: %d (%d voxels added, %d holes filled)\n", m.BridgeSegments, m.VoxelsAdded, m.HolesFilled)

	fmt.Printf("\nMesh:\n")
	fmt.Printf("=====\n")
	fmt.Printf("Cell voxels: %d\n", m.CellVoxels)
	fmt.Printf("Vertices: %d, faces: %d\n", m.Vertices, m.Faces)
	fmt.Printf("Surface area: %.3f\n", m.SurfaceArea)
	fmt.Printf("Enclosed volume: %.3f\n", m.EnclosedVolume)
	fmt.Printf("Closed: %v\n", m.Closed)
}

func saveCellSlices(logger *logrus.Logger, cell *models.Mask, dir string) {
	if cell == nil {
		return
	}
	fmt.Println("\nExtracting cell slices along all axes...")
	for _, axis := range []string{"x", "y", "z"} {
		axisDir := filepath.Join(dir, axis)
		fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)
		if err := stack.SaveMaskSlices(cell, axis, axisDir); err != nil {
			logger.WithError(err).Warnf("Failed to save %s-axis slices", axis)
		}
	}
	fmt.Println("Slice extraction completed!")
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
