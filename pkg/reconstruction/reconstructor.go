// Package reconstruction runs the complete cell surface pipeline: smoothing
// and thresholding, component labeling, region bridging and isosurface
// extraction.
package reconstruction

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"cellmesh/internal/models"
	"cellmesh/pkg/bridging"
	"cellmesh/pkg/preprocess"
	"cellmesh/pkg/segmentation"
	"cellmesh/pkg/stack"
	"cellmesh/pkg/surface"
)

// Metrics summarizes one reconstruction run.
type Metrics struct {
	// ForegroundVoxels is the number of voxels above the intensity threshold.
	ForegroundVoxels int

	// RegionsFound is the number of connected components before filtering.
	RegionsFound int

	// RegionsRetained is the number of components that met the area threshold.
	RegionsRetained int

	// RegionsRemoved is the number of components erased by the area filter.
	RegionsRemoved int

	// MeanRegionArea and StdRegionArea describe the retained region sizes.
	// StdRegionArea is zero when fewer than two regions were retained.
	MeanRegionArea float64
	StdRegionArea  float64

	// BridgedPairs is the number of region pairs joined by bridging.
	BridgedPairs int

	// Correspondences is the number of nearest boundary point pairs.
	Correspondences int

	// BridgeSegments is the number of lines drawn into the mask.
	BridgeSegments int

	// VoxelsAdded counts voxels switched on by bridge lines.
	VoxelsAdded int

	// HolesFilled counts voxels switched on by hole filling.
	HolesFilled int

	// CellLabel is the label of the region that was meshed after relabeling.
	CellLabel int32

	// CellVoxels is the voxel count of the meshed region.
	CellVoxels int

	// Vertices and Faces describe the output mesh.
	Vertices int
	Faces    int

	// SurfaceArea is the mesh area in physical units squared.
	SurfaceArea float64

	// EnclosedVolume is the signed mesh volume in physical units cubed.
	EnclosedVolume float64

	// Closed reports whether every mesh edge is shared by exactly two faces.
	Closed bool

	// StageDurations records the wall time of each pipeline stage.
	StageDurations map[string]time.Duration
}

// Reconstructor turns an intensity volume into a surface mesh of the cell.
type Reconstructor struct {
	params  *Params
	logger  *logrus.Entry
	metrics Metrics
	cell    *models.Mask
}

// NewReconstructor creates a new reconstructor with the given parameters.
// A nil logger discards all progress messages.
func NewReconstructor(params *Params, logger *logrus.Logger) *Reconstructor {
	if params == nil {
		params = DefaultParams()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Reconstructor{
		params: params,
		logger: logger.WithField("component", "reconstruction"),
	}
}

// Process executes the complete pipeline.
//
// The stages are:
//  1. Gaussian smoothing and thresholding into a binary mask
//  2. Connected component labeling and area filtering
//  3. Bridging of the retained regions into one body
//  4. Relabeling and selection of the largest region
//  5. Marching cubes surface extraction of that region
//  6. Mesh metrics
//
// The context is checked between stages and inside bridging. When
// SaveIntermediaryResults is set, the mask after each stage is written as a
// .npy file to IntermediaryDir.
func (r *Reconstructor) Process(ctx context.Context, vol *models.Volume) (*surface.Mesh, error) {
	if err := r.params.validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %v", err)
	}
	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid volume: %v", err)
	}
	r.metrics = Metrics{StageDurations: map[string]time.Duration{}}
	r.cell = nil

	if r.params.SaveIntermediaryResults {
		if err := os.MkdirAll(r.params.IntermediaryDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create intermediary directory: %v", err)
		}
	}

	rows, cols, depth := vol.Rows, vol.Cols, vol.Depth
	r.logger.WithFields(logrus.Fields{
		"rows":  rows,
		"cols":  cols,
		"depth": depth,
	}).Info("Starting reconstruction")

	// Step 1: Smooth and threshold
	r.logger.Info("Step 1: Smoothing and thresholding volume...")
	start := time.Now()
	pre := preprocess.NewPreprocessor(r.params.SmoothingSigma, r.params.IntensityThreshold)
	if r.params.NumCores > 0 {
		pre.NumWorkers = r.params.NumCores
	}
	mask, err := pre.Apply(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess volume: %v", err)
	}
	r.metrics.ForegroundVoxels = mask.Count()
	r.finishStage("preprocess", start)
	r.logger.WithField("foreground", r.metrics.ForegroundVoxels).Debug("Thresholded volume")
	r.saveMask("01_mask.npy", mask)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: Label and filter components
	r.logger.Info("Step 2: Labeling connected components...")
	start = time.Now()
	labeling, err := segmentation.LabelAndFilter(mask, r.params.Connectivity, r.params.AreaThreshold)
	if err != nil {
		return nil, err
	}
	r.metrics.RegionsFound = labeling.Found
	r.metrics.RegionsRetained = len(labeling.Regions)
	r.metrics.RegionsRemoved = labeling.Removed
	if areas := labeling.Areas(); len(areas) > 1 {
		r.metrics.MeanRegionArea, r.metrics.StdRegionArea = stat.MeanStdDev(areas, nil)
	} else {
		r.metrics.MeanRegionArea = areas[0]
	}
	r.finishStage("label", start)
	r.logger.WithFields(logrus.Fields{
		"found":    labeling.Found,
		"retained": len(labeling.Regions),
		"removed":  labeling.Removed,
	}).Info("Labeled regions")
	r.saveLabels("02_labels.npy", labeling.Labels)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: Bridge regions
	r.logger.Info("Step 3: Bridging regions...")
	start = time.Now()
	if len(labeling.Regions) < 2 && r.params.SkipSingleRegion {
		r.logger.Info("Single region retained, skipping bridging")
	} else {
		report, err := r.newEngine().Connect(ctx, labeling, mask)
		if err != nil {
			return nil, fmt.Errorf("failed to bridge regions: %w", err)
		}
		r.metrics.BridgedPairs = len(report.Pairs)
		r.metrics.Correspondences = report.Correspondences
		r.metrics.BridgeSegments = report.Segments
		r.metrics.VoxelsAdded = report.VoxelsAdded
		r.metrics.HolesFilled = report.HolesFilled
	}
	r.finishStage("bridge", start)
	r.saveMask("03_bridged.npy", mask)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 4: Relabel and select the cell
	r.logger.Info("Step 4: Selecting largest region...")
	start = time.Now()
	relabeled, err := segmentation.Label(mask, r.params.Connectivity)
	if err != nil {
		return nil, err
	}
	cell := relabeled.Largest()
	r.metrics.CellLabel = cell.Label
	r.metrics.CellVoxels = cell.Area
	isolated, err := surface.Isolate(mask, relabeled.Labels, cell.Label)
	if err != nil {
		return nil, fmt.Errorf("failed to isolate cell: %v", err)
	}
	r.finishStage("select", start)
	r.logger.WithFields(logrus.Fields{
		"label":   cell.Label,
		"voxels":  cell.Area,
		"regions": len(relabeled.Regions),
	}).Info("Selected cell region")
	r.cell = isolated
	r.saveMask("04_cell.npy", isolated)
	if r.params.SaveIntermediaryResults {
		dir := filepath.Join(r.params.IntermediaryDir, "04_cell_slices")
		if err := stack.SaveMaskSlices(isolated, "z", dir); err != nil {
			r.logger.WithError(err).Warn("Failed to save cell slices")
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 5: Extract the surface
	r.logger.Info("Step 5: Extracting surface with marching cubes...")
	start = time.Now()
	extractor := &surface.Extractor{
		Spacing:     r.params.Spacing,
		StepSize:    r.params.StepSize,
		SearchIters: r.params.SearchIters,
		Axes:        surface.SwapRowCol,
		RestoreAxes: r.params.RestoreAxes,
	}
	mesh, err := extractor.Extract(isolated)
	if err != nil {
		return nil, fmt.Errorf("failed to extract surface: %w", err)
	}
	r.finishStage("extract", start)

	// Step 6: Mesh metrics
	r.logger.Info("Step 6: Calculating mesh metrics...")
	r.metrics.Vertices = len(mesh.Vertices)
	r.metrics.Faces = len(mesh.Faces)
	r.metrics.SurfaceArea = mesh.SurfaceArea()
	r.metrics.EnclosedVolume = mesh.Volume()
	r.metrics.Closed = mesh.Closed()
	r.logger.WithFields(logrus.Fields{
		"vertices": r.metrics.Vertices,
		"faces":    r.metrics.Faces,
		"area":     r.metrics.SurfaceArea,
		"volume":   r.metrics.EnclosedVolume,
		"closed":   r.metrics.Closed,
	}).Info("Reconstruction complete")

	return mesh, nil
}

// newEngine configures a bridging engine from the parameters.
func (r *Reconstructor) newEngine() *bridging.Engine {
	engine := bridging.NewEngine(r.logger.WithField("stage", "bridging"))
	engine.Ties = r.params.TiePolicy
	engine.Strategy = r.params.Strategy
	engine.Policy = r.params.RegionPolicy
	engine.Connectivity = r.params.Connectivity
	engine.FillHoles = r.params.FillHoles
	engine.MaxMatrixElements = r.params.MaxMatrixElements
	engine.Seed = r.params.Seed
	return engine
}

func (r *Reconstructor) finishStage(name string, start time.Time) {
	elapsed := time.Since(start)
	r.metrics.StageDurations[name] = elapsed
	r.logger.WithFields(logrus.Fields{
		"stage":   name,
		"elapsed": elapsed,
	}).Debug("Stage finished")
}

func (r *Reconstructor) saveMask(name string, mask *models.Mask) {
	if !r.params.SaveIntermediaryResults {
		return
	}
	path := filepath.Join(r.params.IntermediaryDir, name)
	if err := stack.SaveMaskNpy(path, mask); err != nil {
		r.logger.WithError(err).Warnf("Failed to save %s", name)
	}
}

func (r *Reconstructor) saveLabels(name string, labels *models.LabelVolume) {
	if !r.params.SaveIntermediaryResults {
		return
	}
	path := filepath.Join(r.params.IntermediaryDir, name)
	if err := stack.SaveLabelsNpy(path, labels); err != nil {
		r.logger.WithError(err).Warnf("Failed to save %s", name)
	}
}

// GetCellMask returns the isolated cell mask of the last successful Process
// call, or nil.
func (r *Reconstructor) GetCellMask() *models.Mask {
	return r.cell
}

// GetMetrics returns the metrics of the last Process call.
func (r *Reconstructor) GetMetrics() Metrics {
	return r.metrics
}
