package reconstruction

import (
	"fmt"

	"github.com/unixpickle/essentials"

	"cellmesh/internal/models"
	"cellmesh/pkg/bridging"
	"cellmesh/pkg/config"
	"cellmesh/pkg/segmentation"
)

// Params holds the reconstruction parameters.
// These parameters control every stage of the pipeline from smoothing to meshing.
type Params struct {
	// IntensityThreshold is the binarization cutoff applied after smoothing.
	// Voxels strictly above it become foreground.
	IntensityThreshold float64

	// SmoothingSigma is the standard deviation of the Gaussian filter in voxels.
	SmoothingSigma float64

	// AreaThreshold is the minimum voxel count a region needs to survive filtering.
	AreaThreshold int

	// Connectivity is the adjacency rule used for labeling and for drawn bridges.
	Connectivity segmentation.Connectivity

	// TiePolicy, Strategy and RegionPolicy configure the bridging engine.
	TiePolicy    bridging.TiePolicy
	Strategy     bridging.Strategy
	RegionPolicy bridging.Policy

	// FillHoles closes enclosed cavities after bridging.
	FillHoles bool

	// SkipSingleRegion skips bridging when only one region survives filtering.
	// When false, a single region is reported as an error.
	SkipSingleRegion bool

	// MaxMatrixElements bounds the pairwise distance matrix.
	MaxMatrixElements int

	// Seed initializes the random tie policy.
	Seed int64

	// Spacing is the physical voxel size passed through to the mesh.
	Spacing models.Spacing

	// StepSize is the marching cubes grid step in voxels.
	StepSize int

	// SearchIters refines vertex positions when positive.
	SearchIters int

	// RestoreAxes writes the mesh in (row, col, depth) order.
	RestoreAxes bool

	// NumCores specifies how many CPU cores to use for parallel filtering.
	NumCores int

	// SaveIntermediaryResults determines whether to save intermediary processing results.
	// When enabled, masks and label maps are written as .npy files.
	SaveIntermediaryResults bool

	// IntermediaryDir is the directory where intermediary results will be saved.
	// Only used when SaveIntermediaryResults is true.
	IntermediaryDir string
}

// DefaultParams returns the parameters of DefaultConfig.
func DefaultParams() *Params {
	p, err := ParamsFromConfig(config.DefaultConfig())
	essentials.Must(err)
	return p
}

// ParamsFromConfig converts a validated configuration into pipeline parameters.
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := cfg.Connectivity()
	if err != nil {
		return nil, err
	}
	ties, err := bridging.ParseTiePolicy(cfg.Bridging.TiePolicy)
	if err != nil {
		return nil, err
	}
	strategy, err := bridging.ParseStrategy(cfg.Bridging.Strategy)
	if err != nil {
		return nil, err
	}
	policy, err := bridging.ParsePolicy(cfg.Bridging.RegionPolicy)
	if err != nil {
		return nil, err
	}

	return &Params{
		IntensityThreshold: cfg.Segmentation.IntensityThreshold,
		SmoothingSigma:     cfg.Segmentation.SmoothingSigma,
		AreaThreshold:      cfg.Segmentation.AreaThreshold,
		Connectivity:       conn,
		TiePolicy:          ties,
		Strategy:           strategy,
		RegionPolicy:       policy,
		FillHoles:          cfg.Bridging.FillHoles,
		SkipSingleRegion:   cfg.Bridging.SkipSingleRegion,
		MaxMatrixElements:  cfg.Bridging.MaxMatrixElements,
		Seed:               cfg.Bridging.Seed,
		Spacing: models.Spacing{
			Row:   cfg.Acquisition.XYResolution,
			Col:   cfg.Acquisition.XYResolution,
			Depth: cfg.Acquisition.ZResolution,
		},
		StepSize:                cfg.Surface.StepSize,
		SearchIters:             cfg.Surface.SearchIters,
		RestoreAxes:             cfg.Surface.RestoreAxisOrder,
		NumCores:                cfg.Processing.NumCores,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
	}, nil
}

// validate checks the parameters that the stages cannot default.
func (p *Params) validate() error {
	if !p.Spacing.Valid() {
		return fmt.Errorf("invalid voxel spacing %+v", p.Spacing)
	}
	if p.StepSize < 1 {
		return fmt.Errorf("invalid step size %d", p.StepSize)
	}
	if !p.Connectivity.Valid() {
		return fmt.Errorf("invalid connectivity %d", int(p.Connectivity))
	}
	if p.SaveIntermediaryResults && p.IntermediaryDir == "" {
		return fmt.Errorf("intermediary directory is required when saving intermediary results")
	}
	return nil
}
