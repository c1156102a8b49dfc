package bridging

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"cellmesh/internal/models"
	"cellmesh/pkg/segmentation"
)

// DefaultMaxMatrixElements bounds the distance matrix used by Auto (2^26
// entries, 512 MiB of float64).
const DefaultMaxMatrixElements = 1 << 26

// InsufficientRegionsError is returned by Connect when fewer than two
// regions are available to bridge.
type InsufficientRegionsError struct {
	Regions int
}

func (e *InsufficientRegionsError) Error() string {
	return fmt.Sprintf("bridging: need at least 2 regions, have %d", e.Regions)
}

// Segment is one rasterized bridge between two boundary voxels.
type Segment struct {
	Source models.Coord
	Target models.Coord
	Path   []models.Coord
}

// Report summarizes the changes a bridging pass made to a mask.
type Report struct {
	// Pairs lists the region label pairs that were bridged.
	Pairs [][2]int32

	// Correspondences is the number of nearest-point pairs found.
	Correspondences int

	// Segments is the number of lines drawn.
	Segments int

	// VoxelsAdded counts voxels switched on by the drawn lines.
	VoxelsAdded int

	// HolesFilled counts voxels switched on by hole filling.
	HolesFilled int
}

// Engine bridges regions of a labeled mask.
type Engine struct {
	// Ties selects which equally near points produce correspondences.
	Ties TiePolicy

	// Strategy selects the nearest-point search.
	Strategy Strategy

	// Policy selects the region pairs bridged by Connect.
	Policy Policy

	// Connectivity of the drawn lines. Zero means Full.
	Connectivity segmentation.Connectivity

	// FillHoles closes enclosed cavities after BridgePair and Connect.
	FillHoles bool

	// MaxMatrixElements is the largest M×N matrix Auto will build.
	// Zero means DefaultMaxMatrixElements.
	MaxMatrixElements int

	// Seed initializes the generator used by the Random tie policy.
	Seed int64

	// Logger receives progress messages. Nil discards them.
	Logger *logrus.Entry

	rng *rand.Rand
}

// NewEngine returns an engine with the default policies: all ties, auto
// strategy, two largest regions, full connectivity and hole filling.
func NewEngine(logger *logrus.Entry) *Engine {
	return &Engine{
		Ties:              AllTies,
		Strategy:          Auto,
		Policy:            TwoLargest,
		Connectivity:      segmentation.Full,
		FillHoles:         true,
		MaxMatrixElements: DefaultMaxMatrixElements,
		Seed:              1,
		Logger:            logger,
	}
}

func (e *Engine) log() *logrus.Entry {
	if e.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.Logger = logrus.NewEntry(l)
	}
	return e.Logger
}

func (e *Engine) random() *rand.Rand {
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(e.Seed))
	}
	return e.rng
}

func (e *Engine) maxMatrixElements() int {
	if e.MaxMatrixElements <= 0 {
		return DefaultMaxMatrixElements
	}
	return e.MaxMatrixElements
}

func (e *Engine) connectivity() segmentation.Connectivity {
	if !e.Connectivity.Valid() {
		return segmentation.Full
	}
	return e.Connectivity
}

// BoundaryOf returns the boundary voxels of a region in global coordinates.
func (e *Engine) BoundaryOf(r *segmentation.Region) ([]models.Coord, error) {
	return r.Boundary()
}

// Correspond finds, for every boundary point of b, the nearest boundary
// point(s) of a under the engine's tie policy.
func (e *Engine) Correspond(ctx context.Context, a, b *segmentation.Region) ([]Correspondence, error) {
	pa, err := a.Boundary()
	if err != nil {
		return nil, err
	}
	pb, err := b.Boundary()
	if err != nil {
		return nil, err
	}
	return e.correspond(ctx, pa, pb)
}

// Bridge draws a line from the nearest boundary point of a to every
// boundary point of b and sets every voxel on those lines in mask.
// Both regions are stale once Bridge returns. On error the mask is unchanged.
func (e *Engine) Bridge(ctx context.Context, a, b *segmentation.Region, mask *models.Mask) ([]Segment, error) {
	corr, err := e.Correspond(ctx, a, b)
	if err != nil {
		return nil, err
	}
	segments, err := e.plan(ctx, corr)
	if err != nil {
		return nil, err
	}
	apply(segments, mask)
	return segments, nil
}

// BridgePair bridges a and b in both directions and then fills holes when
// enabled. Both boundaries are read before the mask is modified.
func (e *Engine) BridgePair(ctx context.Context, a, b *segmentation.Region, mask *models.Mask) (*Report, error) {
	boundaries, err := collectBoundaries([]*segmentation.Region{a, b})
	if err != nil {
		return nil, err
	}
	segments, n, err := e.planPair(ctx, boundaries[0], boundaries[1])
	if err != nil {
		return nil, err
	}
	report := &Report{
		Pairs:           [][2]int32{{a.Label, b.Label}},
		Correspondences: n,
		Segments:        len(segments),
		VoxelsAdded:     apply(segments, mask),
	}
	if e.FillHoles {
		report.HolesFilled = FillHoles(mask)
	}
	return report, nil
}

// Connect bridges the region pairs chosen by the engine's policy and
// fills holes when enabled. Every line is planned before the mask is
// written, so a cancelled context leaves the mask unchanged. The labeling
// is stale afterwards; re-label the mask to inspect the result.
func (e *Engine) Connect(ctx context.Context, labeling *segmentation.Labeling, mask *models.Mask) (*Report, error) {
	if labeling.Stale() {
		return nil, segmentation.ErrStaleRegion
	}
	regions := labeling.ByArea()
	if len(regions) < 2 {
		return nil, &InsufficientRegionsError{Regions: len(regions)}
	}

	pairs := e.selectPairs(regions)
	involved := make(map[int32]int)
	var used []*segmentation.Region
	for _, p := range pairs {
		for _, r := range p {
			if _, ok := involved[r.Label]; !ok {
				involved[r.Label] = len(used)
				used = append(used, r)
			}
		}
	}
	boundaries, err := collectBoundaries(used)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var segments []Segment
	for _, p := range pairs {
		pa := boundaries[involved[p[0].Label]]
		pb := boundaries[involved[p[1].Label]]
		e.log().WithFields(logrus.Fields{
			"source":         p[0].Label,
			"target":         p[1].Label,
			"sourceBoundary": len(pa),
			"targetBoundary": len(pb),
		}).Debug("Bridging region pair")

		s, n, err := e.planPair(ctx, pa, pb)
		if err != nil {
			return nil, err
		}
		segments = append(segments, s...)
		report.Correspondences += n
		report.Pairs = append(report.Pairs, [2]int32{p[0].Label, p[1].Label})
	}

	report.Segments = len(segments)
	report.VoxelsAdded = apply(segments, mask)
	if e.FillHoles {
		report.HolesFilled = FillHoles(mask)
	}
	e.log().WithFields(logrus.Fields{
		"pairs":       len(report.Pairs),
		"segments":    report.Segments,
		"voxelsAdded": report.VoxelsAdded,
		"holesFilled": report.HolesFilled,
	}).Info("Bridging complete")
	return report, nil
}

// planPair computes the lines for both directions between two boundary
// sets and returns them with the number of correspondences.
func (e *Engine) planPair(ctx context.Context, pa, pb []models.Coord) ([]Segment, int, error) {
	ab, err := e.correspond(ctx, pa, pb)
	if err != nil {
		return nil, 0, err
	}
	ba, err := e.correspond(ctx, pb, pa)
	if err != nil {
		return nil, 0, err
	}
	corr := append(ab, ba...)
	segments, err := e.plan(ctx, corr)
	return segments, len(corr), err
}

// plan rasterizes every correspondence without touching the mask.
func (e *Engine) plan(ctx context.Context, corr []Correspondence) ([]Segment, error) {
	conn := e.connectivity()
	segments := make([]Segment, 0, len(corr))
	for _, c := range corr {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments = append(segments, Segment{
			Source: c.Source,
			Target: c.Target,
			Path:   Rasterize(c.Source, c.Target, conn),
		})
	}
	return segments, nil
}

// apply sets every path voxel and returns how many were previously false.
func apply(segments []Segment, mask *models.Mask) int {
	added := 0
	for _, s := range segments {
		for _, p := range s.Path {
			if mask.SetCoord(p, true) {
				added++
			}
		}
	}
	return added
}

func collectBoundaries(regions []*segmentation.Region) ([][]models.Coord, error) {
	out := make([][]models.Coord, len(regions))
	for i, r := range regions {
		b, err := r.Boundary()
		if err != nil {
			return nil, fmt.Errorf("boundary of region %d: %w", r.Label, err)
		}
		out[i] = b
	}
	return out, nil
}

// selectPairs applies the region policy to regions sorted by decreasing area.
func (e *Engine) selectPairs(regions []*segmentation.Region) [][2]*segmentation.Region {
	switch e.Policy {
	case Chain:
		return chainPairs(regions)
	case SpanningTree:
		return spanningTreePairs(regions)
	case AllPairs:
		var out [][2]*segmentation.Region
		for i := 0; i < len(regions); i++ {
			for j := i + 1; j < len(regions); j++ {
				out = append(out, [2]*segmentation.Region{regions[i], regions[j]})
			}
		}
		return out
	default:
		return [][2]*segmentation.Region{{regions[0], regions[1]}}
	}
}

func centroidDistance(a, b *segmentation.Region) float64 {
	var s float64
	for k := 0; k < 3; k++ {
		d := a.Centroid[k] - b.Centroid[k]
		s += d * d
	}
	return math.Sqrt(s)
}

// chainPairs walks from the largest region to the nearest unvisited one.
func chainPairs(regions []*segmentation.Region) [][2]*segmentation.Region {
	visited := make([]bool, len(regions))
	visited[0] = true
	cur := 0
	var out [][2]*segmentation.Region
	for step := 1; step < len(regions); step++ {
		next := -1
		best := math.Inf(1)
		for j := range regions {
			if visited[j] {
				continue
			}
			if d := centroidDistance(regions[cur], regions[j]); d < best {
				best, next = d, j
			}
		}
		visited[next] = true
		out = append(out, [2]*segmentation.Region{regions[cur], regions[next]})
		cur = next
	}
	return out
}

// spanningTreePairs returns the edges of Prim's minimum spanning tree over
// centroid distances, rooted at the largest region.
func spanningTreePairs(regions []*segmentation.Region) [][2]*segmentation.Region {
	n := len(regions)
	inTree := make([]bool, n)
	dist := make([]float64, n)
	parent := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		parent[i] = -1
	}
	dist[0] = 0

	var out [][2]*segmentation.Region
	for iter := 0; iter < n; iter++ {
		u := -1
		for i := 0; i < n; i++ {
			if !inTree[i] && (u < 0 || dist[i] < dist[u]) {
				u = i
			}
		}
		inTree[u] = true
		if parent[u] >= 0 {
			out = append(out, [2]*segmentation.Region{regions[parent[u]], regions[u]})
		}
		for v := 0; v < n; v++ {
			if inTree[v] {
				continue
			}
			if d := centroidDistance(regions[u], regions[v]); d < dist[v] {
				dist[v] = d
				parent[v] = u
			}
		}
	}
	return out
}
