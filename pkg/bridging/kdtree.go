package bridging

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"cellmesh/internal/models"
)

// voxelPoint is a boundary voxel tagged with its position in the boundary list
type voxelPoint struct {
	X, Y, Z float64
	Index   int
}

// Compare implements the kdtree.Comparable interface
func (p voxelPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(voxelPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p voxelPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p voxelPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(voxelPoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// voxelPoints satisfies kdtree.Interface
type voxelPoints []voxelPoint

func (p voxelPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p voxelPoints) Len() int                              { return len(p) }
func (p voxelPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p voxelPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(voxelPlane{voxelPoints: p, Dim: d}, kdtree.MedianOfRandoms(voxelPlane{voxelPoints: p, Dim: d}, 100))
}

// voxelPlane implements sort.Interface and kdtree.SortSlicer for voxelPoints
type voxelPlane struct {
	voxelPoints
	kdtree.Dim
}

func (p voxelPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.voxelPoints[i].X < p.voxelPoints[j].X
	case 1:
		return p.voxelPoints[i].Y < p.voxelPoints[j].Y
	case 2:
		return p.voxelPoints[i].Z < p.voxelPoints[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p voxelPlane) Slice(start, end int) kdtree.SortSlicer {
	return voxelPlane{voxelPoints: p.voxelPoints[start:end], Dim: p.Dim}
}

func (p voxelPlane) Swap(i, j int) {
	p.voxelPoints[i], p.voxelPoints[j] = p.voxelPoints[j], p.voxelPoints[i]
}

func toVoxelPoint(c models.Coord, index int) voxelPoint {
	return voxelPoint{X: float64(c[0]), Y: float64(c[1]), Z: float64(c[2]), Index: index}
}

// newBoundaryTree indexes a boundary point set. The input slice is not reordered.
func newBoundaryTree(points []models.Coord) *kdtree.Tree {
	pts := make(voxelPoints, len(points))
	for i, c := range points {
		pts[i] = toVoxelPoint(c, i)
	}
	return kdtree.New(pts, false)
}

// nearestIndices returns the indices of every tree point at the minimum
// distance from q, in ascending order of index.
func nearestIndices(tree *kdtree.Tree, q models.Coord) []int {
	query := toVoxelPoint(q, -1)
	_, dist := tree.Nearest(query)

	keeper := kdtree.NewDistKeeper(dist)
	tree.NearestSet(keeper, query)

	var out []int
	for _, cd := range keeper.Heap {
		// The keeper is seeded with a nil sentinel at the search radius.
		if cd.Comparable == nil {
			continue
		}
		out = append(out, cd.Comparable.(voxelPoint).Index)
	}
	sort.Ints(out)
	return out
}
