// Package surface isolates one labeled region of a mask and turns it
// into a closed triangle mesh in physical units using marching cubes.
package surface

import (
	"fmt"
	"math"

	"github.com/unixpickle/model3d/model3d"

	"cellmesh/internal/models"
)

// EmptyVolumeError is returned when the isolated region has no voxels.
type EmptyVolumeError struct {
	Label int32
	Shape [3]int
}

func (e *EmptyVolumeError) Error() string {
	return fmt.Sprintf("surface: label %d has no voxels in %dx%dx%d volume",
		e.Label, e.Shape[0], e.Shape[1], e.Shape[2])
}

// Isolate returns a new mask that is true only where mask is true and
// labels equals target.
func Isolate(mask *models.Mask, labels *models.LabelVolume, target int32) (*models.Mask, error) {
	if mask.Shape() != labels.Shape() {
		return nil, fmt.Errorf("mask shape %v does not match label shape %v", mask.Shape(), labels.Shape())
	}
	out := models.NewMask(mask.Rows, mask.Cols, mask.Depth)
	for idx, l := range labels.Data {
		if l == target && mask.AtIndex(idx) {
			out.SetIndex(idx, true)
		}
	}
	return out, nil
}

// Extractor converts a binary mask into a mesh.
type Extractor struct {
	// Spacing is the physical voxel size in (row, col, depth) order.
	Spacing models.Spacing

	// StepSize is the marching cubes grid step in voxels. Larger steps
	// give coarser meshes. Must be at least 1.
	StepSize int

	// SearchIters refines vertex positions by bisection when positive.
	SearchIters int

	// Axes is applied to the mask and spacing before extraction.
	Axes AxisTransform

	// RestoreAxes maps the finished mesh back to (row, col, depth) order.
	RestoreAxes bool
}

// NewExtractor returns an extractor using the (col, row, depth) output
// convention.
func NewExtractor(spacing models.Spacing, step int) *Extractor {
	return &Extractor{
		Spacing:  spacing,
		StepSize: step,
		Axes:     SwapRowCol,
	}
}

// ExtractSurface isolates target in labels and meshes it.
func ExtractSurface(mask *models.Mask, labels *models.LabelVolume, target int32, spacing models.Spacing, step int) (*Mesh, error) {
	isolated, err := Isolate(mask, labels, target)
	if err != nil {
		return nil, err
	}
	if isolated.Count() == 0 {
		return nil, &EmptyVolumeError{Label: target, Shape: mask.Shape()}
	}
	return NewExtractor(spacing, step).Extract(isolated)
}

// Extract meshes every true voxel of mask.
func (e *Extractor) Extract(mask *models.Mask) (*Mesh, error) {
	if e.StepSize < 1 {
		return nil, fmt.Errorf("invalid step size %d (must be >= 1)", e.StepSize)
	}
	if !e.Spacing.Valid() {
		return nil, fmt.Errorf("invalid spacing %+v", e.Spacing)
	}
	axes := e.Axes
	if axes == (AxisTransform{}) {
		axes = Identity
	}
	if !axes.Valid() {
		return nil, fmt.Errorf("invalid axis permutation %v", axes.Perm)
	}
	if mask.Count() == 0 {
		return nil, &EmptyVolumeError{Shape: mask.Shape()}
	}

	grid, err := axes.ApplyMask(mask)
	if err != nil {
		return nil, err
	}
	spacing := axes.ApplySpacing(e.Spacing)

	solid := newVoxelSolid(grid, e.StepSize)
	delta := float64(e.StepSize)
	var raw *model3d.Mesh
	if e.SearchIters > 0 {
		raw = model3d.MarchingCubesSearch(solid, delta, e.SearchIters)
	} else {
		raw = model3d.MarchingCubes(solid, delta)
	}

	scale := model3d.Coord3D{X: spacing.Row, Y: spacing.Col, Z: spacing.Depth}
	scaled := raw.MapCoords(func(c model3d.Coord3D) model3d.Coord3D {
		return c.Mul(scale)
	})

	mesh := newIndexedMesh(scaled.TriangleSlice())
	if len(mesh.Faces) == 0 {
		return nil, fmt.Errorf("marching cubes produced no faces at step %d", e.StepSize)
	}
	if e.RestoreAxes {
		mesh = mesh.PermuteAxes(axes.Inverse())
	}
	return mesh, nil
}

// voxelSolid exposes a mask as a model3d.Solid sampled at voxel centers.
// Voxel (i, j, k) sits at point (i, j, k). The bounds extend one step
// past the grid so that every surface is closed.
type voxelSolid struct {
	mask *models.Mask
	pad  float64
}

func newVoxelSolid(mask *models.Mask, step int) *voxelSolid {
	return &voxelSolid{mask: mask, pad: float64(step)}
}

// Min gets the minimum of the bounding box.
func (v *voxelSolid) Min() model3d.Coord3D {
	return model3d.Coord3D{X: -v.pad, Y: -v.pad, Z: -v.pad}
}

// Max gets the maximum of the bounding box.
func (v *voxelSolid) Max() model3d.Coord3D {
	return model3d.Coord3D{
		X: float64(v.mask.Rows-1) + v.pad,
		Y: float64(v.mask.Cols-1) + v.pad,
		Z: float64(v.mask.Depth-1) + v.pad,
	}
}

// Contains checks the voxel nearest to c.
func (v *voxelSolid) Contains(c model3d.Coord3D) bool {
	p := models.Coord{int(math.Round(c.X)), int(math.Round(c.Y)), int(math.Round(c.Z))}
	if !v.mask.InBounds(p) {
		return false
	}
	return v.mask.AtCoord(p)
}
