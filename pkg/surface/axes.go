package surface

import (
	"fmt"

	"cellmesh/internal/models"
)

// AxisTransform permutes the three grid axes. Output axis i reads input
// axis Perm[i].
type AxisTransform struct {
	Perm [3]int
}

var (
	// Identity leaves the (row, col, depth) order unchanged.
	Identity = AxisTransform{Perm: [3]int{0, 1, 2}}

	// SwapRowCol exchanges the first two axes so that meshes come out in
	// (col, row, depth) order, which maps image x to mesh x.
	SwapRowCol = AxisTransform{Perm: [3]int{1, 0, 2}}
)

// Valid reports whether Perm is a permutation of 0, 1, 2.
func (t AxisTransform) Valid() bool {
	var seen [3]bool
	for _, p := range t.Perm {
		if p < 0 || p > 2 || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// Inverse returns the transform that undoes t.
func (t AxisTransform) Inverse() AxisTransform {
	var inv AxisTransform
	for i, p := range t.Perm {
		inv.Perm[p] = i
	}
	return inv
}

// Odd reports whether t is an odd permutation, i.e. whether it flips
// handedness and therefore triangle orientation.
func (t AxisTransform) Odd() bool {
	swaps := 0
	p := t.Perm
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if p[i] > p[j] {
				swaps++
			}
		}
	}
	return swaps%2 == 1
}

// Coord maps a grid coordinate into the transformed frame.
func (t AxisTransform) Coord(c models.Coord) models.Coord {
	return models.Coord{c[t.Perm[0]], c[t.Perm[1]], c[t.Perm[2]]}
}

// Point maps a continuous point into the transformed frame.
func (t AxisTransform) Point(p [3]float64) [3]float64 {
	return [3]float64{p[t.Perm[0]], p[t.Perm[1]], p[t.Perm[2]]}
}

// Shape maps grid dimensions into the transformed frame.
func (t AxisTransform) Shape(s [3]int) [3]int {
	return [3]int{s[t.Perm[0]], s[t.Perm[1]], s[t.Perm[2]]}
}

// ApplySpacing reorders the voxel spacing to follow the transformed axes.
func (t AxisTransform) ApplySpacing(s models.Spacing) models.Spacing {
	a := t.Point(s.Array())
	return models.Spacing{Row: a[0], Col: a[1], Depth: a[2]}
}

// ApplyMask returns a new mask with its axes permuted.
func (t AxisTransform) ApplyMask(m *models.Mask) (*models.Mask, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid axis permutation %v", t.Perm)
	}
	shape := t.Shape(m.Shape())
	out := models.NewMask(shape[0], shape[1], shape[2])
	for idx := 0; idx < m.Len(); idx++ {
		if m.AtIndex(idx) {
			out.SetCoord(t.Coord(m.Coord(idx)), true)
		}
	}
	return out, nil
}
