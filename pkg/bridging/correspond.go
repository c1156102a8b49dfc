package bridging

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"cellmesh/internal/models"
)

// Correspondence pairs a boundary point of the source region with a
// boundary point of the target region it is nearest to.
type Correspondence struct {
	Source models.Coord
	Target models.Coord
}

// correspond finds, for every point of to, the nearest point(s) of from.
// Results are ordered by target index, then by source index.
func (e *Engine) correspond(ctx context.Context, from, to []models.Coord) ([]Correspondence, error) {
	if len(from) == 0 || len(to) == 0 {
		return nil, nil
	}

	strategy := e.Strategy
	if strategy == Auto {
		strategy = Matrix
		if limit := e.maxMatrixElements(); len(from)*len(to) > limit {
			strategy = KDTree
		}
	}

	var nearest func(j int) []int
	switch strategy {
	case KDTree:
		tree := newBoundaryTree(from)
		nearest = func(j int) []int {
			return nearestIndices(tree, to[j])
		}
	default:
		dist := squaredDistances(from, to)
		col := make([]float64, len(from))
		nearest = func(j int) []int {
			mat.Col(col, j, dist)
			return minIndices(col)
		}
	}

	out := make([]Correspondence, 0, len(to))
	for j := range to {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, i := range e.pickTies(nearest(j)) {
			out = append(out, Correspondence{Source: from[i], Target: to[j]})
		}
	}
	return out, nil
}

// squaredDistances returns the M×N matrix D with D[i][j] = |a_i - b_j|².
// It is evaluated as |a|² + |b|² - 2·A·Bᵀ, which is exact for voxel
// coordinates well below 2^26.
func squaredDistances(a, b []models.Coord) *mat.Dense {
	am := coordMatrix(a)
	bm := coordMatrix(b)

	var d mat.Dense
	d.Mul(am, bm.T())
	d.Scale(-2, &d)

	an := rowNorms(a)
	bn := rowNorms(b)
	d.Apply(func(i, j int, v float64) float64 {
		return v + an[i] + bn[j]
	}, &d)
	return &d
}

func coordMatrix(points []models.Coord) *mat.Dense {
	data := make([]float64, 0, 3*len(points))
	for _, p := range points {
		data = append(data, float64(p[0]), float64(p[1]), float64(p[2]))
	}
	return mat.NewDense(len(points), 3, data)
}

func rowNorms(points []models.Coord) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		v := []float64{float64(p[0]), float64(p[1]), float64(p[2])}
		out[i] = floats.Dot(v, v)
	}
	return out
}

// minIndices returns every index holding the minimum of values, ascending.
func minIndices(values []float64) []int {
	m := floats.Min(values)
	var out []int
	for i, v := range values {
		if v == m {
			out = append(out, i)
		}
	}
	return out
}

// pickTies applies the tie policy to an ascending list of tied indices.
func (e *Engine) pickTies(tied []int) []int {
	if len(tied) <= 1 {
		return tied
	}
	switch e.Ties {
	case FirstMatch:
		return tied[:1]
	case Random:
		return []int{tied[e.random().Intn(len(tied))]}
	default:
		return tied
	}
}
