package bridging

import (
	"cellmesh/internal/models"
	"cellmesh/pkg/segmentation"
)

// Rasterize returns the voxels of the straight segment from p1 to p2,
// both endpoints included.
//
// The walk takes max(|Δrow|, |Δcol|, |Δdepth|) steps and rounds the
// other axes at each step, so consecutive voxels are 26-adjacent. With
// Edge or Face connectivity extra voxels are inserted, one axis at a
// time, until every consecutive pair is adjacent under that rule.
func Rasterize(p1, p2 models.Coord, conn segmentation.Connectivity) []models.Coord {
	var delta [3]int
	n := 0
	for a := 0; a < 3; a++ {
		delta[a] = p2[a] - p1[a]
		if d := absInt(delta[a]); d > n {
			n = d
		}
	}
	if n == 0 {
		return []models.Coord{p1}
	}
	if !conn.Valid() {
		conn = segmentation.Full
	}

	path := make([]models.Coord, 0, n+1)
	path = append(path, p1)
	prev := p1
	for s := 1; s <= n; s++ {
		var next models.Coord
		for a := 0; a < 3; a++ {
			next[a] = p1[a] + roundDiv(delta[a]*s, n)
		}
		path = appendStep(path, prev, next, int(conn))
		prev = next
	}
	return path
}

// appendStep appends next to path, first inserting single-axis moves
// while prev and next differ on more than maxChanged axes.
func appendStep(path []models.Coord, prev, next models.Coord, maxChanged int) []models.Coord {
	cur := prev
	for {
		changed := 0
		for a := 0; a < 3; a++ {
			if cur[a] != next[a] {
				changed++
			}
		}
		if changed <= maxChanged {
			break
		}
		for a := 0; a < 3; a++ {
			if cur[a] != next[a] {
				cur[a] = next[a]
				break
			}
		}
		path = append(path, cur)
	}
	return append(path, next)
}

// roundDiv returns num/den rounded half away from zero. den must be positive.
func roundDiv(num, den int) int {
	if num >= 0 {
		return (2*num + den) / (2 * den)
	}
	return -((-2*num + den) / (2 * den))
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
