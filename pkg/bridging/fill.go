package bridging

import (
	"cellmesh/internal/models"
	"cellmesh/pkg/segmentation"
)

// FillHoles sets every false voxel that cannot reach the border of the
// volume through face-adjacent false voxels. It returns the number of
// voxels filled.
func FillHoles(mask *models.Mask) int {
	n := mask.Len()
	outside := make([]bool, n)
	queue := make([]int, 0, 1024)

	seed := func(idx int) {
		if !mask.AtIndex(idx) && !outside[idx] {
			outside[idx] = true
			queue = append(queue, idx)
		}
	}
	for idx := 0; idx < n; idx++ {
		c := mask.Coord(idx)
		if c[0] == 0 || c[1] == 0 || c[2] == 0 ||
			c[0] == mask.Rows-1 || c[1] == mask.Cols-1 || c[2] == mask.Depth-1 {
			seed(idx)
		}
	}

	offsets := segmentation.Face.Offsets()
	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		c := mask.Coord(idx)
		for _, off := range offsets {
			nc := models.Coord{c[0] + off[0], c[1] + off[1], c[2] + off[2]}
			if mask.InBounds(nc) {
				seed(mask.Index(nc[0], nc[1], nc[2]))
			}
		}
	}

	filled := 0
	for idx := 0; idx < n; idx++ {
		if !outside[idx] && mask.SetIndex(idx, true) {
			filled++
		}
	}
	return filled
}
