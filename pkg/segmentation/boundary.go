package segmentation

import "cellmesh/internal/models"

// faceOffsets are the six face neighbours used for boundary tests.
var faceOffsets = Face.Offsets()

// Boundary returns the region's surface voxels in the global frame.
//
// The region is cropped to its bounding box and restricted to its own
// label. A voxel of the crop lies on the boundary when one of its face
// neighbours is not part of the region or falls outside the crop. Points
// are returned in raster order of the crop. The result is computed once
// and shared; callers must not modify it.
func (r *Region) Boundary() ([]models.Coord, error) {
	if r.Stale() {
		return nil, ErrStaleRegion
	}
	r.boundaryOnce.Do(func() {
		r.boundary = r.computeBoundary()
	})
	return r.boundary, nil
}

func (r *Region) computeBoundary() []models.Coord {
	lv := r.owner.Labels
	box := r.BBox
	shape := box.Shape()

	// Local sub-image of the bounding box holding only this label.
	local := make([]bool, shape[0]*shape[1]*shape[2])
	at := func(i, j, k int) int { return (i*shape[1]+j)*shape[2] + k }
	for i := 0; i < shape[0]; i++ {
		for j := 0; j < shape[1]; j++ {
			for k := 0; k < shape[2]; k++ {
				g := models.Coord{box.Min[0] + i, box.Min[1] + j, box.Min[2] + k}
				local[at(i, j, k)] = lv.At(g[0], g[1], g[2]) == r.Label
			}
		}
	}

	var out []models.Coord
	for i := 0; i < shape[0]; i++ {
		for j := 0; j < shape[1]; j++ {
			for k := 0; k < shape[2]; k++ {
				if !local[at(i, j, k)] {
					continue
				}
				edge := false
				for _, off := range faceOffsets {
					ni, nj, nk := i+off[0], j+off[1], k+off[2]
					if ni < 0 || nj < 0 || nk < 0 || ni >= shape[0] || nj >= shape[1] || nk >= shape[2] ||
						!local[at(ni, nj, nk)] {
						edge = true
						break
					}
				}
				if edge {
					out = append(out, models.Coord{box.Min[0] + i, box.Min[1] + j, box.Min[2] + k})
				}
			}
		}
	}
	return out
}
