package segmentation

import (
	"fmt"
	"sort"
	"sync"

	"cellmesh/internal/models"
)

// DefaultAreaThreshold is the minimum voxel count of a kept region.
const DefaultAreaThreshold = 40

// BoundingBox is an axis-aligned voxel box. Min is inclusive, Max is exclusive.
type BoundingBox struct {
	Min models.Coord
	Max models.Coord
}

// Shape returns the box extent along each axis.
func (b BoundingBox) Shape() [3]int {
	return [3]int{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Contains reports whether c lies inside the box.
func (b BoundingBox) Contains(c models.Coord) bool {
	for a := 0; a < 3; a++ {
		if c[a] < b.Min[a] || c[a] >= b.Max[a] {
			return false
		}
	}
	return true
}

// Region is one connected component of a labeling pass.
//
// A Region is a snapshot: it stays valid only while the mask it was
// computed from is unchanged. Once the mask is mutated (for example by
// bridging), Boundary returns ErrStaleRegion and the caller must re-label.
type Region struct {
	Label    int32
	BBox     BoundingBox
	Centroid [3]float64
	Area     int

	owner *Labeling

	boundaryOnce sync.Once
	boundary     []models.Coord
}

// Stale reports whether the mask changed after this region was computed.
func (r *Region) Stale() bool {
	return r.owner.Stale()
}

// Contains reports whether voxel c carries this region's label.
func (r *Region) Contains(c models.Coord) bool {
	if !r.BBox.Contains(c) {
		return false
	}
	return r.owner.Labels.At(c[0], c[1], c[2]) == r.Label
}

// Voxels lists the region's voxels in raster order.
func (r *Region) Voxels() []models.Coord {
	out := make([]models.Coord, 0, r.Area)
	lv := r.owner.Labels
	for i := r.BBox.Min[0]; i < r.BBox.Max[0]; i++ {
		for j := r.BBox.Min[1]; j < r.BBox.Max[1]; j++ {
			for k := r.BBox.Min[2]; k < r.BBox.Max[2]; k++ {
				if lv.At(i, j, k) == r.Label {
					out = append(out, models.Coord{i, j, k})
				}
			}
		}
	}
	return out
}

// Labeling is the result of one labeling pass over a mask.
type Labeling struct {
	// Labels holds the label of every voxel; removed regions read as 0.
	Labels *models.LabelVolume

	// Regions are the surviving regions ordered by label.
	Regions []*Region

	// Found is the number of components before area filtering.
	Found int

	// Removed is the number of components dropped by the area filter.
	Removed int

	// Connectivity is the adjacency rule used for this pass.
	Connectivity Connectivity

	mask    *models.Mask
	version uint64
}

// Stale reports whether the labeled mask changed after labeling.
func (l *Labeling) Stale() bool {
	return l.mask.Version() != l.version
}

// Mask returns the mask this labeling was computed from.
func (l *Labeling) Mask() *models.Mask {
	return l.mask
}

// Region looks up a surviving region by label.
func (l *Labeling) Region(label int32) (*Region, bool) {
	i := sort.Search(len(l.Regions), func(i int) bool {
		return l.Regions[i].Label >= label
	})
	if i < len(l.Regions) && l.Regions[i].Label == label {
		return l.Regions[i], true
	}
	return nil, false
}

// ByArea returns the regions sorted by decreasing voxel count, ties by label.
func (l *Labeling) ByArea() []*Region {
	out := append([]*Region(nil), l.Regions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Area > out[j].Area
	})
	return out
}

// Largest returns the region with the most voxels, or nil if there are none.
func (l *Labeling) Largest() *Region {
	var best *Region
	for _, r := range l.Regions {
		if best == nil || r.Area > best.Area {
			best = r
		}
	}
	return best
}

// Areas returns the voxel count of every surviving region, ordered by label.
func (l *Labeling) Areas() []float64 {
	out := make([]float64, len(l.Regions))
	for i, r := range l.Regions {
		out[i] = float64(r.Area)
	}
	return out
}

// Label finds the connected components of mask without filtering.
// It fails with *SegmentationError when the mask has no true voxels.
func Label(mask *models.Mask, conn Connectivity) (*Labeling, error) {
	return LabelAndFilter(mask, conn, 0)
}

// LabelAndFilter labels the connected components of mask and removes every
// component with fewer than areaThreshold voxels.
//
// Removed components are cleared from mask in place and their label is
// retired (set to 0 in the label volume). The returned labeling is valid
// for the filtered mask. It fails with *SegmentationError when no component
// is found or none survives the filter.
func LabelAndFilter(mask *models.Mask, conn Connectivity, areaThreshold int) (*Labeling, error) {
	if mask == nil {
		return nil, fmt.Errorf("mask is nil")
	}
	if !conn.Valid() {
		return nil, fmt.Errorf("invalid connectivity %d", int(conn))
	}

	labels := models.NewLabelVolume(mask.Rows, mask.Cols, mask.Depth)
	offsets := conn.Offsets()

	type accum struct {
		area     int
		min, max models.Coord
		sum      [3]float64
	}
	var stats []accum
	foreground := 0

	queue := make([]int, 0, 1024)
	for start := 0; start < mask.Len(); start++ {
		if !mask.AtIndex(start) || labels.Data[start] != 0 {
			continue
		}
		label := int32(len(stats) + 1)
		c0 := mask.Coord(start)
		acc := accum{min: c0, max: c0}

		labels.Data[start] = label
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			c := mask.Coord(idx)

			acc.area++
			for a := 0; a < 3; a++ {
				acc.sum[a] += float64(c[a])
				if c[a] < acc.min[a] {
					acc.min[a] = c[a]
				}
				if c[a] > acc.max[a] {
					acc.max[a] = c[a]
				}
			}

			for _, off := range offsets {
				n := models.Coord{c[0] + off[0], c[1] + off[1], c[2] + off[2]}
				if !mask.InBounds(n) {
					continue
				}
				nIdx := mask.Index(n[0], n[1], n[2])
				if mask.AtIndex(nIdx) && labels.Data[nIdx] == 0 {
					labels.Data[nIdx] = label
					queue = append(queue, nIdx)
				}
			}
		}
		foreground += acc.area
		stats = append(stats, acc)
	}

	if len(stats) == 0 {
		return nil, &SegmentationError{
			ForegroundVoxels: foreground,
			AreaThreshold:    areaThreshold,
		}
	}

	l := &Labeling{
		Labels:       labels,
		Found:        len(stats),
		Connectivity: conn,
		mask:         mask,
	}

	removed := make([]bool, len(stats)+1)
	largest := 0
	for i, acc := range stats {
		if acc.area > largest {
			largest = acc.area
		}
		if acc.area < areaThreshold {
			removed[i+1] = true
			l.Removed++
			continue
		}
		n := float64(acc.area)
		l.Regions = append(l.Regions, &Region{
			Label: int32(i + 1),
			BBox: BoundingBox{
				Min: acc.min,
				Max: models.Coord{acc.max[0] + 1, acc.max[1] + 1, acc.max[2] + 1},
			},
			Centroid: [3]float64{acc.sum[0] / n, acc.sum[1] / n, acc.sum[2] / n},
			Area:     acc.area,
			owner:    l,
		})
	}

	if l.Removed > 0 {
		for idx, label := range labels.Data {
			if label != 0 && removed[label] {
				labels.Data[idx] = 0
				mask.SetIndex(idx, false)
			}
		}
	}
	l.version = mask.Version()

	if len(l.Regions) == 0 {
		return nil, &SegmentationError{
			ForegroundVoxels: foreground,
			Components:       len(stats),
			AreaThreshold:    areaThreshold,
			LargestArea:      largest,
		}
	}
	return l, nil
}
