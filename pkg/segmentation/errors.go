package segmentation

import (
	"errors"
	"fmt"
)

// ErrStaleRegion is returned when a Region is queried after the mask it
// was computed from has been modified. Re-label to obtain fresh regions.
var ErrStaleRegion = errors.New("region is stale: mask changed since labeling")

// SegmentationError reports that no usable cell signal was found.
type SegmentationError struct {
	// ForegroundVoxels is the number of true voxels in the mask at labeling time.
	ForegroundVoxels int

	// Components is the number of connected components found before filtering.
	Components int

	// AreaThreshold is the minimum voxel count a component needed to survive.
	AreaThreshold int

	// LargestArea is the voxel count of the biggest component, 0 if none.
	LargestArea int
}

func (e *SegmentationError) Error() string {
	if e.Components == 0 {
		return fmt.Sprintf("segmentation: no connected regions found (%d foreground voxels)",
			e.ForegroundVoxels)
	}
	return fmt.Sprintf("segmentation: none of %d regions reached the area threshold %d (largest %d voxels)",
		e.Components, e.AreaThreshold, e.LargestArea)
}
