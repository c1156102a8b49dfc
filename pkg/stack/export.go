package stack

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"cellmesh/internal/models"
)

// ExtractMaskSlice renders one plane of a mask as a grayscale image with
// foreground at 255.
//
// Axis names follow image conventions: "x" cuts at a fixed column (image is
// depth wide, rows high), "y" at a fixed row (cols wide, depth high) and
// "z" at a fixed depth (cols wide, rows high). A "z" slice therefore has the
// same layout as the input slice it came from.
func ExtractMaskSlice(mask *models.Mask, axis string, position int) (*image.Gray, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	limit, err := axisLength(mask, axis)
	if err != nil {
		return nil, err
	}
	if position >= limit {
		return nil, fmt.Errorf("position %d exceeds %s extent %d", position, axis, limit)
	}

	value := func(on bool) color.Gray {
		if on {
			return color.Gray{Y: 255}
		}
		return color.Gray{}
	}

	var img *image.Gray
	switch axis {
	case "x", "X":
		img = image.NewGray(image.Rect(0, 0, mask.Depth, mask.Rows))
		for y := 0; y < mask.Rows; y++ {
			for z := 0; z < mask.Depth; z++ {
				img.SetGray(z, y, value(mask.At(y, position, z)))
			}
		}
	case "y", "Y":
		img = image.NewGray(image.Rect(0, 0, mask.Cols, mask.Depth))
		for z := 0; z < mask.Depth; z++ {
			for x := 0; x < mask.Cols; x++ {
				img.SetGray(x, z, value(mask.At(position, x, z)))
			}
		}
	default:
		img = image.NewGray(image.Rect(0, 0, mask.Cols, mask.Rows))
		for y := 0; y < mask.Rows; y++ {
			for x := 0; x < mask.Cols; x++ {
				img.SetGray(x, y, value(mask.At(y, x, position)))
			}
		}
	}
	return img, nil
}

// SaveMaskSlices writes every plane of the mask along axis as PNG files
// named slice_<axis>_<position>.png in outputDir.
func SaveMaskSlices(mask *models.Mask, axis string, outputDir string) error {
	limit, err := axisLength(mask, axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < limit; pos++ {
		img, err := ExtractMaskSlice(mask, axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := imaging.Save(img, filename); err != nil {
			return fmt.Errorf("failed to save slice %s: %v", filename, err)
		}
	}
	return nil
}

func axisLength(mask *models.Mask, axis string) (int, error) {
	switch axis {
	case "x", "X":
		return mask.Cols, nil
	case "y", "Y":
		return mask.Rows, nil
	case "z", "Z":
		return mask.Depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}
