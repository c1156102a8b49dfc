// Package stack reads intensity volumes from slice images or NumPy files
// and writes volumes, masks and label maps back to NumPy files.
package stack

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"cellmesh/internal/models"
)

var sliceExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Load reads a volume from a slice directory or a .npy file.
func Load(path string, channel int, spacing models.Spacing) (*models.Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "load volume")
	}
	var vol *models.Volume
	switch {
	case info.IsDir():
		vol, err = LoadSlices(path, channel)
	case strings.EqualFold(filepath.Ext(path), ".npy"):
		vol, err = LoadNpy(path)
	default:
		return nil, errors.Errorf("load volume: unsupported input %s", path)
	}
	if err != nil {
		return nil, err
	}
	vol.Spacing = spacing
	return vol, nil
}

// SliceFiles lists the image files in dir ordered by the number in their name.
func SliceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read slice directory")
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if sliceExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no slice images found in %s", dir)
	}
	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	for i, f := range files {
		files[i] = filepath.Join(dir, f)
	}
	return files, nil
}

// LoadSlices reads every slice image in dir into a volume. Slice i becomes
// depth i; image y is the row axis and image x the column axis. The given
// channel (0 red, 1 green, 2 blue, 3 alpha) supplies intensities in 0..255.
func LoadSlices(dir string, channel int) (*models.Volume, error) {
	if channel < 0 || channel > 3 {
		return nil, errors.Errorf("invalid channel %d (must be 0-3)", channel)
	}
	files, err := SliceFiles(dir)
	if err != nil {
		return nil, err
	}

	var vol *models.Volume
	for d, path := range files {
		img, err := imaging.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "load slice %s", filepath.Base(path))
		}
		nrgba := imaging.Clone(img)
		w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
		if vol == nil {
			vol = models.NewVolume(h, w, len(files), models.Spacing{Row: 1, Col: 1, Depth: 1})
		} else if h != vol.Rows || w != vol.Cols {
			return nil, errors.Errorf("slice %s is %dx%d, expected %dx%d",
				filepath.Base(path), w, h, vol.Cols, vol.Rows)
		}
		for y := 0; y < h; y++ {
			row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+4*w]
			for x := 0; x < w; x++ {
				vol.Set(y, x, d, float64(row[4*x+channel]))
			}
		}
	}
	return vol, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}
