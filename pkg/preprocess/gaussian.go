// Package preprocess turns a raw intensity volume into a binary mask by
// Gaussian smoothing followed by a strict intensity threshold.
package preprocess

import (
	"fmt"
	"math"
	"runtime"

	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/floats"

	"cellmesh/internal/models"
)

// truncate is the kernel half-width in standard deviations.
const truncate = 4.0

// Preprocessor holds the smoothing and threshold parameters.
type Preprocessor struct {
	// Sigma is the standard deviation of the isotropic Gaussian, in voxels.
	// Values <= 0 disable smoothing.
	Sigma float64

	// Threshold is the binarization cutoff; voxels strictly above it are kept.
	Threshold float64

	// NumWorkers bounds the goroutines used per filter pass.
	// Zero means one per CPU.
	NumWorkers int
}

// NewPreprocessor creates a preprocessor with one worker per CPU.
func NewPreprocessor(sigma, threshold float64) *Preprocessor {
	return &Preprocessor{
		Sigma:      sigma,
		Threshold:  threshold,
		NumWorkers: runtime.NumCPU(),
	}
}

// Preprocess smooths the volume and thresholds it into a mask.
func Preprocess(vol *models.Volume, sigma, threshold float64) (*models.Mask, error) {
	return NewPreprocessor(sigma, threshold).Apply(vol)
}

// Apply runs smoothing and thresholding. The input volume is not modified.
func (p *Preprocessor) Apply(vol *models.Volume) (*models.Mask, error) {
	smoothed, err := p.Smooth(vol)
	if err != nil {
		return nil, err
	}
	return Threshold(smoothed, p.Threshold), nil
}

// Smooth returns a Gaussian-filtered copy of the volume.
//
// The filter is separable: a 1D kernel is applied along rows, columns and
// depth in turn. Out-of-range samples are mirrored about the edge of the
// volume (d c b a | a b c d | d c b a).
func (p *Preprocessor) Smooth(vol *models.Volume) (*models.Volume, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(p.Sigma) || p.Sigma < 0 {
		return nil, fmt.Errorf("invalid smoothing sigma %v", p.Sigma)
	}

	out := &models.Volume{
		Data:    make([]float64, len(vol.Data)),
		Rows:    vol.Rows,
		Cols:    vol.Cols,
		Depth:   vol.Depth,
		Spacing: vol.Spacing,
	}
	copy(out.Data, vol.Data)
	if p.Sigma == 0 {
		return out, nil
	}

	kernel := gaussianKernel(p.Sigma)
	scratch := make([]float64, len(out.Data))
	for axis := 0; axis < 3; axis++ {
		p.filterAxis(out, scratch, axis, kernel)
		out.Data, scratch = scratch, out.Data
	}
	return out, nil
}

// filterAxis convolves every line along axis from vol.Data into dst.
func (p *Preprocessor) filterAxis(vol *models.Volume, dst []float64, axis int, kernel []float64) {
	shape := vol.Shape()
	strides := [3]int{vol.Cols * vol.Depth, vol.Depth, 1}

	n := shape[axis]
	stride := strides[axis]
	other := [2]int{}
	k := 0
	for a := 0; a < 3; a++ {
		if a != axis {
			other[k] = a
			k++
		}
	}
	numLines := shape[other[0]] * shape[other[1]]
	radius := len(kernel) / 2

	workers := p.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	src := vol.Data
	essentials.ConcurrentMap(workers, numLines, func(line int) {
		i := line / shape[other[1]]
		j := line % shape[other[1]]
		base := i*strides[other[0]] + j*strides[other[1]]
		for x := 0; x < n; x++ {
			var sum float64
			for t := -radius; t <= radius; t++ {
				sum += kernel[t+radius] * src[base+reflectIndex(x+t, n)*stride]
			}
			dst[base+x*stride] = sum
		}
	})
}

// gaussianKernel builds a normalized 1D kernel of radius int(4*sigma+0.5).
func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// reflectIndex mirrors i into [0, n) with the edge sample repeated.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// Threshold returns a mask that is true where the volume is strictly
// greater than t.
func Threshold(vol *models.Volume, t float64) *models.Mask {
	data := make([]bool, len(vol.Data))
	for i, v := range vol.Data {
		data[i] = v > t
	}
	// Lengths match by construction.
	mask, _ := models.NewMaskFromData(vol.Rows, vol.Cols, vol.Depth, data)
	return mask
}
