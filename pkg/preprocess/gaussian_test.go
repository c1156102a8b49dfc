package preprocess

import (
	"math"
	"testing"

	"cellmesh/internal/models"
)

func newTestVolume(rows, cols, depth int, fill func(r, c, d int) float64) *models.Volume {
	vol := models.NewVolume(rows, cols, depth, models.Spacing{Row: 1, Col: 1, Depth: 1})
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			for d := 0; d < depth; d++ {
				vol.Set(r, c, d, fill(r, c, d))
			}
		}
	}
	return vol
}

// TestGaussianKernel verifies kernel size and normalization
func TestGaussianKernel(t *testing.T) {
	tests := []struct {
		sigma  float64
		length int
	}{
		{0.5, 5},
		{1, 9},
		{2, 17},
	}

	for _, tt := range tests {
		k := gaussianKernel(tt.sigma)
		if len(k) != tt.length {
			t.Errorf("sigma %v: expected kernel length %d, got %d", tt.sigma, tt.length, len(k))
		}
		sum := 0.0
		for _, v := range k {
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("sigma %v: kernel sums to %v", tt.sigma, sum)
		}
		for i := range k {
			if math.Abs(k[i]-k[len(k)-1-i]) > 1e-15 {
				t.Errorf("sigma %v: kernel not symmetric at %d", tt.sigma, i)
			}
		}
	}
}

// TestReflectIndex verifies mirrored boundary handling
func TestReflectIndex(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{-1, 4, 0},
		{-2, 4, 1},
		{0, 4, 0},
		{3, 4, 3},
		{4, 4, 3},
		{5, 4, 2},
		{-3, 1, 0},
		{9, 4, 1},
	}
	for _, tt := range tests {
		if got := reflectIndex(tt.i, tt.n); got != tt.want {
			t.Errorf("reflectIndex(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

// TestSmoothConstantVolume checks that a constant field is unchanged
func TestSmoothConstantVolume(t *testing.T) {
	vol := newTestVolume(6, 5, 4, func(r, c, d int) float64 { return 3.5 })
	p := NewPreprocessor(1.5, 0)

	out, err := p.Smooth(vol)
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	for i, v := range out.Data {
		if math.Abs(v-3.5) > 1e-9 {
			t.Fatalf("voxel %d: expected 3.5, got %v", i, v)
		}
	}
}

// TestSmoothPreservesMass checks an interior impulse spreads without losing energy
func TestSmoothPreservesMass(t *testing.T) {
	vol := newTestVolume(15, 15, 15, func(r, c, d int) float64 {
		if r == 7 && c == 7 && d == 7 {
			return 1
		}
		return 0
	})
	p := &Preprocessor{Sigma: 1, NumWorkers: 3}

	out, err := p.Smooth(vol)
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}

	sum := 0.0
	for _, v := range out.Data {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("Expected total mass 1, got %v", sum)
	}
	if out.At(7, 7, 7) >= 1 || out.At(7, 7, 7) <= out.At(7, 7, 8) {
		t.Errorf("Expected peak at the impulse, got center %v neighbor %v", out.At(7, 7, 7), out.At(7, 7, 8))
	}
	if math.Abs(out.At(6, 7, 7)-out.At(7, 7, 6)) > 1e-12 {
		t.Error("Expected isotropic response")
	}
	if vol.At(7, 7, 7) != 1 {
		t.Error("Input volume was modified")
	}
}

// TestSmoothZeroSigma verifies that sigma 0 returns an identical copy
func TestSmoothZeroSigma(t *testing.T) {
	vol := newTestVolume(3, 3, 3, func(r, c, d int) float64 { return float64(r*9 + c*3 + d) })
	out, err := (&Preprocessor{Sigma: 0}).Smooth(vol)
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	for i := range vol.Data {
		if out.Data[i] != vol.Data[i] {
			t.Fatalf("voxel %d differs: %v vs %v", i, out.Data[i], vol.Data[i])
		}
	}
}

// TestSmoothInvalidInput verifies error reporting
func TestSmoothInvalidInput(t *testing.T) {
	vol := newTestVolume(3, 3, 3, func(r, c, d int) float64 { return 0 })
	if _, err := (&Preprocessor{Sigma: -1}).Smooth(vol); err == nil {
		t.Error("Expected error for negative sigma")
	}

	bad := &models.Volume{Data: make([]float64, 5), Rows: 2, Cols: 2, Depth: 2}
	if _, err := Preprocess(bad, 1, 0); err == nil {
		t.Error("Expected error for shape mismatch")
	}
}

// TestThresholdStrict verifies that values equal to the threshold are excluded
func TestThresholdStrict(t *testing.T) {
	vol := newTestVolume(1, 1, 3, func(r, c, d int) float64 { return float64(d) })
	mask := Threshold(vol, 1)

	want := []bool{false, false, true}
	for d, w := range want {
		if mask.At(0, 0, d) != w {
			t.Errorf("depth %d: expected %v, got %v", d, w, mask.At(0, 0, d))
		}
	}
}

// TestPreprocessBlob checks an end-to-end threshold of a smoothed cube
func TestPreprocessBlob(t *testing.T) {
	vol := newTestVolume(12, 12, 12, func(r, c, d int) float64 {
		if r >= 4 && r < 8 && c >= 4 && c < 8 && d >= 4 && d < 8 {
			return 10
		}
		return 0
	})
	mask, err := Preprocess(vol, 1, 1)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if !mask.At(5, 5, 5) {
		t.Error("Expected cube center to survive thresholding")
	}
	if mask.At(0, 0, 0) {
		t.Error("Expected far corner to be background")
	}
	if mask.Count() < 64 {
		t.Errorf("Expected at least 64 foreground voxels, got %d", mask.Count())
	}
}
