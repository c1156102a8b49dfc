package stack

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/disintegration/imaging"

	"cellmesh/internal/models"
)

func writeSlice(t *testing.T, path string, w, h int, value func(x, y int) uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: value(x, y)})
		}
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("Failed to write slice: %v", err)
	}
}

// TestExtractNumber verifies numeric ordering keys for slice names
func TestExtractNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"slice_10.png", 10},
		{"/tmp/z002.tif", 2},
		{"cell.png", 0},
	}
	for _, tt := range tests {
		if got := extractNumber(tt.name); got != tt.want {
			t.Errorf("extractNumber(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

// TestLoadSlices checks slice order, axis layout and intensities
func TestLoadSlices(t *testing.T) {
	dir := t.TempDir()
	// Written out of order; numeric sort must restore 1, 2, 10.
	for _, n := range []int{10, 1, 2} {
		n := n
		path := filepath.Join(dir, "slice_"+strconv.Itoa(n)+".png")
		writeSlice(t, path, 4, 3, func(x, y int) uint8 { return uint8(n*10 + x + 4*y) })
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644); err != nil {
		t.Fatal(err)
	}

	vol, err := LoadSlices(dir, 0)
	if err != nil {
		t.Fatalf("LoadSlices failed: %v", err)
	}
	if vol.Shape() != [3]int{3, 4, 3} {
		t.Fatalf("Expected shape 3x4x3, got %v", vol.Shape())
	}
	order := []int{1, 2, 10}
	for d, n := range order {
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				want := float64(n*10 + x + 4*y)
				if got := vol.At(y, x, d); got != want {
					t.Fatalf("Voxel (%d,%d,%d): expected %v, got %v", y, x, d, want, got)
				}
			}
		}
	}
}

// TestLoadSlicesErrors verifies mismatched shapes and empty directories
func TestLoadSlicesErrors(t *testing.T) {
	empty := t.TempDir()
	if _, err := LoadSlices(empty, 0); err == nil {
		t.Error("Expected error for directory without slices")
	}

	dir := t.TempDir()
	writeSlice(t, filepath.Join(dir, "1.png"), 4, 4, func(x, y int) uint8 { return 0 })
	writeSlice(t, filepath.Join(dir, "2.png"), 5, 4, func(x, y int) uint8 { return 0 })
	if _, err := LoadSlices(dir, 0); err == nil {
		t.Error("Expected error for mismatched slice sizes")
	}
	if _, err := LoadSlices(dir, 7); err == nil {
		t.Error("Expected error for invalid channel")
	}
}

// TestNpyRoundTrip verifies volumes, masks and labels survive a save and load
func TestNpyRoundTrip(t *testing.T) {
	dir := t.TempDir()

	vol := models.NewVolume(2, 3, 4, models.Spacing{Row: 1, Col: 1, Depth: 1})
	for i := range vol.Data {
		vol.Data[i] = float64(i) * 0.5
	}
	volPath := filepath.Join(dir, "volume.npy")
	if err := SaveVolumeNpy(volPath, vol); err != nil {
		t.Fatalf("SaveVolumeNpy failed: %v", err)
	}
	loaded, err := LoadNpy(volPath)
	if err != nil {
		t.Fatalf("LoadNpy failed: %v", err)
	}
	if loaded.Shape() != vol.Shape() {
		t.Fatalf("Expected shape %v, got %v", vol.Shape(), loaded.Shape())
	}
	for i := range vol.Data {
		if loaded.Data[i] != vol.Data[i] {
			t.Fatalf("Value %d: expected %v, got %v", i, vol.Data[i], loaded.Data[i])
		}
	}

	mask := models.NewMask(2, 2, 2)
	mask.Set(1, 0, 1, true)
	maskPath := filepath.Join(dir, "mask.npy")
	if err := SaveMaskNpy(maskPath, mask); err != nil {
		t.Fatalf("SaveMaskNpy failed: %v", err)
	}
	loaded, err = LoadNpy(maskPath)
	if err != nil {
		t.Fatalf("LoadNpy failed: %v", err)
	}
	if loaded.At(1, 0, 1) != 1 || loaded.At(0, 0, 0) != 0 {
		t.Error("Mask values not preserved")
	}

	labels := models.NewLabelVolume(1, 2, 2)
	labels.Data[3] = 7
	labelPath := filepath.Join(dir, "labels.npy")
	if err := SaveLabelsNpy(labelPath, labels); err != nil {
		t.Fatalf("SaveLabelsNpy failed: %v", err)
	}
	loaded, err = LoadNpy(labelPath)
	if err != nil {
		t.Fatalf("LoadNpy failed: %v", err)
	}
	if loaded.Data[3] != 7 {
		t.Errorf("Expected label 7, got %v", loaded.Data[3])
	}
}

// TestLoadDispatch verifies input type detection and spacing assignment
func TestLoadDispatch(t *testing.T) {
	dir := t.TempDir()
	vol := models.NewVolume(2, 2, 2, models.Spacing{})
	path := filepath.Join(dir, "v.npy")
	if err := SaveVolumeNpy(path, vol); err != nil {
		t.Fatalf("SaveVolumeNpy failed: %v", err)
	}

	spacing := models.Spacing{Row: 0.3, Col: 0.3, Depth: 0.7}
	loaded, err := Load(path, 0, spacing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Spacing != spacing {
		t.Errorf("Expected spacing %+v, got %+v", spacing, loaded.Spacing)
	}

	other := filepath.Join(dir, "v.raw")
	if err := os.WriteFile(other, []byte{0}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(other, 0, spacing); err == nil {
		t.Error("Expected error for unsupported input")
	}
	if _, err := Load(filepath.Join(dir, "missing"), 0, spacing); err == nil {
		t.Error("Expected error for missing input")
	}
}

// TestExtractMaskSlice verifies plane layout along each axis
func TestExtractMaskSlice(t *testing.T) {
	mask := models.NewMask(3, 4, 5)
	mask.Set(1, 2, 3, true)

	tests := []struct {
		axis     string
		position int
		w, h     int
		x, y     int
	}{
		{"x", 2, 5, 3, 3, 1},
		{"y", 1, 4, 5, 2, 3},
		{"z", 3, 4, 3, 2, 1},
	}
	for _, tt := range tests {
		img, err := ExtractMaskSlice(mask, tt.axis, tt.position)
		if err != nil {
			t.Fatalf("ExtractMaskSlice(%s) failed: %v", tt.axis, err)
		}
		b := img.Bounds()
		if b.Dx() != tt.w || b.Dy() != tt.h {
			t.Errorf("Axis %s: expected %dx%d image, got %dx%d", tt.axis, tt.w, tt.h, b.Dx(), b.Dy())
		}
		if img.GrayAt(tt.x, tt.y).Y != 255 {
			t.Errorf("Axis %s: expected foreground at (%d,%d)", tt.axis, tt.x, tt.y)
		}
		if img.GrayAt(0, 0).Y != 0 {
			t.Errorf("Axis %s: expected background at origin", tt.axis)
		}
	}

	if _, err := ExtractMaskSlice(mask, "w", 0); err == nil {
		t.Error("Expected error for invalid axis")
	}
	if _, err := ExtractMaskSlice(mask, "z", 5); err == nil {
		t.Error("Expected error for out of range position")
	}
}

// TestSaveMaskSlices verifies that saved depth slices load back into the same mask
func TestSaveMaskSlices(t *testing.T) {
	mask := models.NewMask(3, 4, 2)
	mask.Set(0, 1, 0, true)
	mask.Set(2, 3, 1, true)

	dir := filepath.Join(t.TempDir(), "slices")
	if err := SaveMaskSlices(mask, "z", dir); err != nil {
		t.Fatalf("SaveMaskSlices failed: %v", err)
	}
	vol, err := LoadSlices(dir, 0)
	if err != nil {
		t.Fatalf("LoadSlices failed: %v", err)
	}
	if vol.Shape() != mask.Shape() {
		t.Fatalf("Expected shape %v, got %v", mask.Shape(), vol.Shape())
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			for d := 0; d < 2; d++ {
				want := 0.0
				if mask.At(r, c, d) {
					want = 255
				}
				if got := vol.At(r, c, d); got != want {
					t.Errorf("Voxel (%d,%d,%d): expected %v, got %v", r, c, d, want, got)
				}
			}
		}
	}

	if err := SaveMaskSlices(mask, "invalid", dir); err == nil {
		t.Error("Expected error for invalid axis")
	}
}
