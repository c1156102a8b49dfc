package surface

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"cellmesh/internal/models"
)

var unitSpacing = models.Spacing{Row: 1, Col: 1, Depth: 1}

// sphereMask builds a voxelized ball of the given radius centered in a cube
func sphereMask(size int, radius float64) *models.Mask {
	mask := models.NewMask(size, size, size)
	center := float64(size) / 2.0
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			for d := 0; d < size; d++ {
				dr := float64(r) - center
				dc := float64(c) - center
				dd := float64(d) - center
				if math.Sqrt(dr*dr+dc*dc+dd*dd) < radius {
					mask.Set(r, c, d, true)
				}
			}
		}
	}
	return mask
}

func boxMask(shape [3]int, lo, hi models.Coord) *models.Mask {
	mask := models.NewMask(shape[0], shape[1], shape[2])
	for r := lo[0]; r < hi[0]; r++ {
		for c := lo[1]; c < hi[1]; c++ {
			for d := lo[2]; d < hi[2]; d++ {
				mask.Set(r, c, d, true)
			}
		}
	}
	return mask
}

// TestAxisTransform verifies permutation helpers in isolation
func TestAxisTransform(t *testing.T) {
	if SwapRowCol.Inverse() != SwapRowCol {
		t.Error("SwapRowCol should be its own inverse")
	}
	if !SwapRowCol.Odd() || Identity.Odd() {
		t.Error("Wrong parity for SwapRowCol or Identity")
	}
	cyclic := AxisTransform{Perm: [3]int{1, 2, 0}}
	if cyclic.Odd() {
		t.Error("Cyclic permutation should be even")
	}
	if got := cyclic.Inverse().Coord(cyclic.Coord(models.Coord{4, 5, 6})); got != (models.Coord{4, 5, 6}) {
		t.Errorf("Inverse did not restore coordinate, got %v", got)
	}
	if (AxisTransform{Perm: [3]int{0, 0, 2}}).Valid() {
		t.Error("Repeated axis should be invalid")
	}

	if got := SwapRowCol.Coord(models.Coord{1, 2, 3}); got != (models.Coord{2, 1, 3}) {
		t.Errorf("Expected (2,1,3), got %v", got)
	}
	sp := SwapRowCol.ApplySpacing(models.Spacing{Row: 0.5, Col: 0.25, Depth: 2})
	if sp != (models.Spacing{Row: 0.25, Col: 0.5, Depth: 2}) {
		t.Errorf("Unexpected spacing %+v", sp)
	}

	mask := models.NewMask(2, 3, 4)
	mask.Set(1, 2, 3, true)
	swapped, err := SwapRowCol.ApplyMask(mask)
	if err != nil {
		t.Fatalf("ApplyMask failed: %v", err)
	}
	if swapped.Shape() != [3]int{3, 2, 4} {
		t.Errorf("Expected shape 3x2x4, got %v", swapped.Shape())
	}
	if !swapped.At(2, 1, 3) || swapped.Count() != 1 {
		t.Error("Voxel not moved to swapped position")
	}
}

// TestIsolate verifies that only the selected label survives
func TestIsolate(t *testing.T) {
	mask := models.NewMask(2, 2, 2)
	labels := models.NewLabelVolume(2, 2, 2)
	for i := 0; i < 4; i++ {
		mask.SetIndex(i, true)
		labels.Data[i] = 1
	}
	mask.SetIndex(7, true)
	labels.Data[7] = 2

	iso, err := Isolate(mask, labels, 2)
	if err != nil {
		t.Fatalf("Isolate failed: %v", err)
	}
	if iso.Count() != 1 || !iso.AtIndex(7) {
		t.Errorf("Expected only voxel 7, got %d voxels", iso.Count())
	}
	if mask.Count() != 5 {
		t.Error("Isolate modified its input")
	}

	if _, err := Isolate(mask, models.NewLabelVolume(2, 2, 3), 1); err == nil {
		t.Error("Expected error for shape mismatch")
	}
}

// TestExtractErrors verifies empty-region and parameter errors
func TestExtractErrors(t *testing.T) {
	mask := boxMask([3]int{6, 6, 6}, models.Coord{1, 1, 1}, models.Coord{3, 3, 3})
	labels := models.NewLabelVolume(6, 6, 6)

	_, err := ExtractSurface(mask, labels, 5, unitSpacing, 1)
	var empty *EmptyVolumeError
	if !errors.As(err, &empty) {
		t.Fatalf("Expected *EmptyVolumeError, got %v", err)
	}
	if empty.Label != 5 || empty.Shape != [3]int{6, 6, 6} {
		t.Errorf("Unexpected error contents %+v", empty)
	}

	if _, err := NewExtractor(unitSpacing, 0).Extract(mask); err == nil {
		t.Error("Expected error for step size 0")
	}
	if _, err := NewExtractor(models.Spacing{}, 1).Extract(mask); err == nil {
		t.Error("Expected error for zero spacing")
	}
}

// TestExtractCubeExtents checks physical bounds and closure of a box
func TestExtractCubeExtents(t *testing.T) {
	spacing := models.Spacing{Row: 0.5, Col: 0.25, Depth: 2}
	mask := boxMask([3]int{10, 10, 10}, models.Coord{2, 3, 1}, models.Coord{6, 8, 5})

	ex := &Extractor{Spacing: spacing, StepSize: 1, Axes: Identity}
	mesh, err := ex.Extract(mask)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	min, max := mesh.Bounds()
	wantMin := [3]float64{1.5 * 0.5, 2.5 * 0.25, 0.5 * 2}
	wantMax := [3]float64{5.5 * 0.5, 7.5 * 0.25, 4.5 * 2}
	for k := 0; k < 3; k++ {
		if math.Abs(min[k]-wantMin[k]) > 1e-9 || math.Abs(max[k]-wantMax[k]) > 1e-9 {
			t.Errorf("Axis %d: bounds [%v, %v], want [%v, %v]", k, min[k], max[k], wantMin[k], wantMax[k])
		}
	}

	if !mesh.Closed() {
		t.Error("Expected a closed mesh")
	}
	boxVolume := 4 * 5 * 4 * spacing.Row * spacing.Col * spacing.Depth
	if v := mesh.Volume(); v <= boxVolume/2 || v > boxVolume+1e-9 {
		t.Errorf("Enclosed volume %v outside (%v, %v]", v, boxVolume/2, boxVolume)
	}
	if mesh.SurfaceArea() <= 0 {
		t.Error("Expected positive surface area")
	}
}

// TestExtractAxisConvention verifies the default swap and its restoration
func TestExtractAxisConvention(t *testing.T) {
	spacing := models.Spacing{Row: 1, Col: 3, Depth: 1}
	mask := boxMask([3]int{8, 8, 8}, models.Coord{1, 2, 2}, models.Coord{3, 7, 4})

	swapped, err := NewExtractor(spacing, 1).Extract(mask)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	min, max := swapped.Bounds()
	// First mesh axis follows columns.
	if math.Abs(min[0]-1.5*3) > 1e-9 || math.Abs(max[0]-6.5*3) > 1e-9 {
		t.Errorf("Expected x extents [4.5, 19.5], got [%v, %v]", min[0], max[0])
	}

	restoring := NewExtractor(spacing, 1)
	restoring.RestoreAxes = true
	restored, err := restoring.Extract(mask)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	direct, err := (&Extractor{Spacing: spacing, StepSize: 1, Axes: Identity}).Extract(mask)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	rMin, rMax := restored.Bounds()
	dMin, dMax := direct.Bounds()
	if rMin != dMin || rMax != dMax {
		t.Errorf("Restored bounds %v-%v differ from direct %v-%v", rMin, rMax, dMin, dMax)
	}
	if restored.Volume() <= 0 {
		t.Error("Restored mesh should keep outward orientation")
	}
	if math.Abs(restored.Volume()-direct.Volume()) > 1e-9 {
		t.Errorf("Restored volume %v differs from direct %v", restored.Volume(), direct.Volume())
	}
}

// TestMarchingCubes verifies the extractor with a simple sphere
func TestMarchingCubes(t *testing.T) {
	size := 20
	center := float64(size) / 2.0
	mask := sphereMask(size, float64(size)/4.0)

	mesh, err := (&Extractor{Spacing: unitSpacing, StepSize: 1, Axes: Identity}).Extract(mask)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// A sphere with this resolution should have at least 100 triangles
	if len(mesh.Faces) < 100 {
		t.Errorf("Expected at least 100 triangles for sphere, got %d", len(mesh.Faces))
	}

	// Normals should point away from the center
	for i, f := range mesh.Faces {
		var c [3]float64
		for _, v := range f {
			for k := 0; k < 3; k++ {
				c[k] += mesh.Vertices[v][k] / 3
			}
		}
		dir := [3]float64{c[0] - center, c[1] - center, c[2] - center}
		if l := norm(dir); l > 0 {
			dir = [3]float64{dir[0] / l, dir[1] / l, dir[2] / l}
		}
		if d := dot(dir, mesh.FaceNormal(i)); d < -0.5 {
			t.Errorf("Triangle %d normal appears to point inward, dot product: %f", i, d)
		}
	}

	for i, n := range mesh.Normals {
		if math.Abs(norm(n)-1) > 1e-9 {
			t.Fatalf("Vertex normal %d is not unit length: %v", i, n)
		}
	}
	if mesh.Volume() <= 0 {
		t.Error("Expected positive enclosed volume")
	}
}

// TestStepSizeCoarsens verifies that a larger step gives fewer faces
func TestStepSizeCoarsens(t *testing.T) {
	mask := sphereMask(24, 8)
	fine, err := (&Extractor{Spacing: unitSpacing, StepSize: 1, Axes: Identity}).Extract(mask)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	coarse, err := (&Extractor{Spacing: unitSpacing, StepSize: 2, Axes: Identity}).Extract(mask)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(coarse.Faces) >= len(fine.Faces) {
		t.Errorf("Expected fewer faces at step 2: %d vs %d", len(coarse.Faces), len(fine.Faces))
	}
}

// TestExtractDeterministic verifies identical meshes for identical input
func TestExtractDeterministic(t *testing.T) {
	mask := sphereMask(14, 4)
	labels := models.NewLabelVolume(14, 14, 14)
	for i := range labels.Data {
		if mask.AtIndex(i) {
			labels.Data[i] = 1
		}
	}
	a, err := ExtractSurface(mask, labels, 1, unitSpacing, 1)
	if err != nil {
		t.Fatalf("ExtractSurface failed: %v", err)
	}
	b, err := ExtractSurface(mask, labels, 1, unitSpacing, 1)
	if err != nil {
		t.Fatalf("ExtractSurface failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Meshes differ between runs")
	}
}

// TestSaveToSTL verifies that the STL file can be written
func TestSaveToSTL(t *testing.T) {
	mask := boxMask([3]int{5, 5, 5}, models.Coord{1, 1, 1}, models.Coord{3, 3, 3})
	mesh, err := NewExtractor(unitSpacing, 1).Extract(mask)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "cell.stl")
	if err := SaveToSTL(path, mesh); err != nil {
		t.Fatalf("Failed to save STL: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat output file: %v", err)
	}

	// STL header: 80 bytes, triangle count: 4 bytes, 50 bytes per triangle
	want := int64(80 + 4 + 50*len(mesh.Faces))
	if info.Size() != want {
		t.Errorf("Expected STL size %d, got %d", want, info.Size())
	}

	var buf bytes.Buffer
	if err := mesh.WriteSTL(&buf); err != nil {
		t.Fatalf("WriteSTL failed: %v", err)
	}
	if int64(buf.Len()) != want {
		t.Errorf("Expected %d bytes in buffer, got %d", want, buf.Len())
	}
}

// BenchmarkMarchingCubes benchmarks extraction of a voxelized sphere
func BenchmarkMarchingCubes(b *testing.B) {
	mask := sphereMask(32, 10)
	ex := &Extractor{Spacing: unitSpacing, StepSize: 1, Axes: Identity}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ex.Extract(mask); err != nil {
			b.Fatal(err)
		}
	}
}
