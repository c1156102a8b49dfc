package models

import "fmt"

// Coord is an integer voxel coordinate in (row, column, depth) order.
type Coord [3]int

// Spacing holds the physical size of a voxel along each axis,
// e.g. micrometers per pixel in-plane and per slice along depth.
type Spacing struct {
	Row   float64
	Col   float64
	Depth float64
}

// Array returns the spacing as an (row, col, depth) triple.
func (s Spacing) Array() [3]float64 {
	return [3]float64{s.Row, s.Col, s.Depth}
}

// Valid reports whether every component is strictly positive.
func (s Spacing) Valid() bool {
	return s.Row > 0 && s.Col > 0 && s.Depth > 0
}

// Volume represents a 3D intensity image assembled from a stack of slices
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order,
	// with depth varying fastest
	Data []float64

	// Rows, Cols and Depth are the dimensions of the volume in voxels
	Rows  int
	Cols  int
	Depth int

	// Spacing is the physical size of each voxel
	Spacing Spacing
}

// NewVolume allocates a zero-filled volume.
func NewVolume(rows, cols, depth int, spacing Spacing) *Volume {
	return &Volume{
		Data:    make([]float64, rows*cols*depth),
		Rows:    rows,
		Cols:    cols,
		Depth:   depth,
		Spacing: spacing,
	}
}

// Shape returns the (rows, cols, depth) dimensions.
func (v *Volume) Shape() [3]int {
	return [3]int{v.Rows, v.Cols, v.Depth}
}

// Index converts a voxel coordinate into an offset into Data.
func (v *Volume) Index(r, c, d int) int {
	return (r*v.Cols+c)*v.Depth + d
}

// At returns the intensity at (r, c, d).
func (v *Volume) At(r, c, d int) float64 {
	return v.Data[v.Index(r, c, d)]
}

// Set stores an intensity at (r, c, d).
func (v *Volume) Set(r, c, d int, value float64) {
	v.Data[v.Index(r, c, d)] = value
}

// Validate checks that the data length matches the declared shape.
func (v *Volume) Validate() error {
	if v == nil {
		return fmt.Errorf("volume is nil")
	}
	if v.Rows <= 0 || v.Cols <= 0 || v.Depth <= 0 {
		return fmt.Errorf("invalid volume shape %dx%dx%d", v.Rows, v.Cols, v.Depth)
	}
	if len(v.Data) != v.Rows*v.Cols*v.Depth {
		return fmt.Errorf("volume data has %d values, shape %dx%dx%d needs %d",
			len(v.Data), v.Rows, v.Cols, v.Depth, v.Rows*v.Cols*v.Depth)
	}
	return nil
}

// Mask is a binary voxel grid with the same layout as Volume.
//
// Its contents are private so that every change passes through Set,
// SetIndex or Touch, which advance the mutation version. Derived data
// (labelings, regions, boundaries) remember the version they were
// computed against and refuse to answer once it has moved on.
type Mask struct {
	data    []bool
	Rows    int
	Cols    int
	Depth   int
	version uint64
}

// NewMask allocates an all-false mask.
func NewMask(rows, cols, depth int) *Mask {
	return &Mask{
		data:  make([]bool, rows*cols*depth),
		Rows:  rows,
		Cols:  cols,
		Depth: depth,
	}
}

// NewMaskFromData wraps an existing boolean slice. The slice is copied.
func NewMaskFromData(rows, cols, depth int, data []bool) (*Mask, error) {
	if len(data) != rows*cols*depth {
		return nil, fmt.Errorf("mask data has %d values, shape %dx%dx%d needs %d",
			len(data), rows, cols, depth, rows*cols*depth)
	}
	m := NewMask(rows, cols, depth)
	copy(m.data, data)
	return m, nil
}

// Shape returns the (rows, cols, depth) dimensions.
func (m *Mask) Shape() [3]int {
	return [3]int{m.Rows, m.Cols, m.Depth}
}

// Len returns the number of voxels.
func (m *Mask) Len() int {
	return len(m.data)
}

// Index converts a voxel coordinate into a flat offset.
func (m *Mask) Index(r, c, d int) int {
	return (r*m.Cols+c)*m.Depth + d
}

// Coord converts a flat offset back into a voxel coordinate.
func (m *Mask) Coord(idx int) Coord {
	d := idx % m.Depth
	idx /= m.Depth
	return Coord{idx / m.Cols, idx % m.Cols, d}
}

// InBounds reports whether c lies inside the grid.
func (m *Mask) InBounds(c Coord) bool {
	return c[0] >= 0 && c[1] >= 0 && c[2] >= 0 &&
		c[0] < m.Rows && c[1] < m.Cols && c[2] < m.Depth
}

// At returns the value at (r, c, d).
func (m *Mask) At(r, c, d int) bool {
	return m.data[m.Index(r, c, d)]
}

// AtCoord returns the value at c.
func (m *Mask) AtCoord(c Coord) bool {
	return m.data[m.Index(c[0], c[1], c[2])]
}

// AtIndex returns the value at a flat offset.
func (m *Mask) AtIndex(idx int) bool {
	return m.data[idx]
}

// Set stores a value at (r, c, d). It reports whether the voxel changed.
func (m *Mask) Set(r, c, d int, value bool) bool {
	return m.SetIndex(m.Index(r, c, d), value)
}

// SetCoord stores a value at c. It reports whether the voxel changed.
func (m *Mask) SetCoord(c Coord, value bool) bool {
	return m.SetIndex(m.Index(c[0], c[1], c[2]), value)
}

// SetIndex stores a value at a flat offset. It reports whether the voxel changed.
func (m *Mask) SetIndex(idx int, value bool) bool {
	if m.data[idx] == value {
		return false
	}
	m.data[idx] = value
	m.version++
	return true
}

// Touch advances the mutation version without changing any voxel.
func (m *Mask) Touch() {
	m.version++
}

// Version returns the mutation counter.
func (m *Mask) Version() uint64 {
	return m.version
}

// Count returns the number of true voxels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy with a fresh version counter.
func (m *Mask) Clone() *Mask {
	out := NewMask(m.Rows, m.Cols, m.Depth)
	copy(out.data, m.data)
	return out
}

// Bools returns a copy of the mask contents.
func (m *Mask) Bools() []bool {
	out := make([]bool, len(m.data))
	copy(out, m.data)
	return out
}

// LabelVolume stores one connected-component label per voxel, 0 being background.
type LabelVolume struct {
	Data  []int32
	Rows  int
	Cols  int
	Depth int
}

// NewLabelVolume allocates an all-background label volume.
func NewLabelVolume(rows, cols, depth int) *LabelVolume {
	return &LabelVolume{
		Data:  make([]int32, rows*cols*depth),
		Rows:  rows,
		Cols:  cols,
		Depth: depth,
	}
}

// Shape returns the (rows, cols, depth) dimensions.
func (l *LabelVolume) Shape() [3]int {
	return [3]int{l.Rows, l.Cols, l.Depth}
}

// Index converts a voxel coordinate into a flat offset.
func (l *LabelVolume) Index(r, c, d int) int {
	return (r*l.Cols+c)*l.Depth + d
}

// At returns the label at (r, c, d).
func (l *LabelVolume) At(r, c, d int) int32 {
	return l.Data[l.Index(r, c, d)]
}
