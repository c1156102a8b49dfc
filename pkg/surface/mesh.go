package surface

import (
	"math"
	"sort"

	"github.com/unixpickle/model3d/model3d"
)

// Mesh is an indexed triangle mesh in physical units.
//
// Faces are wound counter-clockwise when seen from outside, so face
// normals point away from the enclosed volume. A Mesh is not modified
// after construction; PermuteAxes returns a new one.
type Mesh struct {
	// Vertices are unique points, sorted lexicographically.
	Vertices [][3]float64

	// Faces index into Vertices.
	Faces [][3]int

	// Normals are unit, area-weighted vertex normals.
	Normals [][3]float64
}

// newIndexedMesh converts a triangle soup into a deterministic indexed mesh.
func newIndexedMesh(tris []*model3d.Triangle) *Mesh {
	index := make(map[[3]float64]int)
	var verts [][3]float64
	for _, t := range tris {
		for _, c := range t {
			p := [3]float64{c.X, c.Y, c.Z}
			if _, ok := index[p]; !ok {
				index[p] = len(verts)
				verts = append(verts, p)
			}
		}
	}

	order := make([]int, len(verts))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return lessPoint(verts[order[i]], verts[order[j]])
	})
	remap := make([]int, len(verts))
	sorted := make([][3]float64, len(verts))
	for newIdx, oldIdx := range order {
		remap[oldIdx] = newIdx
		sorted[newIdx] = verts[oldIdx]
	}

	faces := make([][3]int, 0, len(tris))
	for _, t := range tris {
		var f [3]int
		for k, c := range t {
			f[k] = remap[index[[3]float64{c.X, c.Y, c.Z}]]
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		faces = append(faces, canonicalFace(f))
	}
	sortFaces(faces)

	m := &Mesh{Vertices: sorted, Faces: faces}
	m.Normals = m.vertexNormals()
	return m
}

func lessPoint(a, b [3]float64) bool {
	for k := 0; k < 3; k++ {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return false
}

// canonicalFace rotates f so its smallest index comes first, keeping winding.
func canonicalFace(f [3]int) [3]int {
	switch {
	case f[1] < f[0] && f[1] < f[2]:
		return [3]int{f[1], f[2], f[0]}
	case f[2] < f[0] && f[2] < f[1]:
		return [3]int{f[2], f[0], f[1]}
	}
	return f
}

func sortFaces(faces [][3]int) {
	sort.Slice(faces, func(i, j int) bool {
		a, b := faces[i], faces[j]
		for k := 0; k < 3; k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}

// faceCross returns the unnormalized face normal, of length twice the area.
func (m *Mesh) faceCross(f [3]int) [3]float64 {
	a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
	return cross(sub(b, a), sub(c, a))
}

func (m *Mesh) vertexNormals() [][3]float64 {
	normals := make([][3]float64, len(m.Vertices))
	for _, f := range m.Faces {
		n := m.faceCross(f)
		for _, v := range f {
			for k := 0; k < 3; k++ {
				normals[v][k] += n[k]
			}
		}
	}
	for i, n := range normals {
		if l := norm(n); l > 0 {
			normals[i] = [3]float64{n[0] / l, n[1] / l, n[2] / l}
		}
	}
	return normals
}

// FaceNormal returns the unit normal of face i.
func (m *Mesh) FaceNormal(i int) [3]float64 {
	n := m.faceCross(m.Faces[i])
	if l := norm(n); l > 0 {
		return [3]float64{n[0] / l, n[1] / l, n[2] / l}
	}
	return n
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *Mesh) Bounds() (min, max [3]float64) {
	if len(m.Vertices) == 0 {
		return
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for k := 0; k < 3; k++ {
			min[k] = math.Min(min[k], v[k])
			max[k] = math.Max(max[k], v[k])
		}
	}
	return
}

// SurfaceArea returns the total area of all faces.
func (m *Mesh) SurfaceArea() float64 {
	var area float64
	for _, f := range m.Faces {
		area += norm(m.faceCross(f)) / 2
	}
	return area
}

// Volume returns the signed volume enclosed by the mesh. It is positive
// for a closed, outward-facing mesh.
func (m *Mesh) Volume() float64 {
	var vol float64
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		vol += dot(a, cross(b, c))
	}
	return vol / 6
}

// Closed reports whether every edge is shared by exactly two faces that
// traverse it in opposite directions.
func (m *Mesh) Closed() bool {
	if len(m.Faces) == 0 {
		return false
	}
	directed := make(map[[2]int]int, 3*len(m.Faces))
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			directed[[2]int{f[k], f[(k+1)%3]}]++
		}
	}
	for e, n := range directed {
		if n != 1 || directed[[2]int{e[1], e[0]}] != 1 {
			return false
		}
	}
	return true
}

// PermuteAxes returns a copy of the mesh with its coordinate axes
// reordered. Face winding is reversed for odd permutations so that
// normals keep pointing outward.
func (m *Mesh) PermuteAxes(t AxisTransform) *Mesh {
	verts := make([][3]float64, len(m.Vertices))
	for i, v := range m.Vertices {
		verts[i] = t.Point(v)
	}
	tris := make([]*model3d.Triangle, 0, len(m.Faces))
	for _, f := range m.Faces {
		if t.Odd() {
			f[1], f[2] = f[2], f[1]
		}
		tris = append(tris, &model3d.Triangle{
			toCoord(verts[f[0]]), toCoord(verts[f[1]]), toCoord(verts[f[2]]),
		})
	}
	return newIndexedMesh(tris)
}

// Triangles returns the faces as model3d triangles.
func (m *Mesh) Triangles() []*model3d.Triangle {
	tris := make([]*model3d.Triangle, len(m.Faces))
	for i, f := range m.Faces {
		tris[i] = &model3d.Triangle{
			toCoord(m.Vertices[f[0]]), toCoord(m.Vertices[f[1]]), toCoord(m.Vertices[f[2]]),
		}
	}
	return tris
}

func toCoord(p [3]float64) model3d.Coord3D {
	return model3d.Coord3D{X: p[0], Y: p[1], Z: p[2]}
}
