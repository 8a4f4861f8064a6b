package geom

import "math"

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Vertices  []Vec3
	Triangles [][3]int
	// Group optionally tags the mesh, e.g. with the IFC type of its item.
	Group string
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v Vec3) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices) - 1
}

// AddTriangle appends a triangle over existing vertex indices.
func (m *Mesh) AddTriangle(a, b, c int) {
	m.Triangles = append(m.Triangles, [3]int{a, b, c})
}

// Empty reports whether the mesh has no triangles.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Triangles) == 0
}

// Append adds o, transformed by t, to m. Mirroring transforms keep faces
// pointing outwards by flipping the winding.
func (m *Mesh) Append(o *Mesh, t Mat4) {
	if o == nil {
		return
	}
	base := len(m.Vertices)
	for _, v := range o.Vertices {
		m.Vertices = append(m.Vertices, t.Apply(v))
	}
	flip := t.Det3() < 0
	for _, tri := range o.Triangles {
		a, b, c := tri[0]+base, tri[1]+base, tri[2]+base
		if flip {
			b, c = c, b
		}
		m.Triangles = append(m.Triangles, [3]int{a, b, c})
	}
}

// Transformed returns a transformed copy of m.
func (m *Mesh) Transformed(t Mat4) *Mesh {
	out := &Mesh{
		Vertices:  make([]Vec3, 0, len(m.Vertices)),
		Triangles: make([][3]int, 0, len(m.Triangles)),
		Group:     m.Group,
	}
	out.Append(m, t)
	return out
}

// Bounds returns the axis-aligned bounding box of the mesh.
func (m *Mesh) Bounds() (min, max Vec3) {
	if len(m.Vertices) == 0 {
		return Vec3{}, Vec3{}
	}
	min = Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	max = Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, v := range m.Vertices {
		min = Vec3{math.Min(min.X, v.X), math.Min(min.Y, v.Y), math.Min(min.Z, v.Z)}
		max = Vec3{math.Max(max.X, v.X), math.Max(max.Y, v.Y), math.Max(max.Z, v.Z)}
	}
	return min, max
}

// Volume returns the signed volume enclosed by a closed mesh; positive when
// faces wind counter-clockwise seen from outside.
func (m *Mesh) Volume() float64 {
	var v float64
	for _, t := range m.Triangles {
		a, b, c := m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
		v += a.Dot(b.Cross(c))
	}
	return v / 6
}
