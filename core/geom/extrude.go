package geom

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// extrudedAreaSolid evaluates IfcExtrudedAreaSolid(SweptArea, Position,
// ExtrudedDirection, Depth).
func (r *Resolver) extrudedAreaSolid(ctx context.Context, e *graph.Entity) (*Mesh, error) {
	pid, ok := e.RefAt(0)
	if !ok {
		return nil, unsupported(e.ID, "missing swept area")
	}
	profile, err := r.profile(pid)
	if err != nil {
		return nil, err
	}
	pos, err := r.optAxisPlacement(e, 1)
	if err != nil {
		return nil, err
	}
	dir, err := r.optDirection(e, 2, axisZ)
	if err != nil {
		return nil, err
	}
	depth, ok := e.Attr(3).Number()
	if !ok || depth <= 0 {
		return nil, unsupported(e.ID, "invalid depth")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := Extrude(profile, dir.Scale(depth))
	if err != nil {
		return nil, unsupported(e.ID, "profile #%d: %v", pid, err)
	}
	return m.Transformed(pos), nil
}

// Extrude sweeps a profile in the XY plane along v. The result is a closed
// mesh with outward-facing triangles: both caps plus two triangles per
// boundary edge.
func Extrude(profile orb.Polygon, v Vec3) (*Mesh, error) {
	t, err := tessellate(profile)
	if err != nil {
		return nil, err
	}

	n := len(t.Points)
	m := &Mesh{
		Vertices:  make([]Vec3, 0, 2*n),
		Triangles: make([][3]int, 0, 2*len(t.Triangles)+2*n),
	}
	for _, p := range t.Points {
		m.AddVertex(Vec3{X: p[0], Y: p[1]})
	}
	for _, p := range t.Points {
		m.AddVertex(Vec3{X: p[0], Y: p[1]}.Add(v))
	}

	// Profile triangles face +z: the top cap keeps their winding, the bottom
	// cap reverses it.
	for _, tri := range t.Triangles {
		m.AddTriangle(tri[0], tri[2], tri[1])
		m.AddTriangle(n+tri[0], n+tri[1], n+tri[2])
	}
	for _, ring := range t.Rings {
		for i := range ring {
			a, b := ring[i], ring[(i+1)%len(ring)]
			m.AddTriangle(a, b, n+b)
			m.AddTriangle(a, n+b, n+a)
		}
	}

	// Sweeping downwards turns the solid inside out.
	if v.Z < 0 {
		for i, tri := range m.Triangles {
			m.Triangles[i] = [3]int{tri[0], tri[2], tri[1]}
		}
	}
	return m, nil
}
