package geom

import (
	"github.com/FocuswithJustin/ifcslim/core/graph"
)

var (
	axisX = Vec3{1, 0, 0}
	axisY = Vec3{0, 1, 0}
	axisZ = Vec3{0, 0, 1}
)

// point reads an IfcCartesianPoint. Two-dimensional points get z = 0.
func (r *Resolver) point(id graph.ID) (Vec3, error) {
	e, err := r.entityOf(id, "IFCCARTESIANPOINT")
	if err != nil {
		return Vec3{}, err
	}
	c, ok := e.Attr(0).Numbers()
	if !ok || len(c) < 2 {
		return Vec3{}, unsupported(id, "malformed coordinates")
	}
	v := Vec3{X: c[0], Y: c[1]}
	if len(c) > 2 {
		v.Z = c[2]
	}
	return v, nil
}

// direction reads an IfcDirection and normalizes it.
func (r *Resolver) direction(id graph.ID) (Vec3, error) {
	e, err := r.entityOf(id, "IFCDIRECTION")
	if err != nil {
		return Vec3{}, err
	}
	c, ok := e.Attr(0).Numbers()
	if !ok || len(c) < 2 {
		return Vec3{}, unsupported(id, "malformed direction ratios")
	}
	v := Vec3{X: c[0], Y: c[1]}
	if len(c) > 2 {
		v.Z = c[2]
	}
	n := v.Normalize()
	if n == (Vec3{}) {
		return Vec3{}, unsupported(id, "zero-length direction")
	}
	return n, nil
}

// optDirection reads attribute i of e as a direction, or returns def when
// the attribute is unset.
func (r *Resolver) optDirection(e *graph.Entity, i int, def Vec3) (Vec3, error) {
	id, ok := e.RefAt(i)
	if !ok {
		return def, nil
	}
	return r.direction(id)
}

// orthonormal builds a right-handed frame from a main axis z and an
// approximate x axis.
func orthonormal(z, x Vec3) (Vec3, Vec3, Vec3) {
	z = z.Normalize()
	x = x.Sub(z.Scale(x.Dot(z))).Normalize()
	if x == (Vec3{}) {
		// x parallel to z: pick any perpendicular axis
		if abs(z.X) < 0.9 {
			x = axisX.Sub(z.Scale(z.X)).Normalize()
		} else {
			x = axisY.Sub(z.Scale(z.Y)).Normalize()
		}
	}
	y := z.Cross(x)
	return x, y, z
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// axisPlacement reads IfcAxis2Placement3D(Location, Axis, RefDirection) or
// IfcAxis2Placement2D(Location, RefDirection).
func (r *Resolver) axisPlacement(id graph.ID) (Mat4, error) {
	e, err := r.entityOf(id, "IFCAXIS2PLACEMENT3D", "IFCAXIS2PLACEMENT2D")
	if err != nil {
		return Mat4{}, err
	}
	var origin Vec3
	if loc, ok := e.RefAt(0); ok {
		if origin, err = r.point(loc); err != nil {
			return Mat4{}, err
		}
	}

	if e.Type == "IFCAXIS2PLACEMENT2D" {
		xd, err := r.optDirection(e, 1, axisX)
		if err != nil {
			return Mat4{}, err
		}
		x, y, z := orthonormal(axisZ, Vec3{X: xd.X, Y: xd.Y})
		return FromAxes(x, y, z, origin), nil
	}

	zd, err := r.optDirection(e, 1, axisZ)
	if err != nil {
		return Mat4{}, err
	}
	xd, err := r.optDirection(e, 2, axisX)
	if err != nil {
		return Mat4{}, err
	}
	x, y, z := orthonormal(zd, xd)
	return FromAxes(x, y, z, origin), nil
}

// optAxisPlacement reads attribute i of e as a placement, identity if unset.
func (r *Resolver) optAxisPlacement(e *graph.Entity, i int) (Mat4, error) {
	id, ok := e.RefAt(i)
	if !ok {
		return Identity(), nil
	}
	return r.axisPlacement(id)
}

// placement composes an IfcLocalPlacement(PlacementRelTo, RelativePlacement)
// chain root-first. Results are memoized per placement.
func (r *Resolver) placement(id graph.ID) (Mat4, error) {
	if m, ok := r.placements.Load(id); ok {
		return m.(Mat4), nil
	}

	var chain []*graph.Entity
	seen := make(map[graph.ID]bool)
	base := Identity()
	for cur, ok := id, true; ok; {
		if m, hit := r.placements.Load(cur); hit {
			base = m.(Mat4)
			break
		}
		if seen[cur] {
			return Mat4{}, structural(cur, "placement cycle through #%d", id)
		}
		seen[cur] = true
		e, err := r.entityOf(cur, "IFCLOCALPLACEMENT")
		if err != nil {
			return Mat4{}, err
		}
		chain = append(chain, e)
		cur, ok = e.RefAt(0)
	}

	m := base
	for i := len(chain) - 1; i >= 0; i-- {
		rel, err := r.optAxisPlacement(chain[i], 1)
		if err != nil {
			return Mat4{}, err
		}
		m = m.Mul(rel)
		r.placements.Store(chain[i].ID, m)
	}
	return m, nil
}
