package geom

import (
	"context"
	"fmt"
)

// Constructive solid geometry on closed meshes using BSP trees. Polygons are
// split against each other's planes and the fragments inside (or outside)
// the other solid are discarded.

const csgEps = 1e-6

// BoolOp is a CSG operator.
type BoolOp int

const (
	Union BoolOp = iota
	Difference
	Intersection
)

func (op BoolOp) String() string {
	switch op {
	case Union:
		return "UNION"
	case Difference:
		return "DIFFERENCE"
	case Intersection:
		return "INTERSECTION"
	}
	return fmt.Sprintf("BoolOp(%d)", int(op))
}

// ParseBoolOp maps an IfcBooleanOperator enumerator to a BoolOp.
func ParseBoolOp(s string) (BoolOp, bool) {
	switch s {
	case "UNION":
		return Union, true
	case "DIFFERENCE":
		return Difference, true
	case "INTERSECTION":
		return Intersection, true
	}
	return 0, false
}

type csgPlane struct {
	n Vec3
	w float64
}

func (p csgPlane) flipped() csgPlane { return csgPlane{p.n.Scale(-1), -p.w} }

type csgPolygon struct {
	verts []Vec3
	plane csgPlane
}

func newPolygon(verts []Vec3) (csgPolygon, bool) {
	n := verts[1].Sub(verts[0]).Cross(verts[2].Sub(verts[0])).Normalize()
	if n == (Vec3{}) {
		return csgPolygon{}, false
	}
	return csgPolygon{verts: verts, plane: csgPlane{n, n.Dot(verts[0])}}, true
}

func (p csgPolygon) flipped() csgPolygon {
	v := make([]Vec3, len(p.verts))
	for i, x := range p.verts {
		v[len(v)-1-i] = x
	}
	return csgPolygon{verts: v, plane: p.plane.flipped()}
}

const (
	coplanar = 0
	front    = 1
	back     = 2
	spanning = 3
)

// split sorts poly into the four buckets relative to plane p, cutting
// spanning polygons in two.
func (p csgPlane) split(poly csgPolygon, coFront, coBack, fr, bk *[]csgPolygon) {
	kind := 0
	types := make([]int, len(poly.verts))
	for i, v := range poly.verts {
		t := p.n.Dot(v) - p.w
		typ := coplanar
		if t < -csgEps {
			typ = back
		} else if t > csgEps {
			typ = front
		}
		kind |= typ
		types[i] = typ
	}

	switch kind {
	case coplanar:
		if p.n.Dot(poly.plane.n) > 0 {
			*coFront = append(*coFront, poly)
		} else {
			*coBack = append(*coBack, poly)
		}
	case front:
		*fr = append(*fr, poly)
	case back:
		*bk = append(*bk, poly)
	case spanning:
		var f, b []Vec3
		for i := range poly.verts {
			j := (i + 1) % len(poly.verts)
			ti, tj := types[i], types[j]
			vi, vj := poly.verts[i], poly.verts[j]
			if ti != back {
				f = append(f, vi)
			}
			if ti != front {
				b = append(b, vi)
			}
			if ti|tj == spanning {
				t := (p.w - p.n.Dot(vi)) / p.n.Dot(vj.Sub(vi))
				v := vi.Lerp(vj, t)
				f = append(f, v)
				b = append(b, v)
			}
		}
		if len(f) >= 3 {
			*fr = append(*fr, csgPolygon{verts: f, plane: poly.plane})
		}
		if len(b) >= 3 {
			*bk = append(*bk, csgPolygon{verts: b, plane: poly.plane})
		}
	}
}

type bspNode struct {
	plane       *csgPlane
	front, back *bspNode
	polys       []csgPolygon
}

// csgRun carries cancellation through the recursive tree operations.
type csgRun struct {
	ctx context.Context
	err error
}

func (c *csgRun) build(n *bspNode, polys []csgPolygon) {
	if len(polys) == 0 || c.err != nil {
		return
	}
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return
	}
	if n.plane == nil {
		pl := polys[0].plane
		n.plane = &pl
	}
	var fr, bk []csgPolygon
	for _, p := range polys {
		n.plane.split(p, &n.polys, &n.polys, &fr, &bk)
	}
	if len(fr) > 0 {
		if n.front == nil {
			n.front = &bspNode{}
		}
		c.build(n.front, fr)
	}
	if len(bk) > 0 {
		if n.back == nil {
			n.back = &bspNode{}
		}
		c.build(n.back, bk)
	}
}

func (n *bspNode) invert() {
	for i, p := range n.polys {
		n.polys[i] = p.flipped()
	}
	if n.plane != nil {
		pl := n.plane.flipped()
		n.plane = &pl
	}
	if n.front != nil {
		n.front.invert()
	}
	if n.back != nil {
		n.back.invert()
	}
	n.front, n.back = n.back, n.front
}

// clipPolygons removes the parts of polys inside the solid of n.
func (n *bspNode) clipPolygons(polys []csgPolygon) []csgPolygon {
	if n.plane == nil {
		return append([]csgPolygon(nil), polys...)
	}
	var fr, bk []csgPolygon
	for _, p := range polys {
		n.plane.split(p, &fr, &bk, &fr, &bk)
	}
	if n.front != nil {
		fr = n.front.clipPolygons(fr)
	}
	if n.back != nil {
		bk = n.back.clipPolygons(bk)
	} else {
		bk = nil
	}
	return append(fr, bk...)
}

func (n *bspNode) clipTo(o *bspNode) {
	n.polys = o.clipPolygons(n.polys)
	if n.front != nil {
		n.front.clipTo(o)
	}
	if n.back != nil {
		n.back.clipTo(o)
	}
}

func (n *bspNode) all() []csgPolygon {
	out := append([]csgPolygon(nil), n.polys...)
	if n.front != nil {
		out = append(out, n.front.all()...)
	}
	if n.back != nil {
		out = append(out, n.back.all()...)
	}
	return out
}

func meshPolygons(m *Mesh) []csgPolygon {
	out := make([]csgPolygon, 0, len(m.Triangles))
	for _, t := range m.Triangles {
		p, ok := newPolygon([]Vec3{m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]})
		if ok {
			out = append(out, p)
		}
	}
	return out
}

func polygonMesh(polys []csgPolygon) *Mesh {
	m := &Mesh{}
	for _, p := range polys {
		base := len(m.Vertices)
		m.Vertices = append(m.Vertices, p.verts...)
		for i := 1; i+1 < len(p.verts); i++ {
			m.AddTriangle(base, base+i, base+i+1)
		}
	}
	return m
}

// Boolean combines two closed meshes.
func Boolean(ctx context.Context, op BoolOp, a, b *Mesh) (*Mesh, error) {
	c := &csgRun{ctx: ctx}
	na, nb := &bspNode{}, &bspNode{}
	c.build(na, meshPolygons(a))
	c.build(nb, meshPolygons(b))
	if c.err != nil {
		return nil, c.err
	}

	switch op {
	case Union:
		na.clipTo(nb)
		nb.clipTo(na)
		nb.invert()
		nb.clipTo(na)
		nb.invert()
		c.build(na, nb.all())
	case Difference:
		na.invert()
		na.clipTo(nb)
		nb.clipTo(na)
		nb.invert()
		nb.clipTo(na)
		nb.invert()
		c.build(na, nb.all())
		na.invert()
	case Intersection:
		na.invert()
		nb.clipTo(na)
		nb.invert()
		na.clipTo(nb)
		nb.clipTo(na)
		c.build(na, nb.all())
		na.invert()
	default:
		return nil, fmt.Errorf("unknown boolean operator %v", op)
	}
	if c.err != nil {
		return nil, c.err
	}
	return polygonMesh(na.all()), nil
}
