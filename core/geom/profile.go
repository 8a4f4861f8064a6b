package geom

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// profile evaluates an IfcProfileDef into a polygon with holes in the
// profile's own XY plane.
func (r *Resolver) profile(id graph.ID) (orb.Polygon, error) {
	e, err := r.entity(id)
	if err != nil {
		return nil, err
	}

	var poly orb.Polygon
	switch e.Type {
	case "IFCRECTANGLEPROFILEDEF":
		// (ProfileType, ProfileName, Position, XDim, YDim)
		x, y, err := r.dims(e, 3, 4)
		if err != nil {
			return nil, err
		}
		poly = orb.Polygon{rectangle(x, y)}

	case "IFCRECTANGLEHOLLOWPROFILEDEF":
		// (..., XDim, YDim, WallThickness, InnerFilletRadius, OuterFilletRadius)
		x, y, err := r.dims(e, 3, 4)
		if err != nil {
			return nil, err
		}
		t, ok := e.Attr(5).Number()
		if !ok || 2*t >= x || 2*t >= y {
			return nil, unsupported(id, "invalid wall thickness")
		}
		poly = orb.Polygon{rectangle(x, y), rectangle(x-2*t, y-2*t)}

	case "IFCCIRCLEPROFILEDEF":
		// (ProfileType, ProfileName, Position, Radius)
		rad, ok := e.Attr(3).Number()
		if !ok || rad <= 0 {
			return nil, unsupported(id, "invalid radius")
		}
		poly = orb.Polygon{circle(rad, r.opts.CircleSegments)}

	case "IFCCIRCLEHOLLOWPROFILEDEF":
		// (..., Radius, WallThickness)
		rad, ok1 := e.Attr(3).Number()
		t, ok2 := e.Attr(4).Number()
		if !ok1 || !ok2 || rad <= 0 || t <= 0 || t >= rad {
			return nil, unsupported(id, "invalid radius or wall thickness")
		}
		poly = orb.Polygon{circle(rad, r.opts.CircleSegments), circle(rad-t, r.opts.CircleSegments)}

	case "IFCISHAPEPROFILEDEF":
		// (..., OverallWidth, OverallDepth, WebThickness, FlangeThickness, ...)
		w, d, err := r.dims(e, 3, 4)
		if err != nil {
			return nil, err
		}
		tw, ok1 := e.Attr(5).Number()
		tf, ok2 := e.Attr(6).Number()
		if !ok1 || !ok2 || tw <= 0 || tf <= 0 || tw >= w || 2*tf >= d {
			return nil, unsupported(id, "invalid I-shape thickness")
		}
		poly = orb.Polygon{ishape(w, d, tw, tf)}

	case "IFCARBITRARYCLOSEDPROFILEDEF":
		// (ProfileType, ProfileName, OuterCurve)
		outer, err := r.curve(e, 2)
		if err != nil {
			return nil, err
		}
		return orb.Polygon{outer}, nil

	case "IFCARBITRARYPROFILEDEFWITHVOIDS":
		// (ProfileType, ProfileName, OuterCurve, InnerCurves)
		outer, err := r.curve(e, 2)
		if err != nil {
			return nil, err
		}
		poly = orb.Polygon{outer}
		for _, cid := range e.Attr(3).RefList() {
			c, err := r.curveEntity(cid)
			if err != nil {
				return nil, err
			}
			poly = append(poly, c)
		}
		return poly, nil

	default:
		return nil, unsupported(id, "unsupported profile %s", e.Type)
	}

	// Parameterized profiles carry an optional 2D position.
	pos, err := r.optAxisPlacement(e, 2)
	if err != nil {
		return nil, err
	}
	if !pos.IsIdentity(0) {
		for _, ring := range poly {
			for i, p := range ring {
				v := pos.Apply(Vec3{X: p[0], Y: p[1]})
				ring[i] = orb.Point{v.X, v.Y}
			}
		}
	}
	return poly, nil
}

func (r *Resolver) dims(e *graph.Entity, i, j int) (float64, float64, error) {
	x, ok1 := e.Attr(i).Number()
	y, ok2 := e.Attr(j).Number()
	if !ok1 || !ok2 || x <= 0 || y <= 0 {
		return 0, 0, unsupported(e.ID, "invalid profile dimensions")
	}
	return x, y, nil
}

func rectangle(x, y float64) orb.Ring {
	hx, hy := x/2, y/2
	return orb.Ring{{-hx, -hy}, {hx, -hy}, {hx, hy}, {-hx, hy}, {-hx, -hy}}
}

func circle(radius float64, segments int) orb.Ring {
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, orb.Point{radius * math.Cos(a), radius * math.Sin(a)})
	}
	return append(ring, ring[0])
}

// ishape outlines a symmetric I section centred on the origin.
func ishape(w, d, tw, tf float64) orb.Ring {
	hw, hd, ht := w/2, d/2, tw/2
	return orb.Ring{
		{-hw, -hd}, {hw, -hd}, {hw, -hd + tf}, {ht, -hd + tf},
		{ht, hd - tf}, {hw, hd - tf}, {hw, hd}, {-hw, hd},
		{-hw, hd - tf}, {-ht, hd - tf}, {-ht, -hd + tf}, {-hw, -hd + tf},
		{-hw, -hd},
	}
}

// curve reads attribute i of e as a closed 2D curve.
func (r *Resolver) curve(e *graph.Entity, i int) (orb.Ring, error) {
	id, ok := e.RefAt(i)
	if !ok {
		return nil, unsupported(e.ID, "missing curve")
	}
	return r.curveEntity(id)
}

// curveEntity evaluates IfcPolyline(Points) or IfcIndexedPolyCurve(Points,
// Segments, SelfIntersect). Arc segments are approximated by their three
// defining points.
func (r *Resolver) curveEntity(id graph.ID) (orb.Ring, error) {
	e, err := r.entity(id)
	if err != nil {
		return nil, err
	}
	switch e.Type {
	case "IFCPOLYLINE":
		var ring orb.Ring
		for _, pid := range e.Attr(0).RefList() {
			p, err := r.point(pid)
			if err != nil {
				return nil, err
			}
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		return ring, nil

	case "IFCINDEXEDPOLYCURVE":
		list, err := r.ref(e, 0, "IFCCARTESIANPOINTLIST2D", "IFCCARTESIANPOINTLIST3D")
		if err != nil {
			return nil, err
		}
		coords, err := pointList(list)
		if err != nil {
			return nil, err
		}
		segs := e.Attr(1)
		if segs.Kind != graph.KindList {
			ring := make(orb.Ring, len(coords))
			for i, c := range coords {
				ring[i] = orb.Point{c.X, c.Y}
			}
			return ring, nil
		}
		var ring orb.Ring
		for _, seg := range segs.Items {
			// IFCLINEINDEX((1,2)) or IFCARCINDEX((2,3,4))
			if seg.Kind != graph.KindTyped || len(seg.Items) != 1 {
				return nil, unsupported(id, "malformed segment")
			}
			idx, ok := seg.Items[0].Numbers()
			if !ok {
				return nil, unsupported(id, "malformed segment indices")
			}
			for k, f := range idx {
				j := int(f) - 1
				if j < 0 || j >= len(coords) {
					return nil, unsupported(id, "segment index %d out of range", int(f))
				}
				p := orb.Point{coords[j].X, coords[j].Y}
				if k == 0 && len(ring) > 0 && ring[len(ring)-1].Equal(p) {
					continue
				}
				ring = append(ring, p)
			}
		}
		return ring, nil
	}
	return nil, unsupported(id, "unsupported curve %s", e.Type)
}

// pointList reads IfcCartesianPointList2D/3D(CoordList).
func pointList(e *graph.Entity) ([]Vec3, error) {
	rows := e.Attr(0)
	if rows.Kind != graph.KindList {
		return nil, unsupported(e.ID, "missing coordinate list")
	}
	out := make([]Vec3, len(rows.Items))
	for i, row := range rows.Items {
		c, ok := row.Numbers()
		if !ok || len(c) < 2 {
			return nil, unsupported(e.ID, "malformed coordinate %d", i+1)
		}
		out[i] = Vec3{X: c[0], Y: c[1]}
		if len(c) > 2 {
			out[i].Z = c[2]
		}
	}
	return out, nil
}
