package geom

import (
	"context"

	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// facetedBrep evaluates IfcFacetedBrep(Outer) and IfcFacetedBrepWithVoids
// (Outer, Voids). Void shells are added with reversed faces.
func (r *Resolver) facetedBrep(ctx context.Context, e *graph.Entity) (*Mesh, error) {
	shell, err := r.ref(e, 0, "IFCCLOSEDSHELL")
	if err != nil {
		return nil, err
	}
	m := &Mesh{}
	if err := r.shell(ctx, m, shell, false); err != nil {
		return nil, err
	}
	if e.Type == "IFCFACETEDBREPWITHVOIDS" {
		for _, vid := range e.Attr(1).RefList() {
			void, err := r.entityOf(vid, "IFCCLOSEDSHELL")
			if err != nil {
				return nil, err
			}
			if err := r.shell(ctx, m, void, true); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// surfaceModel evaluates IfcFaceBasedSurfaceModel(FbsmFaces) and
// IfcShellBasedSurfaceModel(SbsmBoundary).
func (r *Resolver) surfaceModel(ctx context.Context, e *graph.Entity) (*Mesh, error) {
	m := &Mesh{}
	for _, sid := range e.Attr(0).RefList() {
		shell, err := r.entityOf(sid, "IFCCONNECTEDFACESET", "IFCOPENSHELL", "IFCCLOSEDSHELL")
		if err != nil {
			return nil, err
		}
		if err := r.shell(ctx, m, shell, false); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// shell triangulates every IfcFace of a connected face set (CfsFaces).
func (r *Resolver) shell(ctx context.Context, m *Mesh, shell *graph.Entity, reverse bool) error {
	for _, fid := range shell.Attr(0).RefList() {
		if err := ctx.Err(); err != nil {
			return err
		}
		face, err := r.entityOf(fid, "IFCFACE")
		if err != nil {
			return err
		}
		if err := r.face(m, face, reverse); err != nil {
			return err
		}
	}
	return nil
}

// face triangulates IfcFace(Bounds). The outer bound is the IfcFaceOuterBound
// if present, otherwise the first bound. Degenerate faces, which real
// exports do contain, are skipped and counted.
func (r *Resolver) face(m *Mesh, face *graph.Entity, reverse bool) error {
	var loops [][]Vec3
	outer := -1
	for _, bid := range face.Attr(0).RefList() {
		// IfcFaceBound(Bound, Orientation)
		b, err := r.entityOf(bid, "IFCFACEOUTERBOUND", "IFCFACEBOUND")
		if err != nil {
			return err
		}
		loop, err := r.polyLoop(b)
		if err != nil {
			return err
		}
		if len(loop) < 3 {
			continue
		}
		if o := b.Attr(1); o.Kind == graph.KindEnum && !o.Bool() {
			reverseLoop(loop)
		}
		if b.Type == "IFCFACEOUTERBOUND" && outer < 0 {
			outer = len(loops)
		}
		loops = append(loops, loop)
	}
	if len(loops) == 0 {
		return nil
	}
	if outer < 0 {
		outer = 0
	}
	inner := make([][]Vec3, 0, len(loops)-1)
	for i, l := range loops {
		if i != outer {
			inner = append(inner, l)
		}
	}
	if reverse {
		reverseLoop(loops[outer])
	}
	r.triangulate(m, loops[outer], inner)
	return nil
}

// polyLoop reads the IfcPolyLoop(Polygon) of a face bound.
func (r *Resolver) polyLoop(bound *graph.Entity) ([]Vec3, error) {
	loop, err := r.ref(bound, 0, "IFCPOLYLOOP")
	if err != nil {
		return nil, err
	}
	ids := loop.Attr(0).RefList()
	pts := make([]Vec3, 0, len(ids))
	for _, pid := range ids {
		p, err := r.point(pid)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}

func reverseLoop(l []Vec3) {
	for i, j := 0, len(l)-1; i < j; i, j = i+1, j-1 {
		l[i], l[j] = l[j], l[i]
	}
}
