package geom

import (
	"context"

	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// triangulatedFaceSet evaluates IfcTriangulatedFaceSet(Coordinates, Normals,
// Closed, CoordIndex, PnIndex). Indices are 1-based; with PnIndex present
// they index into PnIndex first.
func (r *Resolver) triangulatedFaceSet(e *graph.Entity) (*Mesh, error) {
	list, err := r.ref(e, 0, "IFCCARTESIANPOINTLIST3D")
	if err != nil {
		return nil, err
	}
	coords, err := pointList(list)
	if err != nil {
		return nil, err
	}
	pn, err := pnIndex(e, 4)
	if err != nil {
		return nil, err
	}

	idx := e.Attr(3)
	if idx.Kind != graph.KindList {
		return nil, unsupported(e.ID, "missing CoordIndex")
	}
	m := &Mesh{Vertices: coords}
	for i, row := range idx.Items {
		f, ok := row.Numbers()
		if !ok || len(f) != 3 {
			return nil, unsupported(e.ID, "malformed triangle %d", i+1)
		}
		var tri [3]int
		for k := range tri {
			j, ok := lookupIndex(int(f[k]), pn, len(coords))
			if !ok {
				return nil, unsupported(e.ID, "triangle %d index %d out of range", i+1, int(f[k]))
			}
			tri[k] = j
		}
		m.Triangles = append(m.Triangles, tri)
	}
	return m, nil
}

// polygonalFaceSet evaluates IfcPolygonalFaceSet(Coordinates, Closed, Faces,
// PnIndex) with IfcIndexedPolygonalFace(CoordIndex) and
// IfcIndexedPolygonalFaceWithVoids(CoordIndex, InnerCoordIndices).
func (r *Resolver) polygonalFaceSet(ctx context.Context, e *graph.Entity) (*Mesh, error) {
	list, err := r.ref(e, 0, "IFCCARTESIANPOINTLIST3D")
	if err != nil {
		return nil, err
	}
	coords, err := pointList(list)
	if err != nil {
		return nil, err
	}
	pn, err := pnIndex(e, 3)
	if err != nil {
		return nil, err
	}

	loop := func(v graph.Value) ([]Vec3, bool) {
		f, ok := v.Numbers()
		if !ok {
			return nil, false
		}
		out := make([]Vec3, len(f))
		for i, x := range f {
			j, ok := lookupIndex(int(x), pn, len(coords))
			if !ok {
				return nil, false
			}
			out[i] = coords[j]
		}
		return out, true
	}

	m := &Mesh{}
	for _, fid := range e.Attr(2).RefList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		face, err := r.entityOf(fid, "IFCINDEXEDPOLYGONALFACE", "IFCINDEXEDPOLYGONALFACEWITHVOIDS")
		if err != nil {
			return nil, err
		}
		outer, ok := loop(face.Attr(0))
		if !ok {
			return nil, unsupported(fid, "malformed CoordIndex")
		}
		var inner [][]Vec3
		if face.Type == "IFCINDEXEDPOLYGONALFACEWITHVOIDS" {
			for _, v := range face.Attr(1).Items {
				l, ok := loop(v)
				if !ok {
					return nil, unsupported(fid, "malformed InnerCoordIndices")
				}
				inner = append(inner, l)
			}
		}
		if len(outer) < 3 {
			r.degenerate.Add(1)
			continue
		}
		r.triangulate(m, outer, inner)
	}
	return m, nil
}

func pnIndex(e *graph.Entity, i int) ([]int, error) {
	v := e.Attr(i)
	if v.Kind != graph.KindList {
		return nil, nil
	}
	f, ok := v.Numbers()
	if !ok {
		return nil, unsupported(e.ID, "malformed PnIndex")
	}
	out := make([]int, len(f))
	for k, x := range f {
		out[k] = int(x)
	}
	return out, nil
}

// lookupIndex resolves a 1-based index, optionally through pn.
func lookupIndex(i int, pn []int, n int) (int, bool) {
	if pn != nil {
		if i < 1 || i > len(pn) {
			return 0, false
		}
		i = pn[i-1]
	}
	if i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}
