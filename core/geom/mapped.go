package geom

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// MeshKey identifies a cached mapped representation: the representation map
// and the class of the non-rigid part of the mapping transform.
type MeshKey struct {
	Map   graph.ID
	Class string
}

func (k MeshKey) String() string {
	return fmt.Sprintf("#%d/%s", k.Map, k.Class)
}

// scaleClass quantizes scale factors so that nearly equal scalings share a
// cache entry.
func scaleClass(sx, sy, sz float64) string {
	q := func(f float64) int64 { return int64(math.Round(f * 1e6)) }
	return fmt.Sprintf("%d:%d:%d", q(sx), q(sy), q(sz))
}

// mappingTarget splits IfcCartesianTransformationOperator3D(Axis1, Axis2,
// LocalOrigin, Scale, Axis3) and its NonUniform subtype (+ Scale2, Scale3)
// into a rigid transform and per-axis scale factors.
func (r *Resolver) mappingTarget(id graph.ID) (Mat4, [3]float64, error) {
	e, err := r.entityOf(id, "IFCCARTESIANTRANSFORMATIONOPERATOR3D", "IFCCARTESIANTRANSFORMATIONOPERATOR3DNONUNIFORM")
	if err != nil {
		return Mat4{}, [3]float64{}, err
	}
	x, err := r.optDirection(e, 0, axisX)
	if err != nil {
		return Mat4{}, [3]float64{}, err
	}
	z, err := r.optDirection(e, 4, axisZ)
	if err != nil {
		return Mat4{}, [3]float64{}, err
	}
	var origin Vec3
	if oid, ok := e.RefAt(2); ok {
		if origin, err = r.point(oid); err != nil {
			return Mat4{}, [3]float64{}, err
		}
	}

	s := 1.0
	if v, ok := e.Attr(3).Number(); ok {
		s = v
	}
	scale := [3]float64{s, s, s}
	if e.Type == "IFCCARTESIANTRANSFORMATIONOPERATOR3DNONUNIFORM" {
		if v, ok := e.Attr(5).Number(); ok {
			scale[1] = v
		}
		if v, ok := e.Attr(6).Number(); ok {
			scale[2] = v
		}
	}
	if scale[0] == 0 || scale[1] == 0 || scale[2] == 0 {
		return Mat4{}, [3]float64{}, unsupported(id, "zero scale")
	}

	x, y, z := orthonormal(z, x)
	return FromAxes(x, y, z, origin), scale, nil
}

// mappedItem evaluates IfcMappedItem(MappingSource, MappingTarget). The
// mapped representation is resolved once per MeshKey; the scale and the map
// origin are baked into the cached mesh, the rigid part of the target
// becomes the instance transform.
func (r *Resolver) mappedItem(ctx context.Context, st *walk, e *graph.Entity) (Instance, error) {
	// IfcRepresentationMap(MappingOrigin, MappedRepresentation)
	rm, err := r.ref(e, 0, "IFCREPRESENTATIONMAP")
	if err != nil {
		return Instance{}, err
	}
	if r.cyclicMaps[rm.ID] || slices.Contains(st.maps, rm.ID) {
		return Instance{}, structural(rm.ID, "representation map maps itself")
	}

	rigid, scale := Identity(), [3]float64{1, 1, 1}
	if tid, ok := e.RefAt(1); ok {
		if rigid, scale, err = r.mappingTarget(tid); err != nil {
			return Instance{}, err
		}
	}

	key := MeshKey{Map: rm.ID, Class: scaleClass(scale[0], scale[1], scale[2])}
	for {
		m, err := r.cache.GetOrResolve(key, func() (*Mesh, error) {
			return r.resolveMap(ctx, st, rm, scale)
		})
		if err == nil {
			return Instance{Mesh: m, Transform: rigid, Item: e.ID}, nil
		}
		// A shared flight ended with the owning product's context. Failed
		// resolutions are not cached, so resolve again under ours.
		if isContextErr(err) && ctx.Err() == nil {
			continue
		}
		return Instance{}, err
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errors.ErrGeometryTimeout)
}

// resolveMap flattens the mapped representation into a single mesh in the
// coordinates of the mapping target.
func (r *Resolver) resolveMap(ctx context.Context, st *walk, rm *graph.Entity, scale [3]float64) (*Mesh, error) {
	origin, err := r.optAxisPlacement(rm, 0)
	if err != nil {
		return nil, err
	}
	rep, err := r.ref(rm, 1, "IFCSHAPEREPRESENTATION")
	if err != nil {
		return nil, err
	}

	inner := &walk{maps: append(slices.Clone(st.maps), rm.ID)}
	insts, err := r.resolveRepresentation(ctx, inner, rep)
	if err != nil {
		return nil, err
	}

	bake := ScaleMat(scale[0], scale[1], scale[2]).Mul(origin)
	m := &Mesh{}
	for _, in := range insts {
		m.Append(in.Mesh, bake.Mul(in.Transform))
		if m.Group == "" {
			m.Group = in.Mesh.Group
		}
	}
	if m.Empty() {
		return nil, unsupported(rm.ID, "mapped representation is empty")
	}
	return m, nil
}

// findCyclicMaps returns the representation maps that reach themselves
// through their mapped representation's items.
func findCyclicMaps(g *graph.Graph) map[graph.ID]bool {
	maps := g.OfType("IFCREPRESENTATIONMAP")
	if len(maps) == 0 {
		return nil
	}

	// map -> maps used by its representation
	next := make(map[graph.ID][]graph.ID, len(maps))
	for _, rm := range maps {
		repID, ok := rm.RefAt(1)
		if !ok {
			continue
		}
		rep, ok := g.Get(repID)
		if !ok {
			continue
		}
		for _, item := range rep.Attr(3).RefList() {
			mi, ok := g.Get(item)
			if !ok || mi.Type != "IFCMAPPEDITEM" {
				continue
			}
			if src, ok := mi.RefAt(0); ok {
				next[rm.ID] = append(next[rm.ID], src)
			}
		}
	}

	cyclic := make(map[graph.ID]bool)
	for _, rm := range maps {
		// DFS from rm looking for rm
		seen := map[graph.ID]bool{}
		stack := append([]graph.ID(nil), next[rm.ID]...)
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if id == rm.ID {
				cyclic[rm.ID] = true
				break
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			stack = append(stack, next[id]...)
		}
	}
	return cyclic
}
