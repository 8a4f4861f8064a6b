package geom

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// booleanResult evaluates IfcBooleanResult(Operator, FirstOperand,
// SecondOperand) and IfcBooleanClippingResult.
func (r *Resolver) booleanResult(ctx context.Context, e *graph.Entity) (*Mesh, error) {
	opv := e.Attr(0)
	op, ok := ParseBoolOp(opv.Text)
	if opv.Kind != graph.KindEnum || !ok {
		return nil, unsupported(e.ID, "unsupported boolean operator %q", opv.Text)
	}

	firstID, ok1 := e.RefAt(1)
	secondID, ok2 := e.RefAt(2)
	if !ok1 || !ok2 {
		return nil, unsupported(e.ID, "boolean operand is not a reference")
	}

	first, err := r.operand(ctx, firstID, nil)
	if err != nil {
		return nil, err
	}
	second, err := r.operand(ctx, secondID, first)
	if err != nil {
		return nil, err
	}

	m, err := Boolean(ctx, op, first, second)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, unsupported(e.ID, "%v", err)
	}
	return m, nil
}

// operand resolves a boolean operand to a closed mesh. Half-spaces are only
// accepted as second operand, where against is the first operand.
func (r *Resolver) operand(ctx context.Context, id graph.ID, against *Mesh) (*Mesh, error) {
	e, err := r.entity(id)
	if err != nil {
		return nil, err
	}
	var m *Mesh
	switch kindOf(e.Type) {
	case kindExtrusion, kindBrep, kindTriangulatedFaceSet, kindPolygonalFaceSet, kindBoolean:
		if m, err = r.solid(ctx, e); err != nil {
			return nil, err
		}
	case kindHalfSpace:
		if against == nil {
			return nil, unsupported(id, "half-space as first boolean operand")
		}
		if m, err = r.halfSpace(e, against); err != nil {
			return nil, err
		}
	default:
		return nil, unsupported(id, "unsupported boolean operand %s", e.Type)
	}
	if m.Empty() {
		return nil, unsupported(id, "empty boolean operand")
	}
	return m, nil
}

// halfSpace approximates IfcHalfSpaceSolid(BaseSurface, AgreementFlag) by a
// slab large enough to contain the other operand. BaseSurface must be an
// IfcPlane(Position). With AgreementFlag TRUE the material lies on the side
// opposite to the plane normal.
func (r *Resolver) halfSpace(e *graph.Entity, against *Mesh) (*Mesh, error) {
	plane, err := r.ref(e, 0, "IFCPLANE")
	if err != nil {
		return nil, err
	}
	pos, err := r.optAxisPlacement(plane, 0)
	if err != nil {
		return nil, err
	}

	lo, hi := against.Bounds()
	center := lo.Add(hi).Scale(0.5)
	size := 2*(hi.Sub(lo).Len()+center.Sub(pos.Origin()).Len()) + 1

	slab, err := Extrude(orb.Polygon{rectangle(2*size, 2*size)}, Vec3{Z: size})
	if err != nil {
		return nil, unsupported(e.ID, "%v", err)
	}
	if e.Attr(1).Bool() {
		slab = slab.Transformed(Translate(Vec3{Z: -size}))
	}
	return slab.Transformed(pos), nil
}
