// Package geom evaluates IFC shape representations into triangle meshes.
//
// Meshes are produced in the local coordinate system of their product; the
// placement of each instance is returned separately as a Mat4 so the caller
// decides whether to bake it into the vertices.
package geom

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/FocuswithJustin/ifcslim/core/cache"
	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// DefaultCircleSegments is the number of segments used for circular profiles.
const DefaultCircleSegments = 24

// IfcProduct attribute layout.
const (
	productPlacementAttr      = 5
	productRepresentationAttr = 6
)

// Instance is one resolved representation item: a mesh in item coordinates
// and the transform placing it in the world.
type Instance struct {
	Mesh      *Mesh
	Transform Mat4
	Item      graph.ID
}

// Options configures a Resolver.
type Options struct {
	// CircleSegments is the tessellation of circular profiles (default 24).
	CircleSegments int
	// Cache holds meshes of mapped representations. A private unbounded cache
	// is created when nil.
	Cache *cache.Cache[MeshKey, *Mesh]
}

// Resolver evaluates product geometry over a read-only graph. It is safe for
// concurrent use; the graph must not change while it is in use.
type Resolver struct {
	g     *graph.Graph
	opts  Options
	cache *cache.Cache[MeshKey, *Mesh]

	placements sync.Map // graph.ID -> Mat4

	// cyclicMaps are representation maps that (indirectly) map themselves.
	cyclicMaps map[graph.ID]bool

	degenerate atomic.Int64
}

// NewResolver creates a resolver for g.
func NewResolver(g *graph.Graph, opts Options) (*Resolver, error) {
	if opts.CircleSegments < 3 {
		opts.CircleSegments = DefaultCircleSegments
	}
	c := opts.Cache
	if c == nil {
		var err error
		c, err = cache.New[MeshKey, *Mesh](cache.Config{})
		if err != nil {
			return nil, err
		}
	}
	return &Resolver{
		g:          g,
		opts:       opts,
		cache:      c,
		cyclicMaps: findCyclicMaps(g),
	}, nil
}

// CacheStats reports mapped-representation cache statistics.
func (r *Resolver) CacheStats() cache.Stats {
	return r.cache.Stats()
}

// DegenerateFaces reports how many faces were skipped because they have no
// area.
func (r *Resolver) DegenerateFaces() int64 {
	return r.degenerate.Load()
}

// triangulate adds a face to m, counting it when it is degenerate.
func (r *Resolver) triangulate(m *Mesh, outer []Vec3, inner [][]Vec3) {
	if err := TriangulateFace(m, outer, inner); err != nil {
		r.degenerate.Add(1)
	}
}

// Products returns the entities with a product definition shape, in
// identifier order.
func Products(g *graph.Graph) []graph.ID {
	var out []graph.ID
	for _, e := range g.Entities() {
		if isProduct(g, e) {
			out = append(out, e.ID)
		}
	}
	return out
}

func isProduct(g *graph.Graph, e *graph.Entity) bool {
	ref, ok := e.RefAt(productRepresentationAttr)
	if !ok {
		return false
	}
	pds, ok := g.Get(ref)
	return ok && pds.Type == graph.TypeProductDefinitionShape
}

// Resolve evaluates the body geometry of product. Failures are returned as
// *errors.GeometryError carrying the product identifier, except for
// cancellation of ctx by the caller, which is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, product graph.ID) ([]Instance, error) {
	insts, err := r.resolveProduct(ctx, product)
	if err != nil {
		return nil, r.productError(ctx, product, err)
	}
	return insts, nil
}

func (r *Resolver) resolveProduct(ctx context.Context, product graph.ID) ([]Instance, error) {
	p, ok := r.g.Get(product)
	if !ok {
		return nil, structural(product, "product does not exist")
	}
	if !isProduct(r.g, p) {
		return nil, unsupported(product, "%s has no product definition shape", p.Type)
	}

	place := Identity()
	if ref, ok := p.RefAt(productPlacementAttr); ok {
		var err error
		if place, err = r.placement(ref); err != nil {
			return nil, err
		}
	}

	pdsID, _ := p.RefAt(productRepresentationAttr)
	pds, _ := r.g.Get(pdsID)
	reps, err := r.bodyRepresentations(pds)
	if err != nil {
		return nil, err
	}

	var out []Instance
	st := &walk{}
	for _, rep := range reps {
		insts, err := r.resolveRepresentation(ctx, st, rep)
		if err != nil {
			return nil, err
		}
		for _, in := range insts {
			in.Transform = place.Mul(in.Transform)
			out = append(out, in)
		}
	}
	if len(out) == 0 {
		return nil, unsupported(product, "no body geometry")
	}
	return out, nil
}

// productError classifies err for product.
func (r *Resolver) productError(ctx context.Context, product graph.ID, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if ctxErr == context.DeadlineExceeded {
			return errors.NewGeometryTimeout(int64(product), ctxErr)
		}
		return ctxErr
	}
	// a context error while ctx is live came from another product's flight
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.NewGeometryTimeout(int64(product), err)
	case errors.Is(err, context.Canceled):
		return err
	}
	var ge *errors.GeometryError
	if errors.As(err, &ge) {
		// errors from the mapped cache are shared between products
		out := *ge
		if out.Product == 0 {
			out.Product = int64(product)
		}
		return &out
	}
	if errors.Is(err, errors.ErrStructural) {
		return &errors.GeometryError{Kind: errors.GeometryStructural, Product: int64(product), Message: err.Error(), Err: err}
	}
	return &errors.GeometryError{Kind: errors.GeometryUnsupported, Product: int64(product), Message: err.Error(), Err: err}
}

// bodyRepresentations selects the shape representations labelled Body, or
// all shape representations when none is.
func (r *Resolver) bodyRepresentations(pds *graph.Entity) ([]*graph.Entity, error) {
	// IfcProductDefinitionShape(Name, Description, Representations)
	var all, body []*graph.Entity
	for _, id := range pds.Attr(2).RefList() {
		rep, err := r.entity(id)
		if err != nil {
			return nil, err
		}
		if rep.Type != "IFCSHAPEREPRESENTATION" {
			continue
		}
		all = append(all, rep)
		if strings.EqualFold(rep.Attr(1).Str(), "Body") {
			body = append(body, rep)
		}
	}
	if len(body) > 0 {
		return body, nil
	}
	return all, nil
}

// walk is the per-call traversal state.
type walk struct {
	maps []graph.ID // representation maps being resolved, outermost first
}

// resolveRepresentation resolves every item of an IfcShapeRepresentation
// (ContextOfItems, RepresentationIdentifier, RepresentationType, Items).
func (r *Resolver) resolveRepresentation(ctx context.Context, st *walk, rep *graph.Entity) ([]Instance, error) {
	var out []Instance
	for _, item := range rep.Attr(3).RefList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		insts, err := r.resolveItem(ctx, st, item)
		if err != nil {
			return nil, err
		}
		out = append(out, insts...)
	}
	return out, nil
}

// resolveItem dispatches on the item kind.
func (r *Resolver) resolveItem(ctx context.Context, st *walk, id graph.ID) ([]Instance, error) {
	e, err := r.entity(id)
	if err != nil {
		return nil, err
	}
	switch kindOf(e.Type) {
	case kindMapped:
		in, err := r.mappedItem(ctx, st, e)
		if err != nil {
			return nil, err
		}
		return []Instance{in}, nil
	case kindHalfSpace, kindPolygonalHalfSpace:
		return nil, unsupported(id, "%s is only supported as a boolean operand", e.Type)
	case kindUnknown:
		return nil, unsupported(id, "unsupported representation item %s", e.Type)
	}
	m, err := r.solid(ctx, e)
	if err != nil {
		return nil, err
	}
	if m.Empty() {
		return nil, unsupported(id, "%s produced no triangles", e.Type)
	}
	m.Group = e.Type
	return []Instance{{Mesh: m, Transform: Identity(), Item: id}}, nil
}

// solid evaluates an item that yields a single mesh in item coordinates.
func (r *Resolver) solid(ctx context.Context, e *graph.Entity) (*Mesh, error) {
	switch kindOf(e.Type) {
	case kindExtrusion:
		return r.extrudedAreaSolid(ctx, e)
	case kindBrep:
		return r.facetedBrep(ctx, e)
	case kindSurfaceModel:
		return r.surfaceModel(ctx, e)
	case kindTriangulatedFaceSet:
		return r.triangulatedFaceSet(e)
	case kindPolygonalFaceSet:
		return r.polygonalFaceSet(ctx, e)
	case kindBoolean:
		return r.booleanResult(ctx, e)
	}
	return nil, unsupported(e.ID, "%s cannot be evaluated as a solid", e.Type)
}

// entity fetches a referenced entity; a missing one is a structural problem.
func (r *Resolver) entity(id graph.ID) (*graph.Entity, error) {
	e, ok := r.g.Get(id)
	if !ok {
		return nil, structural(id, "reference to missing entity")
	}
	return e, nil
}

// entityOf fetches id and checks its type.
func (r *Resolver) entityOf(id graph.ID, types ...string) (*graph.Entity, error) {
	e, err := r.entity(id)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		if e.Type == t {
			return e, nil
		}
	}
	return nil, unsupported(id, "unexpected %s, want %s", e.Type, strings.Join(types, " or "))
}

// ref returns the entity referenced by attribute i of e.
func (r *Resolver) ref(e *graph.Entity, i int, types ...string) (*graph.Entity, error) {
	id, ok := e.RefAt(i)
	if !ok {
		return nil, unsupported(e.ID, "%s attribute %d is not a reference", e.Type, i)
	}
	return r.entityOf(id, types...)
}

func unsupported(id graph.ID, format string, args ...interface{}) error {
	return errors.NewUnsupportedGeometry(int64(id), format, args...)
}

func structural(id graph.ID, format string, args ...interface{}) error {
	return &errors.GeometryError{
		Kind:    errors.GeometryStructural,
		Entity:  int64(id),
		Message: fmt.Sprintf(format, args...),
	}
}
