package dedup

import (
	"context"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/ifcslim/core/geom"
	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// pruneUnreachable removes every entity not reachable from the graph's roots
// and returns how many were removed.
func pruneUnreachable(g *graph.Graph) int {
	keep := g.Reachable(g.Roots())
	var drop []graph.ID
	for _, id := range g.IDs() {
		if !keep[id] {
			drop = append(drop, id)
		}
	}
	g.Remove(drop...)
	return len(drop)
}

// membersAttr is the index of the member list of a property definition:
// IfcPropertySet.HasProperties and IfcElementQuantity.Quantities.
var membersAttr = map[string]int{
	graph.TypePropertySet:     4,
	graph.TypeElementQuantity: 5,
}

// relatingDefinitionAttr is IfcRelDefinesByProperties.RelatingPropertyDefinition.
const relatingDefinitionAttr = 5

// dropEmptyPropertySets removes property and quantity sets that have no
// members together with the IfcRelDefinesByProperties attaching them. A set
// that is referenced by anything else is kept. It returns the number of
// entities removed.
func dropEmptyPropertySets(g *graph.Graph) int {
	inverse := g.Inverse()
	var drop []graph.ID
	for _, ps := range g.OfType(graph.TypePropertySet, graph.TypeElementQuantity) {
		members := ps.Attr(membersAttr[ps.Type])
		if members.Kind == graph.KindList && len(members.Items) > 0 {
			continue
		}

		var rels []graph.ID
		referenced := false
		for _, ref := range inverse[ps.ID] {
			rel, _ := g.Get(ref)
			if rel.Type != graph.TypeRelDefinesByProperties {
				referenced = true
				break
			}
			if target, ok := rel.RefAt(relatingDefinitionAttr); !ok || target != ps.ID {
				referenced = true
				break
			}
			rels = append(rels, ref)
		}
		if referenced {
			continue
		}
		drop = append(drop, rels...)
		drop = append(drop, ps.ID)
	}
	g.Remove(drop...)
	return len(drop)
}

// Relationship attribute layout shared by the spatial passes.
const (
	relatingObjectAttr    = 4 // IfcRelAggregates
	relatedObjectsAttr    = 5
	relatedElementsAttr   = 4 // IfcRelContainedInSpatialStructure
	relatingStructureAttr = 5
)

var spatialTypes = map[string]bool{
	graph.TypeSite:           true,
	graph.TypeBuilding:       true,
	graph.TypeBuildingStorey: true,
	graph.TypeSpace:          true,
}

// detach removes the entities in drop and cuts every reference to them. A
// relationship that loses a link is removed with them, and so is a property
// definition whose last relationship goes. drop is extended in place. It
// returns the number of entities removed.
func detach(g *graph.Graph, drop map[graph.ID]bool) int {
	inverse := g.Inverse()
	queue := make([]graph.ID, 0, len(drop))
	for id := range drop {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, ref := range inverse[id] {
			if drop[ref] {
				continue
			}
			e, ok := g.Get(ref)
			if !ok {
				continue
			}
			if _, lost := cutRefs(e, drop); !lost || !strings.HasPrefix(e.Type, "IFCREL") {
				continue
			}
			drop[ref] = true
			queue = append(queue, ref)
			for _, def := range e.Refs() {
				if orphanedDefinition(g, inverse, drop, def) {
					drop[def] = true
					queue = append(queue, def)
				}
			}
		}
	}

	ids := make([]graph.ID, 0, len(drop))
	for id := range drop {
		if _, ok := g.Get(id); ok {
			ids = append(ids, id)
		}
	}
	g.Remove(ids...)
	return len(ids)
}

// orphanedDefinition reports whether id is a property or quantity set whose
// every referrer is being dropped.
func orphanedDefinition(g *graph.Graph, inverse map[graph.ID][]graph.ID, drop map[graph.ID]bool, id graph.ID) bool {
	if drop[id] {
		return false
	}
	e, ok := g.Get(id)
	if !ok {
		return false
	}
	if _, ok := membersAttr[e.Type]; !ok {
		return false
	}
	for _, ref := range inverse[id] {
		if !drop[ref] {
			return false
		}
	}
	return true
}

// cutRefs removes references to dropped entities from e. List members are
// dropped and single references become $. lost is set when a single
// reference was cut or a list lost its last member.
func cutRefs(e *graph.Entity, drop map[graph.ID]bool) (changed, lost bool) {
	for i := range e.Attrs {
		c, l := cutValue(&e.Attrs[i], drop)
		changed = changed || c
		lost = lost || l
	}
	return changed, lost
}

func cutValue(v *graph.Value, drop map[graph.ID]bool) (changed, lost bool) {
	switch v.Kind {
	case graph.KindRef:
		if drop[v.Ref] {
			*v = graph.Null()
			return true, true
		}
	case graph.KindTyped:
		for i := range v.Items {
			if c, _ := cutValue(&v.Items[i], drop); c {
				*v = graph.Null()
				return true, true
			}
		}
	case graph.KindList:
		items := v.Items[:0]
		for _, it := range v.Items {
			if it.Kind == graph.KindRef && drop[it.Ref] {
				changed = true
				continue
			}
			c, l := cutValue(&it, drop)
			changed = changed || c
			lost = lost || l
			items = append(items, it)
		}
		if changed && len(items) == 0 {
			lost = true
		}
		v.Items = items
	}
	return changed, lost
}

// removeUnusedSpaces removes spaces that nothing refers to except property
// relationships and the aggregation placing them in their parent. It returns
// the number of spaces removed.
func removeUnusedSpaces(g *graph.Graph) int {
	inverse := g.Inverse()
	drop := make(map[graph.ID]bool)
	for _, sp := range g.OfType(graph.TypeSpace) {
		if !spaceInUse(g, inverse[sp.ID], sp.ID) {
			drop[sp.ID] = true
		}
	}
	n := len(drop)
	if n > 0 {
		detach(g, drop)
	}
	return n
}

func spaceInUse(g *graph.Graph, referrers []graph.ID, id graph.ID) bool {
	for _, ref := range referrers {
		rel, _ := g.Get(ref)
		switch rel.Type {
		case graph.TypeRelDefinesByProperties:
			continue
		case graph.TypeRelAggregates:
			if parent, ok := rel.RefAt(relatingObjectAttr); ok && parent != id {
				continue
			}
		}
		return true
	}
	return false
}

// flattenSpatialStructure removes sites, buildings and storeys that contain
// no elements and decompose into nothing that is kept. Containers emptied by
// the removal of their children go too. It returns the number of containers
// removed.
func flattenSpatialStructure(g *graph.Graph) int {
	inverse := g.Inverse()
	containers := g.OfType(graph.TypeSite, graph.TypeBuilding, graph.TypeBuildingStorey)
	drop := make(map[graph.ID]bool)
	for changed := true; changed; {
		changed = false
		for _, c := range containers {
			if drop[c.ID] || holdsAnything(g, inverse[c.ID], c.ID, drop) {
				continue
			}
			drop[c.ID] = true
			changed = true
		}
	}
	n := len(drop)
	if n > 0 {
		detach(g, drop)
	}
	return n
}

func holdsAnything(g *graph.Graph, referrers []graph.ID, id graph.ID, drop map[graph.ID]bool) bool {
	for _, ref := range referrers {
		rel, _ := g.Get(ref)
		switch rel.Type {
		case graph.TypeRelContainedInSpatialStructure, graph.TypeRelReferencedInSpatialStructure:
			if s, ok := rel.RefAt(relatingStructureAttr); ok && s == id && len(rel.Attr(relatedElementsAttr).RefList()) > 0 {
				return true
			}
		case graph.TypeRelAggregates:
			if parent, ok := rel.RefAt(relatingObjectAttr); !ok || parent != id {
				continue
			}
			for _, child := range rel.Attr(relatedObjectsAttr).RefList() {
				if !drop[child] {
					return true
				}
			}
		}
	}
	return false
}

// mergeOwnerHistories points every reference to an owner history at the
// first one and removes the rest. It returns the number removed.
func mergeOwnerHistories(g *graph.Graph) (int, error) {
	hs := g.OfType(graph.TypeOwnerHistory)
	if len(hs) < 2 {
		return 0, nil
	}
	repl := make(map[graph.ID]graph.ID, len(hs)-1)
	for _, h := range hs[1:] {
		repl[h.ID] = hs[0].ID
	}
	if err := g.RewriteRefs(repl); err != nil {
		return 0, err
	}
	for id := range repl {
		g.Remove(id)
	}
	return len(repl), nil
}

// clearEmptyAttributes sets empty strings and NOTDEFINED enumerations of
// rooted entities to $. The GlobalId is left alone. It returns the number of
// attributes cleared.
func clearEmptyAttributes(g *graph.Graph) int {
	n := 0
	for _, e := range g.Entities() {
		if _, ok := e.GlobalID(); !ok {
			continue
		}
		for i := 1; i < len(e.Attrs); i++ {
			a := &e.Attrs[i]
			if (a.Kind == graph.KindString && a.Text == "") || (a.Kind == graph.KindEnum && a.Text == "NOTDEFINED") {
				*a = graph.Null()
				n++
			}
		}
	}
	return n
}

// dropSmallElements removes products whose body encloses less than
// minVolume. Spatial elements and products whose geometry cannot be
// evaluated are kept. It returns the number of products removed.
func dropSmallElements(ctx context.Context, g *graph.Graph, minVolume float64, workers int) (int, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	r, err := geom.NewResolver(g, geom.Options{})
	if err != nil {
		return 0, err
	}

	var candidates []graph.ID
	for _, id := range geom.Products(g) {
		if e, _ := g.Get(id); !spatialTypes[e.Type] {
			candidates = append(candidates, id)
		}
	}
	small := make([]bool, len(candidates))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, id := range candidates {
		eg.Go(func() error {
			insts, err := r.Resolve(egctx, id)
			if err != nil {
				return egctx.Err()
			}
			small[i] = len(insts) > 0 && enclosedVolume(insts) < minVolume
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	drop := make(map[graph.ID]bool)
	for i, id := range candidates {
		if small[i] {
			drop[id] = true
		}
	}
	n := len(drop)
	if n > 0 {
		detach(g, drop)
	}
	return n, nil
}

func enclosedVolume(insts []geom.Instance) float64 {
	var v float64
	for _, in := range insts {
		v += in.Mesh.Volume() * in.Transform.Det3()
	}
	return math.Abs(v)
}
