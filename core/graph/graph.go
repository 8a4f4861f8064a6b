// Package graph provides the in-memory entity graph of an IFC model: typed,
// numbered entities with ordered attribute values and the forward and inverse
// references between them.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/FocuswithJustin/ifcslim/core/errors"
)

// Header is one record of the STEP header section, e.g. FILE_SCHEMA.
type Header struct {
	Name   string
	Params []Value
}

// Graph owns the entities of one model.
type Graph struct {
	Header   []Header
	entities map[ID]*Entity
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{entities: make(map[ID]*Entity)}
}

// Add inserts an entity. Identifiers must be positive and unique.
func (g *Graph) Add(e *Entity) error {
	if e.ID <= 0 {
		return errors.NewStructural(int64(e.ID), "invalid instance identifier")
	}
	if _, dup := g.entities[e.ID]; dup {
		return errors.NewStructural(int64(e.ID), "duplicate instance identifier")
	}
	g.entities[e.ID] = e
	return nil
}

// Get returns the entity with the given identifier.
func (g *Graph) Get(id ID) (*Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Len returns the number of entities.
func (g *Graph) Len() int {
	return len(g.entities)
}

// IDs returns all identifiers in ascending order.
func (g *Graph) IDs() []ID {
	ids := make([]ID, 0, len(g.entities))
	for id := range g.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Entities returns all entities in ascending identifier order.
func (g *Graph) Entities() []*Entity {
	ids := g.IDs()
	out := make([]*Entity, len(ids))
	for i, id := range ids {
		out[i] = g.entities[id]
	}
	return out
}

// OfType returns the entities of the given types in identifier order.
func (g *Graph) OfType(types ...string) []*Entity {
	var out []*Entity
	for _, e := range g.Entities() {
		if slices.Contains(types, e.Type) {
			out = append(out, e)
		}
	}
	return out
}

// TypeCounts returns the number of entities per type.
func (g *Graph) TypeCounts() map[string]int {
	counts := make(map[string]int)
	for _, e := range g.entities {
		counts[e.Type]++
	}
	return counts
}

// Inverse builds the inverse index: for every entity, the sorted identifiers
// of the entities referencing it.
func (g *Graph) Inverse() map[ID][]ID {
	inv := make(map[ID][]ID)
	for _, e := range g.Entities() {
		seen := make(map[ID]bool)
		for _, r := range e.Refs() {
			if seen[r] {
				continue
			}
			seen[r] = true
			inv[r] = append(inv[r], e.ID)
		}
	}
	return inv
}

// Validate checks that every reference resolves to an entity of the graph.
func (g *Graph) Validate() error {
	for _, e := range g.Entities() {
		for _, r := range e.Refs() {
			if _, ok := g.entities[r]; !ok {
				return errors.NewStructural(int64(e.ID), "dangling reference to #%d", r)
			}
		}
	}
	return nil
}

// IsRoot reports whether e is a declared root or context entity.
func IsRoot(e *Entity) bool {
	switch e.Type {
	case TypeProject, TypeGeometricRepresentationContext:
		return true
	}
	_, ok := e.GlobalID()
	return ok
}

// Roots returns the root and context entities in identifier order.
func (g *Graph) Roots() []ID {
	var roots []ID
	for _, e := range g.Entities() {
		if IsRoot(e) {
			roots = append(roots, e.ID)
		}
	}
	return roots
}

// Reachable returns the set of entities reachable from roots through forward
// references, roots included. Missing roots are ignored.
func (g *Graph) Reachable(roots []ID) map[ID]bool {
	seen := make(map[ID]bool, len(g.entities))
	stack := make([]ID, 0, len(roots))
	for _, r := range roots {
		if _, ok := g.entities[r]; ok && !seen[r] {
			seen[r] = true
			stack = append(stack, r)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, r := range g.entities[id].Refs() {
			if _, ok := g.entities[r]; ok && !seen[r] {
				seen[r] = true
				stack = append(stack, r)
			}
		}
	}
	return seen
}

// Remove deletes entities. References to them are left untouched; callers
// are expected to have rewritten or pruned them.
func (g *Graph) Remove(ids ...ID) {
	for _, id := range ids {
		delete(g.entities, id)
	}
}

// RewriteRefs redirects references according to repl. A replacement must
// exist and have the same type as the entity it replaces; anything else is a
// structural error and leaves the graph unchanged.
func (g *Graph) RewriteRefs(repl map[ID]ID) error {
	for from, to := range repl {
		src, ok := g.entities[from]
		if !ok {
			return errors.NewStructural(int64(from), "rewrite source does not exist")
		}
		dst, ok := g.entities[to]
		if !ok {
			return errors.NewStructural(int64(from), "rewrite target #%d does not exist", to)
		}
		if src.Type != dst.Type {
			return errors.NewStructural(int64(from), "rewrite to #%d would change type %s to %s", to, src.Type, dst.Type)
		}
	}
	fn := func(id ID) (ID, bool) {
		to, ok := repl[id]
		return to, ok
	}
	for _, e := range g.entities {
		e.rewrite(fn)
	}
	return nil
}

// Renumber assigns dense identifiers from 1 in ascending order of the current
// identifiers and rewrites every reference. It returns the old-to-new mapping.
func (g *Graph) Renumber() map[ID]ID {
	ids := g.IDs()
	mapping := make(map[ID]ID, len(ids))
	for i, id := range ids {
		mapping[id] = ID(i + 1)
	}
	fn := func(id ID) (ID, bool) {
		to, ok := mapping[id]
		return to, ok
	}
	renumbered := make(map[ID]*Entity, len(ids))
	for _, id := range ids {
		e := g.entities[id]
		e.rewrite(fn)
		e.ID = mapping[id]
		renumbered[e.ID] = e
	}
	g.entities = renumbered
	return mapping
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := New()
	for id, e := range g.entities {
		c.entities[id] = e.Clone()
	}
	c.Header = make([]Header, len(g.Header))
	for i, h := range g.Header {
		params := make([]Value, len(h.Params))
		for j, p := range h.Params {
			params[j] = p.clone()
		}
		c.Header[i] = Header{Name: h.Name, Params: params}
	}
	return c
}

type levelFrame struct {
	id   ID
	refs []ID
	next int
}

// Levels orders the graph bottom-up. Level 0 holds entities without outgoing
// references; every other entity sits one level above its highest child.
// Entities of one level never reference each other. Cycles and dangling
// references are structural errors.
func (g *Graph) Levels() ([][]ID, error) {
	const (
		white uint8 = iota
		gray
		black
	)
	state := make(map[ID]uint8, len(g.entities))
	level := make(map[ID]int, len(g.entities))
	maxLevel := 0

	for _, start := range g.IDs() {
		if state[start] != white {
			continue
		}
		state[start] = gray
		stack := []levelFrame{{id: start, refs: g.entities[start].Refs()}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.refs) {
				child := top.refs[top.next]
				top.next++
				ce, ok := g.entities[child]
				if !ok {
					return nil, errors.NewStructural(int64(top.id), "dangling reference to #%d", child)
				}
				switch state[child] {
				case gray:
					return nil, cycleError(stack, child)
				case white:
					state[child] = gray
					stack = append(stack, levelFrame{id: child, refs: ce.Refs()})
				}
				continue
			}
			lv := 0
			for _, c := range top.refs {
				if l := level[c] + 1; l > lv {
					lv = l
				}
			}
			level[top.id] = lv
			if lv > maxLevel {
				maxLevel = lv
			}
			state[top.id] = black
			stack = stack[:len(stack)-1]
		}
	}

	if len(g.entities) == 0 {
		return nil, nil
	}
	levels := make([][]ID, maxLevel+1)
	for _, id := range g.IDs() {
		lv := level[id]
		levels[lv] = append(levels[lv], id)
	}
	return levels, nil
}

func cycleError(stack []levelFrame, back ID) error {
	var path []string
	started := false
	for _, f := range stack {
		if f.id == back {
			started = true
		}
		if started {
			path = append(path, fmt.Sprintf("#%d", f.id))
		}
	}
	path = append(path, fmt.Sprintf("#%d", back))
	return errors.NewStructural(int64(back), "reference cycle %s", strings.Join(path, " -> "))
}
