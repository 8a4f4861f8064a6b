package dedup

import (
	"context"
	"testing"

	"github.com/FocuswithJustin/ifcslim/core/graph"
)

func ref(id graph.ID) graph.Value { return graph.RefValue(id) }

func refs(ids ...graph.ID) graph.Value {
	items := make([]graph.Value, len(ids))
	for i, id := range ids {
		items[i] = ref(id)
	}
	return graph.ListValue(items...)
}

// rooted builds an IfcRoot-like entity: GlobalId, OwnerHistory, Name,
// Description followed by attrs.
func rooted(id graph.ID, typ string, attrs ...graph.Value) *graph.Entity {
	head := []graph.Value{guid(1000 + int(id)), graph.Null(), graph.StringValue(typ), graph.Null()}
	return graph.NewEntity(id, typ, append(head, attrs...)...)
}

// spatialModel places proxy #100 in storey #22 and proxy #101 in space #25.
// Storey #23 and space #24 hold nothing; space #24 carries a property set.
// Site #40 with building #41 and storey #42 is empty throughout.
func spatialModel(t *testing.T) *graph.Graph {
	t.Helper()
	g := placementModel(t, 2)
	for _, e := range []*graph.Entity{
		rooted(20, graph.TypeSite),
		rooted(21, graph.TypeBuilding),
		rooted(22, graph.TypeBuildingStorey),
		rooted(23, graph.TypeBuildingStorey),
		rooted(24, graph.TypeSpace),
		rooted(25, graph.TypeSpace),
		rooted(30, graph.TypeRelAggregates, ref(1), refs(20, 40)),
		rooted(31, graph.TypeRelAggregates, ref(20), refs(21)),
		rooted(32, graph.TypeRelAggregates, ref(21), refs(22, 23)),
		rooted(33, graph.TypeRelAggregates, ref(22), refs(24, 25)),
		rooted(34, graph.TypeRelContainedInSpatialStructure, refs(100), ref(22)),
		rooted(35, graph.TypeRelContainedInSpatialStructure, refs(101), ref(25)),
		graph.NewEntity(36, "IFCPROPERTYSINGLEVALUE", graph.StringValue("Area"), graph.Null(),
			graph.TypedValue("IFCAREAMEASURE", graph.RealValue(12)), graph.Null()),
		rooted(37, graph.TypePropertySet, refs(36)),
		rooted(38, graph.TypeRelDefinesByProperties, refs(24), ref(37)),
		rooted(40, graph.TypeSite),
		rooted(41, graph.TypeBuilding),
		rooted(42, graph.TypeBuildingStorey),
		rooted(43, graph.TypeRelAggregates, ref(40), refs(41)),
		rooted(44, graph.TypeRelAggregates, ref(41), refs(42)),
	} {
		if err := g.Add(e); err != nil {
			t.Fatalf("Add(#%d): %v", e.ID, err)
		}
	}
	return g
}

func countTypes(g *graph.Graph, types ...string) int {
	return len(g.OfType(types...))
}

func TestRemoveUnusedSpaces(t *testing.T) {
	out, stats, err := New(Options{RemoveUnusedSpaces: true}).Deduplicate(context.Background(), spatialModel(t))
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.UnusedSpaces != 1 {
		t.Errorf("UnusedSpaces = %d, want 1", stats.UnusedSpaces)
	}
	if n := countTypes(out, graph.TypeSpace); n != 1 {
		t.Errorf("%d spaces left, want 1", n)
	}
	// the property relationship and its set go with the space
	if n := countTypes(out, graph.TypeRelDefinesByProperties, graph.TypePropertySet, "IFCPROPERTYSINGLEVALUE"); n != 0 {
		t.Errorf("%d property entities left, want 0", n)
	}
	for _, rel := range out.OfType(graph.TypeRelAggregates) {
		if len(rel.Attr(relatedObjectsAttr).RefList()) == 0 {
			t.Errorf("aggregation #%d left without members", rel.ID)
		}
	}
	if n := countTypes(out, graph.TypeBuildingStorey); n != 3 {
		t.Errorf("storeys touched: %d left, want 3", n)
	}
}

func TestFlattenSpatialStructure(t *testing.T) {
	out, stats, err := New(Options{FlattenSpatialStructure: true}).Deduplicate(context.Background(), spatialModel(t))
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	// storey #23 and the whole of site #40
	if stats.EmptyContainers != 4 {
		t.Errorf("EmptyContainers = %d, want 4", stats.EmptyContainers)
	}
	if n := countTypes(out, graph.TypeSite); n != 1 {
		t.Errorf("%d sites left, want 1", n)
	}
	if n := countTypes(out, graph.TypeBuilding); n != 1 {
		t.Errorf("%d buildings left, want 1", n)
	}
	if n := countTypes(out, graph.TypeBuildingStorey); n != 1 {
		t.Errorf("%d storeys left, want 1", n)
	}
	// #30 keeps site #20, #43 and #44 lose their parent
	if n := countTypes(out, graph.TypeRelAggregates); n != 4 {
		t.Errorf("%d aggregations left, want 4", n)
	}
	if n := countTypes(out, graph.TypeSpace); n != 2 {
		t.Errorf("spaces must be left to their own pass, %d left", n)
	}
}

func TestFlattenKeepsContainersWithSpaces(t *testing.T) {
	g := spatialModel(t)
	// emptying storey #22 of elements still leaves its spaces
	rel, _ := g.Get(34)
	rel.Attrs[relatingStructureAttr] = ref(23)

	out, stats, err := New(Options{FlattenSpatialStructure: true}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.EmptyContainers != 3 {
		t.Errorf("EmptyContainers = %d, want 3", stats.EmptyContainers)
	}
	if n := countTypes(out, graph.TypeBuildingStorey); n != 2 {
		t.Errorf("%d storeys left, want 2", n)
	}
}

func TestMergeOwnerHistories(t *testing.T) {
	g := spatialModel(t)
	history := func(id graph.ID, date int64) *graph.Entity {
		return graph.NewEntity(id, graph.TypeOwnerHistory, graph.Null(), graph.Null(), graph.Null(),
			graph.EnumValue("ADDED"), graph.Null(), graph.Null(), graph.Null(), graph.IntValue(date))
	}
	_ = g.Add(history(50, 1))
	_ = g.Add(history(51, 2))
	site, _ := g.Get(20)
	site.Attrs[1] = ref(50)
	building, _ := g.Get(21)
	building.Attrs[1] = ref(51)

	out, stats, err := New(Options{MergeOwnerHistories: true}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.OwnerHistories != 1 {
		t.Errorf("OwnerHistories = %d, want 1", stats.OwnerHistories)
	}
	hs := out.OfType(graph.TypeOwnerHistory)
	if len(hs) != 1 {
		t.Fatalf("%d owner histories left, want 1", len(hs))
	}
	for _, e := range out.OfType(graph.TypeSite, graph.TypeBuilding) {
		if h, ok := e.RefAt(1); ok && h != hs[0].ID {
			t.Errorf("#%d still points at #%d", e.ID, h)
		}
	}
}

func TestClearEmptyAttributes(t *testing.T) {
	g := spatialModel(t)
	site, _ := g.Get(20)
	site.Attrs[2] = graph.StringValue("")
	site.Attrs = append(site.Attrs, graph.EnumValue("NOTDEFINED"), graph.EnumValue("ELEMENT"))
	prop, _ := g.Get(36)
	prop.Attrs[0] = graph.StringValue("")

	out, stats, err := New(Options{ClearEmptyAttributes: true}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.EmptyAttributes != 2 {
		t.Errorf("EmptyAttributes = %d, want 2", stats.EmptyAttributes)
	}
	for _, e := range out.OfType(graph.TypeSite) {
		if len(e.Attrs) == 6 && e.Attr(5).Text != "ELEMENT" {
			t.Errorf("a defined enumeration was cleared on #%d", e.ID)
		}
		if _, ok := e.GlobalID(); !ok {
			t.Errorf("GlobalId cleared on #%d", e.ID)
		}
	}
	for _, e := range out.OfType("IFCPROPERTYSINGLEVALUE") {
		if e.Attr(0).Kind != graph.KindString {
			t.Errorf("an entity without GlobalId was touched: %v", e.Attr(0))
		}
	}
}

func TestDropSmallElements(t *testing.T) {
	g := spatialModel(t)
	box := func(base graph.ID, product graph.ID, size float64) {
		for _, e := range []*graph.Entity{
			graph.NewEntity(base, "IFCRECTANGLEPROFILEDEF", graph.EnumValue("AREA"), graph.Null(), graph.Null(),
				graph.RealValue(size), graph.RealValue(size)),
			graph.NewEntity(base+1, "IFCDIRECTION", real3(0, 0, 1)),
			graph.NewEntity(base+2, "IFCEXTRUDEDAREASOLID", ref(base), graph.Null(), ref(base+1), graph.RealValue(size)),
			graph.NewEntity(base+3, "IFCSHAPEREPRESENTATION", graph.Null(), graph.StringValue("Body"),
				graph.StringValue("SweptSolid"), refs(base+2)),
			graph.NewEntity(base+4, graph.TypeProductDefinitionShape, graph.Null(), graph.Null(), refs(base+3)),
		} {
			if err := g.Add(e); err != nil {
				t.Fatalf("Add(#%d): %v", e.ID, err)
			}
		}
		p, _ := g.Get(product)
		p.Attrs[6] = ref(base + 4)
	}
	box(600, 100, 1)
	box(610, 101, 0.05)

	_, off, err := New(Options{}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if off.SmallElements != 0 {
		t.Errorf("pass ran while disabled")
	}

	out, stats, err := New(Options{MinElementVolume: 0.001}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.SmallElements != 1 {
		t.Errorf("SmallElements = %d, want 1", stats.SmallElements)
	}
	if n := countTypes(out, "IFCBUILDINGELEMENTPROXY"); n != 1 {
		t.Errorf("%d proxies left, want 1", n)
	}
	if n := countTypes(out, "IFCEXTRUDEDAREASOLID"); n != 1 {
		t.Errorf("geometry of the removed proxy should be pruned, %d solids left", n)
	}
	// the space held only the small proxy; its containment goes with it
	if n := countTypes(out, graph.TypeRelContainedInSpatialStructure); n != 1 {
		t.Errorf("%d containment relationships left, want 1", n)
	}
	if n := countTypes(out, graph.TypeSpace); n != 2 {
		t.Errorf("spatial elements must never be removed by volume, %d spaces left", n)
	}
}

func TestDetachCutsReferences(t *testing.T) {
	g := spatialModel(t)
	n := detach(g, map[graph.ID]bool{101: true})
	// the proxy and its containment
	if n != 2 {
		t.Errorf("detach removed %d entities, want 2", n)
	}
	if _, ok := g.Get(35); ok {
		t.Error("containment without elements should be removed")
	}
	if err := g.Validate(); err != nil {
		t.Errorf("dangling reference after detach: %v", err)
	}
}
