package dedup

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/FocuswithJustin/ifcslim/core/graph"
	"github.com/FocuswithJustin/ifcslim/core/step"
)

func guid(i int) graph.Value {
	return graph.StringValue(fmt.Sprintf("1%021d", i))
}

func real3(x, y, z float64) graph.Value {
	return graph.ListValue(graph.RealValue(x), graph.RealValue(y), graph.RealValue(z))
}

// placementModel builds a project with two identical local placements and
// n products split across them.
func placementModel(t *testing.T, n int) *graph.Graph {
	t.Helper()
	g := graph.New()
	add := func(e *graph.Entity) {
		if err := g.Add(e); err != nil {
			t.Fatalf("Add(#%d): %v", e.ID, err)
		}
	}
	add(graph.NewEntity(1, graph.TypeProject, guid(0), graph.Null(), graph.StringValue("P"),
		graph.Null(), graph.Null(), graph.Null(), graph.Null(), graph.ListValue(graph.RefValue(2)), graph.Null()))
	add(graph.NewEntity(2, graph.TypeGeometricRepresentationContext, graph.Null(), graph.StringValue("Model"),
		graph.IntValue(3), graph.RealValue(1e-5), graph.RefValue(5), graph.Null()))
	add(graph.NewEntity(3, "IFCCARTESIANPOINT", real3(0, 0, 0)))
	add(graph.NewEntity(4, "IFCCARTESIANPOINT", real3(0, 0, 0)))
	add(graph.NewEntity(5, "IFCAXIS2PLACEMENT3D", graph.RefValue(3), graph.Null(), graph.Null()))
	add(graph.NewEntity(6, "IFCAXIS2PLACEMENT3D", graph.RefValue(4), graph.Null(), graph.Null()))
	add(graph.NewEntity(10, "IFCLOCALPLACEMENT", graph.Null(), graph.RefValue(5)))
	add(graph.NewEntity(11, "IFCLOCALPLACEMENT", graph.Null(), graph.RefValue(6)))
	for i := 0; i < n; i++ {
		pl := graph.ID(10 + i%2)
		add(graph.NewEntity(graph.ID(100+i), "IFCBUILDINGELEMENTPROXY", guid(i+1), graph.Null(),
			graph.StringValue(fmt.Sprintf("Proxy %d", i)), graph.Null(), graph.Null(), graph.RefValue(pl), graph.Null(), graph.Null(), graph.Null()))
	}
	return g
}

func TestDeduplicatePlacements(t *testing.T) {
	g := placementModel(t, 50)
	out, stats, err := New(Options{}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}

	placements := out.OfType("IFCLOCALPLACEMENT")
	if len(placements) != 1 {
		t.Fatalf("got %d placements, want 1", len(placements))
	}
	keep := placements[0].ID
	products := out.OfType("IFCBUILDINGELEMENTPROXY")
	if len(products) != 50 {
		t.Fatalf("got %d products, want 50", len(products))
	}
	for _, p := range products {
		if ref, ok := p.RefAt(5); !ok || ref != keep {
			t.Errorf("product #%d references #%d, want #%d", p.ID, ref, keep)
		}
	}

	// point, axis placement and local placement each merged once
	if stats.ClassesMerged != 3 || stats.EntitiesMerged != 3 {
		t.Errorf("ClassesMerged=%d EntitiesMerged=%d, want 3 and 3", stats.ClassesMerged, stats.EntitiesMerged)
	}
	if stats.EntitiesBefore != 58 || stats.EntitiesAfter != 55 {
		t.Errorf("entities %d -> %d, want 58 -> 55", stats.EntitiesBefore, stats.EntitiesAfter)
	}
	if stats.BytesSaved <= 0 || stats.BytesSaved != stats.BytesBefore-stats.BytesAfter {
		t.Errorf("inconsistent byte accounting: %+v", stats)
	}

	if g.Len() != 58 {
		t.Errorf("input graph was modified")
	}
}

func TestDeduplicateDenseIDs(t *testing.T) {
	out, _, err := New(Options{}).Deduplicate(context.Background(), placementModel(t, 4))
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	for i, id := range out.IDs() {
		if id != graph.ID(i+1) {
			t.Fatalf("ids not dense: position %d holds #%d", i, id)
		}
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	opt := New(Options{})
	once, _, err := opt.Deduplicate(context.Background(), placementModel(t, 10))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	twice, stats, err := opt.Deduplicate(context.Background(), once)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.ClassesMerged != 0 || stats.EntitiesMerged != 0 || stats.Unreachable != 0 {
		t.Errorf("second run changed the graph: %+v", stats)
	}
	if !bytes.Equal(encode(t, once), encode(t, twice)) {
		t.Errorf("second run output differs")
	}
}

func TestDeduplicateDeterministic(t *testing.T) {
	var first []byte
	for run := 0; run < 3; run++ {
		out, _, err := New(Options{Workers: run + 1}).Deduplicate(context.Background(), placementModel(t, 20))
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		b := encode(t, out)
		if first == nil {
			first = b
			continue
		}
		if !bytes.Equal(first, b) {
			t.Fatalf("run %d produced different output", run)
		}
	}
}

func TestDeduplicateReachability(t *testing.T) {
	g := placementModel(t, 2)
	_ = g.Add(graph.NewEntity(500, "IFCCARTESIANPOINT", real3(9, 9, 9)))
	_ = g.Add(graph.NewEntity(501, "IFCPOLYLINE", graph.ListValue(graph.RefValue(500))))

	out, stats, err := New(Options{}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.Unreachable != 2 {
		t.Errorf("Unreachable = %d, want 2", stats.Unreachable)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("dangling reference after dedup: %v", err)
	}
	reach := out.Reachable(out.Roots())
	for _, id := range out.IDs() {
		if !reach[id] {
			t.Errorf("#%d is not reachable from a root", id)
		}
	}
}

func TestDeduplicateKeepsDistinctGlobalIDs(t *testing.T) {
	g := placementModel(t, 2)
	out, _, err := New(Options{}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if n := len(out.OfType("IFCBUILDINGELEMENTPROXY")); n != 2 {
		t.Errorf("products with distinct GlobalIds were merged: %d left", n)
	}
}

func TestDeduplicateMergeGeometry(t *testing.T) {
	build := func() *graph.Graph {
		g := placementModel(t, 2)
		// nudge the second point below 1e-3 but above 1e-5
		p, _ := g.Get(4)
		p.Attrs[0] = real3(0.0002, 0, 0)
		return g
	}

	_, plain, err := New(Options{}).Deduplicate(context.Background(), build())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if plain.EntitiesMerged != 0 {
		t.Errorf("without merge_geometry nothing should merge, got %d", plain.EntitiesMerged)
	}

	_, merged, err := New(Options{MergeGeometry: true}).Deduplicate(context.Background(), build())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if merged.EntitiesMerged != 3 {
		t.Errorf("with merge_geometry EntitiesMerged = %d, want 3", merged.EntitiesMerged)
	}
}

func TestDropEmptyPropertySets(t *testing.T) {
	g := placementModel(t, 1)
	add := func(e *graph.Entity) {
		if err := g.Add(e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	add(graph.NewEntity(200, graph.TypePropertySet, guid(200), graph.Null(), graph.StringValue("Empty"), graph.Null(), graph.ListValue()))
	add(graph.NewEntity(201, graph.TypeRelDefinesByProperties, guid(201), graph.Null(), graph.Null(), graph.Null(),
		graph.ListValue(graph.RefValue(100)), graph.RefValue(200)))
	add(graph.NewEntity(202, "IFCPROPERTYSINGLEVALUE", graph.StringValue("A"), graph.Null(), graph.TypedValue("IFCLABEL", graph.StringValue("x")), graph.Null()))
	add(graph.NewEntity(203, graph.TypePropertySet, guid(203), graph.Null(), graph.StringValue("Full"), graph.Null(), graph.ListValue(graph.RefValue(202))))
	add(graph.NewEntity(204, graph.TypeRelDefinesByProperties, guid(204), graph.Null(), graph.Null(), graph.Null(),
		graph.ListValue(graph.RefValue(100)), graph.RefValue(203)))

	_, off, err := New(Options{}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if off.EmptyPropertySets != 0 {
		t.Errorf("pass ran while disabled")
	}

	out, stats, err := New(Options{DropEmptyPropertySets: true}).Deduplicate(context.Background(), g)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.EmptyPropertySets != 2 {
		t.Errorf("EmptyPropertySets = %d, want 2", stats.EmptyPropertySets)
	}
	if n := len(out.OfType(graph.TypePropertySet)); n != 1 {
		t.Errorf("%d property sets left, want 1", n)
	}
	if n := len(out.OfType(graph.TypeRelDefinesByProperties)); n != 1 {
		t.Errorf("%d relationships left, want 1", n)
	}
}

func TestDeduplicateCycle(t *testing.T) {
	g := placementModel(t, 1)
	_ = g.Add(graph.NewEntity(300, "IFCLOCALPLACEMENT", graph.RefValue(301), graph.RefValue(5)))
	_ = g.Add(graph.NewEntity(301, "IFCLOCALPLACEMENT", graph.RefValue(300), graph.RefValue(5)))
	if _, _, err := New(Options{}).Deduplicate(context.Background(), g); err == nil {
		t.Fatal("expected structural error for a reference cycle")
	}
}

func encode(t *testing.T, g *graph.Graph) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := step.Write(&buf, g); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.Bytes()
}
