package fingerprint

import (
	"context"
	"errors"
	"strings"
	"testing"

	ifcerrors "github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/graph"
)

func point(id graph.ID, xyz ...float64) *graph.Entity {
	items := make([]graph.Value, len(xyz))
	for i, f := range xyz {
		items[i] = graph.RealValue(f)
	}
	return graph.NewEntity(id, "IFCCARTESIANPOINT", graph.ListValue(items...))
}

func mustAdd(t *testing.T, g *graph.Graph, es ...*graph.Entity) {
	t.Helper()
	for _, e := range es {
		if err := g.Add(e); err != nil {
			t.Fatalf("Add(#%d): %v", e.ID, err)
		}
	}
}

func mustFingerprint(t *testing.T, e *Engine, id graph.ID) Digest {
	t.Helper()
	d, err := e.Fingerprint(id)
	if err != nil {
		t.Fatalf("Fingerprint(#%d): %v", id, err)
	}
	return d
}

func TestFingerprintIgnoresNumbering(t *testing.T) {
	g := graph.New()
	mustAdd(t, g,
		point(1, 0, 0, 0),
		graph.NewEntity(2, "IFCDIRECTION", graph.ListValue(graph.RealValue(0), graph.RealValue(0), graph.RealValue(1))),
		graph.NewEntity(3, "IFCAXIS2PLACEMENT3D", graph.RefValue(1), graph.RefValue(2), graph.Null()),
		graph.NewEntity(4, "IFCLOCALPLACEMENT", graph.Null(), graph.RefValue(3)),

		graph.NewEntity(100, "IFCDIRECTION", graph.ListValue(graph.RealValue(0), graph.RealValue(0), graph.RealValue(1))),
		point(205, 0, 0, 0),
		graph.NewEntity(17, "IFCAXIS2PLACEMENT3D", graph.RefValue(205), graph.RefValue(100), graph.Null()),
		graph.NewEntity(900, "IFCLOCALPLACEMENT", graph.Null(), graph.RefValue(17)),
	)
	e := New(g, Options{})
	if a, b := mustFingerprint(t, e, 4), mustFingerprint(t, e, 900); a != b {
		t.Errorf("renumbered placements differ: %s vs %s", a, b)
	}
	if a, b := mustFingerprint(t, e, 3), mustFingerprint(t, e, 1); a == b {
		t.Errorf("different entities share a digest")
	}
}

func TestFingerprintTolerance(t *testing.T) {
	tests := []struct {
		name  string
		a, b  float64
		tol   float64
		equal bool
	}{
		{"identical", 1, 1, 1e-5, true},
		{"noise below tolerance", 1, 1 + 1e-7, 1e-5, true},
		{"negative zero", 0, -1e-9, 1e-5, true},
		{"beyond tolerance", 1, 1.001, 1e-5, false},
		{"coarse tolerance merges", 1, 1.0002, 1e-3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New()
			mustAdd(t, g, point(1, tt.a, 2, 3), point(2, tt.b, 2, 3))
			e := New(g, Options{Tolerance: tt.tol})
			got := mustFingerprint(t, e, 1) == mustFingerprint(t, e, 2)
			if got != tt.equal {
				t.Errorf("equal = %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestFingerprintGeometryTolerance(t *testing.T) {
	g := graph.New()
	mustAdd(t, g,
		point(1, 1, 0, 0),
		point(2, 1.0002, 0, 0),
		graph.NewEntity(3, "IFCPROPERTYSINGLEVALUE", graph.StringValue("W"), graph.Null(), graph.TypedValue("IFCREAL", graph.RealValue(1)), graph.Null()),
		graph.NewEntity(4, "IFCPROPERTYSINGLEVALUE", graph.StringValue("W"), graph.Null(), graph.TypedValue("IFCREAL", graph.RealValue(1.0002)), graph.Null()),
	)
	e := New(g, Options{Tolerance: 1e-5, GeometryTolerance: 1e-3})
	if mustFingerprint(t, e, 1) != mustFingerprint(t, e, 2) {
		t.Errorf("points within geometry tolerance should merge")
	}
	if mustFingerprint(t, e, 3) == mustFingerprint(t, e, 4) {
		t.Errorf("non-geometric reals must use the fine tolerance")
	}
}

func TestFingerprintTypeDistinct(t *testing.T) {
	g := graph.New()
	mustAdd(t, g,
		graph.NewEntity(1, "IFCDIRECTION", graph.ListValue(graph.RealValue(1), graph.RealValue(0), graph.RealValue(0))),
		point(2, 1, 0, 0),
		graph.NewEntity(3, "IFCLABELLED", graph.IntValue(1)),
		graph.NewEntity(4, "IFCLABELLED", graph.RealValue(1)),
		graph.NewEntity(5, "IFCLABELLED", graph.StringValue("A")),
		graph.NewEntity(6, "IFCLABELLED", graph.EnumValue("A")),
	)
	e := New(g, Options{})
	seen := map[Digest]graph.ID{}
	for _, id := range g.IDs() {
		d := mustFingerprint(t, e, id)
		if prev, ok := seen[d]; ok {
			t.Errorf("#%d and #%d share digest %s", prev, id, d.Short())
		}
		seen[d] = id
	}
}

func TestFingerprintCycle(t *testing.T) {
	g := graph.New()
	mustAdd(t, g,
		graph.NewEntity(1, "IFCLOCALPLACEMENT", graph.RefValue(2), graph.Null()),
		graph.NewEntity(2, "IFCLOCALPLACEMENT", graph.RefValue(3), graph.Null()),
		graph.NewEntity(3, "IFCLOCALPLACEMENT", graph.RefValue(1), graph.Null()),
	)
	_, err := New(g, Options{}).Fingerprint(1)
	if !errors.Is(err, ifcerrors.ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
	if !strings.Contains(err.Error(), "#1 -> #2 -> #3 -> #1") {
		t.Errorf("cycle path missing from %q", err)
	}
}

func TestFingerprintDangling(t *testing.T) {
	g := graph.New()
	mustAdd(t, g, graph.NewEntity(1, "IFCLOCALPLACEMENT", graph.Null(), graph.RefValue(42)))
	_, err := New(g, Options{}).Fingerprint(1)
	var se *ifcerrors.StructuralError
	if !errors.As(err, &se) || se.Entity != 1 {
		t.Fatalf("expected structural error at #1, got %v", err)
	}
}

func TestFingerprintAllMatchesSerial(t *testing.T) {
	g := graph.New()
	mustAdd(t, g, point(1, 0, 0, 0))
	for i := graph.ID(2); i < 60; i++ {
		mustAdd(t, g, graph.NewEntity(i, "IFCLOCALPLACEMENT", graph.RefValue(i-1), graph.IntValue(int64(i%3))))
	}
	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}

	par, err := New(g, Options{}).FingerprintAll(context.Background(), levels, 4)
	if err != nil {
		t.Fatalf("FingerprintAll: %v", err)
	}
	if len(par) != g.Len() {
		t.Fatalf("got %d digests, want %d", len(par), g.Len())
	}
	serial := New(g, Options{})
	for _, id := range g.IDs() {
		if par[id] != mustFingerprint(t, serial, id) {
			t.Errorf("#%d differs between parallel and serial", id)
		}
	}
}

func TestFingerprintAllCancelled(t *testing.T) {
	g := graph.New()
	mustAdd(t, g, point(1, 0, 0, 0))
	levels, _ := g.Levels()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(g, Options{}).FingerprintAll(ctx, levels, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQuantize(t *testing.T) {
	if q, ok := Quantize(0.123456, 1e-5); !ok || q != 12346 {
		t.Errorf("Quantize = %d, %v", q, ok)
	}
	if _, ok := Quantize(1e300, 1e-5); ok {
		t.Errorf("overflow should not quantize")
	}
	if _, ok := Quantize(1, 0); ok {
		t.Errorf("zero tolerance should not quantize")
	}
}
