package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ifcerrors "github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/geom"
	"github.com/FocuswithJustin/ifcslim/core/obj"
	"github.com/FocuswithJustin/ifcslim/internal/config"
)

func collapsingItems() []obj.Item {
	// the first two vertices fall on one grid point at the default tolerance
	sliver := &geom.Mesh{
		Vertices:  []geom.Vec3{{0, 0, 0}, {1e-7, 0, 0}, {0, 1, 0}},
		Triangles: [][3]int{{0, 1, 2}},
	}
	tri := &geom.Mesh{
		Vertices:  []geom.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Triangles: [][3]int{{0, 1, 2}},
	}
	return []obj.Item{
		{ID: 3, Name: "3", Type: "IFCWALL", Instances: []geom.Instance{{Mesh: tri, Transform: geom.Identity()}}},
		{ID: 5, Name: "5", Type: "IFCPLATE", Instances: []geom.Instance{{Mesh: sliver, Transform: geom.Identity()}}},
	}
}

func TestExportOBJRecordsCollapsedProducts(t *testing.T) {
	ins, err := newInstruments()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	s := settings()
	s.OutputMode = config.OutputPerProduct
	rep := &Report{Skipped: []SkippedProduct{{Product: 9, Type: "IFCBUILDINGELEMENTPROXY", Kind: string(ifcerrors.GeometryUnsupported)}}}

	if err := exportOBJ(context.Background(), dir, s, obj.Options{}, collapsingItems(), ins, rep); err != nil {
		t.Fatalf("exportOBJ: %v", err)
	}
	if rep.ProductsExported != 1 {
		t.Errorf("exported %d products, want 1", rep.ProductsExported)
	}
	if len(rep.Skipped) != 2 || rep.Skipped[0].Product != 5 || rep.Skipped[1].Product != 9 {
		t.Fatalf("skipped = %+v", rep.Skipped)
	}
	sk := rep.Skipped[0]
	if sk.Type != "IFCPLATE" || sk.Kind != string(ifcerrors.GeometryUnsupported) || !strings.Contains(sk.Message, "welding") {
		t.Errorf("skipped entry = %+v", sk)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if want := "IFCWALL_3.obj," + MaterialLibrary; strings.Join(names, ",") != want {
		t.Errorf("files = %v, want %s", names, want)
	}
}

func TestExportOBJCollapsedProductIsFatalWhenStrict(t *testing.T) {
	ins, err := newInstruments()
	if err != nil {
		t.Fatal(err)
	}
	s := settings()
	s.SkipOnError = false
	path := filepath.Join(t.TempDir(), "model.obj")

	err = exportOBJ(context.Background(), path, s, obj.Options{}, collapsingItems(), ins, &Report{})
	if !errors.Is(err, ifcerrors.ErrGeometryUnsupported) {
		t.Fatalf("expected unsupported geometry, got %v", err)
	}
	var ge *ifcerrors.GeometryError
	if !errors.As(err, &ge) || ge.Product != 5 {
		t.Errorf("error does not name product #5: %v", err)
	}
}
