package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &Run{
		ID: "run-1", StartedAt: base, Input: "a.ifc", Output: "a.min.ifc",
		EntitiesBefore: 58, EntitiesAfter: 55, BytesBefore: 4000, BytesAfter: 3500,
		ClassesMerged: 3, ProductsExported: 49, ProductsSkipped: 1,
		Duration: 1500 * time.Millisecond,
		Skipped:  []Skip{{Product: 120, Kind: "GeometryUnsupported", Message: "polygonal half space"}},
	}
	second := &Run{ID: "run-2", StartedAt: base.Add(time.Hour), Input: "b.ifc"}

	for _, r := range []*Run{first, second} {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record(%s): %v", r.ID, err)
		}
	}

	runs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Fatalf("List order = %v", runs)
	}

	got := runs[1]
	if got.EntitiesBefore != 58 || got.EntitiesAfter != 55 || got.BytesAfter != 3500 || got.ClassesMerged != 3 {
		t.Errorf("counts not stored: %+v", got)
	}
	if !got.StartedAt.Equal(base) || got.Duration != 1500*time.Millisecond {
		t.Errorf("times not stored: %v %v", got.StartedAt, got.Duration)
	}
	if len(got.Skipped) != 1 || got.Skipped[0].Product != 120 || got.Skipped[0].Kind != "GeometryUnsupported" {
		t.Errorf("skipped = %+v", got.Skipped)
	}
	if runs[0].Output != "" || len(runs[0].Skipped) != 0 {
		t.Errorf("second run = %+v", runs[0])
	}
}

func TestListLimit(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Record(ctx, &Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute), Input: "x.ifc"}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("List(2) = %v", runs)
	}
}

func TestRecordDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r := &Run{ID: "same", StartedAt: time.Now(), Input: "x.ifc", Skipped: []Skip{{Product: 1, Kind: "GeometryTimeout"}}}
	if err := s.Record(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, r); err == nil {
		t.Fatal("recording the same run twice should fail")
	}
	runs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || len(runs[0].Skipped) != 1 {
		t.Errorf("failed insert was not rolled back: %+v", runs)
	}
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, &Run{ID: "persisted", StartedAt: time.Now(), Input: "x.ifc"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	runs, err := s.List(ctx, 0)
	if err != nil || len(runs) != 1 || runs[0].ID != "persisted" {
		t.Errorf("after reopen: %v, %v", runs, err)
	}
}
