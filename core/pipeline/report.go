package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/ifcslim/core/cache"
	"github.com/FocuswithJustin/ifcslim/core/dedup"
	"github.com/FocuswithJustin/ifcslim/core/obj"
	"github.com/FocuswithJustin/ifcslim/internal/history"
)

// Phase names used in reports, logs and spans.
const (
	PhaseRead     = "read"
	PhaseValidate = "validate"
	PhaseDedup    = "dedup"
	PhaseWrite    = "write"
	PhaseGeometry = "geometry"
	PhaseExport   = "export"
)

// PhaseTiming is the wall time of one phase.
type PhaseTiming struct {
	Name     string
	Duration time.Duration
}

// SkippedProduct is a product whose geometry was left out of the export.
type SkippedProduct struct {
	Product int64
	Type    string
	Kind    string // errors.GeometryKind
	Message string
}

// Report summarises a pipeline run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Input     string
	Output    string
	OBJ       string

	// File sizes on disk.
	InputSize  int64
	OutputSize int64

	Dedup *dedup.Stats

	Products         int
	ProductsExported int
	Skipped          []SkippedProduct
	Mesh             *obj.Stats
	Cache            cache.Stats
	DegenerateFaces  int64 // faces without area left out of meshes

	Phases   []PhaseTiming
	Duration time.Duration
}

// EntitiesBefore is the entity count of the input.
func (r *Report) EntitiesBefore() int {
	if r.Dedup == nil {
		return 0
	}
	return r.Dedup.EntitiesBefore
}

// EntitiesAfter is the entity count of the reduced model.
func (r *Report) EntitiesAfter() int {
	if r.Dedup == nil {
		return 0
	}
	return r.Dedup.EntitiesAfter
}

// Phase returns the duration of the named phase, or zero when it did not run.
func (r *Report) Phase(name string) time.Duration {
	for _, p := range r.Phases {
		if p.Name == name {
			return p.Duration
		}
	}
	return 0
}

func (r *Report) addPhase(name string, d time.Duration) {
	r.Phases = append(r.Phases, PhaseTiming{Name: name, Duration: d})
}

// HistoryRun converts the report into a run-history record.
func (r *Report) HistoryRun() *history.Run {
	run := &history.Run{
		ID:               r.RunID,
		StartedAt:        r.StartedAt,
		Input:            r.Input,
		Output:           r.Output,
		ProductsExported: r.ProductsExported,
		ProductsSkipped:  len(r.Skipped),
		Duration:         r.Duration,
	}
	if r.Dedup != nil {
		run.EntitiesBefore = r.Dedup.EntitiesBefore
		run.EntitiesAfter = r.Dedup.EntitiesAfter
		run.BytesBefore = r.Dedup.BytesBefore
		run.BytesAfter = r.Dedup.BytesAfter
		run.ClassesMerged = r.Dedup.ClassesMerged
	}
	for _, s := range r.Skipped {
		run.Skipped = append(run.Skipped, history.Skip{Product: s.Product, Kind: s.Kind, Message: s.Message})
	}
	return run
}

// WriteText prints a human-readable summary.
func (r *Report) WriteText(w io.Writer) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	p("Run:        %s\n", r.RunID)
	p("Input:      %s (%s)\n", r.Input, humanize.Bytes(uint64(r.InputSize)))
	if r.Output != "" {
		p("Output:     %s (%s)\n", r.Output, humanize.Bytes(uint64(r.OutputSize)))
	}
	if d := r.Dedup; d != nil {
		p("Entities:   %s -> %s (%s classes merged, %s unreachable",
			humanize.Comma(int64(d.EntitiesBefore)), humanize.Comma(int64(d.EntitiesAfter)),
			humanize.Comma(int64(d.ClassesMerged)), humanize.Comma(int64(d.Unreachable)))
		for _, c := range []struct {
			n    int
			what string
		}{
			{d.EmptyPropertySets, "empty property sets"},
			{d.SmallElements, "small elements"},
			{d.UnusedSpaces, "unused spaces"},
			{d.EmptyContainers, "empty containers"},
			{d.OwnerHistories, "owner histories"},
			{d.EmptyAttributes, "empty attributes"},
		} {
			if c.n > 0 {
				p(", %s %s", humanize.Comma(int64(c.n)), c.what)
			}
		}
		p(")\n")
		p("Data:       %s -> %s (%s saved, %.1f%%)\n",
			humanize.Bytes(uint64(d.BytesBefore)), humanize.Bytes(uint64(d.BytesAfter)),
			humanize.Bytes(uint64(d.BytesSaved)), 100*d.Reduction())
	}
	if r.OBJ != "" {
		p("OBJ:        %s\n", r.OBJ)
		p("Products:   %d of %d exported, %d skipped\n", r.ProductsExported, r.Products, len(r.Skipped))
		if m := r.Mesh; m != nil {
			p("Mesh:       %s vertices, %s triangles (%s duplicate vertices merged)\n",
				humanize.Comma(int64(m.Vertices)), humanize.Comma(int64(m.Triangles)),
				humanize.Comma(int64(m.DuplicateVertices)))
		}
		if r.DegenerateFaces > 0 {
			p("Faces:      %s degenerate faces skipped\n", humanize.Comma(r.DegenerateFaces))
		}
		if c := r.Cache; c.Hits+c.Misses > 0 {
			p("Map cache:  %d hits, %d misses (%.0f%% hit rate)\n", c.Hits, c.Misses, 100*c.HitRate())
		}
		for _, s := range r.Skipped {
			p("  skipped #%d %s: %s: %s\n", s.Product, s.Type, s.Kind, s.Message)
		}
	}
	for _, ph := range r.Phases {
		p("  %-9s %s\n", ph.Name, ph.Duration.Round(time.Millisecond))
	}
	p("Total:      %s\n", r.Duration.Round(time.Millisecond))
	return err
}
