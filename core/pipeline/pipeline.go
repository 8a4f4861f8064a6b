// Package pipeline sequences reading, deduplication, writing and geometry
// export of one IFC model.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FocuswithJustin/ifcslim/core/dedup"
	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/graph"
	"github.com/FocuswithJustin/ifcslim/core/obj"
	"github.com/FocuswithJustin/ifcslim/core/step"
	"github.com/FocuswithJustin/ifcslim/internal/config"
	"github.com/FocuswithJustin/ifcslim/internal/history"
	"github.com/FocuswithJustin/ifcslim/internal/logging"
	"github.com/FocuswithJustin/ifcslim/internal/validation"
)

// Config describes one run.
type Config struct {
	// Input is the IFC file to read (plain, xz or gzip).
	Input string
	// Output is where the reduced IFC is written. Empty skips writing.
	Output string
	// OBJ is the combined OBJ file, or the directory for per-product output.
	// Empty skips geometry.
	OBJ string
	// SkipDedup exports the input graph without reducing it.
	SkipDedup bool
	// Settings are the tunables; nil means config.Default().
	Settings *config.Config
}

// Run executes the pipeline. Per-product geometry failures are recorded in
// the report and do not fail the run unless Settings.SkipOnError is false.
// Structural and IO errors are fatal.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	s := cfg.Settings
	if s == nil {
		s = config.Default()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	compression, err := step.ParseCompression(s.Compression)
	if err != nil {
		return nil, err
	}
	mode, err := obj.ParseMode(s.Coordinates)
	if err != nil {
		return nil, err
	}
	ins, err := newInstruments()
	if err != nil {
		return nil, err
	}

	rep := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Input:     cfg.Input,
		Output:    cfg.Output,
		OBJ:       cfg.OBJ,
	}
	ctx = logging.WithRunID(ctx, rep.RunID)
	ctx, span := tracer.Start(ctx, "ifcslim.run", trace.WithAttributes(
		attribute.String("run.id", rep.RunID),
		attribute.String("input", cfg.Input),
	))
	defer span.End()

	if err := run(ctx, cfg, s, compression, mode, ins, rep); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.ErrorContext(ctx, "run failed", "input", cfg.Input, "error", err)
		return nil, err
	}
	rep.Duration = time.Since(rep.StartedAt)
	span.SetAttributes(
		attribute.Int("products.exported", rep.ProductsExported),
		attribute.Int("products.skipped", len(rep.Skipped)),
	)

	if s.HistoryDB != "" {
		if err := record(ctx, s.HistoryDB, rep); err != nil {
			logging.WarnContext(ctx, "run history not recorded", "db", s.HistoryDB, "error", err)
		}
	}
	logging.InfoContext(ctx, "run complete",
		"input", cfg.Input,
		"entities_before", rep.EntitiesBefore(),
		"entities_after", rep.EntitiesAfter(),
		"products_exported", rep.ProductsExported,
		"products_skipped", len(rep.Skipped),
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep, nil
}

func run(ctx context.Context, cfg Config, s *config.Config, compression step.Compression, mode obj.Mode, ins *instruments, rep *Report) error {
	var g *graph.Graph
	err := phase(ctx, rep, ins, PhaseRead, func(ctx context.Context) error {
		if _, err := validation.ValidateInput(cfg.Input); err != nil {
			return errors.Wrapf(err, "input %s", cfg.Input)
		}
		var err error
		g, rep.InputSize, err = step.ReadFile(cfg.Input)
		return err
	})
	if err != nil {
		return err
	}

	if err := phase(ctx, rep, ins, PhaseValidate, func(context.Context) error {
		return g.Validate()
	}); err != nil {
		return err
	}

	reduced := g
	if cfg.SkipDedup {
		size := g.EncodedSize()
		rep.Dedup = &dedup.Stats{
			EntitiesBefore: g.Len(),
			EntitiesAfter:  g.Len(),
			BytesBefore:    size,
			BytesAfter:     size,
		}
	} else {
		err := phase(ctx, rep, ins, PhaseDedup, func(ctx context.Context) error {
			opt := dedup.New(dedup.Options{
				Tolerance:               s.DedupTolerance,
				MergeGeometry:           s.MergeGeometry,
				GeometryTolerance:       s.GeometryTolerance,
				DropEmptyPropertySets:   s.DropEmptyPropertySets,
				RemoveUnusedSpaces:      s.RemoveUnusedSpaces,
				FlattenSpatialStructure: s.FlattenSpatialStructure,
				MergeOwnerHistories:     s.MergeOwnerHistories,
				ClearEmptyAttributes:    s.ClearEmptyAttributes,
				MinElementVolume:        s.MinElementVolume,
				Workers:                 s.WorkerCount(),
			})
			var err error
			reduced, rep.Dedup, err = opt.Deduplicate(ctx, g)
			return err
		})
		if err != nil {
			return err
		}
		logging.InfoContext(ctx, "deduplicated", "summary", rep.Dedup.String())
	}

	if cfg.Output != "" {
		err := phase(ctx, rep, ins, PhaseWrite, func(context.Context) error {
			var err error
			rep.OutputSize, err = step.WriteFile(cfg.Output, reduced, compression)
			return err
		})
		if err != nil {
			return err
		}
	}

	if cfg.OBJ == "" {
		return nil
	}

	var items []obj.Item
	err = phase(ctx, rep, ins, PhaseGeometry, func(ctx context.Context) error {
		var err error
		items, err = resolveProducts(ctx, reduced, s, ins, rep)
		return err
	})
	if err != nil {
		return err
	}

	return phase(ctx, rep, ins, PhaseExport, func(ctx context.Context) error {
		opts := obj.Options{
			Mode:      mode,
			Tolerance: s.DedupTolerance,
			Comment:   "source: " + cfg.Input,
		}
		return exportOBJ(ctx, cfg.OBJ, s, opts, items, ins, rep)
	})
}

// phase runs fn inside a span, logs its boundaries and records its duration.
func phase(ctx context.Context, rep *Report, ins *instruments, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "ifcslim."+name)
	defer span.End()

	logging.PhaseStart(ctx, name)
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	rep.addPhase(name, d)
	ins.phaseDone(ctx, name, d)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logging.PhaseDone(ctx, name, d)
	return nil
}

func record(ctx context.Context, path string, rep *Report) error {
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, rep.HistoryRun())
}
