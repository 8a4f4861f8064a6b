// Package dedup shrinks an IFC entity graph by merging entities with equal
// content fingerprints and pruning what is no longer reachable.
package dedup

import (
	"context"
	"fmt"

	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/fingerprint"
	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// Options configures an Optimizer.
type Options struct {
	// Tolerance is the real quantization step (default 1e-5).
	Tolerance float64
	// MergeGeometry hashes geometric entities at GeometryTolerance so that
	// near-duplicate geometry is merged too.
	MergeGeometry bool
	// GeometryTolerance is used only when MergeGeometry is set (default 1e-3).
	GeometryTolerance float64
	// DropEmptyPropertySets removes property sets and quantity sets without
	// members, and the relationships attaching them.
	DropEmptyPropertySets bool
	// RemoveUnusedSpaces removes spaces referenced only by property
	// relationships and by the aggregation into their parent.
	RemoveUnusedSpaces bool
	// FlattenSpatialStructure removes sites, buildings and storeys that end
	// up holding nothing.
	FlattenSpatialStructure bool
	// MergeOwnerHistories keeps only the first owner history.
	MergeOwnerHistories bool
	// ClearEmptyAttributes sets empty strings and NOTDEFINED enumerations of
	// rooted entities to $.
	ClearEmptyAttributes bool
	// MinElementVolume removes products whose body geometry encloses less
	// than this volume, in model units cubed. Zero disables the pass.
	MinElementVolume float64
	// Workers bounds fingerprint parallelism. Zero means one per CPU.
	Workers int
}

// DefaultGeometryTolerance applies when MergeGeometry is set without an
// explicit GeometryTolerance.
const DefaultGeometryTolerance = 1e-3

// Stats summarizes one deduplication run.
type Stats struct {
	EntitiesBefore    int
	EntitiesAfter     int
	ClassesMerged     int // classes with more than one member
	EntitiesMerged    int // non-canonical members removed
	Unreachable       int // removed by reachability pruning
	EmptyPropertySets int // property sets and their relationships removed
	SmallElements     int // products below MinElementVolume
	UnusedSpaces      int
	EmptyContainers   int // sites, buildings and storeys flattened away
	OwnerHistories    int // owner histories merged into the first
	EmptyAttributes   int // attributes cleared to $
	BytesBefore       int64
	BytesAfter        int64
	BytesSaved        int64
}

// Reduction returns the fraction of DATA bytes saved, between 0 and 1.
func (s *Stats) Reduction() float64 {
	if s.BytesBefore == 0 {
		return 0
	}
	return float64(s.BytesSaved) / float64(s.BytesBefore)
}

func (s *Stats) String() string {
	return fmt.Sprintf("%d -> %d entities, %d classes merged, %d unreachable, %.1f%% smaller",
		s.EntitiesBefore, s.EntitiesAfter, s.ClassesMerged, s.Unreachable, 100*s.Reduction())
}

// Optimizer runs the deduplication passes.
type Optimizer struct {
	opts Options
}

// New creates an optimizer.
func New(opts Options) *Optimizer {
	if opts.Tolerance <= 0 {
		opts.Tolerance = fingerprint.DefaultTolerance
	}
	if opts.GeometryTolerance <= 0 {
		opts.GeometryTolerance = DefaultGeometryTolerance
	}
	return &Optimizer{opts: opts}
}

// Deduplicate returns a reduced copy of g; g itself is not modified. The
// result is renumbered densely from 1 and only depends on the content of g.
func (o *Optimizer) Deduplicate(ctx context.Context, g *graph.Graph) (*graph.Graph, *Stats, error) {
	out := g.Clone()
	stats := &Stats{
		EntitiesBefore: out.Len(),
		BytesBefore:    out.EncodedSize(),
	}

	repl, classes, err := o.classes(ctx, out)
	if err != nil {
		return nil, nil, err
	}
	stats.ClassesMerged = classes
	stats.EntitiesMerged = len(repl)

	if err := out.RewriteRefs(repl); err != nil {
		return nil, nil, err
	}
	for from := range repl {
		out.Remove(from)
	}

	if o.opts.MinElementVolume > 0 {
		stats.SmallElements, err = dropSmallElements(ctx, out, o.opts.MinElementVolume, o.opts.Workers)
		if err != nil {
			return nil, nil, err
		}
	}
	if o.opts.RemoveUnusedSpaces {
		stats.UnusedSpaces = removeUnusedSpaces(out)
	}
	if o.opts.FlattenSpatialStructure {
		stats.EmptyContainers = flattenSpatialStructure(out)
	}
	if o.opts.MergeOwnerHistories {
		if stats.OwnerHistories, err = mergeOwnerHistories(out); err != nil {
			return nil, nil, err
		}
	}
	if o.opts.ClearEmptyAttributes {
		stats.EmptyAttributes = clearEmptyAttributes(out)
	}
	if o.opts.DropEmptyPropertySets {
		stats.EmptyPropertySets = dropEmptyPropertySets(out)
	}

	stats.Unreachable = pruneUnreachable(out)

	if err := out.Validate(); err != nil {
		return nil, nil, err
	}
	out.Renumber()

	stats.EntitiesAfter = out.Len()
	stats.BytesAfter = out.EncodedSize()
	stats.BytesSaved = stats.BytesBefore - stats.BytesAfter
	return out, stats, nil
}

// classes fingerprints g bottom-up and maps every non-canonical member of an
// equivalence class to the class's lowest identifier.
func (o *Optimizer) classes(ctx context.Context, g *graph.Graph) (map[graph.ID]graph.ID, int, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, 0, err
	}

	fopts := fingerprint.Options{Tolerance: o.opts.Tolerance}
	if o.opts.MergeGeometry {
		fopts.GeometryTolerance = o.opts.GeometryTolerance
	}
	digests, err := fingerprint.New(g, fopts).FingerprintAll(ctx, levels, o.opts.Workers)
	if err != nil {
		return nil, 0, err
	}

	canonical := make(map[fingerprint.Digest]graph.ID, len(digests))
	merged := make(map[graph.ID]bool)
	repl := make(map[graph.ID]graph.ID)
	for _, id := range g.IDs() {
		d, ok := digests[id]
		if !ok {
			return nil, 0, errors.NewStructural(int64(id), "entity was not fingerprinted")
		}
		first, seen := canonical[d]
		if !seen {
			canonical[d] = id
			continue
		}
		repl[id] = first
		merged[first] = true
	}
	return repl, len(merged), nil
}
