package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/FocuswithJustin/ifcslim/core/cache"
	"github.com/FocuswithJustin/ifcslim/core/encoding"
	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/geom"
	"github.com/FocuswithJustin/ifcslim/core/graph"
	"github.com/FocuswithJustin/ifcslim/core/obj"
	"github.com/FocuswithJustin/ifcslim/internal/config"
	"github.com/FocuswithJustin/ifcslim/internal/fileutil"
	"github.com/FocuswithJustin/ifcslim/internal/logging"
	"github.com/FocuswithJustin/ifcslim/internal/validation"
)

// MaterialLibrary is the name of the shared material file in per-product
// output directories.
const MaterialLibrary = "materials.mtl"

type productJob struct {
	index int
	id    graph.ID
}

type productResult struct {
	index int
	item  obj.Item
	err   error
}

// resolveProducts evaluates every product of g on a worker pool and returns
// the resolved items in product-ID order. Failed products are recorded in
// rep; with SkipOnError unset the first failure in ID order is returned
// instead and the remaining products are abandoned.
func resolveProducts(ctx context.Context, g *graph.Graph, s *config.Config, ins *instruments, rep *Report) ([]obj.Item, error) {
	meshes, err := cache.New[geom.MeshKey, *geom.Mesh](cache.Config{MaxSize: s.CacheSize})
	if err != nil {
		return nil, err
	}
	r, err := geom.NewResolver(g, geom.Options{CircleSegments: s.CircleSegments, Cache: meshes})
	if err != nil {
		return nil, err
	}
	timeout, err := s.Timeout()
	if err != nil {
		return nil, err
	}

	ids := geom.Products(g)
	rep.Products = len(ids)

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := newWorkerPool[productJob, productResult](s.WorkerCount(), len(ids))
	pool.Start(poolCtx, func(ctx context.Context, job productJob) productResult {
		pctx := ctx
		if timeout > 0 {
			var done context.CancelFunc
			pctx, done = context.WithTimeout(ctx, timeout)
			defer done()
		}
		insts, err := r.Resolve(pctx, job.id)
		if err != nil {
			if !s.SkipOnError {
				cancel()
			}
			return productResult{index: job.index, err: err}
		}
		e, _ := g.Get(job.id)
		return productResult{index: job.index, item: obj.Item{
			ID:        int64(job.id),
			Name:      productName(e),
			Type:      e.Type,
			Instances: insts,
		}}
	}, func(job productJob) productResult {
		return productResult{index: job.index, err: context.Canceled}
	})

	for i, id := range ids {
		pool.Submit(productJob{index: i, id: id})
	}
	pool.Close()

	results := make([]productResult, len(ids))
	for res := range pool.Results() {
		results[res.index] = res
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep.Cache = r.CacheStats()
	if rep.DegenerateFaces = r.DegenerateFaces(); rep.DegenerateFaces > 0 {
		logging.WarnContext(ctx, "degenerate faces skipped", "count", rep.DegenerateFaces)
	}

	items := make([]obj.Item, 0, len(ids))
	for i, res := range results {
		if res.err == nil {
			items = append(items, res.item)
			continue
		}
		kind, ok := errors.GeometryKindOf(res.err)
		if !ok {
			if errors.Is(res.err, context.Canceled) && !s.SkipOnError {
				// abandoned after another product failed
				continue
			}
			return nil, res.err
		}
		if !s.SkipOnError {
			return nil, res.err
		}

		e, _ := g.Get(ids[i])
		rep.Skipped = append(rep.Skipped, SkippedProduct{
			Product: int64(ids[i]),
			Type:    e.Type,
			Kind:    string(kind),
			Message: res.err.Error(),
		})
		ins.productSkipped(ctx, string(kind))
		logging.ProductSkipped(ctx, int64(ids[i]), string(kind), res.err, "type", e.Type)
	}
	return items, nil
}

// productName is the GlobalId of a product, or its entity reference when it
// has none.
func productName(e *graph.Entity) string {
	if guid, ok := e.GlobalID(); ok {
		return guid
	}
	return fmt.Sprintf("#%d", e.ID)
}

// exportOBJ writes items to path: one file in combined mode, one file per
// item inside the directory path in per-product mode.
func exportOBJ(ctx context.Context, path string, s *config.Config, opts obj.Options, items []obj.Item, ins *instruments, rep *Report) error {
	types := make([]string, 0, len(items))
	for _, it := range items {
		types = append(types, it.Type)
	}

	total := &obj.Stats{}
	switch s.OutputMode {
	case config.OutputPerProduct:
		if err := os.MkdirAll(path, 0755); err != nil {
			return errors.NewIO("create directory", path, err)
		}
		if s.WriteMTL {
			opts.MTLName = MaterialLibrary
			if err := writeAtomic(filepath.Join(path, MaterialLibrary), func(w io.Writer) error {
				return obj.WriteMTL(types, w)
			}); err != nil {
				return err
			}
		}
		exp := obj.New(opts)
		used := make(map[string]bool, len(items))
		for _, it := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := encoding.FileName(it.GroupName())
			if used[name] {
				name = fmt.Sprintf("%s_%d", name, len(used))
			}
			used[name] = true
			rel, err := validation.SanitizePath(path, name+".obj")
			if err != nil {
				return errors.Wrapf(err, "product file name %q", name)
			}

			var st *obj.Stats
			err = writeAtomic(filepath.Join(path, rel), func(w io.Writer) error {
				var err error
				if st, err = exp.Export([]obj.Item{it}, w); err == nil && st.Items == 0 {
					return errNothingWritten
				}
				return err
			})
			if err != nil && err != errNothingWritten {
				return err
			}
			total.Add(st)
		}

	default:
		if s.WriteMTL {
			mtl := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
			opts.MTLName = filepath.Base(mtl)
			if err := writeAtomic(mtl, func(w io.Writer) error {
				return obj.WriteMTL(types, w)
			}); err != nil {
				return err
			}
		}
		err := writeAtomic(path, func(w io.Writer) error {
			var err error
			total, err = obj.New(opts).Export(items, w)
			return err
		})
		if err != nil {
			return err
		}
	}

	rep.Mesh = total
	rep.ProductsExported = total.Items
	ins.productsExported(ctx, total.Items)
	return dropped(ctx, s, items, total.Dropped, ins, rep)
}

// errNothingWritten aborts a per-product file whose item had no triangles.
var errNothingWritten = fmt.Errorf("no triangles")

// dropped records items the exporter left out for lack of triangles. With
// SkipOnError unset the first one fails the run.
func dropped(ctx context.Context, s *config.Config, items []obj.Item, ids []int64, ins *instruments, rep *Report) error {
	if len(ids) == 0 {
		return nil
	}
	types := make(map[int64]string, len(items))
	for _, it := range items {
		types[it.ID] = it.Type
	}
	for _, id := range ids {
		err := &errors.GeometryError{Kind: errors.GeometryUnsupported, Product: id, Message: "no triangle survived vertex welding"}
		if !s.SkipOnError {
			return err
		}
		kind := string(errors.GeometryUnsupported)
		rep.Skipped = append(rep.Skipped, SkippedProduct{
			Product: id,
			Type:    types[id],
			Kind:    kind,
			Message: err.Error(),
		})
		ins.productSkipped(ctx, kind)
		logging.ProductSkipped(ctx, id, kind, err, "type", types[id])
	}
	slices.SortFunc(rep.Skipped, func(a, b SkippedProduct) int {
		return cmp.Compare(a.Product, b.Product)
	})
	return nil
}

func writeAtomic(path string, fn func(io.Writer) error) error {
	_, err := fileutil.WriteAtomic(path, fn)
	return err
}
