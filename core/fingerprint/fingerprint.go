// Package fingerprint computes content digests for IFC entities.
//
// A digest depends only on an entity's type, its attribute values and,
// recursively, the digests of the entities it references. Identifiers never
// enter the hash, so two subgraphs that differ only in numbering produce the
// same digest. Reals are quantized to a tolerance before hashing.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// DefaultTolerance is the quantization step applied to reals.
const DefaultTolerance = 1e-5

// Digest is a BLAKE3-256 content fingerprint.
type Digest [32]byte

// String returns the hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, for logs.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}

// Value tags. Each hashed value starts with one so that, for example, the
// integer 1 and the real 1. never collide.
const (
	tagNull    = 'N'
	tagDerived = 'D'
	tagInt     = 'I'
	tagReal    = 'R'
	tagRawReal = 'r'
	tagString  = 'S'
	tagEnum    = 'E'
	tagBinary  = 'B'
	tagRef     = 'F'
	tagList    = 'L'
	tagTyped   = 'T'
)

// Options configures an Engine.
type Options struct {
	// Tolerance is the quantization step for reals. Zero means DefaultTolerance.
	Tolerance float64
	// GeometryTolerance, when positive, replaces Tolerance for entities whose
	// type is in the geometric set (see IsGeometric).
	GeometryTolerance float64
}

// Engine computes and memoizes fingerprints for one graph. It is safe for
// concurrent use as long as the graph is not mutated.
type Engine struct {
	g       *graph.Graph
	tol     float64
	geomTol float64

	mu   sync.RWMutex
	memo map[graph.ID]Digest
}

// New creates an engine over g.
func New(g *graph.Graph, opts Options) *Engine {
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	geomTol := opts.GeometryTolerance
	if geomTol <= 0 {
		geomTol = tol
	}
	return &Engine{
		g:       g,
		tol:     tol,
		geomTol: geomTol,
		memo:    make(map[graph.ID]Digest, g.Len()),
	}
}

// Tolerance returns the quantization step used for entities of type typ.
func (e *Engine) Tolerance(typ string) float64 {
	if IsGeometric(typ) {
		return e.geomTol
	}
	return e.tol
}

// Len returns the number of memoized digests.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.memo)
}

// Lookup returns a memoized digest without computing it.
func (e *Engine) Lookup(id graph.ID) (Digest, bool) {
	e.mu.RLock()
	d, ok := e.memo[id]
	e.mu.RUnlock()
	return d, ok
}

// Fingerprint returns the digest of entity id. Reference cycles and dangling
// references are reported as structural errors.
func (e *Engine) Fingerprint(id graph.ID) (Digest, error) {
	if d, ok := e.Lookup(id); ok {
		return d, nil
	}
	return e.compute(id, nil, make(map[graph.ID]bool))
}

func (e *Engine) compute(id graph.ID, path []graph.ID, visiting map[graph.ID]bool) (Digest, error) {
	if d, ok := e.Lookup(id); ok {
		return d, nil
	}
	ent, ok := e.g.Get(id)
	if !ok {
		var from int64
		if len(path) > 0 {
			from = int64(path[len(path)-1])
		}
		return Digest{}, errors.NewStructural(from, "reference to missing entity #%d", id)
	}
	if visiting[id] {
		return Digest{}, cycleError(path, id)
	}
	visiting[id] = true
	path = append(path, id)
	defer delete(visiting, id)

	// Children first so the buffer below is built without interruption.
	refs := make(map[graph.ID]Digest)
	for _, child := range ent.Refs() {
		if _, done := refs[child]; done {
			continue
		}
		d, err := e.compute(child, path, visiting)
		if err != nil {
			return Digest{}, err
		}
		refs[child] = d
	}

	tol := e.Tolerance(ent.Type)
	buf := make([]byte, 0, 64+16*len(ent.Attrs))
	buf = appendText(buf, ent.Type)
	buf = binary.AppendUvarint(buf, uint64(len(ent.Attrs)))
	for _, v := range ent.Attrs {
		buf = appendValue(buf, v, tol, refs)
	}
	d := Digest(blake3.Sum256(buf))

	e.mu.Lock()
	e.memo[id] = d
	e.mu.Unlock()
	return d, nil
}

func appendText(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendValue(buf []byte, v graph.Value, tol float64, refs map[graph.ID]Digest) []byte {
	switch v.Kind {
	case graph.KindNull:
		return append(buf, tagNull)
	case graph.KindDerived:
		return append(buf, tagDerived)
	case graph.KindInteger:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(v.Int))
	case graph.KindReal:
		if q, ok := Quantize(v.Float, tol); ok {
			buf = append(buf, tagReal)
			return binary.BigEndian.AppendUint64(buf, uint64(q))
		}
		buf = append(buf, tagRawReal)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.Float))
	case graph.KindString:
		return appendText(append(buf, tagString), v.Text)
	case graph.KindEnum:
		return appendText(append(buf, tagEnum), v.Text)
	case graph.KindBinary:
		return appendText(append(buf, tagBinary), strings.ToUpper(v.Text))
	case graph.KindRef:
		d := refs[v.Ref]
		buf = append(buf, tagRef)
		return append(buf, d[:]...)
	case graph.KindList:
		buf = append(buf, tagList)
		buf = binary.AppendUvarint(buf, uint64(len(v.Items)))
		for _, it := range v.Items {
			buf = appendValue(buf, it, tol, refs)
		}
		return buf
	case graph.KindTyped:
		buf = appendText(append(buf, tagTyped), v.Text)
		buf = binary.AppendUvarint(buf, uint64(len(v.Items)))
		for _, it := range v.Items {
			buf = appendValue(buf, it, tol, refs)
		}
		return buf
	}
	return append(buf, '?')
}

// Quantize maps f onto the integer grid of step tol. It reports false when
// the result does not fit an int64 (or f is not finite), in which case the
// caller hashes the raw bits instead.
func Quantize(f, tol float64) (int64, bool) {
	if tol <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	q := math.Round(f / tol)
	if q > math.MaxInt64/2 || q < math.MinInt64/2 {
		return 0, false
	}
	if q == 0 {
		return 0, true // folds -0
	}
	return int64(q), true
}

func cycleError(path []graph.ID, back graph.ID) error {
	start := 0
	for i, id := range path {
		if id == back {
			start = i
			break
		}
	}
	var b strings.Builder
	b.WriteString("reference cycle ")
	for _, id := range path[start:] {
		fmt.Fprintf(&b, "#%d -> ", id)
	}
	fmt.Fprintf(&b, "#%d", back)
	return errors.NewStructural(int64(back), "%s", b.String())
}
