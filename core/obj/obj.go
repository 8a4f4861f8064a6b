// Package obj writes resolved product geometry as Wavefront OBJ.
package obj

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/ifcslim/core/encoding"
	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/fingerprint"
	"github.com/FocuswithJustin/ifcslim/core/geom"
)

// Mode selects how instance transforms are applied.
type Mode string

const (
	// ModeBake writes world coordinates.
	ModeBake Mode = "bake"
	// ModeRelative writes item coordinates preceded by a "# origin" comment
	// carrying the instance transform.
	ModeRelative Mode = "relative"
)

// ParseMode parses a coordinate mode name; the empty string is ModeBake.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBake:
		return ModeBake, nil
	case ModeRelative:
		return ModeRelative, nil
	}
	return "", errors.NewValidation("coordinates", fmt.Sprintf("unknown mode %q", s))
}

// Options configures an Exporter.
type Options struct {
	Mode Mode
	// Tolerance is the vertex merge distance (default
	// fingerprint.DefaultTolerance).
	Tolerance float64
	// MTLName, when set, is written as the mtllib reference and every group
	// gets a usemtl line naming its IFC type.
	MTLName string
	// Comment is written into the header.
	Comment string
}

// Item is one product's geometry.
type Item struct {
	ID        int64 // product entity
	Name      string
	Type      string
	Instances []geom.Instance
}

// GroupName is the OBJ group name of the item: <Type>_<Name>.
func (it Item) GroupName() string {
	return encoding.OBJName(it.Type + "_" + it.Name)
}

// Stats summarises an export.
type Stats struct {
	Items               int
	Vertices            int
	Triangles           int
	DuplicateVertices   int
	DegenerateTriangles int
	// Dropped lists the IDs of items left out because no triangle survived
	// vertex welding.
	Dropped []int64
}

// Add accumulates o into s.
func (s *Stats) Add(o *Stats) {
	s.Items += o.Items
	s.Vertices += o.Vertices
	s.Triangles += o.Triangles
	s.DuplicateVertices += o.DuplicateVertices
	s.DegenerateTriangles += o.DegenerateTriangles
	s.Dropped = append(s.Dropped, o.Dropped...)
}

// Exporter serialises items to OBJ. It keeps no state between calls.
type Exporter struct {
	opts   Options
	digits int
}

// New creates an exporter.
func New(opts Options) *Exporter {
	if opts.Mode == "" {
		opts.Mode = ModeBake
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = fingerprint.DefaultTolerance
	}
	// one digit finer than the merge tolerance
	digits := int(math.Ceil(-math.Log10(opts.Tolerance)-1e-9)) + 1
	digits = min(max(digits, 1), 12)
	return &Exporter{opts: opts, digits: digits}
}

// Export writes items to w as one OBJ stream. Face indices are global: each
// item continues where the previous one stopped. Items without triangles
// are left out and listed in Stats.Dropped.
func (x *Exporter) Export(items []Item, w io.Writer) (*Stats, error) {
	bw := bufio.NewWriter(w)
	st := &Stats{}

	fmt.Fprintln(bw, "# ifcslim OBJ export")
	if x.opts.Comment != "" {
		fmt.Fprintf(bw, "# %s\n", encoding.SingleLine(x.opts.Comment))
	}
	if x.opts.MTLName != "" {
		fmt.Fprintf(bw, "mtllib %s\n", x.opts.MTLName)
	}

	offset := 0
	var buf []byte
	for _, it := range items {
		var meshes []vertexMesh
		for _, in := range it.Instances {
			vm, err := x.weld(in, st)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", it.GroupName(), err)
			}
			if len(vm.tris) > 0 {
				meshes = append(meshes, vm)
			}
		}
		if len(meshes) == 0 {
			st.Dropped = append(st.Dropped, it.ID)
			continue
		}
		st.Items++

		fmt.Fprintf(bw, "g %s\n", it.GroupName())
		if x.opts.MTLName != "" {
			fmt.Fprintf(bw, "usemtl %s\n", encoding.OBJName(it.Type))
		}
		for _, vm := range meshes {
			if x.opts.Mode == ModeRelative {
				buf = x.appendOrigin(buf[:0], vm.origin)
				bw.Write(buf)
			}
			for _, v := range vm.verts {
				buf = append(buf[:0], 'v', ' ')
				buf = x.appendCoord(buf, v.X)
				buf = append(buf, ' ')
				buf = x.appendCoord(buf, v.Y)
				buf = append(buf, ' ')
				buf = x.appendCoord(buf, v.Z)
				buf = append(buf, '\n')
				bw.Write(buf)
			}
			for _, t := range vm.tris {
				buf = append(buf[:0], 'f', ' ')
				buf = strconv.AppendInt(buf, int64(offset+t[0]+1), 10)
				buf = append(buf, ' ')
				buf = strconv.AppendInt(buf, int64(offset+t[1]+1), 10)
				buf = append(buf, ' ')
				buf = strconv.AppendInt(buf, int64(offset+t[2]+1), 10)
				buf = append(buf, '\n')
				bw.Write(buf)
			}
			offset += len(vm.verts)
			st.Vertices += len(vm.verts)
			st.Triangles += len(vm.tris)
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, errors.NewIO("write", "obj", err)
	}
	return st, nil
}

// vertexMesh is an instance mesh with welded vertices.
type vertexMesh struct {
	verts  []geom.Vec3
	tris   [][3]int
	origin geom.Mat4
}

type vertexKey [3]int64

// weld merges vertices of one instance that quantize to the same grid
// point and drops triangles that collapse as a result. The first vertex
// seen at a grid point is kept.
func (x *Exporter) weld(in geom.Instance, st *Stats) (vertexMesh, error) {
	vm := vertexMesh{origin: in.Transform}
	if in.Mesh.Empty() {
		return vm, nil
	}
	bake := x.opts.Mode == ModeBake

	remap := make([]int, len(in.Mesh.Vertices))
	index := make(map[vertexKey]int, len(in.Mesh.Vertices))
	for i, v := range in.Mesh.Vertices {
		if bake {
			v = in.Transform.Apply(v)
		}
		var k vertexKey
		for c, f := range [3]float64{v.X, v.Y, v.Z} {
			q, ok := fingerprint.Quantize(f, x.opts.Tolerance)
			if !ok {
				return vm, errors.NewValidation("vertex", fmt.Sprintf("non-finite coordinate %v", v))
			}
			k[c] = q
		}
		if j, ok := index[k]; ok {
			remap[i] = j
			st.DuplicateVertices++
			continue
		}
		index[k] = len(vm.verts)
		remap[i] = len(vm.verts)
		vm.verts = append(vm.verts, v)
	}

	flip := bake && in.Transform.Det3() < 0
	for _, t := range in.Mesh.Triangles {
		a, b, c := remap[t[0]], remap[t[1]], remap[t[2]]
		if a == b || b == c || a == c {
			st.DegenerateTriangles++
			continue
		}
		if flip {
			b, c = c, b
		}
		vm.tris = append(vm.tris, [3]int{a, b, c})
	}

	// drop vertices only referenced by degenerate triangles
	used := make([]bool, len(vm.verts))
	for _, t := range vm.tris {
		used[t[0]], used[t[1]], used[t[2]] = true, true, true
	}
	if slices.Contains(used, false) {
		compact := make([]int, len(vm.verts))
		verts := vm.verts[:0]
		for i, v := range vm.verts {
			if used[i] {
				compact[i] = len(verts)
				verts = append(verts, v)
			}
		}
		vm.verts = verts
		for i, t := range vm.tris {
			vm.tris[i] = [3]int{compact[t[0]], compact[t[1]], compact[t[2]]}
		}
	}
	return vm, nil
}

// appendCoord formats f with the exporter's precision, trimming trailing
// zeros and folding negative zero.
func (x *Exporter) appendCoord(dst []byte, f float64) []byte {
	start := len(dst)
	dst = strconv.AppendFloat(dst, f, 'f', x.digits, 64)
	s := dst[start:]
	if i := slices.Index(s, '.'); i >= 0 {
		end := len(s)
		for end > i+1 && s[end-1] == '0' {
			end--
		}
		if end == i+1 {
			end = i
		}
		dst = dst[:start+end]
		s = dst[start:]
	}
	if string(s) == "-0" {
		dst = append(dst[:start], '0')
	}
	return dst
}

// appendOrigin writes the upper three rows of m, row-major.
func (x *Exporter) appendOrigin(dst []byte, m geom.Mat4) []byte {
	dst = append(dst, "# origin"...)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			dst = append(dst, ' ')
			dst = x.appendCoord(dst, m[r][c])
		}
	}
	return append(dst, '\n')
}

// WriteMTL writes a material library with one diffuse colour per IFC type.
// Colours derive from the type name so they are stable across runs.
func WriteMTL(types []string, w io.Writer) error {
	types = slices.Clone(types)
	slices.Sort(types)
	types = slices.Compact(types)

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# ifcslim materials")
	for _, t := range types {
		r, g, b := typeColour(t)
		fmt.Fprintf(bw, "\nnewmtl %s\n", encoding.OBJName(t))
		fmt.Fprintf(bw, "Kd %.3f %.3f %.3f\n", r, g, b)
		fmt.Fprintln(bw, "Ka 0.000 0.000 0.000")
		fmt.Fprintln(bw, "d 1.000")
	}
	if err := bw.Flush(); err != nil {
		return errors.NewIO("write", "mtl", err)
	}
	return nil
}

// typeColour maps a type name to an RGB triple in [0.2, 0.9].
func typeColour(typ string) (float64, float64, float64) {
	sum := blake3.Sum256([]byte(typ))
	c := func(b byte) float64 { return 0.2 + 0.7*float64(b)/255 }
	return c(sum[0]), c(sum[1]), c(sum[2])
}
