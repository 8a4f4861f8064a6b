package geom

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const triEps = 1e-12

// openRing returns the points of r without the closing point and without
// consecutive duplicates.
func openRing(r orb.Ring) []orb.Point {
	out := make([]orb.Point, 0, len(r))
	for _, p := range r {
		if len(out) > 0 && out[len(out)-1].Equal(p) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0].Equal(out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}

// closeRing returns r with the first point repeated at the end, as orb
// expects for orientation and containment tests.
func closeRing(pts []orb.Point) orb.Ring {
	r := make(orb.Ring, 0, len(pts)+1)
	r = append(r, pts...)
	if len(pts) > 0 {
		r = append(r, pts[0])
	}
	return r
}

// orient returns pts wound in the requested direction.
func orient(pts []orb.Point, want orb.Orientation) []orb.Point {
	if closeRing(pts).Orientation() == want {
		return pts
	}
	rev := make([]orb.Point, len(pts))
	for i, p := range pts {
		rev[len(pts)-1-i] = p
	}
	return rev
}

// tessellation is a triangulated polygon. Rings holds the boundary loops as
// indices into Points: the outer ring counter-clockwise, holes clockwise.
type tessellation struct {
	Points    []orb.Point
	Rings     [][]int
	Triangles [][3]int
}

// Triangulate tessellates a polygon with holes by ear clipping. Every inner
// ring is a hole regardless of its winding. Holes that do not lie inside
// the outer ring are ignored. The returned indices refer to the returned
// points; triangles wind counter-clockwise.
func Triangulate(poly orb.Polygon) ([]orb.Point, [][3]int, error) {
	t, err := tessellate(poly)
	if err != nil {
		return nil, nil, err
	}
	return t.Points, t.Triangles, nil
}

func tessellate(poly orb.Polygon) (*tessellation, error) {
	if len(poly) == 0 {
		return nil, fmt.Errorf("empty polygon")
	}
	outerPts := openRing(poly[0])
	if len(outerPts) < 3 || math.Abs(planar.Area(closeRing(outerPts))) < triEps {
		return nil, fmt.Errorf("degenerate outer boundary")
	}
	outerPts = orient(outerPts, orb.CCW)
	outerRing := closeRing(outerPts)

	points := append([]orb.Point(nil), outerPts...)
	outer := make([]int, len(outerPts))
	for i := range outer {
		outer[i] = i
	}

	var holes [][]int
	for _, r := range poly[1:] {
		pts := openRing(r)
		if len(pts) < 3 || math.Abs(planar.Area(closeRing(pts))) < triEps {
			continue
		}
		if !planar.RingContains(outerRing, pts[0]) {
			continue
		}
		pts = orient(pts, orb.CW)
		idx := make([]int, len(pts))
		for i, p := range pts {
			idx[i] = len(points)
			points = append(points, p)
		}
		holes = append(holes, idx)
	}

	rings := append([][]int{outer}, holes...)
	ring := bridgeHoles(points, outer, append([][]int(nil), holes...))
	return &tessellation{
		Points:    points,
		Rings:     rings,
		Triangles: earClip(points, ring),
	}, nil
}

// bridgeHoles merges holes into the outer ring with a pair of coincident
// bridge edges per hole, rightmost hole first.
func bridgeHoles(pts []orb.Point, outer []int, holes [][]int) []int {
	rightmost := func(h []int) int {
		best := 0
		for i, idx := range h {
			if pts[idx][0] > pts[h[best]][0] {
				best = i
			}
		}
		return best
	}
	sort.SliceStable(holes, func(i, j int) bool {
		return pts[holes[i][rightmost(holes[i])]][0] > pts[holes[j][rightmost(holes[j])]][0]
	})

	ring := outer
	for hi, hole := range holes {
		m := rightmost(hole)
		mp := pts[hole[m]]

		// candidate ring vertices, nearest first
		order := make([]int, len(ring))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return dist2(pts[ring[order[a]]], mp) < dist2(pts[ring[order[b]]], mp)
		})

		bridge := order[0]
		for _, cand := range order {
			if visible(pts, ring, holes[hi:], ring[cand], hole[m]) {
				bridge = cand
				break
			}
		}

		merged := make([]int, 0, len(ring)+len(hole)+2)
		merged = append(merged, ring[:bridge+1]...)
		for k := 0; k <= len(hole); k++ {
			merged = append(merged, hole[(m+k)%len(hole)])
		}
		merged = append(merged, ring[bridge])
		merged = append(merged, ring[bridge+1:]...)
		ring = merged
	}
	return ring
}

func dist2(a, b orb.Point) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

// visible reports whether the segment a-b crosses no edge of ring or of the
// remaining holes.
func visible(pts []orb.Point, ring []int, holes [][]int, a, b int) bool {
	pa, pb := pts[a], pts[b]
	check := func(loop []int) bool {
		for i := range loop {
			c, d := loop[i], loop[(i+1)%len(loop)]
			pc, pd := pts[c], pts[d]
			if pc.Equal(pa) || pd.Equal(pa) || pc.Equal(pb) || pd.Equal(pb) {
				continue
			}
			if segmentsCross(pa, pb, pc, pd) {
				return false
			}
		}
		return true
	}
	if !check(ring) {
		return false
	}
	for _, h := range holes {
		if !check(h) {
			return false
		}
	}
	return true
}

func cross2(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func segmentsCross(a, b, c, d orb.Point) bool {
	d1 := cross2(c, d, a)
	d2 := cross2(c, d, b)
	d3 := cross2(a, b, c)
	d4 := cross2(a, b, d)
	return ((d1 > triEps && d2 < -triEps) || (d1 < -triEps && d2 > triEps)) &&
		((d3 > triEps && d4 < -triEps) || (d3 < -triEps && d4 > triEps))
}

// earClip triangulates a counter-clockwise simple ring given as indices.
func earClip(pts []orb.Point, ring []int) [][3]int {
	idx := append([]int(nil), ring...)
	tris := make([][3]int, 0, len(idx))

	for len(idx) > 3 {
		n := len(idx)
		clipped := false
		for i := 0; i < n; i++ {
			a, b, c := idx[(i+n-1)%n], idx[i], idx[(i+1)%n]
			if cross2(pts[a], pts[b], pts[c]) <= triEps {
				continue
			}
			if containsAny(pts, idx, a, b, c) {
				continue
			}
			tris = append(tris, [3]int{a, b, c})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if clipped {
			continue
		}
		// No ear: drop a degenerate (collinear or duplicate) vertex, or give
		// up on a self-intersecting remainder.
		if i := flattest(pts, idx); i >= 0 {
			idx = append(idx[:i], idx[i+1:]...)
			continue
		}
		break
	}
	if len(idx) == 3 && cross2(pts[idx[0]], pts[idx[1]], pts[idx[2]]) > triEps {
		tris = append(tris, [3]int{idx[0], idx[1], idx[2]})
	}
	return tris
}

// containsAny reports whether any ring vertex other than a, b and c lies
// inside or on triangle abc.
func containsAny(pts []orb.Point, idx []int, a, b, c int) bool {
	pa, pb, pc := pts[a], pts[b], pts[c]
	for _, k := range idx {
		if k == a || k == b || k == c {
			continue
		}
		p := pts[k]
		if p.Equal(pa) || p.Equal(pb) || p.Equal(pc) {
			continue
		}
		if cross2(pa, pb, p) >= -triEps && cross2(pb, pc, p) >= -triEps && cross2(pc, pa, p) >= -triEps {
			return true
		}
	}
	return false
}

// flattest returns the position of the vertex with the smallest absolute
// turn, or -1 when every vertex turns clockwise significantly.
func flattest(pts []orb.Point, idx []int) int {
	n := len(idx)
	best, bestArea := -1, math.Inf(1)
	for i := 0; i < n; i++ {
		a := math.Abs(cross2(pts[idx[(i+n-1)%n]], pts[idx[i]], pts[idx[(i+1)%n]]))
		if a < bestArea {
			best, bestArea = i, a
		}
	}
	if bestArea > 1e-9 {
		return -1
	}
	return best
}

// projectFace picks the projection plane of a planar 3D polygon: the two
// axes orthogonal to the dominant component of its normal.
func projectFace(normal Vec3) func(Vec3) orb.Point {
	ax, ay, az := math.Abs(normal.X), math.Abs(normal.Y), math.Abs(normal.Z)
	switch {
	case az >= ax && az >= ay:
		return func(v Vec3) orb.Point { return orb.Point{v.X, v.Y} }
	case ay >= ax:
		return func(v Vec3) orb.Point { return orb.Point{v.Z, v.X} }
	default:
		return func(v Vec3) orb.Point { return orb.Point{v.Y, v.Z} }
	}
}

// newellNormal returns the (unnormalized) normal of a 3D polygon.
func newellNormal(loop []Vec3) Vec3 {
	var n Vec3
	for i := range loop {
		a, b := loop[i], loop[(i+1)%len(loop)]
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	return n
}

// TriangulateFace tessellates a planar 3D face given as an outer loop and
// inner loops. Triangles are appended to m and wind consistently with the
// outer loop's orientation.
func TriangulateFace(m *Mesh, outer []Vec3, inner [][]Vec3) error {
	normal := newellNormal(outer)
	if normal.Len() < triEps {
		return fmt.Errorf("degenerate face")
	}
	proj := projectFace(normal)

	poly := make(orb.Polygon, 0, 1+len(inner))
	var src []Vec3
	addRing := func(loop []Vec3) {
		r := make(orb.Ring, len(loop))
		for i, v := range loop {
			r[i] = proj(v)
		}
		poly = append(poly, r)
	}
	addRing(outer)
	for _, l := range inner {
		addRing(l)
	}

	pts2, tris, err := Triangulate(poly)
	if err != nil {
		return err
	}

	// Map projected points back to 3D by position.
	lookup := make(map[orb.Point]Vec3, len(outer))
	for _, v := range outer {
		lookup[proj(v)] = v
	}
	for _, l := range inner {
		for _, v := range l {
			lookup[proj(v)] = v
		}
	}
	base := len(m.Vertices)
	for _, p := range pts2 {
		v, ok := lookup[p]
		if !ok {
			v = Vec3{}
		}
		src = append(src, v)
		m.Vertices = append(m.Vertices, v)
	}
	for _, t := range tris {
		a, b, c := src[t[0]], src[t[1]], src[t[2]]
		if b.Sub(a).Cross(c.Sub(a)).Dot(normal) < 0 {
			t[1], t[2] = t[2], t[1]
		}
		m.AddTriangle(base+t[0], base+t[1], base+t[2])
	}
	return nil
}
