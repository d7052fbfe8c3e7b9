// Package analysis derives physical metrics from a parsed mesh.
//
// Volume uses the signed tetrahedron sum. Before summing, triangle winding is
// made consistent across manifold edges and each connected component keeps the
// orientation shared by the majority of its faces. Components are then
// inverted as a whole where needed so bodies enclose positive and cavities
// negative volume. Degenerate triangles are counted and excluded from both
// the edge graph and the volume.
package analysis

import (
	"math"

	"github.com/jmylchreest/meshquote-api/internal/mesh"
)

// degenerateAreaRatio is the smallest triangle area, relative to the squared
// bounding box diagonal, that still counts as a real face.
const degenerateAreaRatio = 1e-12

// zeroVolumeRatio is the smallest volume, relative to the cubed diagonal,
// accepted as non-zero.
const zeroVolumeRatio = 1e-12

// Metrics is the analysis result for one mesh. Lengths are in millimetres,
// SurfaceArea in mm² and Volume in cm³.
type Metrics struct {
	Min  mesh.Vector3 `json:"min"`
	Max  mesh.Vector3 `json:"max"`
	DimX float64      `json:"dim_x"`
	DimY float64      `json:"dim_y"`
	DimZ float64      `json:"dim_z"`

	Volume      float64 `json:"volume"`
	SurfaceArea float64 `json:"surface_area"`
	Polygons    int     `json:"polygons"`
	Vertices    int     `json:"vertices"`

	DegenerateTriangles int  `json:"degenerate_triangles"`
	FlippedTriangles    int  `json:"flipped_triangles"`
	InvertedComponents  int  `json:"inverted_components"`
	BoundaryEdges       int  `json:"boundary_edges"`
	NonManifoldEdges    int  `json:"non_manifold_edges"`
	InconsistentEdges   int  `json:"inconsistent_edges"`
	Components          int  `json:"components"`
	Watertight          bool `json:"watertight"`
}

// AnalysisError reports a mesh that parsed but has no usable geometry.
type AnalysisError struct {
	Detail string
}

func (e *AnalysisError) Error() string {
	return "analysis error: " + e.Detail
}

type edgeKey struct{ a, b int }

type edgeUse struct {
	tri     int
	forward bool
}

func undirected(u, v int) (edgeKey, bool) {
	if u < v {
		return edgeKey{u, v}, true
	}
	return edgeKey{v, u}, false
}

// Analyze computes bounding box, volume and repair statistics for m.
func Analyze(m *mesh.Mesh) (*Metrics, error) {
	if m == nil || m.VertexCount() == 0 {
		return nil, &AnalysisError{Detail: "mesh has no vertices"}
	}
	if m.TriangleCount() == 0 {
		return nil, &AnalysisError{Detail: "mesh has no triangles"}
	}

	res := &Metrics{
		Polygons: m.TriangleCount(),
		Vertices: m.VertexCount(),
	}

	res.Min, res.Max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		res.Min = res.Min.Min(v)
		res.Max = res.Max.Max(v)
	}
	ext := res.Max.Sub(res.Min)
	res.DimX, res.DimY, res.DimZ = ext.X, ext.Y, ext.Z
	diag := ext.Length()

	// Collect usable faces.
	minArea := diag * diag * degenerateAreaRatio
	valid := make([]int, 0, m.TriangleCount())
	for i, t := range m.Triangles {
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			res.DegenerateTriangles++
			continue
		}
		v0, v1, v2 := m.Corners(i)
		area := v1.Sub(v0).Cross(v2.Sub(v0)).Length() / 2
		if !(area > minArea) {
			res.DegenerateTriangles++
			continue
		}
		res.SurfaceArea += area
		valid = append(valid, i)
	}
	if len(valid) == 0 {
		return nil, &AnalysisError{Detail: "every triangle is degenerate"}
	}

	edges := buildEdges(m, valid)
	for _, uses := range edges {
		switch {
		case len(uses) == 1:
			res.BoundaryEdges++
		case len(uses) > 2:
			res.NonManifoldEdges++
		}
	}

	flip, comps := orient(m, valid, edges, res)

	for _, uses := range edges {
		if len(uses) != 2 {
			continue
		}
		a, b := uses[0], uses[1]
		if (a.forward != flip[a.tri]) == (b.forward != flip[b.tri]) {
			res.InconsistentEdges++
		}
	}
	res.Watertight = res.BoundaryEdges == 0 && res.NonManifoldEdges == 0 && res.InconsistentEdges == 0

	for i := range comps {
		comps[i].measure(m, flip, edges)
	}
	orientShells(m, comps, flip, res)

	var signed float64
	for _, c := range comps {
		signed += c.signed
	}
	volume := math.Abs(signed)
	if math.IsNaN(volume) || math.IsInf(volume, 0) {
		return nil, &AnalysisError{Detail: "volume is not a finite number"}
	}
	if volume <= diag*diag*diag*zeroVolumeRatio {
		return nil, &AnalysisError{Detail: "volume resolves to zero"}
	}
	res.Volume = volume / 1000

	return res, nil
}

func buildEdges(m *mesh.Mesh, valid []int) map[edgeKey][]edgeUse {
	edges := make(map[edgeKey][]edgeUse, len(valid)*3/2)
	for _, i := range valid {
		t := m.Triangles[i]
		for k := 0; k < 3; k++ {
			key, fwd := undirected(t[k], t[(k+1)%3])
			edges[key] = append(edges[key], edgeUse{tri: i, forward: fwd})
		}
	}
	return edges
}

// component is one edge-connected set of faces.
type component struct {
	tris     []int
	min, max mesh.Vector3
	// closed is true when every edge of the component is shared by exactly
	// two of its faces.
	closed bool
	signed float64
}

func (c *component) measure(m *mesh.Mesh, flip []bool, edges map[edgeKey][]edgeUse) {
	c.closed = true
	for n, i := range c.tris {
		v0, v1, v2 := m.Corners(i)
		if n == 0 {
			c.min, c.max = v0, v0
		}
		c.min = c.min.Min(v0).Min(v1).Min(v2)
		c.max = c.max.Max(v0).Max(v1).Max(v2)

		v := v0.Dot(v1.Cross(v2)) / 6
		if flip[i] {
			v = -v
		}
		c.signed += v

		t := m.Triangles[i]
		for k := 0; k < 3; k++ {
			key, _ := undirected(t[k], t[(k+1)%3])
			if len(edges[key]) != 2 {
				c.closed = false
			}
		}
	}
}

func (c *component) encloses(o *component) bool {
	return c.min.X <= o.min.X && c.min.Y <= o.min.Y && c.min.Z <= o.min.Z &&
		c.max.X >= o.max.X && c.max.Y >= o.max.Y && c.max.Z >= o.max.Z
}

// orientShells makes components agree with each other. A component nested
// inside an even number of closed shells is a body and must enclose positive
// volume; one nested inside an odd number is a cavity and must enclose
// negative volume. Components with the wrong sign are inverted as a whole.
func orientShells(m *mesh.Mesh, comps []component, flip []bool, res *Metrics) {
	depth := make([]int, len(comps))
	for i := range comps {
		c := &comps[i]
		p := m.Vertices[m.Triangles[c.tris[0]][0]]
		for j := range comps {
			o := &comps[j]
			if i == j || !o.closed || !o.encloses(c) {
				continue
			}
			if crossings(m, o.tris, p)%2 == 1 {
				depth[i]++
			}
		}
	}

	for i := range comps {
		c := &comps[i]
		cavity := depth[i]%2 == 1
		if (c.signed < 0) == cavity || c.signed == 0 {
			continue
		}
		for _, t := range c.tris {
			flip[t] = !flip[t]
		}
		c.signed = -c.signed
		res.InvertedComponents++
	}
}

// rayDir is off every axis and diagonal so rays from grid aligned vertices
// do not graze edges of axis aligned faces.
var rayDir = mesh.Vector3{X: 0.8017837257372732, Y: 0.5345224838248488, Z: 0.2672612419124244}

// crossings counts how often a ray from p crosses the given faces.
func crossings(m *mesh.Mesh, tris []int, p mesh.Vector3) int {
	n := 0
	for _, i := range tris {
		v0, v1, v2 := m.Corners(i)
		e1, e2 := v1.Sub(v0), v2.Sub(v0)
		h := rayDir.Cross(e2)
		a := e1.Dot(h)
		if a == 0 {
			continue
		}
		f := 1 / a
		s := p.Sub(v0)
		u := f * s.Dot(h)
		if u < 0 || u > 1 {
			continue
		}
		q := s.Cross(e1)
		v := f * rayDir.Dot(q)
		if v < 0 || u+v > 1 {
			continue
		}
		if f*e2.Dot(q) > 0 {
			n++
		}
	}
	return n
}

// orient walks each connected component across manifold edges and returns,
// per triangle index, whether its winding must be reversed, together with
// the components found. Within a component the smaller of the two possible
// flip sets is chosen.
func orient(m *mesh.Mesh, valid []int, edges map[edgeKey][]edgeUse, res *Metrics) ([]bool, []component) {
	flip := make([]bool, m.TriangleCount())
	visited := make([]bool, m.TriangleCount())

	var queue []int
	var comps []component
	for _, start := range valid {
		if visited[start] {
			continue
		}
		res.Components++
		visited[start] = true
		queue = append(queue[:0], start)
		var faces []int

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			faces = append(faces, cur)

			t := m.Triangles[cur]
			for k := 0; k < 3; k++ {
				key, _ := undirected(t[k], t[(k+1)%3])
				uses := edges[key]
				if len(uses) != 2 {
					continue
				}
				self, other := uses[0], uses[1]
				if self.tri != cur {
					self, other = other, self
				}
				if visited[other.tri] {
					continue
				}
				// Neighbours must traverse the shared edge in opposite directions.
				flip[other.tri] = other.forward == (self.forward != flip[cur])
				visited[other.tri] = true
				queue = append(queue, other.tri)
			}
		}

		flipped := 0
		for _, i := range faces {
			if flip[i] {
				flipped++
			}
		}
		if 2*flipped > len(faces) {
			for _, i := range faces {
				flip[i] = !flip[i]
			}
			flipped = len(faces) - flipped
		}
		res.FlippedTriangles += flipped
		comps = append(comps, component{tris: faces})
	}
	return flip, comps
}
