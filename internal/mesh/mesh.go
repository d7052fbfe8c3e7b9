// Package mesh decodes STL, OBJ and 3MF payloads into an indexed triangle mesh.
//
// Parsers are pure: they take a byte buffer and return a Mesh or a *ParseError.
// Vertices shared between faces are welded by exact coordinate match so that
// downstream analysis can reason about edges and winding.
package mesh

import (
	"path/filepath"
	"strings"
)

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Vertices  []Vector3
	Triangles [][3]int
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Triangles)
}

// VertexCount returns the number of distinct vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// Corners returns the three vertex positions of triangle i.
func (m *Mesh) Corners(i int) (Vector3, Vector3, Vector3) {
	t := m.Triangles[i]
	return m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
}

// Format identifies a supported mesh file format.
type Format string

const (
	FormatSTL Format = "stl"
	FormatOBJ Format = "obj"
	Format3MF Format = "3mf"
)

// Formats lists every supported format.
var Formats = []Format{FormatSTL, FormatOBJ, Format3MF}

// ParseFormat normalises a format name such as "STL" or ".3mf".
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	switch f {
	case FormatSTL, FormatOBJ, Format3MF:
		return f, true
	}
	return "", false
}

// FormatFromFilename derives the format from a file extension, case-insensitively.
func FormatFromFilename(name string) (Format, bool) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", false
	}
	return ParseFormat(ext)
}

// ContentType returns the MIME type used when serving a stored file.
func (f Format) ContentType() string {
	switch f {
	case FormatSTL:
		return "application/sla"
	case FormatOBJ:
		return "text/plain"
	case Format3MF:
		return "application/vnd.ms-package.3dmanufacturing-3dmodel+xml"
	}
	return "application/octet-stream"
}

// builder welds vertices by exact position while triangles are appended.
type builder struct {
	mesh  Mesh
	index map[Vector3]int
	limit int
}

func newBuilder(limit int) *builder {
	return &builder{index: make(map[Vector3]int), limit: limit}
}

func (b *builder) vertex(v Vector3) int {
	if i, ok := b.index[v]; ok {
		return i
	}
	i := len(b.mesh.Vertices)
	b.mesh.Vertices = append(b.mesh.Vertices, v)
	b.index[v] = i
	return i
}

// triangle appends a face by position and reports false once the ceiling is hit.
func (b *builder) triangle(v0, v1, v2 Vector3) bool {
	if b.limit > 0 && len(b.mesh.Triangles) >= b.limit {
		return false
	}
	b.mesh.Triangles = append(b.mesh.Triangles, [3]int{b.vertex(v0), b.vertex(v1), b.vertex(v2)})
	return true
}

func (b *builder) result() *Mesh {
	m := b.mesh
	return &m
}
