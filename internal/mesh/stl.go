package mesh

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

const (
	stlHeaderSize = 80
	stlRecordSize = 50
)

// ParseSTL decodes binary or ASCII STL. Facet normals are ignored; winding
// alone determines orientation.
func ParseSTL(data []byte, opts Options) (*Mesh, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, empty(FormatSTL, "no data")
	}

	if len(data) >= stlHeaderSize+4 {
		count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
		expected := uint64(stlHeaderSize+4) + uint64(count)*stlRecordSize
		// Many binary exporters also start their header with "solid", so an
		// exact size match wins over the ASCII prefix.
		if expected == uint64(len(data)) {
			return parseBinarySTL(data, count, opts)
		}
		if !hasSolidPrefix(data) {
			if expected > uint64(len(data)) {
				return nil, malformed(FormatSTL, "truncated binary data: header declares %d triangles", count)
			}
			return parseBinarySTL(data, count, opts)
		}
	}

	if hasSolidPrefix(data) {
		return parseASCIISTL(data, opts)
	}
	return nil, malformed(FormatSTL, "neither a binary header nor an ASCII solid")
}

func hasSolidPrefix(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid"))
}

func parseBinarySTL(data []byte, count uint32, opts Options) (*Mesh, error) {
	if count == 0 {
		return nil, empty(FormatSTL, "binary header declares zero triangles")
	}
	limit := opts.limit()
	if limit > 0 && uint64(count) > uint64(limit) {
		return nil, tooLarge(FormatSTL, limit)
	}

	b := newBuilder(limit)
	offset := stlHeaderSize + 4
	for i := uint32(0); i < count; i++ {
		rec := data[offset : offset+stlRecordSize]
		// Skip the 12-byte normal.
		v0 := readVertex(rec[12:])
		v1 := readVertex(rec[24:])
		v2 := readVertex(rec[36:])
		if !v0.IsFinite() || !v1.IsFinite() || !v2.IsFinite() {
			return nil, malformed(FormatSTL, "triangle %d has a non-finite coordinate", i)
		}
		b.triangle(v0, v1, v2)
		offset += stlRecordSize
	}
	return b.result(), nil
}

func readVertex(p []byte) Vector3 {
	return Vector3{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(p[0:]))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(p[4:]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(p[8:]))),
	}
}

func parseASCIISTL(data []byte, opts Options) (*Mesh, error) {
	t := newSTLTokens(data)
	limit := opts.limit()
	b := newBuilder(limit)

	// solid and endsolid may be followed by a free-form name.
	named := false
	for t.next() {
		switch strings.ToLower(t.tok) {
		case "solid", "endsolid":
			named = true
		case "facet":
			named = false
			tri, err := t.facet()
			if err != nil {
				return nil, err
			}
			if !b.triangle(tri[0], tri[1], tri[2]) {
				return nil, tooLarge(FormatSTL, limit)
			}
		default:
			if !named {
				return nil, malformed(FormatSTL, "line %d: unknown keyword %q", t.line, t.tok)
			}
		}
	}
	if err := t.scanner.Err(); err != nil {
		return nil, malformed(FormatSTL, "%v", err)
	}
	if b.mesh.TriangleCount() == 0 {
		return nil, empty(FormatSTL, "no facets")
	}
	return b.result(), nil
}

// stlTokens splits ASCII STL into whitespace-separated words, so keywords
// need not sit on their own lines. It tracks the line each word starts on
// for error messages.
type stlTokens struct {
	scanner *bufio.Scanner
	tok     string
	line    int
	pending int
}

func newSTLTokens(data []byte) *stlTokens {
	t := &stlTokens{line: 1}
	t.scanner = bufio.NewScanner(bytes.NewReader(data))
	t.scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	t.scanner.Split(t.split)
	return t
}

func (t *stlTokens) split(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanWords(data, atEOF)
	if err != nil || advance == 0 {
		return advance, token, err
	}
	if token == nil {
		t.pending += bytes.Count(data[:advance], []byte{'\n'})
		return advance, token, err
	}
	// token is a subslice of data.
	start := cap(data) - cap(token)
	t.line += t.pending + bytes.Count(data[:start], []byte{'\n'})
	t.pending = bytes.Count(data[start+len(token):advance], []byte{'\n'})
	return advance, token, err
}

func (t *stlTokens) next() bool {
	if !t.scanner.Scan() {
		return false
	}
	t.tok = t.scanner.Text()
	return true
}

// facet reads what follows the facet keyword:
// normal n n n, outer loop, three vertex x y z, endloop, endfacet.
func (t *stlTokens) facet() ([3]Vector3, error) {
	var tri [3]Vector3
	if err := t.expect("normal"); err != nil {
		return tri, err
	}
	for range 3 {
		if !t.next() {
			return tri, t.unterminated()
		}
	}
	if err := t.expect("outer"); err != nil {
		return tri, err
	}
	if err := t.expect("loop"); err != nil {
		return tri, err
	}

	n := 0
	for {
		if !t.next() {
			return tri, t.unterminated()
		}
		keyword := strings.ToLower(t.tok)
		if keyword == "endloop" {
			break
		}
		if keyword != "vertex" {
			return tri, malformed(FormatSTL, "line %d: unexpected %q inside loop", t.line, t.tok)
		}
		if n == 3 {
			return tri, malformed(FormatSTL, "line %d: facet has more than 3 vertices", t.line)
		}
		v, err := t.vector()
		if err != nil {
			return tri, err
		}
		tri[n] = v
		n++
	}
	if n != 3 {
		return tri, malformed(FormatSTL, "line %d: facet has %d vertices, want 3", t.line, n)
	}
	return tri, t.expect("endfacet")
}

func (t *stlTokens) expect(keyword string) error {
	if !t.next() {
		return t.unterminated()
	}
	if !strings.EqualFold(t.tok, keyword) {
		return malformed(FormatSTL, "line %d: got %q, want %s", t.line, t.tok, keyword)
	}
	return nil
}

func (t *stlTokens) vector() (Vector3, error) {
	var fields [3]string
	for i := range fields {
		if !t.next() {
			return Vector3{}, t.unterminated()
		}
		fields[i] = t.tok
	}
	v, err := parseVector(fields[:])
	if err != nil {
		return Vector3{}, malformed(FormatSTL, "line %d: %v", t.line, err)
	}
	return v, nil
}

func (t *stlTokens) unterminated() error {
	if err := t.scanner.Err(); err != nil {
		return malformed(FormatSTL, "%v", err)
	}
	return malformed(FormatSTL, "unterminated facet at end of input")
}

func parseVector(fields []string) (Vector3, error) {
	var xyz [3]float64
	for i, f := range fields[:3] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Vector3{}, err
		}
		if !isFinite(v) {
			return Vector3{}, strconv.ErrRange
		}
		xyz[i] = v
	}
	return Vector3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
