package mesh

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// ParseOBJ decodes Wavefront OBJ geometry. Only v and f records are used;
// polygons are fan-triangulated and every other directive is ignored.
func ParseOBJ(data []byte, opts Options) (*Mesh, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, empty(FormatOBJ, "no data")
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		positions []Vector3
		faces     [][]int
		line      int
	)
	limit := opts.limit()
	triangles := 0

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, malformed(FormatOBJ, "line %d: vertex needs three coordinates", line)
			}
			v, err := parseVector(fields[1:4])
			if err != nil {
				return nil, malformed(FormatOBJ, "line %d: %v", line, err)
			}
			positions = append(positions, v)
		case "f":
			if len(fields) < 4 {
				return nil, malformed(FormatOBJ, "line %d: face needs at least three vertices", line)
			}
			face := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				idx, err := resolveOBJIndex(ref, len(positions))
				if err != nil {
					return nil, malformed(FormatOBJ, "line %d: %v", line, err)
				}
				face = append(face, idx)
			}
			triangles += len(face) - 2
			if limit > 0 && triangles > limit {
				return nil, tooLarge(FormatOBJ, limit)
			}
			faces = append(faces, face)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed(FormatOBJ, "%v", err)
	}
	if len(positions) == 0 {
		return nil, empty(FormatOBJ, "no vertices")
	}
	if len(faces) == 0 {
		return nil, empty(FormatOBJ, "no faces")
	}

	b := newBuilder(limit)
	for n, face := range faces {
		for _, idx := range face {
			if idx < 0 || idx >= len(positions) {
				return nil, malformed(FormatOBJ, "face %d references vertex %d of %d", n+1, idx+1, len(positions))
			}
		}
		for k := 1; k+1 < len(face); k++ {
			b.triangle(positions[face[0]], positions[face[k]], positions[face[k+1]])
		}
	}
	return b.result(), nil
}

// resolveOBJIndex turns a face reference such as "7", "7/2/3", "7//3" or "-1"
// into a zero-based position index. Negative references are relative to the
// vertices read so far; positive ones are validated once the file is consumed.
func resolveOBJIndex(ref string, seen int) (int, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0, err
	}
	switch {
	case n > 0:
		return n - 1, nil
	case n < 0:
		return seen + n, nil
	}
	return 0, strconv.ErrSyntax
}
