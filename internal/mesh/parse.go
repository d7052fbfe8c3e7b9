package mesh

import "fmt"

// DefaultMaxTriangles bounds parse time and memory on pathological input.
const DefaultMaxTriangles = 5_000_000

// Options tunes parser limits.
type Options struct {
	// MaxTriangles is the triangle ceiling; zero means DefaultMaxTriangles,
	// a negative value disables the check.
	MaxTriangles int
}

func (o Options) limit() int {
	switch {
	case o.MaxTriangles == 0:
		return DefaultMaxTriangles
	case o.MaxTriangles < 0:
		return 0
	}
	return o.MaxTriangles
}

// Parse decodes data according to the declared format.
func Parse(data []byte, format Format, opts Options) (*Mesh, error) {
	switch format {
	case FormatSTL:
		return ParseSTL(data, opts)
	case FormatOBJ:
		return ParseOBJ(data, opts)
	case Format3MF:
		return Parse3MF(data, opts)
	}
	return nil, &ParseError{Format: format, Reason: ReasonUnsupported, Detail: fmt.Sprintf("unknown format %q", string(format))}
}
