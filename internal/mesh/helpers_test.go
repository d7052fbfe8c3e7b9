package mesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// cubeFaces returns the 12 outward-wound triangles of an axis-aligned cube
// with one corner at the origin.
func cubeFaces(s float64) [][3]Vector3 {
	v := []Vector3{
		{0, 0, 0}, {s, 0, 0}, {s, s, 0}, {0, s, 0},
		{0, 0, s}, {s, 0, s}, {s, s, s}, {0, s, s},
	}
	idx := [][3]int{
		{0, 2, 1}, {0, 3, 2}, // bottom
		{4, 5, 6}, {4, 6, 7}, // top
		{0, 1, 5}, {0, 5, 4}, // front
		{3, 7, 6}, {3, 6, 2}, // back
		{0, 4, 7}, {0, 7, 3}, // left
		{1, 2, 6}, {1, 6, 5}, // right
	}
	faces := make([][3]Vector3, len(idx))
	for i, t := range idx {
		faces[i] = [3]Vector3{v[t[0]], v[t[1]], v[t[2]]}
	}
	return faces
}

func binarySTL(faces [][3]Vector3) []byte {
	var buf bytes.Buffer
	header := make([]byte, 80)
	copy(header, "binary test fixture")
	buf.Write(header)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(faces)))
	for _, f := range faces {
		rec := make([]byte, 50)
		for i, v := range f {
			off := 12 + i*12
			binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(float32(v.X)))
			binary.LittleEndian.PutUint32(rec[off+4:], math.Float32bits(float32(v.Y)))
			binary.LittleEndian.PutUint32(rec[off+8:], math.Float32bits(float32(v.Z)))
		}
		buf.Write(rec)
	}
	return buf.Bytes()
}

func asciiSTL(faces [][3]Vector3) []byte {
	var sb strings.Builder
	sb.WriteString("solid cube\n")
	for _, f := range faces {
		sb.WriteString("  facet normal 0 0 0\n    outer loop\n")
		for _, v := range f {
			fmt.Fprintf(&sb, "      vertex %g %g %g\n", v.X, v.Y, v.Z)
		}
		sb.WriteString("    endloop\n  endfacet\n")
	}
	sb.WriteString("endsolid cube\n")
	return []byte(sb.String())
}

func zipPackage(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip Create() error = %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip Write() error = %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return buf.Bytes()
}

const cubeModelXML = `<?xml version="1.0" encoding="UTF-8"?>
<model unit="%s" xmlns="http://schemas.microsoft.com/3dmanufacturing/core/2015/02">
  <resources>
    <object id="1" type="model">
      <mesh>
        <vertices>
          <vertex x="0" y="0" z="0"/><vertex x="10" y="0" z="0"/>
          <vertex x="10" y="10" z="0"/><vertex x="0" y="10" z="0"/>
          <vertex x="0" y="0" z="10"/><vertex x="10" y="0" z="10"/>
          <vertex x="10" y="10" z="10"/><vertex x="0" y="10" z="10"/>
        </vertices>
        <triangles>
          <triangle v1="0" v2="2" v3="1"/><triangle v1="0" v2="3" v3="2"/>
          <triangle v1="4" v2="5" v3="6"/><triangle v1="4" v2="6" v3="7"/>
          <triangle v1="0" v2="1" v3="5"/><triangle v1="0" v2="5" v3="4"/>
          <triangle v1="3" v2="7" v3="6"/><triangle v1="3" v2="6" v3="2"/>
          <triangle v1="0" v2="4" v3="7"/><triangle v1="0" v2="7" v3="3"/>
          <triangle v1="1" v2="2" v3="6"/><triangle v1="1" v2="6" v3="5"/>
        </triangles>
      </mesh>
    </object>
  </resources>
  <build><item objectid="1"/></build>
</model>`

const rootRels = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Target="/%s" Id="rel0" Type="http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"/>
</Relationships>`

func assertParseReason(t *testing.T, err error, want Reason) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected ParseError(%s), got nil", want)
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error type = %T, want *ParseError", err)
	}
	if pe.Reason != want {
		t.Errorf("Reason = %s, want %s (%v)", pe.Reason, want, err)
	}
}
