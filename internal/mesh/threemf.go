package mesh

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	defaultModelPart  = "3D/3dmodel.model"
	modelRelType      = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"
	maxModelPartBytes = 512 << 20
)

// unitScale converts 3MF model units to millimetres.
var unitScale = map[string]float64{
	"":           1,
	"millimeter": 1,
	"micron":     0.001,
	"centimeter": 10,
	"inch":       25.4,
	"foot":       304.8,
	"meter":      1000,
}

type xmlRelationships struct {
	Relationships []struct {
		Target string `xml:"Target,attr"`
		Type   string `xml:"Type,attr"`
	} `xml:"Relationship"`
}

type xmlModel struct {
	Unit    string      `xml:"unit,attr"`
	Objects []xmlObject `xml:"resources>object"`
}

type xmlObject struct {
	ID   string   `xml:"id,attr"`
	Mesh *xmlMesh `xml:"mesh"`
}

type xmlMesh struct {
	Vertices []struct {
		X float64 `xml:"x,attr"`
		Y float64 `xml:"y,attr"`
		Z float64 `xml:"z,attr"`
	} `xml:"vertices>vertex"`
	Triangles []struct {
		V1 int `xml:"v1,attr"`
		V2 int `xml:"v2,attr"`
		V3 int `xml:"v3,attr"`
	} `xml:"triangles>triangle"`
}

// Parse3MF decodes a 3MF package. Every mesh object in the model part is
// merged into one mesh; build-item transforms and component references are
// not applied.
func Parse3MF(data []byte, opts Options) (*Mesh, error) {
	if len(data) == 0 {
		return nil, empty(Format3MF, "no data")
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, malformed(Format3MF, "not a zip package: %v", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[strings.TrimPrefix(f.Name, "/")] = f
	}

	partName := modelPartName(files)
	part, ok := files[partName]
	if !ok {
		return nil, malformed(Format3MF, "package has no 3D model part")
	}

	raw, err := readPart(part)
	if err != nil {
		return nil, err
	}

	var model xmlModel
	if err := xml.Unmarshal(raw, &model); err != nil {
		return nil, malformed(Format3MF, "model XML: %v", err)
	}

	scale, ok := unitScale[model.Unit]
	if !ok {
		return nil, &ParseError{Format: Format3MF, Reason: ReasonUnsupported, Detail: fmt.Sprintf("unit %q", model.Unit)}
	}

	limit := opts.limit()
	b := newBuilder(limit)
	meshes := 0
	for _, obj := range model.Objects {
		if obj.Mesh == nil {
			continue
		}
		meshes++
		verts := make([]Vector3, len(obj.Mesh.Vertices))
		for i, v := range obj.Mesh.Vertices {
			verts[i] = Vector3{X: v.X, Y: v.Y, Z: v.Z}.Mul(scale)
			if !verts[i].IsFinite() {
				return nil, malformed(Format3MF, "object %s vertex %d is not finite", obj.ID, i)
			}
		}
		for i, t := range obj.Mesh.Triangles {
			for _, idx := range [3]int{t.V1, t.V2, t.V3} {
				if idx < 0 || idx >= len(verts) {
					return nil, malformed(Format3MF, "object %s triangle %d references vertex %d of %d", obj.ID, i, idx, len(verts))
				}
			}
			if !b.triangle(verts[t.V1], verts[t.V2], verts[t.V3]) {
				return nil, tooLarge(Format3MF, limit)
			}
		}
	}

	if meshes == 0 {
		return nil, empty(Format3MF, "no mesh objects")
	}
	if b.mesh.TriangleCount() == 0 {
		return nil, empty(Format3MF, "no triangles")
	}
	return b.result(), nil
}

// modelPartName follows the package root relationship to the model part.
func modelPartName(files map[string]*zip.File) string {
	rels, ok := files["_rels/.rels"]
	if !ok {
		return defaultModelPart
	}
	raw, err := readPart(rels)
	if err != nil {
		return defaultModelPart
	}
	var r xmlRelationships
	if err := xml.Unmarshal(raw, &r); err != nil {
		return defaultModelPart
	}
	for _, rel := range r.Relationships {
		if rel.Type == modelRelType {
			return strings.TrimPrefix(path.Clean("/"+rel.Target), "/")
		}
	}
	return defaultModelPart
}

func readPart(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxModelPartBytes {
		return nil, &ParseError{Format: Format3MF, Reason: ReasonTooLarge, Detail: fmt.Sprintf("part %s exceeds %d bytes", f.Name, maxModelPartBytes)}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, malformed(Format3MF, "open %s: %v", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	raw, err := io.ReadAll(io.LimitReader(rc, maxModelPartBytes+1))
	if err != nil {
		return nil, malformed(Format3MF, "read %s: %v", f.Name, err)
	}
	if len(raw) > maxModelPartBytes {
		return nil, &ParseError{Format: Format3MF, Reason: ReasonTooLarge, Detail: fmt.Sprintf("part %s exceeds %d bytes", f.Name, maxModelPartBytes)}
	}
	return raw, nil
}
