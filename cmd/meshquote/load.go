package main

import (
	"fmt"
	"os"

	"github.com/jmylchreest/meshquote-api/internal/analysis"
	"github.com/jmylchreest/meshquote-api/internal/mesh"
)

var maxTriangles int

func init() {
	rootCmd.PersistentFlags().IntVar(&maxTriangles, "max-triangles", mesh.DefaultMaxTriangles, "Triangle ceiling for parsing (negative disables)")
}

// analyzeFile parses and measures a local model file. The format comes from
// the file extension.
func analyzeFile(path string) (*analysis.Metrics, mesh.Format, error) {
	format, ok := mesh.FormatFromFilename(path)
	if !ok {
		return nil, "", fmt.Errorf("unsupported file type %q (accepted: .stl, .obj, .3mf)", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	parsed, err := mesh.Parse(data, format, mesh.Options{MaxTriangles: maxTriangles})
	if err != nil {
		return nil, format, err
	}
	metrics, err := analysis.Analyze(parsed)
	if err != nil {
		return nil, format, err
	}
	return metrics, format, nil
}
