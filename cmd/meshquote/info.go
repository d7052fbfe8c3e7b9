package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Display dimensions, volume and mesh health of a model file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	filename := args[0]
	metrics, format, err := analyzeFile(filename)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if infoJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	}

	fmt.Fprintln(out, "Model Information")
	fmt.Fprintln(out, "=================")
	fmt.Fprintf(out, "File: %s (%s)\n\n", filename, format)

	fmt.Fprintln(out, "Dimensions:")
	fmt.Fprintf(out, "  Width (X): %.3f mm\n", metrics.DimX)
	fmt.Fprintf(out, "  Depth (Y): %.3f mm\n", metrics.DimY)
	fmt.Fprintf(out, "  Height (Z): %.3f mm\n", metrics.DimZ)
	fmt.Fprintf(out, "  Volume: %.3f cm³\n", metrics.Volume)
	fmt.Fprintf(out, "  Surface Area: %.3f mm²\n\n", metrics.SurfaceArea)

	fmt.Fprintln(out, "Mesh:")
	fmt.Fprintf(out, "  Triangles: %d\n", metrics.Polygons)
	fmt.Fprintf(out, "  Vertices: %d\n", metrics.Vertices)
	fmt.Fprintf(out, "  Components: %d\n", metrics.Components)
	fmt.Fprintf(out, "  Degenerate triangles: %d\n", metrics.DegenerateTriangles)
	fmt.Fprintf(out, "  Flipped triangles: %d\n", metrics.FlippedTriangles)
	fmt.Fprintf(out, "  Inverted shells: %d\n", metrics.InvertedComponents)
	fmt.Fprintf(out, "  Watertight: %t\n", metrics.Watertight)
	return nil
}
