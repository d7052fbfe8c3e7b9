// Package main is an offline CLI that measures and prices local model files
// without running the server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/meshquote-api/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "meshquote",
	Short: "Measure and price 3D model files",
	Long: `meshquote parses STL, OBJ and 3MF files, measures their geometry and
computes a manufacturing quote with the same engine as the meshquote API.`,
	Version:       version.Get().Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
