// Package main generates the OpenAPI specification for the meshquote API.
// It uses the shared route definitions with stub handlers, so no database,
// storage or worker is needed.
//
// Usage:
//
//	go run ./cmd/meshquote-openapi > openapi.json
//	go run ./cmd/meshquote-openapi -yaml > openapi.yaml
//	go run ./cmd/meshquote-openapi -output openapi.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/meshquote-api/internal/http/routes"
	"github.com/jmylchreest/meshquote-api/internal/version"
)

func main() {
	outputFile := flag.String("output", "", "Output file path (default: stdout)")
	outputYAML := flag.Bool("yaml", false, "Output as YAML instead of JSON")
	baseURL := flag.String("base-url", "http://localhost:8080", "Base URL for the API server")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	// Create a minimal chi router - we won't actually serve requests
	router := chi.NewRouter()
	api := humachi.New(router, routes.NewHumaConfig(*baseURL))
	routes.Register(api, routes.StubHandlers())

	data, err := json.MarshalIndent(api.OpenAPI(), "", "  ")
	if err == nil && *outputYAML {
		data, err = toYAML(data)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling OpenAPI spec: %v\n", err)
		os.Exit(1)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing to file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "OpenAPI spec written to %s\n", *outputFile)
	} else {
		fmt.Print(string(data))
	}
}

// toYAML re-encodes the JSON document so YAML keys follow the OpenAPI field
// names rather than the Go struct fields.
func toYAML(jsonData []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(jsonData, &node); err != nil {
		return nil, err
	}
	// JSON input decodes as flow style; switch to block style for output.
	setBlockStyle(&node)
	return yaml.Marshal(&node)
}

func setBlockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, c := range n.Content {
		setBlockStyle(c)
	}
}
