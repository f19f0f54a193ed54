// Package main writes the Decollage OpenAPI document without starting the
// server. Routes are registered with stub handlers, so no database,
// provider keys, or storage are needed.
//
// Usage:
//
//	go run ./cmd/decollage-openapi > openapi.json
//	go run ./cmd/decollage-openapi -yaml -output openapi.yaml
//	go run ./cmd/decollage-openapi -tag Staging
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/lukas-andre/decollage-cl-sub000/internal/http/routes"
	"github.com/lukas-andre/decollage-cl-sub000/internal/version"
)

func main() {
	outputFile := flag.String("output", "", "Output file path (default: stdout)")
	outputYAML := flag.Bool("yaml", false, "Output as YAML instead of JSON")
	baseURL := flag.String("base-url", "http://localhost:8080", "Base URL for the API server")
	tag := flag.String("tag", "", "Only include operations with this tag")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(*baseURL))
	routes.Register(api, routes.StubHandlers())

	spec := api.OpenAPI()
	if spec.Info != nil {
		spec.Info.Version = version.Get().Version
	}
	if *tag != "" {
		filterByTag(spec, *tag)
	}

	var data []byte
	var err error
	if *outputYAML {
		data, err = yaml.Marshal(spec)
	} else {
		data, err = json.MarshalIndent(spec, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling OpenAPI document: %v\n", err)
		os.Exit(1)
	}

	if *outputFile == "" {
		_, _ = os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*outputFile, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", *outputFile, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "OpenAPI document written to %s (%d paths)\n", *outputFile, len(spec.Paths))
}

// filterByTag drops operations not tagged with tag, and paths left empty.
func filterByTag(spec *huma.OpenAPI, tag string) {
	keep := func(op *huma.Operation) *huma.Operation {
		if op == nil || !slices.Contains(op.Tags, tag) {
			return nil
		}
		return op
	}
	for path, item := range spec.Paths {
		item.Get = keep(item.Get)
		item.Post = keep(item.Post)
		item.Put = keep(item.Put)
		item.Patch = keep(item.Patch)
		item.Delete = keep(item.Delete)
		if item.Get == nil && item.Post == nil && item.Put == nil && item.Patch == nil && item.Delete == nil {
			delete(spec.Paths, path)
		}
	}
}
