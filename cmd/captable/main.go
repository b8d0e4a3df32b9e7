// Command captable runs one generation pass over a cap-table model file and
// prints the resulting address table, formula set, and diagnostics as JSON.
//
// Usage:
//
//	captable -model captable.json [-out result.json] [-v]
//
// Exit codes: 0 clean pass, 1 business-rule diagnostics, 2 internal error.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"captable_engine/pkg/core/generate"
	"captable_engine/pkg/models"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Optional local overrides (log level etc.); absence is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not read .env: %v\n", err)
	}

	modelPath := flag.String("model", "", "path to the cap-table model (json, yaml, or hjson)")
	outPath := flag.String("out", "-", "output path for the result JSON ('-' for stdout)")
	verbose := flag.Bool("v", false, "debug-level logging")
	flag.Parse()

	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -model is required")
		flag.Usage()
		return 2
	}

	level := log.InfoLevel
	if *verbose || os.Getenv("CAPTABLE_DEBUG") != "" {
		level = log.DebugLevel
	}

	doc, err := models.LoadDocument(*modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load model: %v\n", err)
		return 2
	}

	result, err := generate.New(os.Stderr, level).Generate(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: generation pass: %v\n", err)
		return 2
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode result: %v\n", err)
		return 2
	}
	encoded = append(encoded, '\n')

	if *outPath == "-" {
		if _, err := os.Stdout.Write(encoded); err != nil {
			fmt.Fprintf(os.Stderr, "Error: write result: %v\n", err)
			return 2
		}
	} else if err := os.WriteFile(*outPath, encoded, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: write %s: %v\n", *outPath, err)
		return 2
	}

	if !result.Valid() {
		fmt.Fprintf(os.Stderr, "Model failed validation with %d diagnostic(s).\n", len(result.Diagnostics))
		return 1
	}
	return 0
}
