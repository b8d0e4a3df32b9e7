package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
	yaml "gopkg.in/yaml.v2"
)

// Format identifies a supported model document encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatHJSON Format = "hjson"
)

// FormatForPath infers the document format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hjson":
		return FormatHJSON, nil
	}
	return "", fmt.Errorf("unsupported model file extension %q", filepath.Ext(path))
}

// LoadDocument reads and decodes a cap-table document from disk, inferring the
// format from the file extension.
func LoadDocument(path string) (*Document, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	doc, err := ParseDocument(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return doc, nil
}

// ParseDocument decodes a cap-table document from raw bytes.
//
// JSON input gets one repair attempt on a syntax error: the upstream model is
// assembled by a conversational agent and occasionally arrives with trailing
// commas, comments, or single-quoted keys.
func ParseDocument(data []byte, format Format) (*Document, error) {
	var doc Document

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			repaired, repairErr := jsonrepair.RepairJSON(string(data))
			if repairErr != nil {
				return nil, fmt.Errorf("invalid JSON (repair failed: %v): %w", repairErr, err)
			}
			if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
				return nil, fmt.Errorf("invalid JSON after repair: %w", err)
			}
		}

	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}

	case FormatHJSON:
		// HJSON has no struct decoder; normalize through a generic value.
		var generic interface{}
		if err := hjson.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("invalid HJSON: %w", err)
		}
		normalized, err := json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("normalize HJSON: %w", err)
		}
		if err := json.Unmarshal(normalized, &doc); err != nil {
			return nil, fmt.Errorf("decode HJSON document: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	return &doc, nil
}
