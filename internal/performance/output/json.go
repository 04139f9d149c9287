package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wesleyorama2/pvzload/internal/performance/engine"
)

// JSONResult is the machine-readable form of a run.
type JSONResult struct {
	*engine.TestResult
	Endpoints []engine.EndpointStats `json:"endpoints"`
	Groups    []engine.EndpointStats `json:"groups,omitempty"`
	Skips     map[string]int64       `json:"skips,omitempty"`
}

// NewJSONResult wraps result with its per-endpoint and per-group breakdown.
func NewJSONResult(result *engine.TestResult) *JSONResult {
	out := &JSONResult{
		TestResult: result,
		Endpoints:  result.Endpoints(),
		Groups:     result.Groups(),
	}
	if result.Summary != nil && len(result.Summary.Skips) > 0 {
		out.Skips = result.Summary.Skips
	}
	return out
}

// WriteJSON writes result as indented JSON.
func WriteJSON(w io.Writer, result *engine.TestResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewJSONResult(result)); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// WriteJSONFile writes result to path, creating parent directories.
func WriteJSONFile(path string, result *engine.TestResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := WriteJSON(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
