// Package pvz holds the built-in PVZ API workload.
package pvz

import (
	_ "embed"
	"fmt"

	"github.com/wesleyorama2/pvzload/internal/performance/config"
)

// DefaultBaseURL is where the PVZ service listens unless told otherwise.
const DefaultBaseURL = "http://localhost:8080"

// ScenarioName is the name of the built-in scenario.
const ScenarioName = "contacts"

//go:embed pvz.yaml
var scenarioYAML []byte

// Raw returns the built-in test file.
func Raw() []byte {
	out := make([]byte, len(scenarioYAML))
	copy(out, scenarioYAML)
	return out
}

// Load parses the built-in test file. Each call returns a fresh config the
// caller may modify.
func Load() (*config.TestConfig, error) {
	cfg, err := config.ParseConfig(scenarioYAML, "pvz.yaml")
	if err != nil {
		return nil, fmt.Errorf("built-in pvz scenario: %w", err)
	}
	return cfg, nil
}
