// ABOUTME: Operations manifest loading from TOML
// ABOUTME: Persona and capability records are data for the runtime, not code

package card

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// manifest is the on-disk shape of the operations file:
//
//	[[operation]]
//	name = "message.send"
//	description = "Deliver a conversational message to the agent"
//	prompt = "..."
//	capabilities = ["memory.longterm", "threading"]
type manifest struct {
	Operations []Operation `toml:"operation"`
}

// LoadManifest reads operation records from a TOML file. Records are
// pure data: specialized roles differ by prompt and capability list,
// never by handler type.
func LoadManifest(path string) ([]Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading operations manifest: %w", err)
	}

	var m manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, fmt.Errorf("parsing operations manifest: %w", err)
	}

	if len(m.Operations) == 0 {
		return nil, fmt.Errorf("operations manifest %s declares no operations", path)
	}

	seen := make(map[string]struct{}, len(m.Operations))
	for i, op := range m.Operations {
		if op.Name == "" {
			return nil, fmt.Errorf("operation %d has no name", i)
		}
		if _, dup := seen[op.Name]; dup {
			return nil, fmt.Errorf("operation %q declared twice", op.Name)
		}
		seen[op.Name] = struct{}{}
	}

	return m.Operations, nil
}

// DefaultOperations is the manifest used when no operations file is
// configured: plain conversational messaging.
func DefaultOperations() []Operation {
	return []Operation{
		{
			Name:        "message.send",
			Description: "Deliver a conversational message to the agent",
		},
	}
}
