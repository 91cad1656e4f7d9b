// ABOUTME: Capability descriptor types for peer discovery
// ABOUTME: Static deployment identity, operations, and auth requirements

package card

// Discovery routes. The well-known path is the standardized location;
// /capabilities is the plain alias.
const (
	WellKnownPath = "/.well-known/agent-card.json"
	AliasPath     = "/capabilities"
)

// Identity names the deployment to peers.
type Identity struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Operation is one advertised operation. Prompt and capability records
// are consumed by the remote runtime; the descriptor advertises only
// name and description.
type Operation struct {
	Name         string   `json:"name" toml:"name"`
	Description  string   `json:"description,omitempty" toml:"description"`
	Prompt       string   `json:"-" toml:"prompt"`
	Capabilities []string `json:"-" toml:"capabilities"`
}

// AuthRequirements tells peers how to sign event deliveries.
type AuthRequirements struct {
	Scheme                 string `json:"scheme"`
	SignatureHeader        string `json:"signature_header"`
	TimestampHeader        string `json:"timestamp_header"`
	FreshnessWindowSeconds int    `json:"freshness_window_seconds"`
}

// Descriptor is the discovery document served to peer systems. It is
// immutable for the lifetime of a deployment: built once at startup,
// never mutated at request time.
type Descriptor struct {
	Identity            Identity         `json:"identity"`
	Version             string           `json:"version"`
	PublicEndpoint      string           `json:"public_endpoint"`
	SupportedOperations []Operation      `json:"supported_operations"`
	AuthRequirements    AuthRequirements `json:"auth_requirements"`
}

// OperationSet builds a membership set over operation names, used to
// validate peer-invoked operations against the manifest.
func OperationSet(ops []Operation) map[string]struct{} {
	set := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		set[op.Name] = struct{}{}
	}
	return set
}
