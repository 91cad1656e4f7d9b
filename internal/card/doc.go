// Package card builds and serves the capability descriptor: the
// discovery document advertising this deployment's identity, endpoint,
// operations, and signing requirements to peer systems.
//
// The descriptor is assembled once at startup from configuration and
// the operations manifest, rendered to bytes, and served byte-identical
// at /.well-known/agent-card.json and /capabilities. Request handling
// is constant-time and never calls the runtime.
package card
