// Package sign authenticates inbound webhook requests and signs
// outbound callback deliveries.
//
// # Inbound
//
// Providers that sign request bodies use the canonical scheme: an
// HMAC-SHA256 keyed hash over "v0:{timestamp}:{body}", hex-encoded and
// prefixed with "v0=". Verification rejects requests whose timestamp
// falls outside the configured freshness window before any hashing, and
// compares signatures in constant time. Providers that authenticate
// with a static token header use SecretsEqual, which carries the same
// constant-time guarantee.
//
// A failed verification is terminal: the handler returns 401 and no
// downstream component runs.
//
// # Outbound
//
// JWTSigner mints short-lived HS256 bearer tokens attached to peer
// callback deliveries, so receivers can verify the reply came from this
// gateway.
package sign
