// Package peer adapts the canonical signed operation envelope spoken
// between gateways and other agent-aware services.
//
// Envelopes are signed with the v0 scheme over X-Sigil-Timestamp and the
// raw body, and name one of the operations the agent card announces.
// Unlike the conversational providers, the dialect is strict: a missing
// field or unknown operation is a malformed event, never silently
// ignored. Thread and channel identifiers are caller-scoped; the caller
// owns their uniqueness within its own namespace.
//
// Replies are POSTed to the envelope's callback_url as
// {"session_id","text"}, carrying an HS256 bearer token when a callback
// secret is configured. Envelopes without a callback_url asked for no
// reply delivery.
package peer
