// Package provider defines the contract between the gateway pipeline and
// the messaging platforms it listens to.
//
// Each platform (Slack, Telegram, the canonical peer dialect) ships as its
// own subpackage implementing the Adapter interface. The gateway never
// inspects provider payloads itself; all platform knowledge lives behind
// the adapter boundary:
//
//	Verify      authenticate the raw delivery, no side effects on failure
//	RetryCount  read the platform's redelivery counter
//	Normalize   parse the payload into an event.Event
//	Reply       deliver the runtime's answer back to the conversation
//
// Adapters are registered in a Registry keyed by provider name, and each
// enabled adapter is mounted on its own webhook route. The registry is
// assembled once at startup and read-only afterwards, so no locking is
// needed.
package provider
