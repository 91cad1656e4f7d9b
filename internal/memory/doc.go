// Package memory coordinates the two-tier memory model around agent
// turns: a best-effort working-memory preload before the runtime call,
// and an exactly-once durable commit after a successful one.
//
// Both tiers are stored by the remote runtime. This package decides
// when the calls happen, not where memories live.
package memory
