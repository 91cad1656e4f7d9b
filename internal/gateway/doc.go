// Package gateway orchestrates the sigil-gateway server.
//
// # Overview
//
// The gateway package is the central coordinator: it builds the
// provider adapters from configuration, mounts their webhook routes,
// serves the capability descriptor, and runs each accepted event as
// one conversational turn against the remote agent runtime.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config    *config.Config
//	    registry  *provider.Registry
//	    runtime   runtime.Client
//	    memory    *memory.Coordinator
//	    announcer *card.Announcer
//	    // ... HTTP server, tsnet, metrics
//	}
//
// # HTTP Surface
//
//   - POST /events - canonical peer dialect webhook
//   - POST /events/{provider} - per-provider webhooks (peer, slack, telegram)
//   - GET /.well-known/agent-card.json - capability descriptor
//   - GET /capabilities - descriptor alias
//   - GET /healthz - liveness check
//   - GET /readyz - readiness check
//
// # Turn Pipeline
//
// Every webhook delivery moves through a fixed sequence in pipeline.go:
//
//	Verify -> Respond (inline handshakes) -> RetryCount -> Normalize
//	  -> session.Resolve -> ack -> detached turn
//
// A signature failure returns 401 and nothing else happens. Every
// other terminal state acks with 200 {"ok":true} so the transport
// stops redelivering; redelivered events are acked without processing
// because the first attempt already ran the turn.
//
// The turn itself (preload, one runtime query, reply, commit) runs on
// a context detached from the webhook request, so a closed connection
// never cancels a turn in progress. Shutdown drains these detached
// turns up to the configured grace period.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	err = gw.Run(ctx)
//
// Run resolves provider bot identities (Slack auth.test, Telegram
// getMe), binds the listener (plain TCP or Tailscale tsnet, with
// optional Funnel for public exposure), and blocks until the context
// is canceled. Cancellation triggers graceful shutdown.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, listeners, Run/Shutdown
//   - pipeline.go: webhook handler and the detached turn
package gateway
