// ABOUTME: Deterministic session identity derivation from conversation context
// ABOUTME: Maps (provider, thread key) to a stable UUIDv5 session id

package session

import (
	"time"

	"github.com/google/uuid"
)

// namespace is fixed for the deployment lineage so every gateway
// instance derives the same session id for the same conversation.
var namespace = uuid.MustParse("9a1c8e2d-4b6f-4c3a-8e5d-2f7b9c0a6e41")

// Resolve maps a provider and thread key to a stable session id. The
// mapping is pure: identical inputs yield identical ids across calls,
// restarts, and instances; distinct thread keys yield distinct ids.
// Sender identity never participates, so one user holds independent
// sessions in independent threads.
func Resolve(provider, threadKey string) string {
	return uuid.NewSHA1(namespace, []byte(provider+":"+threadKey)).String()
}

// Session is the gateway's per-request view of a runtime-owned session.
// The runtime owns the real lifecycle; the gateway cannot observe true
// creation time. CreatedAt and LastActiveAt reflect this request's
// receipt time and exist for logging and observability.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// View builds the ephemeral session view for one request.
func View(id string, at time.Time) Session {
	return Session{ID: id, CreatedAt: at, LastActiveAt: at}
}
