// ABOUTME: Defines the Adapter interface that every messaging provider implements.
// ABOUTME: Includes a Registry mapping provider names to their adapters.

package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/2389/sigil-gateway/internal/event"
)

// ErrUnknownProvider indicates no adapter is registered under the requested name.
var ErrUnknownProvider = errors.New("unknown provider")

// Adapter translates one provider's webhook dialect into canonical events.
//
// The gateway calls the methods in a fixed order for each delivery:
// Verify first, then RetryCount, then Normalize. Reply is invoked later,
// after the runtime has produced a response, on a context detached from
// the originating HTTP request.
type Adapter interface {
	// Name returns the provider identifier recorded on normalized events,
	// e.g. "slack" or "telegram".
	Name() string

	// Verify authenticates the raw delivery. It must not produce side
	// effects: a delivery that fails verification is rejected before any
	// other processing happens. Implementations return an
	// *event.AuthenticationError (or a wrapped one) on failure.
	Verify(r *http.Request, body []byte) error

	// RetryCount reports the provider's redelivery counter for this
	// request. Zero means first delivery. The gateway treats any positive
	// value as a duplicate and skips the turn.
	RetryCount(r *http.Request) int

	// Normalize parses the verified payload into a canonical event.
	// Deliveries that carry no conversational content (edits, bot echoes,
	// housekeeping callbacks) return an error wrapping event.ErrIgnored.
	// Structurally broken payloads return *event.MalformedEventError.
	Normalize(body []byte, header http.Header) (*event.Event, error)

	// Reply delivers the runtime's response text back to the conversation
	// the event came from.
	Reply(ctx context.Context, ev *event.Event, text string) error
}

// Responder is implemented by adapters that can answer a request inline,
// before normalization. Slack's url_verification handshake is the only
// current use.
type Responder interface {
	// Respond writes a terminal response for the delivery and reports
	// whether it did so. When handled is true the gateway stops processing
	// the request.
	Respond(w http.ResponseWriter, body []byte) (handled bool, err error)
}

// Registry holds the set of enabled adapters keyed by provider name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter under its own name. Registering a second
// adapter with the same name replaces the first.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under name.
// Returns ErrUnknownProvider if none is registered.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return a, nil
}

// Names returns the registered provider names in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
