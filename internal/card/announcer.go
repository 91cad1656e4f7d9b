// ABOUTME: HTTP announcer serving the capability descriptor
// ABOUTME: Descriptor bytes are rendered once and served identically forever

package card

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Announcer serves the capability descriptor. The JSON payload is
// rendered exactly once at construction; every response returns those
// same bytes. The announcer never consults the runtime.
type Announcer struct {
	descriptor Descriptor
	payload    []byte
}

// NewAnnouncer renders the descriptor and returns the announcer.
func NewAnnouncer(d Descriptor) (*Announcer, error) {
	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding capability descriptor: %w", err)
	}
	return &Announcer{descriptor: d, payload: payload}, nil
}

// Descriptor returns the descriptor the announcer was built from.
func (a *Announcer) Descriptor() Descriptor {
	return a.descriptor
}

// Payload returns the exact bytes served to peers.
func (a *Announcer) Payload() []byte {
	return a.payload
}

// Handler serves the cached descriptor bytes. Side-effect-free and
// cacheable; only GET is allowed.
func (a *Announcer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(a.payload)
	})
}
