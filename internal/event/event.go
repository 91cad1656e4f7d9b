// ABOUTME: Canonical message event shared by all provider adapters
// ABOUTME: Normalized shape consumed by the session resolver and turn pipeline

package event

import "time"

// Type of a canonical event. Conversational providers always produce
// TypeMessage; peer operations carry their operation name as the type.
const TypeMessage = "message"

// Event is the provider-neutral form of one inbound delivery.
// (Provider, ExternalID) is unique within the transport's dedup window.
type Event struct {
	Provider   string    `json:"provider"`
	Type       string    `json:"event_type"`
	ExternalID string    `json:"external_id"`
	ChannelID  string    `json:"channel_id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	SenderID   string    `json:"sender_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`

	// CallbackURL is set only by the peer provider when the caller
	// supplied a reply destination.
	CallbackURL string `json:"callback_url,omitempty"`
}

// ThreadKey returns the conversation key used for session derivation:
// the thread identifier when the provider threads conversations, the
// channel otherwise. Never derived from the sender alone.
func (e *Event) ThreadKey() string {
	if e.ThreadID != "" {
		return e.ThreadID
	}
	return e.ChannelID
}
