// ABOUTME: Error taxonomy for inbound event handling
// ABOUTME: Distinguishes auth rejections, duplicates, malformed payloads, and ignorable events

package event

import (
	"errors"
	"fmt"
)

// ErrIgnored marks events that are dropped on purpose: bot-authored
// messages, empty text, disallowed channels, non-message subtypes.
// Wrapped errors carry the reason; handlers ack and move on.
var ErrIgnored = errors.New("event ignored")

// AuthenticationError reports an invalid or stale request signature.
// The handler returns 401 and nothing downstream runs.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// DuplicateDeliveryError reports a transport-level redelivery of an
// event that was already accepted. The handler acks with zero side
// effects.
type DuplicateDeliveryError struct {
	Provider   string
	ExternalID string
	RetryCount int
}

func (e *DuplicateDeliveryError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("duplicate delivery of %s event (retry %d)", e.Provider, e.RetryCount)
	}
	return fmt.Sprintf("duplicate delivery of %s event %s (retry %d)", e.Provider, e.ExternalID, e.RetryCount)
}

// MalformedEventError reports a payload that could not be normalized.
// The handler acks and logs; the error is never surfaced to an end user.
type MalformedEventError struct {
	Provider string
	Cause    error
}

func (e *MalformedEventError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("malformed %s event", e.Provider)
	}
	return fmt.Sprintf("malformed %s event: %v", e.Provider, e.Cause)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Cause
}
