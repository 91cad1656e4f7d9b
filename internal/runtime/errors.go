// ABOUTME: Structured runtime failure errors
// ABOUTME: Distinguishes timeouts and backend errors from caller mistakes

package runtime

import "fmt"

// UnavailableError reports that the runtime could not serve a call:
// a transport failure, a timeout, or a 5xx response. Callers
// acknowledge the inbound transport, skip the memory commit, and
// record the turn as failed.
type UnavailableError struct {
	Op      string // the runtime verb that failed
	Status  int    // HTTP status when the backend answered, 0 otherwise
	Timeout bool
	Cause   error
}

func (e *UnavailableError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("runtime unavailable: %s timed out", e.Op)
	case e.Status != 0:
		return fmt.Sprintf("runtime unavailable: %s returned status %d", e.Op, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("runtime unavailable: %s: %v", e.Op, e.Cause)
	default:
		return fmt.Sprintf("runtime unavailable: %s", e.Op)
	}
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}
