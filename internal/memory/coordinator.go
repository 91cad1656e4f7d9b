// ABOUTME: Memory persistence coordination around agent turns
// ABOUTME: Best-effort preload at turn start, exactly-once durable commit after success

package memory

import (
	"context"
	"fmt"
	"log/slog"
)

// RuntimeMemory is the slice of the runtime client the coordinator
// needs: the two memory verbs.
type RuntimeMemory interface {
	PreloadMemories(ctx context.Context, sessionID, subjectID string) error
	CommitMemories(ctx context.Context, sessionID, subjectID string) error
}

// CommitError reports a failed long-term memory commit. Commits are
// best-effort and never retried synchronously: the reply has already
// been delivered, so the failure is logged and counted, nothing more.
type CommitError struct {
	SessionID string
	Cause     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("memory commit failed for session %s: %v", e.SessionID, e.Cause)
}

func (e *CommitError) Unwrap() error {
	return e.Cause
}

// Coordinator makes the two memory calls that bracket a turn. It holds
// no state of its own; working and long-term memory live in the runtime.
type Coordinator struct {
	client RuntimeMemory
	logger *slog.Logger
}

// NewCoordinator creates a coordinator over the given runtime client.
func NewCoordinator(client RuntimeMemory, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		client: client,
		logger: logger.With("component", "memory"),
	}
}

// Preload signals the runtime to hydrate the session's working memory
// from long-term storage. Best-effort: the turn proceeds whether or not
// hydration succeeded, so failures are logged at warn and returned only
// for the caller's bookkeeping.
func (c *Coordinator) Preload(ctx context.Context, sessionID, subjectID string) error {
	if err := c.client.PreloadMemories(ctx, sessionID, subjectID); err != nil {
		c.logger.Warn("working memory preload failed",
			"session_id", sessionID,
			"subject_id", subjectID,
			"error", err,
		)
		return err
	}
	return nil
}

// Commit persists the just-completed turn into durable long-term
// memory, keyed by session and the stable subject identity when one is
// known. The caller invokes this exactly once per successful turn and
// never for deduplicated, rejected, or failed ones. A failure never
// unwinds the already-delivered reply.
func (c *Coordinator) Commit(ctx context.Context, sessionID, subjectID string) error {
	if err := c.client.CommitMemories(ctx, sessionID, subjectID); err != nil {
		c.logger.Error("long-term memory commit failed",
			"session_id", sessionID,
			"subject_id", subjectID,
			"error", err,
		)
		return &CommitError{SessionID: sessionID, Cause: err}
	}

	c.logger.Debug("long-term memory committed",
		"session_id", sessionID,
		"subject_id", subjectID,
	)
	return nil
}
