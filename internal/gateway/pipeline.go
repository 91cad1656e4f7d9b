// ABOUTME: Webhook event pipeline from verified delivery to completed turn.
// ABOUTME: Acks the transport first, then runs the runtime turn detached from the request.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/2389/sigil-gateway/internal/event"
	"github.com/2389/sigil-gateway/internal/provider"
	"github.com/2389/sigil-gateway/internal/runtime"
	"github.com/2389/sigil-gateway/internal/session"
)

// maxEventBody bounds inbound webhook payloads. Slack and Telegram
// events are a few KB; anything near this limit is not a message.
const maxEventBody = 1 << 20

// unavailableNotice is sent to the conversation when the runtime cannot
// be reached. The wording is deliberately generic: the failure detail
// stays in the logs.
const unavailableNotice = "I can't reach my runtime right now. Please try again in a moment."

// Turn outcomes recorded per event. Exactly one outcome is recorded for
// every delivery that passes signature verification.
const (
	outcomeOK                 = "ok"
	outcomeDuplicate          = "duplicate"
	outcomeIgnored            = "ignored"
	outcomeMalformed          = "malformed"
	outcomeRejectedSignature  = "rejected_signature"
	outcomeRuntimeUnavailable = "runtime_unavailable"
	outcomeReplyFailed        = "reply_failed"
)

// eventsHandler builds the POST handler for one provider's webhook
// route. The handler order is fixed: verify, inline respond, dedup,
// normalize, resolve, ack, then the detached turn.
func (g *Gateway) eventsHandler(a provider.Adapter) http.HandlerFunc {
	logger := g.logger.With("provider", a.Name())

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
		if err != nil {
			logger.Warn("failed to read event body", "error", err)
			sendJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		g.metrics.RecordEvent(ctx, a.Name())

		// Authentication gates everything: a delivery that fails
		// verification produces no side effects of any kind.
		if err := a.Verify(r, body); err != nil {
			logger.Warn("rejected event delivery", "error", err)
			g.metrics.RecordOutcome(ctx, a.Name(), outcomeRejectedSignature)
			sendJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// Some providers handshake over the webhook (Slack
		// url_verification). The probe is signed, so this runs after
		// Verify but before the event pipeline.
		if responder, ok := a.(provider.Responder); ok {
			handled, err := responder.Respond(w, body)
			if err != nil {
				logger.Warn("inline response failed", "error", err)
				return
			}
			if handled {
				return
			}
		}

		// Redelivery means the provider never saw our earlier ack. The
		// first attempt already ran the turn, so the only correct move
		// is an ack with zero side effects.
		if retries := a.RetryCount(r); retries > 0 {
			dup := &event.DuplicateDeliveryError{Provider: a.Name(), RetryCount: retries}
			logger.Info("acknowledging redelivery without processing", "reason", dup.Error())
			g.metrics.RecordOutcome(ctx, a.Name(), outcomeDuplicate)
			ack(w)
			return
		}

		ev, err := a.Normalize(body, r.Header)
		if err != nil {
			if errors.Is(err, event.ErrIgnored) {
				logger.Debug("ignoring event", "reason", err.Error())
				g.metrics.RecordOutcome(ctx, a.Name(), outcomeIgnored)
			} else {
				logger.Warn("malformed event payload", "error", err)
				g.metrics.RecordOutcome(ctx, a.Name(), outcomeMalformed)
			}
			ack(w)
			return
		}

		sessionID := session.Resolve(ev.Provider, ev.ThreadKey())
		logger.Info("accepted event",
			"event_type", ev.Type,
			"external_id", ev.ExternalID,
			"session_id", sessionID,
			"sender_id", ev.SenderID,
		)

		// Ack before the turn runs. The transport's redelivery timer is
		// short; the runtime's answer is not.
		ack(w)

		// The turn must survive the webhook connection closing, so it
		// detaches from the request's cancellation but keeps its values.
		g.dispatch(context.WithoutCancel(ctx), a, ev, sessionID)
	}
}

// dispatch runs the turn in a tracked goroutine so shutdown can drain it.
func (g *Gateway) dispatch(ctx context.Context, a provider.Adapter, ev *event.Event, sessionID string) {
	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		g.runTurn(ctx, a, ev, sessionID)
	}()
}

// runTurn executes one full conversational turn: preload working
// memory, query the runtime once, deliver the reply, commit long-term
// memory. The commit happens exactly when the runtime query succeeded;
// a failed reply delivery does not unwind it, because the runtime's
// conversational state has already advanced.
func (g *Gateway) runTurn(ctx context.Context, a provider.Adapter, ev *event.Event, sessionID string) {
	logger := g.logger.With("provider", ev.Provider, "session_id", sessionID)

	// Best-effort: a failed preload degrades recall, not the turn.
	_ = g.memory.Preload(ctx, sessionID, ev.SenderID)

	result, err := g.runtime.Query(ctx, sessionID, ev.Text)
	if err != nil {
		logger.Error("runtime query failed", "error", err)
		g.metrics.RecordOutcome(ctx, ev.Provider, outcomeRuntimeUnavailable)

		var unavail *runtime.UnavailableError
		if errors.As(err, &unavail) {
			if replyErr := a.Reply(ctx, ev, unavailableNotice); replyErr != nil {
				logger.Error("failed to deliver unavailability notice", "error", replyErr)
			}
		}
		return
	}

	g.metrics.RecordRuntimeLatency(ctx, ev.Provider, time.Duration(result.ElapsedMS)*time.Millisecond)

	if err := a.Reply(ctx, ev, result.ResponseText); err != nil {
		logger.Error("failed to deliver reply", "error", err)
		g.metrics.RecordOutcome(ctx, ev.Provider, outcomeReplyFailed)
	} else {
		g.metrics.RecordOutcome(ctx, ev.Provider, outcomeOK)
	}

	if err := g.memory.Commit(ctx, sessionID, ev.SenderID); err != nil {
		g.metrics.RecordMemoryCommit(ctx, "failed")
	} else {
		g.metrics.RecordMemoryCommit(ctx, "ok")
	}
}

// ack writes the uniform success acknowledgment. Providers only need
// the 200; the body is for humans reading curl output.
func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// sendJSONError writes a JSON error response with the given status code.
func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": message,
	})
}
