// ABOUTME: Peer provider adapter for the canonical signed operation envelope.
// ABOUTME: Verifies v0 signatures, validates operations, and posts replies to caller callbacks.

package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/sigil-gateway/internal/event"
	"github.com/2389/sigil-gateway/internal/session"
	"github.com/2389/sigil-gateway/internal/sign"
)

const providerName = "peer"

// Headers of the canonical signed dialect.
const (
	HeaderSignature = "X-Sigil-Signature"
	HeaderTimestamp = "X-Sigil-Timestamp"
	HeaderRetryNum  = "X-Sigil-Retry-Num"
)

// Envelope is the canonical operation envelope peers POST to /events.
type Envelope struct {
	Operation   string `json:"operation"`
	ID          string `json:"id"`
	Channel     string `json:"channel,omitempty"`
	Thread      string `json:"thread,omitempty"`
	Sender      string `json:"sender"`
	Text        string `json:"text"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// callbackPayload is POSTed to the caller's callback_url once the
// runtime has answered.
type callbackPayload struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// Config carries the peer dialect's verification and callback settings.
type Config struct {
	// SigningSecret is the shared secret peers sign envelopes with.
	SigningSecret string

	// FreshnessWindow bounds |now - request timestamp| during signature
	// verification.
	FreshnessWindow time.Duration

	// Operations is the set of operation names the descriptor announces.
	// Envelopes naming anything else are malformed.
	Operations map[string]struct{}

	// Tokens signs bearer tokens for callback deliveries. Nil means
	// callbacks go out unauthenticated.
	Tokens sign.TokenIssuer

	// TokenSubject is the subject claim on callback tokens, normally the
	// gateway's announced identity name.
	TokenSubject string

	// TokenTTL bounds callback token lifetime.
	TokenTTL time.Duration

	// HTTPClient is used for callback deliveries.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Adapter implements the provider contract for the canonical dialect.
type Adapter struct {
	verifier     *sign.Verifier
	operations   map[string]struct{}
	tokens       sign.TokenIssuer
	tokenSubject string
	tokenTTL     time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

// New creates a peer adapter.
func New(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Adapter{
		verifier:     sign.NewVerifier(cfg.SigningSecret, cfg.FreshnessWindow),
		operations:   cfg.Operations,
		tokens:       cfg.Tokens,
		tokenSubject: cfg.TokenSubject,
		tokenTTL:     ttl,
		httpClient:   client,
		logger:       logger.With("component", "peer"),
	}
}

// Name returns "peer".
func (a *Adapter) Name() string { return providerName }

// Verify checks the canonical v0 signature.
func (a *Adapter) Verify(r *http.Request, body []byte) error {
	timestamp := r.Header.Get(HeaderTimestamp)
	signature := r.Header.Get(HeaderSignature)
	if err := a.verifier.Verify(timestamp, signature, body); err != nil {
		return &event.AuthenticationError{Reason: fmt.Sprintf("peer signature: %v", err)}
	}
	return nil
}

// RetryCount reads the dialect's redelivery counter.
func (a *Adapter) RetryCount(r *http.Request) int {
	raw := r.Header.Get(HeaderRetryNum)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Normalize parses and validates the operation envelope. The dialect is
// strict: missing fields and unknown operations are caller errors, not
// ignorable noise.
func (a *Adapter) Normalize(body []byte, header http.Header) (*event.Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &event.MalformedEventError{Provider: providerName, Cause: err}
	}

	if err := a.validate(&env); err != nil {
		return nil, &event.MalformedEventError{Provider: providerName, Cause: err}
	}

	return &event.Event{
		Provider:    providerName,
		Type:        env.Operation,
		ExternalID:  env.ID,
		ChannelID:   env.Channel,
		ThreadID:    env.Thread,
		SenderID:    env.Sender,
		Text:        env.Text,
		ReceivedAt:  receivedAt(header),
		CallbackURL: env.CallbackURL,
	}, nil
}

func (a *Adapter) validate(env *Envelope) error {
	switch {
	case env.Operation == "":
		return errors.New("missing operation")
	case env.ID == "":
		return errors.New("missing id")
	case env.Sender == "":
		return errors.New("missing sender")
	case strings.TrimSpace(env.Text) == "":
		return errors.New("missing text")
	case env.Channel == "" && env.Thread == "":
		return errors.New("missing channel and thread")
	}

	if _, ok := a.operations[env.Operation]; !ok {
		return fmt.Errorf("unsupported operation %q", env.Operation)
	}

	if env.CallbackURL != "" {
		u, err := url.Parse(env.CallbackURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid callback_url %q", env.CallbackURL)
		}
	}
	return nil
}

// Reply posts the response to the caller's callback_url. Envelopes
// without one asked for no reply channel; the response is dropped after
// the turn's bookkeeping completes.
func (a *Adapter) Reply(ctx context.Context, ev *event.Event, text string) error {
	if ev.CallbackURL == "" {
		a.logger.Debug("no callback url, reply not delivered", "external_id", ev.ExternalID)
		return nil
	}

	payload := callbackPayload{
		SessionID: session.Resolve(ev.Provider, ev.ThreadKey()),
		Text:      text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ev.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if a.tokens != nil {
		token, err := a.tokens.Issue(a.tokenSubject, a.tokenTTL)
		if err != nil {
			return fmt.Errorf("signing callback token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback returned status %d: %s", resp.StatusCode, string(excerpt))
	}
	return nil
}

// receivedAt prefers the signed request timestamp over the local clock.
func receivedAt(header http.Header) time.Time {
	if header != nil {
		if ts, err := strconv.ParseInt(header.Get(HeaderTimestamp), 10, 64); err == nil {
			return time.Unix(ts, 0).UTC()
		}
	}
	return time.Now().UTC()
}
