// ABOUTME: Tests for the peer adapter.
// ABOUTME: Covers envelope validation, signature checks, retry counter, and callback delivery.

package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sigil-gateway/internal/event"
	"github.com/2389/sigil-gateway/internal/session"
	"github.com/2389/sigil-gateway/internal/sign"
)

const (
	testSecret         = "peer-signing-secret"
	testCallbackSecret = "callback-jwt-secret"
)

func newTestAdapter(tokens sign.TokenIssuer) *Adapter {
	return New(Config{
		SigningSecret:   testSecret,
		FreshnessWindow: 5 * time.Minute,
		Operations:      map[string]struct{}{"message.send": {}},
		Tokens:          tokens,
		TokenSubject:    "sigil-gateway",
		TokenTTL:        time.Minute,
	})
}

func envelope(mutate func(*Envelope)) []byte {
	env := Envelope{
		Operation: "message.send",
		ID:        "req-0001",
		Channel:   "ops",
		Thread:    "incident-77",
		Sender:    "peer-agent",
		Text:      "summarize the incident",
	}
	if mutate != nil {
		mutate(&env)
	}
	b, _ := json.Marshal(env)
	return b
}

func signedHeader(body []byte) http.Header {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	v := sign.NewVerifier(testSecret, 5*time.Minute)
	h := http.Header{}
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderSignature, v.Signature(ts, body))
	return h
}

func TestAdapter_Name(t *testing.T) {
	if got := newTestAdapter(nil).Name(); got != "peer" {
		t.Errorf("Name() = %q, want peer", got)
	}
}

func TestAdapter_Verify_ValidSignature(t *testing.T) {
	a := newTestAdapter(nil)
	body := envelope(nil)
	r := httptest.NewRequest(http.MethodPost, "/events", nil)
	r.Header = signedHeader(body)

	assert.NoError(t, a.Verify(r, body))
}

func TestAdapter_Verify_WrongSecret(t *testing.T) {
	a := newTestAdapter(nil)
	body := envelope(nil)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	other := sign.NewVerifier("some-other-secret", 5*time.Minute)

	r := httptest.NewRequest(http.MethodPost, "/events", nil)
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderSignature, other.Signature(ts, body))

	var authErr *event.AuthenticationError
	require.ErrorAs(t, a.Verify(r, body), &authErr)
	assert.Contains(t, authErr.Reason, "peer signature")
}

func TestAdapter_Verify_StaleTimestamp(t *testing.T) {
	a := newTestAdapter(nil)
	body := envelope(nil)
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	v := sign.NewVerifier(testSecret, 5*time.Minute)

	r := httptest.NewRequest(http.MethodPost, "/events", nil)
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderSignature, v.Signature(ts, body))

	var authErr *event.AuthenticationError
	assert.ErrorAs(t, a.Verify(r, body), &authErr)
}

func TestAdapter_RetryCount(t *testing.T) {
	a := newTestAdapter(nil)

	r := httptest.NewRequest(http.MethodPost, "/events", nil)
	if got := a.RetryCount(r); got != 0 {
		t.Errorf("RetryCount without header = %d, want 0", got)
	}

	r.Header.Set(HeaderRetryNum, "2")
	if got := a.RetryCount(r); got != 2 {
		t.Errorf("RetryCount = %d, want 2", got)
	}
}

func TestAdapter_Normalize_Valid(t *testing.T) {
	a := newTestAdapter(nil)
	body := envelope(func(env *Envelope) {
		env.CallbackURL = "https://caller.example/replies"
	})
	header := signedHeader(body)

	ev, err := a.Normalize(body, header)
	require.NoError(t, err)

	assert.Equal(t, "peer", ev.Provider)
	assert.Equal(t, "message.send", ev.Type)
	assert.Equal(t, "req-0001", ev.ExternalID)
	assert.Equal(t, "ops", ev.ChannelID)
	assert.Equal(t, "incident-77", ev.ThreadID)
	assert.Equal(t, "peer-agent", ev.SenderID)
	assert.Equal(t, "summarize the incident", ev.Text)
	assert.Equal(t, "https://caller.example/replies", ev.CallbackURL)

	wantTS, err := strconv.ParseInt(header.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(wantTS, 0).UTC(), ev.ReceivedAt)
}

func TestAdapter_Normalize_ThreadFallsBackToChannel(t *testing.T) {
	a := newTestAdapter(nil)
	body := envelope(func(env *Envelope) { env.Thread = "" })

	ev, err := a.Normalize(body, nil)
	require.NoError(t, err)
	assert.Equal(t, "ops", ev.ThreadKey())
}

func TestAdapter_Normalize_Invalid(t *testing.T) {
	a := newTestAdapter(nil)

	tests := []struct {
		name   string
		mutate func(*Envelope)
		reason string
	}{
		{"unknown operation", func(e *Envelope) { e.Operation = "task.cancel" }, "unsupported operation"},
		{"missing operation", func(e *Envelope) { e.Operation = "" }, "missing operation"},
		{"missing id", func(e *Envelope) { e.ID = "" }, "missing id"},
		{"missing sender", func(e *Envelope) { e.Sender = "" }, "missing sender"},
		{"blank text", func(e *Envelope) { e.Text = "   " }, "missing text"},
		{"no conversation key", func(e *Envelope) { e.Channel = ""; e.Thread = "" }, "missing channel and thread"},
		{"relative callback url", func(e *Envelope) { e.CallbackURL = "/replies" }, "invalid callback_url"},
		{"non-http callback url", func(e *Envelope) { e.CallbackURL = "ftp://caller.example/x" }, "invalid callback_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Normalize(envelope(tt.mutate), nil)

			var malformed *event.MalformedEventError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, "peer", malformed.Provider)
			assert.Contains(t, malformed.Error(), tt.reason)
		})
	}
}

func TestAdapter_Normalize_Garbage(t *testing.T) {
	a := newTestAdapter(nil)

	var malformed *event.MalformedEventError
	_, err := a.Normalize([]byte(`]{[`), nil)
	assert.ErrorAs(t, err, &malformed)
}

func TestAdapter_Reply_PostsCallback(t *testing.T) {
	signer := sign.NewJWTSigner([]byte(testCallbackSecret))

	var gotPayload callbackPayload
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestAdapter(signer)
	ev := &event.Event{
		Provider:    "peer",
		Type:        "message.send",
		ExternalID:  "req-0001",
		ChannelID:   "ops",
		ThreadID:    "incident-77",
		CallbackURL: srv.URL + "/replies",
	}

	require.NoError(t, a.Reply(context.Background(), ev, "two pods restarted"))

	assert.Equal(t, "two pods restarted", gotPayload.Text)
	assert.Equal(t, session.Resolve("peer", "incident-77"), gotPayload.SessionID)

	require.True(t, len(gotAuth) > len("Bearer "))
	subject, err := signer.Verify(gotAuth[len("Bearer "):])
	require.NoError(t, err)
	assert.Equal(t, "sigil-gateway", subject)
}

func TestAdapter_Reply_NoCallbackURLIsNoop(t *testing.T) {
	a := newTestAdapter(nil)
	ev := &event.Event{Provider: "peer", ExternalID: "req-0002"}

	assert.NoError(t, a.Reply(context.Background(), ev, "dropped"))
}

func TestAdapter_Reply_NoTokenIssuerOmitsAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := newTestAdapter(nil)
	ev := &event.Event{Provider: "peer", ThreadID: "t", CallbackURL: srv.URL}

	require.NoError(t, a.Reply(context.Background(), ev, "hi"))
	assert.Empty(t, gotAuth)
}

func TestAdapter_Reply_CallbackFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone fishing", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestAdapter(nil)
	ev := &event.Event{Provider: "peer", ThreadID: "t", CallbackURL: srv.URL}

	err := a.Reply(context.Background(), ev, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestAdapter_Reply_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	a := newTestAdapter(nil)
	ev := &event.Event{Provider: "peer", ThreadID: "t", CallbackURL: srv.URL}

	assert.Error(t, a.Reply(context.Background(), ev, "hi"))
}
