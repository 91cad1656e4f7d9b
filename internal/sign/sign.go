// ABOUTME: HMAC signature verification for inbound webhook requests
// ABOUTME: Keyed hash over version:timestamp:body with freshness window and constant-time compare

package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Version is the canonical string version prefix. The signed base string
// is "v0:{timestamp}:{body}" and signatures are sent as "v0={hex}".
const Version = "v0"

// Verification errors
var (
	ErrMissingSignature  = errors.New("missing signature")
	ErrMissingTimestamp  = errors.New("missing timestamp")
	ErrBadTimestamp      = errors.New("unparseable timestamp")
	ErrStaleTimestamp    = errors.New("timestamp outside freshness window")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Verifier checks inbound request signatures against a shared secret.
// Header extraction is the adapter's job; the verifier sees only the
// timestamp string, the signature string, and the raw body bytes.
type Verifier struct {
	secret []byte
	window time.Duration
}

// NewVerifier creates a verifier for the given shared secret. window
// bounds |now - timestamp|; requests outside it are rejected as stale
// regardless of signature validity.
func NewVerifier(secret string, window time.Duration) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		window: window,
	}
}

// Verify checks freshness first, then the signature. A nil return means
// the request is authentic and inside the window. All failures are
// terminal: the caller must return 401 and invoke nothing downstream.
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	if timestamp == "" {
		return ErrMissingTimestamp
	}
	if signature == "" {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadTimestamp, timestamp)
	}

	age := time.Since(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.window {
		return fmt.Errorf("%w: %s old", ErrStaleTimestamp, age.Round(time.Second))
	}

	expected := v.Signature(timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}

	return nil
}

// Signature computes the canonical signature for a timestamp and body:
// "v0=" + hex(HMAC-SHA256(secret, "v0:{timestamp}:{body}")).
func (v *Verifier) Signature(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s:%s:", Version, timestamp)
	mac.Write(body)
	return Version + "=" + hex.EncodeToString(mac.Sum(nil))
}

// SecretsEqual compares two shared secrets in constant time. Used for
// providers that authenticate with a static token header instead of a
// body signature.
func SecretsEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
