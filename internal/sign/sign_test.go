// ABOUTME: Tests for HMAC signature verification
// ABOUTME: Covers valid signatures, tampering, freshness window, and header absence

package sign

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func nowTimestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

func TestVerifier_Verify_ValidSignature(t *testing.T) {
	v := NewVerifier(testSecret, 300*time.Second)
	body := []byte(`{"operation":"message.send","text":"hello"}`)
	ts := nowTimestamp()

	sig := v.Signature(ts, body)

	if err := v.Verify(ts, sig, body); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestVerifier_Verify_TamperedBody(t *testing.T) {
	v := NewVerifier(testSecret, 300*time.Second)
	ts := nowTimestamp()
	sig := v.Signature(ts, []byte(`{"text":"hello"}`))

	err := v.Verify(ts, sig, []byte(`{"text":"hell0"}`))
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("Verify() error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifier_Verify_WrongSecret(t *testing.T) {
	signer := NewVerifier("one-secret", 300*time.Second)
	verifier := NewVerifier("another-secret", 300*time.Second)
	body := []byte(`{}`)
	ts := nowTimestamp()

	err := verifier.Verify(ts, signer.Signature(ts, body), body)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("Verify() error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifier_Verify_StaleTimestamp(t *testing.T) {
	v := NewVerifier(testSecret, 300*time.Second)
	body := []byte(`{"text":"hello"}`)

	// 10 minutes old: outside the 300s window even with a valid signature.
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	sig := v.Signature(ts, body)

	err := v.Verify(ts, sig, body)
	if !errors.Is(err, ErrStaleTimestamp) {
		t.Errorf("Verify() error = %v, want ErrStaleTimestamp", err)
	}
}

func TestVerifier_Verify_FutureTimestamp(t *testing.T) {
	v := NewVerifier(testSecret, 300*time.Second)
	body := []byte(`{"text":"hello"}`)

	ts := strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10)
	sig := v.Signature(ts, body)

	err := v.Verify(ts, sig, body)
	if !errors.Is(err, ErrStaleTimestamp) {
		t.Errorf("Verify() error = %v, want ErrStaleTimestamp", err)
	}
}

func TestVerifier_Verify_MissingHeaders(t *testing.T) {
	v := NewVerifier(testSecret, 300*time.Second)
	body := []byte(`{}`)
	ts := nowTimestamp()

	tests := []struct {
		name      string
		timestamp string
		signature string
		wantErr   error
	}{
		{name: "missing timestamp", timestamp: "", signature: "v0=abc", wantErr: ErrMissingTimestamp},
		{name: "missing signature", timestamp: ts, signature: "", wantErr: ErrMissingSignature},
		{name: "garbage timestamp", timestamp: "yesterday", signature: "v0=abc", wantErr: ErrBadTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.timestamp, tt.signature, body)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifier_Verify_MalformedSignature(t *testing.T) {
	v := NewVerifier(testSecret, 300*time.Second)
	body := []byte(`{}`)
	ts := nowTimestamp()

	// No version prefix, wrong length: must mismatch, never panic.
	for _, sig := range []string{"abc", "v0=", "v1=deadbeef", "sha256=deadbeef"} {
		if err := v.Verify(ts, sig, body); !errors.Is(err, ErrSignatureMismatch) {
			t.Errorf("Verify(sig=%q) error = %v, want ErrSignatureMismatch", sig, err)
		}
	}
}

func TestVerifier_Signature_Deterministic(t *testing.T) {
	v := NewVerifier(testSecret, 300*time.Second)
	body := []byte("payload")
	ts := "1700000000"

	first := v.Signature(ts, body)
	second := v.Signature(ts, body)

	if first != second {
		t.Errorf("Signature() not deterministic: %q vs %q", first, second)
	}
	if want := Version + "="; len(first) <= len(want) || first[:len(want)] != want {
		t.Errorf("Signature() = %q, want %q prefix", first, want)
	}
}

func TestSecretsEqual(t *testing.T) {
	if !SecretsEqual("tok-123", "tok-123") {
		t.Error("SecretsEqual() = false for equal secrets")
	}
	if SecretsEqual("tok-123", "tok-124") {
		t.Error("SecretsEqual() = true for different secrets")
	}
	if SecretsEqual("tok-123", "") {
		t.Error("SecretsEqual() = true for empty candidate")
	}
}

func ExampleVerifier_Signature() {
	v := NewVerifier("secret", 300*time.Second)
	fmt.Println(v.Signature("1700000000", []byte("body"))[:3])
	// Output: v0=
}
