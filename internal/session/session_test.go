// ABOUTME: Tests for deterministic session id derivation
// ABOUTME: Covers stability across calls, distinctness across keys and providers

package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestResolve_Deterministic(t *testing.T) {
	first := Resolve("slack", "C001/1700000000.000100")

	for i := 0; i < 50; i++ {
		if got := Resolve("slack", "C001/1700000000.000100"); got != first {
			t.Fatalf("Resolve() call %d = %q, want %q", i, got, first)
		}
	}
}

func TestResolve_DistinctThreadKeys(t *testing.T) {
	// A representative key space: distinct thread keys must never collide.
	seen := make(map[string]string)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("C%03d/%d.%06d", i%7, 1700000000+i, i)
		id := Resolve("slack", key)
		if prev, ok := seen[id]; ok {
			t.Fatalf("collision: keys %q and %q both map to %s", prev, key, id)
		}
		seen[id] = key
	}
}

func TestResolve_ProviderScoped(t *testing.T) {
	slackID := Resolve("slack", "12345")
	telegramID := Resolve("telegram", "12345")

	if slackID == telegramID {
		t.Errorf("same thread key across providers produced one session id %s", slackID)
	}
}

func TestResolve_IndependentThreadsSameSender(t *testing.T) {
	// Session identity comes from the thread, never the sender: the same
	// user in two threads gets two sessions.
	a := Resolve("slack", "C001")
	b := Resolve("slack", "C002")

	if a == b {
		t.Errorf("distinct threads produced the same session id %s", a)
	}
}

func TestResolve_ValidUUID(t *testing.T) {
	id := Resolve("peer", "thread-42")

	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("Resolve() produced unparseable id %q: %v", id, err)
	}
	if parsed.Version() != 5 {
		t.Errorf("Resolve() UUID version = %d, want 5", parsed.Version())
	}
}

func TestView(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := View("session-id", at)

	if s.ID != "session-id" {
		t.Errorf("View().ID = %q", s.ID)
	}
	if !s.CreatedAt.Equal(at) || !s.LastActiveAt.Equal(at) {
		t.Errorf("View() times = %v/%v, want %v", s.CreatedAt, s.LastActiveAt, at)
	}
}
