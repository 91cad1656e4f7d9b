// ABOUTME: Minimal fake agent runtime for E2E testing — serves the query and memory verbs over HTTP.
// ABOUTME: Usage: fake-runtime [-addr localhost:9090] [-latency 500ms] [-fail query]

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

type turnRequest struct {
	SessionID string `json:"session_id"`
	SubjectID string `json:"subject_id"`
	Text      string `json:"text"`
}

// runtime is the in-memory conversational state. Each session counts
// its turns so replies demonstrate session affinity through a gateway.
type runtime struct {
	mu      sync.Mutex
	turns   map[string]int
	commits map[string]int

	latency time.Duration
	fail    string
}

func main() {
	addr := flag.String("addr", "localhost:9090", "listen address")
	latency := flag.Duration("latency", 300*time.Millisecond, "simulated thinking time per query")
	fail := flag.String("fail", "", "verb to fail with 503: query, preloadMemories, or commitMemories")
	flag.Parse()

	rt := &runtime{
		turns:   make(map[string]int),
		commits: make(map[string]int),
		latency: *latency,
		fail:    *fail,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", rt.handle)

	log.Printf("fake runtime listening on %s (latency=%s fail=%q)", *addr, *latency, *fail)
	log.Printf("point the gateway at: runtime.endpoint = \"http://%s/agent\"", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}

// handle routes on the verb suffix so any base resource path works.
func (rt *runtime) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var verb string
	if idx := strings.LastIndex(r.URL.Path, ":"); idx >= 0 {
		verb = r.URL.Path[idx+1:]
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	if rt.fail == verb {
		log.Printf("[%s] forced failure for session %s", verb, req.SessionID)
		http.Error(w, "simulated runtime outage", http.StatusServiceUnavailable)
		return
	}

	switch verb {
	case "query":
		rt.handleQuery(w, req)
	case "preloadMemories":
		log.Printf("[preload] session=%s subject=%s", req.SessionID, req.SubjectID)
		w.WriteHeader(http.StatusOK)
	case "commitMemories":
		rt.mu.Lock()
		rt.commits[req.SessionID]++
		count := rt.commits[req.SessionID]
		rt.mu.Unlock()
		log.Printf("[commit] session=%s subject=%s total_commits=%d", req.SessionID, req.SubjectID, count)
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, fmt.Sprintf("unknown verb %q", verb), http.StatusNotFound)
	}
}

func (rt *runtime) handleQuery(w http.ResponseWriter, req turnRequest) {
	start := time.Now()
	time.Sleep(rt.latency)

	rt.mu.Lock()
	rt.turns[req.SessionID]++
	turn := rt.turns[req.SessionID]
	rt.mu.Unlock()

	log.Printf("[query] session=%s turn=%d text=%q", req.SessionID, turn, req.Text)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"response_text": echoReply(req.Text, turn),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
}

// echoReply produces a canned answer. Markdown variants exercise the
// provider-side rendering paths.
func echoReply(input string, turn int) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote.\n"
	}
	return fmt.Sprintf("Echo: **%s**\n\nThis is turn %d in our session, so I am clearly remembering you.", input, turn)
}
