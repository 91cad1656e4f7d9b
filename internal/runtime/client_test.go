// ABOUTME: Tests for the runtime HTTP client
// ABOUTME: Covers query success, timeouts, backend errors, and memory verbs

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Query_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq queryRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResult{ResponseText: "hello back", ElapsedMS: 1200})
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{
		Endpoint:  srv.URL + "/v1/agents/sigil",
		AuthToken: "rt-token",
	})

	result, err := c.Query(context.Background(), "session-1", "hello")
	require.NoError(t, err)

	assert.Equal(t, "hello back", result.ResponseText)
	assert.Equal(t, int64(1200), result.ElapsedMS)
	assert.Equal(t, "/v1/agents/sigil:query", gotPath)
	assert.Equal(t, "Bearer rt-token", gotAuth)
	assert.Equal(t, "session-1", gotReq.SessionID)
	assert.Equal(t, "hello", gotReq.Text)
}

func TestHTTPClient_Query_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{Endpoint: srv.URL + "/runtime"})

	_, err := c.Query(context.Background(), "session-1", "hello")
	require.Error(t, err)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "query", unavailable.Op)
	assert.Equal(t, http.StatusBadGateway, unavailable.Status)
	assert.False(t, unavailable.Timeout)
}

func TestHTTPClient_Query_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{
		Endpoint:     srv.URL + "/runtime",
		QueryTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := c.Query(context.Background(), "session-1", "hello")
	elapsed := time.Since(start)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, unavailable.Timeout, "expected timeout classification, got %v", err)
	assert.Less(t, elapsed, time.Second, "client did not honor its timeout")
}

func TestHTTPClient_Query_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewHTTPClient(Options{Endpoint: srv.URL + "/runtime"})

	_, err := c.Query(context.Background(), "session-1", "hello")

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.NotNil(t, unavailable.Cause)
}

func TestHTTPClient_Query_ClientErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad session id", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{Endpoint: srv.URL + "/runtime"})

	_, err := c.Query(context.Background(), "", "hello")
	require.Error(t, err)

	var unavailable *UnavailableError
	assert.False(t, errors.As(err, &unavailable), "4xx must not classify as unavailable")
	assert.Contains(t, err.Error(), "status 400")
}

func TestHTTPClient_Query_GarbledResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{Endpoint: srv.URL + "/runtime"})

	_, err := c.Query(context.Background(), "session-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestHTTPClient_MemoryVerbs(t *testing.T) {
	var paths []string
	var bodies []memoryRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req memoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, req)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{Endpoint: srv.URL + "/runtime/"})

	require.NoError(t, c.PreloadMemories(context.Background(), "session-1", "user-9"))
	require.NoError(t, c.CommitMemories(context.Background(), "session-1", "user-9"))

	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[0], "runtime:preloadMemories"), "path %q", paths[0])
	assert.True(t, strings.HasSuffix(paths[1], "runtime:commitMemories"), "path %q", paths[1])
	assert.Equal(t, "session-1", bodies[0].SessionID)
	assert.Equal(t, "user-9", bodies[1].SubjectID)
}

func TestHTTPClient_CommitMemories_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "memory bank down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{Endpoint: srv.URL + "/runtime"})

	err := c.CommitMemories(context.Background(), "session-1", "user-9")

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "commitMemories", unavailable.Op)
}

func TestNewHTTPClient_TrimsTrailingSlash(t *testing.T) {
	c := NewHTTPClient(Options{Endpoint: "http://runtime.local/v1/agents/sigil/"})
	assert.Equal(t, "http://runtime.local/v1/agents/sigil", c.endpoint)
}

func TestUnavailableError_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  *UnavailableError
		want string
	}{
		{name: "timeout", err: &UnavailableError{Op: "query", Timeout: true}, want: "timed out"},
		{name: "status", err: &UnavailableError{Op: "query", Status: 502}, want: "status 502"},
		{name: "cause", err: &UnavailableError{Op: "query", Cause: errors.New("connection refused")}, want: "connection refused"},
		{name: "bare", err: &UnavailableError{Op: "query"}, want: "runtime unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.err.Error(), tt.want)
		})
	}
}
