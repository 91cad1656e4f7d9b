// ABOUTME: HTTP client for the remote agent runtime
// ABOUTME: One bounded query per turn plus the memory preload/commit verbs

package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the only path to the remote agent runtime. No other
// component may reach the runtime directly.
type Client interface {
	// Query issues exactly one conversational turn. It must not retry:
	// retry policy belongs to the inbound transport, and a retry here
	// would duplicate a runtime invocation.
	Query(ctx context.Context, sessionID, text string) (*QueryResult, error)

	// PreloadMemories asks the runtime to hydrate the session's working
	// memory from long-term storage before a turn.
	PreloadMemories(ctx context.Context, sessionID, subjectID string) error

	// CommitMemories asks the runtime to persist the just-completed
	// turn into durable long-term memory.
	CommitMemories(ctx context.Context, sessionID, subjectID string) error
}

// QueryResult is the runtime's answer for one turn.
type QueryResult struct {
	ResponseText string `json:"response_text"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

// Options configures the HTTP runtime client.
type Options struct {
	// Endpoint is the base resource URL; verbs are appended as
	// ":query", ":preloadMemories", ":commitMemories".
	Endpoint string

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string

	QueryTimeout  time.Duration
	MemoryTimeout time.Duration
}

// HTTPClient implements Client over HTTP/JSON.
type HTTPClient struct {
	endpoint      string
	authToken     string
	queryTimeout  time.Duration
	memoryTimeout time.Duration
	client        *http.Client
}

// NewHTTPClient creates a runtime client. Zero timeouts fall back to
// 45s for queries and 10s for memory verbs.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 45 * time.Second
	}
	if opts.MemoryTimeout <= 0 {
		opts.MemoryTimeout = 10 * time.Second
	}
	return &HTTPClient{
		endpoint:      strings.TrimSuffix(opts.Endpoint, "/"),
		authToken:     opts.AuthToken,
		queryTimeout:  opts.QueryTimeout,
		memoryTimeout: opts.MemoryTimeout,
		client:        &http.Client{},
	}
}

type queryRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type memoryRequest struct {
	SessionID string `json:"session_id"`
	SubjectID string `json:"subject_id,omitempty"`
}

// Query sends one turn to the runtime under the query timeout.
func (c *HTTPClient) Query(ctx context.Context, sessionID, text string) (*QueryResult, error) {
	var result QueryResult
	err := c.post(ctx, "query", c.queryTimeout, queryRequest{
		SessionID: sessionID,
		Text:      text,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// PreloadMemories signals working-memory hydration for the session.
func (c *HTTPClient) PreloadMemories(ctx context.Context, sessionID, subjectID string) error {
	return c.post(ctx, "preloadMemories", c.memoryTimeout, memoryRequest{
		SessionID: sessionID,
		SubjectID: subjectID,
	}, nil)
}

// CommitMemories signals a durable long-term memory commit for the
// completed turn.
func (c *HTTPClient) CommitMemories(ctx context.Context, sessionID, subjectID string) error {
	return c.post(ctx, "commitMemories", c.memoryTimeout, memoryRequest{
		SessionID: sessionID,
		SubjectID: subjectID,
	}, nil)
}

// post performs one verb call and classifies failures: transport errors
// and 5xx responses become *UnavailableError, other statuses are plain
// errors. out may be nil when the response body is irrelevant.
func (c *HTTPClient) post(ctx context.Context, verb string, timeout time.Duration, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", verb, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+":"+verb, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", verb, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &UnavailableError{
			Op:      verb,
			Timeout: ctx.Err() == context.DeadlineExceeded,
			Cause:   err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &UnavailableError{Op: verb, Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("runtime rejected %s: status %d: %s", verb, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", verb, err)
	}
	return nil
}
