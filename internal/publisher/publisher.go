// Package publisher forwards a metered call to the agent's own API. Forwarding
// happens at most once per request — unlike internal/attestation's
// poll-until-done client, a failed forward is not retried, since retrying
// could bill the publisher twice for one inbound call.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
)

// Client forwards calls to publisher API endpoints.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// New builds a Client whose every Call is bounded by timeout.
func New(httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, timeout: timeout}
}

// Metadata is the envelope the router attaches to every forwarded call so
// the publisher can tell it apart from a direct caller.
type Metadata struct {
	RouterVersion string `json:"router_version"`
	AgentID       string `json:"agent_id"`
}

// Request is the body forwarded to the publisher's endpoint.
type Request struct {
	Method     string                 `json:"method"`
	Parameters map[string]interface{} `json:"parameters"`
	Metadata   Metadata               `json:"metadata"`
}

// Response is the publisher's parsed 2xx body. Data is kept as raw JSON so
// the router can pass it straight through to the caller without needing to
// understand the publisher's schema.
type Response struct {
	StatusCode int
	Data       json.RawMessage
}

// Call forwards req to endpoint, authenticating with apiKey as a bearer
// token. Any non-2xx response or transport failure is returned as
// apperr.ApiCallFailed. A deadline exceeded (the endpoint didn't answer
// within the client's timeout) is returned the same way, as ApiCallFailed
// with the message "publisher call timed out"; it has no error kind or HTTP
// status of its own.
func (c *Client) Call(ctx context.Context, endpoint, apiKey string, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "marshal publisher request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "build publisher request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.ApiCallFailed, "publisher call timed out", err)
		}
		return nil, apperr.Wrap(apperr.ApiCallFailed, "publisher call failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ApiCallFailed, "read publisher response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.ApiCallFailed, fmt.Sprintf("publisher returned HTTP %d", resp.StatusCode))
	}

	return &Response{StatusCode: resp.StatusCode, Data: json.RawMessage(respBody)}, nil
}
