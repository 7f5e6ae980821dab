// Package attestation implements the Attestation Client (C7): a long-poll
// HTTP client against the burn-and-mint attestation provider, supporting
// both its v1 (message-hash-keyed) and v2 (transaction-hash-keyed, domain-
// scoped) surfaces behind one result type.
package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
)

const (
	// DefaultV1Interval is the poll interval for the legacy message-hash
	// surface.
	DefaultV1Interval = 2 * time.Second
	// DefaultV2Interval is the poll interval for the preferred
	// transaction-hash surface.
	DefaultV2Interval = 5 * time.Second
	// DefaultBudget bounds the total time spent polling before giving up.
	DefaultBudget = 20 * time.Minute
)

// Blob is the parsed attestation payload the Transfer Engine needs to
// submit the redeem call.
type Blob struct {
	Message     string
	Attestation string
}

// Client polls the attestation provider over HTTP.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	v1Interval  time.Duration
	v2Interval  time.Duration
	totalBudget time.Duration
}

// New builds a Client against baseURL (e.g. https://iris-api.circle.com),
// using sane defaults for any zero-valued option.
func New(baseURL string, httpClient *http.Client, v1Interval, v2Interval, totalBudget time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if v1Interval <= 0 {
		v1Interval = DefaultV1Interval
	}
	if v2Interval <= 0 {
		v2Interval = DefaultV2Interval
	}
	if totalBudget <= 0 {
		totalBudget = DefaultBudget
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, v1Interval: v1Interval, v2Interval: v2Interval, totalBudget: totalBudget}
}

// v1Response is the legacy GET /attestations/{messageHash} shape.
type v1Response struct {
	Status      string `json:"status"`
	Attestation string `json:"attestation"`
	Message     string `json:"message"`
}

// WaitV1 polls the legacy surface for messageHash until it completes, the
// provider reports a terminal failure, or the total budget elapses.
func (c *Client) WaitV1(ctx context.Context, messageHash string) (*Blob, error) {
	endpoint := fmt.Sprintf("%s/attestations/%s", c.baseURL, messageHash)
	return pollUntilComplete(ctx, c.httpClient, endpoint, c.v1Interval, c.totalBudget, func(status int, body []byte) (*Blob, bool, error) {
		if status == http.StatusNotFound {
			return nil, false, nil
		}
		if status != http.StatusOK {
			return nil, false, apperr.New(apperr.AttestationFailed, fmt.Sprintf("attestation provider returned %d", status))
		}
		var resp v1Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, false, apperr.Wrap(apperr.AttestationFailed, "decode v1 attestation response", err)
		}
		if resp.Status != "complete" {
			return nil, false, nil
		}
		return &Blob{Message: resp.Message, Attestation: resp.Attestation}, true, nil
	})
}

// v2Response is the preferred GET /v2/messages/{sourceDomain} shape.
type v2Response struct {
	Messages []struct {
		Status      string `json:"status"`
		Attestation string `json:"attestation"`
		Message     string `json:"message"`
	} `json:"messages"`
}

// WaitV2 polls the preferred surface for a burn transaction on
// sourceDomain until a message with status "complete" appears.
func (c *Client) WaitV2(ctx context.Context, sourceDomain uint32, sourceTxHash string) (*Blob, error) {
	endpoint := fmt.Sprintf("%s/v2/messages/%d?transactionHash=%s", c.baseURL, sourceDomain, url.QueryEscape(sourceTxHash))
	return pollUntilComplete(ctx, c.httpClient, endpoint, c.v2Interval, c.totalBudget, func(status int, body []byte) (*Blob, bool, error) {
		if status == http.StatusNotFound {
			return nil, false, nil
		}
		if status != http.StatusOK {
			return nil, false, apperr.New(apperr.AttestationFailed, fmt.Sprintf("attestation provider returned %d", status))
		}
		var resp v2Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, false, apperr.Wrap(apperr.AttestationFailed, "decode v2 attestation response", err)
		}
		if len(resp.Messages) == 0 || resp.Messages[0].Status != "complete" {
			return nil, false, nil
		}
		m := resp.Messages[0]
		return &Blob{Message: m.Message, Attestation: m.Attestation}, true, nil
	})
}

// pollResult examines one HTTP response and reports (blob, done, error).
// done=false, error=nil means "keep polling".
type pollResult func(status int, body []byte) (*Blob, bool, error)

func pollUntilComplete(ctx context.Context, client *http.Client, endpoint string, interval, budget time.Duration, check pollResult) (*Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		blob, done, err := fetchOnce(ctx, client, endpoint, check)
		if err != nil {
			return nil, err
		}
		if done {
			return blob, nil
		}
		select {
		case <-ctx.Done():
			return nil, apperr.New(apperr.AttestationFailed, "attestation polling budget exceeded")
		case <-ticker.C:
		}
	}
}

func fetchOnce(ctx context.Context, client *http.Client, endpoint string, check pollResult) (*Blob, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.AttestationFailed, "build request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.AttestationFailed, "attestation request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.AttestationFailed, "read attestation response", err)
	}
	return check(resp.StatusCode, body)
}
