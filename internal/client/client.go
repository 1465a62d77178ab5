// Package client provides an HTTP client for the ontograph server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client talks to the ontograph server over HTTP and websocket.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new client.
// If endpoint is empty, uses ONTOGRAPH_SERVER_URL env var or defaults to localhost:8484.
// Timeout can be configured via ONTOGRAPH_CLIENT_TIMEOUT env var (default 10m for batch operations).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("ONTOGRAPH_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8484"
	}
	endpoint = strings.TrimRight(endpoint, "/")

	timeout := 10 * time.Minute // Default: 10 minutes for batch LLM operations
	if t := os.Getenv("ONTOGRAPH_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError is the error payload returned by the server.
type apiError struct {
	Error string `json:"error"`
}

// do sends a JSON request and decodes the JSON response into result (if
// non-nil). Non-2xx responses are returned as errors carrying the server's
// error message.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// TicketGrant is an issued streaming credential.
type TicketGrant struct {
	Ticket     string `json:"ticket"`
	ExpiresAt  int64  `json:"expires_at"` // epoch milliseconds
	TTLSeconds int    `json:"ttl_seconds"`
}

// IssueTicket requests a single-use streaming ticket for an ontology.
func (c *Client) IssueTicket(ctx context.Context, ontologyID, apiKey string) (*TicketGrant, error) {
	body := map[string]string{"ontology_id": ontologyID}
	if apiKey != "" {
		body["api_key"] = apiKey
	}
	var grant TicketGrant
	if err := c.do(ctx, http.MethodPost, "/tickets", body, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// SubmitBatchInput is the input for submitting an extraction batch.
type SubmitBatchInput struct {
	OntologyID  string   `json:"ontology_id"`
	Items       []string `json:"items"`
	Model       string   `json:"model,omitempty"`
	Concurrency int      `json:"concurrency,omitempty"`
}

// SubmitBatch submits texts for extraction and returns the batch id.
func (c *Client) SubmitBatch(ctx context.Context, input SubmitBatchInput) (string, error) {
	var result struct {
		BatchID string `json:"batch_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/batches", input, &result); err != nil {
		return "", err
	}
	return result.BatchID, nil
}

// BatchProgress is a batch progress snapshot.
type BatchProgress struct {
	Processed int `json:"processed"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Cursor    int `json:"cursor"`
}

// BatchStatus is the tagged status union returned by the server.
// Tag is one of "Active", "Suspended", "NotFound".
type BatchStatus struct {
	Tag            string         `json:"_tag"`
	State          *BatchProgress `json:"state,omitempty"`
	BatchID        string         `json:"batchId,omitempty"`
	Cause          *string        `json:"cause,omitempty"`
	LastKnownState *BatchProgress `json:"lastKnownState,omitempty"`
	CanResume      *bool          `json:"canResume,omitempty"`
}

// GetBatchStatus fetches the status of a batch. A NotFound status is
// returned as data, not as an error.
func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	var status BatchStatus
	err := c.do(ctx, http.MethodGet, "/batches/"+url.PathEscape(batchID), nil, &status)
	if err != nil {
		// 404 carries the NotFound union variant in the body.
		if strings.Contains(err.Error(), `"_tag":"NotFound"`) || status.Tag == "NotFound" {
			return &BatchStatus{Tag: "NotFound", BatchID: batchID}, nil
		}
		return nil, err
	}
	return &status, nil
}

// SuspendBatch pauses an active batch.
func (c *Client) SuspendBatch(ctx context.Context, batchID, cause string) error {
	var body any
	if cause != "" {
		body = map[string]string{"cause": cause}
	}
	return c.do(ctx, http.MethodPost, "/batches/"+url.PathEscape(batchID)+"/suspend", body, nil)
}

// ResumeBatch resumes a suspended batch.
func (c *Client) ResumeBatch(ctx context.Context, batchID string) error {
	return c.do(ctx, http.MethodPost, "/batches/"+url.PathEscape(batchID)+"/resume", nil, nil)
}

// ServerStats holds the server's in-memory runtime statistics.
type ServerStats struct {
	UptimeSeconds float64         `json:"uptime_seconds"`
	Extraction    *OperationStats `json:"extraction,omitempty"`
	Embedding     *OperationStats `json:"embedding,omitempty"`
	DBQuery       *OperationStats `json:"db_query,omitempty"`
	BatchItem     *OperationStats `json:"batch_item,omitempty"`
}

// OperationStats holds metrics for a single operation type.
type OperationStats struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// GetStats fetches the server metrics snapshot.
func (c *Client) GetStats(ctx context.Context) (*ServerStats, error) {
	var stats ServerStats
	if err := c.do(ctx, http.MethodGet, "/metrics", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
