// Package discourse is the HTTP client for the external discourse engine:
// embeddings, synchronous analysis, and the async batch job API.
package discourse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimension is the vector width the engine produces and the schema
// expects.
const EmbeddingDimension = 1536

// Timeouts per operation. Embedding calls carry the large-model tail; polls
// are cheap status reads.
const (
	embedTimeout = 30 * time.Second
	pollTimeout  = 10 * time.Second
)

// Client talks JSON over HTTP to the discourse engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: embedTimeout},
		logger:     slog.Default(),
	}
}

// Healthy reports whether the engine answers its health probe with ok.
func (c *Client) Healthy(ctx context.Context) bool {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", pollTimeout, &out); err != nil {
		c.logger.Warn("Discourse engine health check failed", "error", err)
		return false
	}
	return out.Status == "ok"
}

// Embed returns one 1536-dim vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out struct {
		Embeddings [][]float32 `json:"embeddings_1536"`
	}
	err := c.post(ctx, "/embed", embedTimeout, map[string]any{"texts": texts}, &out)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d texts", len(out.Embeddings), len(texts))
	}
	for i, e := range out.Embeddings {
		if len(e) != EmbeddingDimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(e), EmbeddingDimension)
		}
	}
	return out.Embeddings, nil
}

// AnalyzeRequest identifies the content to analyze.
type AnalyzeRequest struct {
	Text       string    `json:"text"`
	SourceType string    `json:"source_type"`
	SourceID   uuid.UUID `json:"source_id"`
}

// Analyze runs synchronous analysis over one text. An engine that found no
// argument structure returns a result with empty slices, not an error.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	var out AnalysisResult
	if err := c.post(ctx, "/analyze", embedTimeout, req, &out); err != nil {
		return nil, fmt.Errorf("analyze %s %s: %w", req.SourceType, req.SourceID, err)
	}
	return &out, nil
}

// SubmitBatch submits a batch of requests for asynchronous processing and
// returns the opaque external job name.
func (c *Client) SubmitBatch(ctx context.Context, requests []json.RawMessage) (string, error) {
	var out struct {
		JobName string `json:"job_name"`
	}
	err := c.post(ctx, "/batch/submit", embedTimeout, map[string]any{"requests": requests}, &out)
	if err != nil {
		return "", fmt.Errorf("submit batch of %d requests: %w", len(requests), err)
	}
	if out.JobName == "" {
		return "", fmt.Errorf("batch submit returned empty job name")
	}
	return out.JobName, nil
}

// BatchState is the lifecycle of an external batch job.
type BatchState string

// Batch states.
const (
	BatchRunning   BatchState = "running"
	BatchSucceeded BatchState = "succeeded"
	BatchFailed    BatchState = "failed"
)

// BatchStatus is one poll result. Results are present only once the job
// succeeded.
type BatchStatus struct {
	State   BatchState        `json:"state"`
	Error   string            `json:"error,omitempty"`
	Results []json.RawMessage `json:"results,omitempty"`
}

// PollBatch reads the status of a previously submitted job.
func (c *Client) PollBatch(ctx context.Context, jobName string) (*BatchStatus, error) {
	var out BatchStatus
	path := "/batch/poll?job=" + url.QueryEscape(jobName)
	if err := c.get(ctx, path, pollTimeout, &out); err != nil {
		return nil, fmt.Errorf("poll batch job %s: %w", jobName, err)
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, timeout time.Duration, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call discourse engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("discourse engine returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
