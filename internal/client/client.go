// Package client is a thin HTTP client for a running synapse server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Harshitk-cp/synapse/internal/buildconfig"
)

// APIError carries a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("synapse API returned status %d: %s", e.Status, e.Message)
}

// ErrBusy is matched by errors.Is for a 409 from /v1/query.
var ErrBusy = errors.New("another query is in flight")

func (e *APIError) Is(target error) bool {
	return target == ErrBusy && e.Status == http.StatusConflict
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type QueryMetrics struct {
	ProcessingMS     int64   `json:"processing_ms"`
	MemoryHits       int     `json:"memory_hits"`
	LayersEngaged    int     `json:"layers_engaged"`
	FusionOperations int     `json:"fusion_operations"`
	Confidence       float64 `json:"confidence"`
	ExplorationPaths int     `json:"exploration_paths"`
}

type QueryResult struct {
	Answer        string       `json:"answer"`
	Confidence    float64      `json:"confidence"`
	Consolidation struct {
		Summary    string  `json:"summary"`
		Confidence float64 `json:"consolidation_confidence"`
	} `json:"consolidation"`
	Metrics QueryMetrics `json:"metrics"`
}

type Status struct {
	Phase                 string        `json:"phase"`
	IsProcessing          bool          `json:"is_processing"`
	ActiveTrajectoryCount int           `json:"active_trajectory_count"`
	OracleCircuit         string        `json:"oracle_circuit,omitempty"`
	LastMetrics           *StatusMetric `json:"last_metrics,omitempty"`
}

type StatusMetric struct {
	ProcessingTime   time.Duration `json:"processing_time"`
	MemoryHits       int           `json:"memory_hits"`
	LayersEngaged    int           `json:"layers_engaged"`
	FusionOperations int           `json:"fusion_operations"`
	Confidence       float64       `json:"confidence"`
	ExplorationPaths int           `json:"exploration_paths"`
}

type ConsolidationResult struct {
	ConnectionsLinked int `json:"connections_linked"`
	EdgesProcessed    int `json:"edges_processed"`
	EdgesDecayed      int `json:"edges_decayed"`
	EdgesPruned       int `json:"edges_pruned"`
	StillPending      int `json:"still_pending"`
}

func (c *Client) Query(ctx context.Context, query string, depth int) (*QueryResult, error) {
	body := map[string]any{"query": query}
	if depth > 0 {
		body["max_reasoning_depth"] = depth
	}
	var out QueryResult
	if err := c.do(ctx, http.MethodPost, "/v1/query", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reset(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodPost, "/v1/status/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Consolidate(ctx context.Context) (*ConsolidationResult, error) {
	var out ConsolidationResult
	if err := c.do(ctx, http.MethodPost, "/v1/consolidate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", buildconfig.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
