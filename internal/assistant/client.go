// Package assistant provides the HTTP client for the remote
// repository-understanding backend. Ingestion, retrieval, and language
// model invocation all live behind this boundary; the client only speaks
// the backend's request/response contract.
package assistant

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
)

// IngestRequest asks the backend to fetch and index a repository.
type IngestRequest struct {
	RepoURL string `json:"repo_url"`
	UserID  string `json:"user_id,omitempty"`
}

// IngestResult reports the outcome of an ingestion run.
type IngestResult struct {
	Status             string `json:"status"`
	Message            string `json:"message"`
	DocumentsProcessed int    `json:"documents_processed"`
	RepoURL            string `json:"repo_url"`
}

// QueryRequest asks a question about an ingested repository.
type QueryRequest struct {
	RepoURL  string `json:"repo_url"`
	Question string `json:"question"`
	LLMModel string `json:"llm_model,omitempty"`
}

// SourceDocument is one retrieved chunk backing an answer.
type SourceDocument struct {
	FilePath   string  `json:"file_path"`
	Similarity float64 `json:"similarity"`
	Preview    string  `json:"preview"`
	FileType   string  `json:"file_type,omitempty"`
}

// QueryResult is the backend's answer to a question.
type QueryResult struct {
	Answer  string           `json:"answer"`
	Sources []SourceDocument `json:"sources"`
	RepoURL string           `json:"repo_url"`
	LLMUsed string           `json:"llm_used"`
}

// DeleteResult reports the outcome of a repository deletion.
type DeleteResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RepoURL string `json:"repo_url"`
}

// HealthStatus is the backend's health payload. Treated as opaque beyond
// the status field.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ModelsResult lists the language models the backend can answer with.
type ModelsResult struct {
	Models map[string]string `json:"models"`
}

// APIError is an application-level failure reported by the backend: a
// non-2xx response carrying a human-readable detail message.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return e.Detail
}

// Client talks to the remote assistant backend over HTTP. Calls are not
// retried and carry no client-side timeout; cancellation is the caller's
// context.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		logger:  logger,
	}
}

// Health checks that the backend is reachable and running.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models returns the language models available for querying.
func (c *Client) Models(ctx context.Context) (*ModelsResult, error) {
	var out ModelsResult
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ingest triggers server-side ingestion of a repository.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	var out IngestResult
	if err := c.do(ctx, http.MethodPost, "/api/ingest", req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query asks a question about an ingested repository.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	var out QueryResult
	if err := c.do(ctx, http.MethodPost, "/api/query", req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRepository removes a repository's indexed data from the backend.
func (c *Client) DeleteRepository(ctx context.Context, repoURL string) (*DeleteResult, error) {
	var out DeleteResult
	query := url.Values{"repo_url": []string{repoURL}}
	if err := c.do(ctx, http.MethodDelete, "/api/repository", nil, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one request/response cycle. Non-2xx responses become an
// *APIError whose detail is taken from the backend's structured error
// field when present, else a generic message.
func (c *Client) do(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("assistant API unreachable: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close assistant response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read assistant response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(data, resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode assistant response: %w", err)
	}
	return nil
}

func errorDetail(body []byte, status int) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fmt.Sprintf("assistant API request failed with status %d", status)
}
