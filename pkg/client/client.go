// Package client provides a Go SDK for the software-ai HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// ErrNotFound is returned when the API answers 404.
var ErrNotFound = errors.New("not found")

// Client calls the software-ai HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3548"
	APIKey     string       // optional; sent as X-API-Key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:3548").
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("api %s %s: %w", method, path, ErrNotFound)
		}
		if errBody.Error != "" {
			return fmt.Errorf("api %s %s: %s", method, path, errBody.Error)
		}
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// Submit queues a task. An empty mode uses the server default. It returns once
// the task has been admitted.
func (c *Client) Submit(ctx context.Context, text string, mode models.Mode) (*models.SubmitTaskResponse, error) {
	var out models.SubmitTaskResponse
	err := c.doJSON(ctx, http.MethodPost, "/tasks", models.SubmitTaskRequest{Text: text, Mode: string(mode)}, &out)
	return &out, err
}

// Task returns a task's status. With wait set it blocks until the outcome is recorded.
func (c *Client) Task(ctx context.Context, taskID string, wait bool) (*models.TaskStatus, error) {
	path := "/tasks/" + url.PathEscape(taskID)
	if wait {
		path += "?wait=1"
	}
	var out models.TaskStatus
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return &out, err
}

// Batch runs tasks together and returns their results in submission order.
func (c *Client) Batch(ctx context.Context, tasks []models.SubmitTaskRequest) ([]models.TaskResult, error) {
	var out models.BatchResponse
	err := c.doJSON(ctx, http.MethodPost, "/tasks/batch", models.BatchRequest{Tasks: tasks}, &out)
	return out.Results, err
}

// Recall returns the remembered outcome of a task and the tier it came from.
func (c *Client) Recall(ctx context.Context, taskID string) (*models.RecallResponse, error) {
	var out models.RecallResponse
	err := c.doJSON(ctx, http.MethodGet, "/memory/"+url.PathEscape(taskID), nil, &out)
	return &out, err
}

// Promote copies a task's short-term outcome to long-term memory. promoted is
// false when the task is in neither tier.
func (c *Client) Promote(ctx context.Context, taskID string) (promoted bool, err error) {
	var out models.PromoteResponse
	err = c.doJSON(ctx, http.MethodPost, "/memory/"+url.PathEscape(taskID)+"/promote", nil, &out)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return out.Promoted, err
}

// QueryOptions filters Query. Zero values are ignored.
type QueryOptions struct {
	Mode  models.Mode
	Since time.Time
	Until time.Time
	Limit int
}

// Query lists long-term records.
func (c *Client) Query(ctx context.Context, q QueryOptions) ([]models.MemoryRecord, error) {
	v := url.Values{}
	if q.Mode != "" {
		v.Set("mode", string(q.Mode))
	}
	if !q.Since.IsZero() {
		v.Set("since", q.Since.Format(time.RFC3339Nano))
	}
	if !q.Until.IsZero() {
		v.Set("until", q.Until.Format(time.RFC3339Nano))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/memory"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out []models.MemoryRecord
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Sweep asks the server to drop expired short-term entries now.
func (c *Client) Sweep(ctx context.Context) (removed int, err error) {
	var out models.SweepResponse
	err = c.doJSON(ctx, http.MethodPost, "/memory/sweep", nil, &out)
	return out.Removed, err
}
