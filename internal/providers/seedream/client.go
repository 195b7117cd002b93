package seedream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("seedream: api key is required")

// Options configures the Seedream task client.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the Seedream generation-task API. Seedream runs
// asynchronously: a task is created, then polled until it reports a
// terminal status. Source images must be fetchable URLs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

// ImageURL wraps a fetchable source image reference.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentItem is one element of a task's content list.
type ContentItem struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TaskRequest creates a generation task. Size uses Seedream's pixel
// vocabulary, e.g. "2048x2048".
type TaskRequest struct {
	Model     string        `json:"model"`
	Content   []ContentItem `json:"content"`
	Size      string        `json:"size,omitempty"`
	Watermark bool          `json:"watermark"`
}

// TaskStatus is the poll reply. Status is one of waiting, queuing,
// generating, success, fail.
type TaskStatus struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content struct {
		ImageURL string `json:"image_url"`
	} `json:"content"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type createResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://ark.ap-southeast.volces.com/api/v3"
	}
	model := opts.Model
	if model == "" {
		model = "seedream-4-5"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		model:      model,
		apiKey:     strings.TrimSpace(opts.APIKey),
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// CreateTask submits a generation task and returns its id.
func (c *Client) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	if c == nil {
		return "", errors.New("seedream client not configured")
	}
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if req.Model == "" {
		req.Model = c.model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	endpoint := c.baseURL + "/contents/generations/tasks"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("seedream: http %d", resp.StatusCode)
		}
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest || out.Error != nil {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("seedream error: %s (%s)", out.Error.Message, out.Error.Code)
		}
		return "", fmt.Errorf("seedream: http %d", resp.StatusCode)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("seedream: missing task id")
	}
	return out.ID, nil
}

// GetTask polls a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	if c == nil {
		return nil, errors.New("seedream client not configured")
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New("seedream: task id required")
	}
	endpoint := c.baseURL + "/contents/generations/tasks/" + taskID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("seedream: http %d", resp.StatusCode)
		}
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Error.Message != "" {
			return nil, fmt.Errorf("seedream error: %s (%s)", out.Error.Message, out.Error.Code)
		}
		return nil, fmt.Errorf("seedream: http %d", resp.StatusCode)
	}
	return &out, nil
}
