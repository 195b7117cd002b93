package qwen

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
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// Options configures the DashScope Qwen image-edit client.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Watermark  bool
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to DashScope's asynchronous task API: the edit request
// is submitted with the async header, then the returned task id is
// polled until terminal. The source image must be a fetchable URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	watermark  bool
}

// EditRequest captures one image-edit submission.
type EditRequest struct {
	ImageURL       string
	Instruction    string
	NegativePrompt string
}

// TaskStatus is the poll reply. DashScope reports PENDING, RUNNING,
// SUCCEEDED, FAILED (plus CANCELED, treated as failed).
type TaskStatus struct {
	Status  string
	URL     string
	Code    string
	Message string
}

type editRequestBody struct {
	Model string `json:"model"`
	Input struct {
		Messages []struct {
			Role    string              `json:"role"`
			Content []map[string]string `json:"content"`
		} `json:"messages"`
	} `json:"input"`
	Parameters struct {
		NegativePrompt string `json:"negative_prompt,omitempty"`
		Watermark      bool   `json:"watermark"`
	} `json:"parameters"`
}

type submitResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL     string `json:"url"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"results"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := opts.Model
	if model == "" {
		model = "qwen-image-edit"
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
		watermark:  opts.Watermark,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// CreateTask submits an asynchronous edit and returns the task id.
func (c *Client) CreateTask(ctx context.Context, req EditRequest) (string, error) {
	if c == nil {
		return "", errors.New("qwen client not configured")
	}
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL == "" {
		return "", errors.New("qwen: image url required")
	}

	var payload editRequestBody
	payload.Model = c.model
	msg := struct {
		Role    string              `json:"role"`
		Content []map[string]string `json:"content"`
	}{
		Role: "user",
		Content: []map[string]string{
			{"image": imageURL},
			{"text": req.Instruction},
		},
	}
	payload.Input.Messages = append(payload.Input.Messages, msg)
	payload.Parameters.Watermark = c.watermark
	if negative := strings.TrimSpace(req.NegativePrompt); negative != "" {
		payload.Parameters.NegativePrompt = negative
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("qwen: http %d", resp.StatusCode)
		}
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Message != "" {
			return "", fmt.Errorf("qwen error: %s (%s)", out.Message, out.Code)
		}
		return "", fmt.Errorf("qwen: http %d", resp.StatusCode)
	}
	if strings.TrimSpace(out.Output.TaskID) == "" {
		return "", errors.New("qwen: missing task id")
	}
	return out.Output.TaskID, nil
}

// GetTask polls a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	if c == nil {
		return nil, errors.New("qwen client not configured")
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New("qwen: task id required")
	}
	endpoint := c.baseURL + "/tasks/" + taskID
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

	var out taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("qwen: http %d", resp.StatusCode)
		}
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Message != "" {
			return nil, fmt.Errorf("qwen error: %s (%s)", out.Message, out.Code)
		}
		return nil, fmt.Errorf("qwen: http %d", resp.StatusCode)
	}

	status := &TaskStatus{Status: out.Output.TaskStatus}
	if len(out.Output.Results) > 0 {
		status.URL = out.Output.Results[0].URL
		status.Code = out.Output.Results[0].Code
		status.Message = out.Output.Results[0].Message
	}
	if status.Message == "" {
		status.Code = out.Output.Code
		status.Message = out.Output.Message
	}
	return status, nil
}
