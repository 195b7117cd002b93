package gemini

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
var ErrMissingAPIKey = errors.New("gemini: api key is required")

// Options configures the Gemini image client.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client performs HTTP calls to the Gemini generateContent API. Gemini
// executes synchronously: one call returns the image inline.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

// InlineData is a base64-encoded image part.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one element of a content payload: text or an inline image.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// Content groups the parts of one message.
type Content struct {
	Parts []Part `json:"parts"`
}

// ImageConfig carries Gemini's image-output vocabulary: a ratio string
// aspect and a resolution enum ("1K", "2K", "4K").
type ImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

// GenerationConfig selects output modalities and image parameters.
type GenerationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *ImageConfig `json:"imageConfig,omitempty"`
}

// Request is the generateContent payload.
type Request struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Response is the subset of the generateContent reply this service reads.
type Response struct {
	Candidates []struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
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

// Generate performs one synchronous generateContent call.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, errors.New("gemini client not configured")
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("gemini: http %d", resp.StatusCode)
		}
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest || out.Error != nil {
		if out.Error != nil && out.Error.Message != "" {
			return nil, fmt.Errorf("gemini error: %s (%s)", out.Error.Message, out.Error.Status)
		}
		return nil, fmt.Errorf("gemini: http %d", resp.StatusCode)
	}
	return &out, nil
}
