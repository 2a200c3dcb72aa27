// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package completion sends poster images and instructions to a
// vision-capable completion API and returns the generated markdown.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/pdiddy/poster-to-markdown/internal/prompt"
	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// Client produces markdown from a poster payload. Implementations surface
// failures as *APIError, *AuthenticationError, or *RateLimitError and do
// not retry.
type Client interface {
	// Summarize returns the markdown summary for one poster.
	Summarize(ctx context.Context, pc types.PromptContext) (string, error)

	// SuggestName returns a snake_case filename (without extension) for a summary.
	SuggestName(ctx context.Context, summary string) (string, error)
}

var _ Client = (*OpenAIClient)(nil)

// openAIBaseURL is the default API root. Package-level var for test substitution.
var openAIBaseURL = "https://api.openai.com"

const (
	endpointChatCompletions = "v1/chat/completions"
	defaultModel            = "gpt-4.1-mini"
	defaultTimeout          = 120 * time.Second
	errorSnippetLimit       = 400
)

// OpenAIClient calls the OpenAI Chat Completions API with the image sent
// as a data URL.
type OpenAIClient struct {
	cfg     types.AIConfig
	baseURL string
	client  *http.Client
}

// NewOpenAIClient builds a client from cfg. A nil httpClient gets one with
// cfg.Timeout (default 120s). A missing key is not rejected here; every call
// returns *AuthenticationError instead.
func NewOpenAIClient(cfg types.AIConfig, httpClient *http.Client) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = openAIBaseURL
	}
	return &OpenAIClient{cfg: cfg, baseURL: base, client: httpClient}
}

// Model returns the model identifier requests are sent with.
func (c *OpenAIClient) Model() string { return c.cfg.Model }

// Summarize sends the instruction and image and returns the model's markdown.
func (c *OpenAIClient) Summarize(ctx context.Context, pc types.PromptContext) (string, error) {
	if pc.ImageBase64 == "" {
		return "", &APIError{Message: "image payload is empty"}
	}
	mime := pc.MIME
	if mime == "" {
		mime = "image/jpeg"
	}

	instruction := pc.Instruction
	img := &imageURL{URL: "data:" + mime + ";base64," + pc.ImageBase64}
	if c.cfg.Detail != "" {
		detail := c.cfg.Detail
		img.Detail = &detail
	}

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []messagePart{
				{Type: "text", Text: &instruction},
				{Type: "image_url", ImageURL: img},
			},
		}},
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxTokens = &c.cfg.MaxTokens
	}
	return c.complete(ctx, req)
}

// SuggestName asks the model for a filename based on the summary text.
func (c *OpenAIClient) SuggestName(ctx context.Context, summary string) (string, error) {
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "assistant", Content: summary},
			{Role: "user", Content: prompt.FilenamePrompt},
		},
	}
	name, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func (c *OpenAIClient) complete(ctx context.Context, body chatRequest) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", &AuthenticationError{Message: "OPENAI_API_KEY is not set"}
	}

	u, err := url.JoinPath(c.baseURL, endpointChatCompletions)
	if err != nil {
		return "", &APIError{Message: "building request URL", Err: err}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &APIError{Message: "marshaling request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", &APIError{Message: "creating request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &APIError{Message: "request cancelled", Err: ctx.Err()}
		}
		return "", &APIError{Message: "sending request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}
	if err := classifyStatus(resp, respBody); err != nil {
		return "", err
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", &APIError{Message: "decoding response", Err: err}
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", &APIError{Message: "empty completion"}
	}

	entry := log.WithFields(log.Fields{
		"model":    c.cfg.Model,
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if cr.Usage != nil {
		entry = entry.WithFields(log.Fields{
			"prompt_tokens":     cr.Usage.PromptTokens,
			"completion_tokens": cr.Usage.CompletionTokens,
		})
	}
	entry.Debug("completion received")

	return cr.Choices[0].Message.Content, nil
}

// classifyStatus maps a non-2xx response onto the error taxonomy.
func classifyStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	msg := errorMessage(body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthenticationError{StatusCode: resp.StatusCode, Message: msg}
	case http.StatusTooManyRequests:
		return &RateLimitError{Message: msg, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	default:
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
}

// errorMessage extracts the provider's error message, falling back to a
// truncated raw body.
func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > errorSnippetLimit {
		s = s[:errorSnippetLimit] + "..."
	}
	if s == "" {
		s = "no response body"
	}
	return s
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// OpenAI Chat Completions request/response types.

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []messagePart
}

type messagePart struct {
	Type     string    `json:"type"`
	Text     *string   `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string  `json:"url"`
	Detail *string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// String renders the client for debug logs without exposing the key.
func (c *OpenAIClient) String() string {
	return fmt.Sprintf("openai(%s @ %s)", c.cfg.Model, c.baseURL)
}
