// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/poster-to-markdown/internal/prompt"
	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

func testClient(ts *httptest.Server, key string) *OpenAIClient {
	return NewOpenAIClient(types.AIConfig{
		HTTPConfig: types.HTTPConfig{UserAgent: "test/0.1"},
		Model:      "gpt-test",
		APIKey:     key,
		BaseURL:    ts.URL,
	}, ts.Client())
}

func testPrompt() types.PromptContext {
	return types.PromptContext{ImageBase64: "aW1n", MIME: "image/png", Instruction: "Summarize the poster."}
}

func completionJSON(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
	})
	return string(b)
}

func TestSummarizeSuccess(t *testing.T) {
	var seenAuth, seenUA, seenPath string
	var seen chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		seenUA = r.Header.Get("User-Agent")
		seenPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON("# Poster Title\n\n## Authors\n- A"))
	}))
	defer ts.Close()

	out, err := testClient(ts, "sk-123").Summarize(context.Background(), testPrompt())
	require.NoError(t, err)
	assert.Equal(t, "# Poster Title\n\n## Authors\n- A", out)

	assert.Equal(t, "/v1/chat/completions", seenPath)
	assert.Equal(t, "Bearer sk-123", seenAuth)
	assert.Equal(t, "test/0.1", seenUA)
	assert.Equal(t, "gpt-test", seen.Model)
	require.Len(t, seen.Messages, 1)
	assert.Equal(t, "user", seen.Messages[0].Role)

	parts, ok := seen.Messages[0].Content.([]any)
	require.True(t, ok, "content should be a part list")
	require.Len(t, parts, 2)
	text := parts[0].(map[string]any)
	assert.Equal(t, "text", text["type"])
	assert.Equal(t, "Summarize the poster.", text["text"])
	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	assert.Equal(t, "data:image/png;base64,aW1n", img["image_url"].(map[string]any)["url"])
}

func TestSummarizeMissingKey(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	_, err := testClient(ts, "  ").Summarize(context.Background(), testPrompt())
	var ae *AuthenticationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no request should be sent without a key")
}

func TestSummarizeErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 is authentication",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			check: func(t *testing.T, err error) {
				var ae *AuthenticationError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, http.StatusUnauthorized, ae.StatusCode)
				assert.Equal(t, "Incorrect API key provided", ae.Message)
			},
		},
		{
			name:   "403 is authentication",
			status: http.StatusForbidden,
			body:   `forbidden`,
			check: func(t *testing.T, err error) {
				var ae *AuthenticationError
				require.ErrorAs(t, err, &ae)
			},
		},
		{
			name:   "429 is rate limit",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "7"},
			body:   `{"error":{"message":"Rate limit reached"}}`,
			check: func(t *testing.T, err error) {
				var rl *RateLimitError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, 7*time.Second, rl.RetryAfter)
				assert.Equal(t, "Rate limit reached", rl.Message)
			},
		},
		{
			name:   "500 is api error",
			status: http.StatusInternalServerError,
			body:   `upstream exploded`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
				assert.Contains(t, apiErr.Error(), "upstream exploded")
			},
		},
		{
			name:   "empty choices is api error",
			status: http.StatusOK,
			body:   `{"choices":[]}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Contains(t, apiErr.Error(), "empty completion")
			},
		},
		{
			name:   "malformed json is api error",
			status: http.StatusOK,
			body:   `{not json`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer ts.Close()

			_, err := testClient(ts, "sk-123").Summarize(context.Background(), testPrompt())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSummarizeTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := testClient(ts, "sk-123")
	ts.Close()

	_, err := c.Summarize(context.Background(), testPrompt())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.StatusCode)
	assert.NotNil(t, apiErr.Unwrap())
}

func TestSummarizeEmptyPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer ts.Close()

	_, err := testClient(ts, "sk-123").Summarize(context.Background(), types.PromptContext{Instruction: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestSuggestName(t *testing.T) {
	var seen chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		fmt.Fprint(w, completionJSON("  soft_gripper_tactile_sensing \n"))
	}))
	defer ts.Close()

	name, err := testClient(ts, "sk-123").SuggestName(context.Background(), "# Soft Gripper")
	require.NoError(t, err)
	assert.Equal(t, "soft_gripper_tactile_sensing", name)

	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "# Soft Gripper", seen.Messages[0].Content)
	assert.Equal(t, prompt.FilenamePrompt, seen.Messages[1].Content)
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	c := NewOpenAIClient(types.AIConfig{}, nil)
	assert.Equal(t, defaultModel, c.Model())
	assert.Equal(t, openAIBaseURL, c.baseURL)
	assert.Equal(t, defaultTimeout, c.client.Timeout)
	assert.NotContains(t, c.String(), "sk-")
}
