// Package llm provides the client for the OpenAI-compatible chat endpoint
// serving the analysis pipeline, plus tracing and caching wrappers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/peruse-ai/peruse/pkg/httpclient"
)

// Caller is the minimal surface consumers depend on.
type Caller interface {
	Call(ctx context.Context, prompt string, temperature float64) (string, error)
}

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Client talks to an OpenAI-compatible /v1/chat/completions endpoint such
// as a llama.cpp server.
type Client struct {
	baseURL string
	model   string
	token   string
	http    *httpclient.Client
}

type ClientOption func(*Client)

// WithModel overrides the model name sent in requests.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithToken sets the bearer token sent with each request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the retrying transport.
func WithHTTPClient(hc *httpclient.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   "gpt-3.5-turbo",
		http:    httpclient.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	CachePrompt bool          `json:"cache_prompt"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Call sends one user message and returns the assistant content. A 400
// response yields ErrRequestTooLarge; other non-2xx statuses yield a
// StatusError. Empty content is an error. Any <think> block is stripped
// before the content is returned.
func (c *Client) Call(ctx context.Context, prompt string, temperature float64) (string, error) {
	payload := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		CachePrompt: true,
	}
	var resp chatResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrLLM)
	}
	content := thinkBlockRe.ReplaceAllString(resp.Choices[0].Message.Content, "")
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty response", ErrLLM)
	}
	return content, nil
}

type embeddingsRequest struct {
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
	Input          []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embeddings returns one embedding vector per input text.
func (c *Client) Embeddings(ctx context.Context, texts []string) ([][]float64, error) {
	payload := embeddingsRequest{
		Model:          "text-embedding-3-small",
		EncodingFormat: "float",
		Input:          texts,
	}
	var resp embeddingsResponse
	if err := c.postJSON(ctx, "/v1/embeddings", payload, &resp); err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, d.Embedding)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrLLM, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrLLM, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if resp == nil {
		return fmt.Errorf("%w: %v", ErrLLM, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusBadRequest {
		return ErrRequestTooLarge
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if readErr != nil {
		return fmt.Errorf("%w: read response: %v", ErrLLM, readErr)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrLLM, err)
	}
	return nil
}
