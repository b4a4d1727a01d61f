// Package openai implements gencache.Generator for OpenAI-compatible
// chat-completions APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	gencache "github.com/eugener/gencache/internal"
	"github.com/eugener/gencache/internal/provider"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	providerName   = "openai"
)

var _ gencache.Generator = (*Client)(nil)

// Client is an OpenAI-compatible generator.
type Client struct {
	name    string
	baseURL string
	model   string
	http    *http.Client
}

// New creates a Client. name is the instance identifier; baseURL and model
// fall back to the public API and a small chat model when empty. The
// provided client should have auth configured via its transport chain.
func New(name, baseURL, model string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    client,
	}
}

// Name returns the instance identifier.
func (c *Client) Name() string { return c.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []message `json:"messages"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	Seed             *int      `json:"seed,omitempty"`
	Stop             []string  `json:"stop,omitempty"`
}

// buildRequest maps the string-typed generation config onto the wire request.
// Recognized keys: system, temperature, top_p, presence_penalty,
// frequency_penalty, max_tokens, seed, stop. Other keys still take part in the
// cache key but are not sent upstream.
func (c *Client) buildRequest(req *gencache.CompletionRequest) (*chatRequest, error) {
	out := &chatRequest{Model: c.model}
	if req.Model != "" {
		out.Model = req.Model
	}
	if sys := req.Config["system"]; sys != "" {
		out.Messages = append(out.Messages, message{Role: "system", Content: sys})
	}
	out.Messages = append(out.Messages, message{Role: "user", Content: req.Prompt})

	floats := map[string]**float64{
		"temperature":       &out.Temperature,
		"top_p":             &out.TopP,
		"presence_penalty":  &out.PresencePenalty,
		"frequency_penalty": &out.FrequencyPenalty,
	}
	for key, dst := range floats {
		raw, ok := req.Config[key]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("openai: config %s=%q: %w", key, raw, gencache.ErrBadRequest)
		}
		*dst = &v
	}

	ints := map[string]**int{
		"max_tokens": &out.MaxTokens,
		"seed":       &out.Seed,
	}
	for key, dst := range ints {
		raw, ok := req.Config[key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("openai: config %s=%q: %w", key, raw, gencache.ErrBadRequest)
		}
		*dst = &v
	}

	if stop := req.Config["stop"]; stop != "" {
		out.Stop = strings.Split(stop, "|")
	}
	return out, nil
}

// Complete sends a non-streaming chat completion request and returns the
// first choice's message content.
func (c *Client) Complete(ctx context.Context, req *gencache.CompletionRequest) (*gencache.Completion, error) {
	wire, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(c.name, resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("openai: decode response: invalid JSON: %w", gencache.ErrProviderError)
	}

	r := gjson.ParseBytes(respBody)
	out := &gencache.Completion{
		Content: r.Get("choices.0.message.content").String(),
		Model:   r.Get("model").String(),
	}
	if u := r.Get("usage"); u.Exists() && u.Type == gjson.JSON {
		out.Usage = &gencache.Usage{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:      int(u.Get("total_tokens").Int()),
		}
	}
	if strings.TrimSpace(out.Content) == "" {
		return nil, fmt.Errorf("openai: finish_reason=%q: %w",
			r.Get("choices.0.finish_reason").String(), gencache.ErrEmptyContent)
	}
	return out, nil
}

// HealthCheck verifies connectivity by listing models.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("openai: create health check request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return provider.ParseAPIError(c.name, resp)
	}
	return nil
}

// setHeaders applies content-type to an outbound request.
// Auth is handled by the transport chain.
func (c *Client) setHeaders(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
}
