// Package openai is a chat completion client for OpenAI-compatible APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flarexio/docrag/completion"
	"github.com/flarexio/docrag/internal/backoff"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
}

var _ completion.Completer = (*Client)(nil)

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []completion.Message `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Client{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *Client) Name() string { return "openai:" + c.model }

func (c *Client) Complete(ctx context.Context, messages []completion.Message, opts completion.Options) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	body, err := json.Marshal(&req)
	if err != nil {
		return "", err
	}

	payload, err := c.post(ctx, body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", completion.ErrService, err)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", completion.ErrService, resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", completion.ErrService)
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	url := c.baseURL + "/chat/completions"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", completion.ErrService, ctx.Err())
			}

			lastErr = err
			if attempt == c.maxRetries {
				break
			}

			if err := backoff.Sleep(ctx, backoff.Delay(attempt)); err != nil {
				return nil, fmt.Errorf("%w: %w", completion.ErrService, err)
			}

			continue
		}

		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		if backoff.Retryable(resp.StatusCode) {
			lastErr = fmt.Errorf("status %s", resp.Status)
			if attempt == c.maxRetries {
				break
			}

			if err := backoff.Sleep(ctx, backoff.RetryAfter(resp, attempt)); err != nil {
				return nil, fmt.Errorf("%w: %w", completion.ErrService, err)
			}

			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %s: %s", completion.ErrService, resp.Status, strings.TrimSpace(string(payload)))
		}

		if err != nil {
			return nil, fmt.Errorf("%w: read response: %w", completion.ErrService, err)
		}

		return payload, nil
	}

	return nil, fmt.Errorf("%w: giving up after %d attempts: %w", completion.ErrService, c.maxRetries+1, lastErr)
}
