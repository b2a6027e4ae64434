// Package openai is an embeddings client for OpenAI-compatible APIs.
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

	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/internal/backoff"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	maxRetries int
}

var _ embedding.Embedder = (*Client)(nil)

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
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

	dimension := cfg.Dimension
	if dimension == 0 {
		d, ok := modelDimensions[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("openai: unknown dimension for model %s", cfg.Model)
		}

		dimension = d
	}

	return &Client{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  dimension,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *Client) Name() string   { return "openai:" + c.model }
func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{
		Model: c.model,
		Input: texts,
	}

	if strings.HasPrefix(c.model, "text-embedding-3") {
		req.Dimensions = c.dimension
	}

	body, err := json.Marshal(&req)
	if err != nil {
		return nil, err
	}

	payload, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", embedding.ErrService, err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", embedding.ErrService, resp.Error.Message)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", embedding.ErrContract, len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) || vectors[data.Index] != nil {
			return nil, fmt.Errorf("%w: unexpected embedding index %d", embedding.ErrContract, data.Index)
		}

		vectors[data.Index] = data.Embedding
	}

	return vectors, nil
}

// post sends the request, retrying transport errors, 429 and 5xx replies.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	url := c.baseURL + "/embeddings"

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
				return nil, fmt.Errorf("%w: %w", embedding.ErrService, ctx.Err())
			}

			lastErr = err
			if attempt == c.maxRetries {
				break
			}

			if err := backoff.Sleep(ctx, backoff.Delay(attempt)); err != nil {
				return nil, fmt.Errorf("%w: %w", embedding.ErrService, err)
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
				return nil, fmt.Errorf("%w: %w", embedding.ErrService, err)
			}

			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %s: %s", embedding.ErrService, resp.Status, strings.TrimSpace(string(payload)))
		}

		if err != nil {
			return nil, fmt.Errorf("%w: read response: %w", embedding.ErrService, err)
		}

		return payload, nil
	}

	return nil, fmt.Errorf("%w: giving up after %d attempts: %w", embedding.ErrService, c.maxRetries+1, lastErr)
}
