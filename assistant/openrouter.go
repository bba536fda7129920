package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/httpclient"
	"github.com/teranos/jawala/logger"
)

const (
	// DefaultModel is the fallback model when none is specified.
	// Should match the default in am/defaults.go.
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	maxResponseBytes = 1 << 20
)

// ClientConfig holds chat client configuration
type ClientConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float64      // nil = use default (0.2)
	MaxTokens   *int          // nil = use default (1000)
	Timeout     time.Duration // 0 = 60s
	Retries     int           // retries on transient failures, 0 = default 2
	Logger      *zap.SugaredLogger
	HTTPClient  *httpclient.SaferClient // nil = SSRF-safer client blocking private IPs
}

// Client talks to an OpenAI-compatible chat completions endpoint
type Client struct {
	cfg        ClientConfig
	http       *httpclient.SaferClient
	logger     *zap.SugaredLogger
	retryDelay time.Duration
}

// NewClient creates a chat client with defaults applied
func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Temperature == nil {
		defaultTemp := 0.2
		cfg.Temperature = &defaultTemp
	}
	if cfg.MaxTokens == nil {
		defaultTokens := 1000
		cfg.MaxTokens = &defaultTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 2
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpclient.New(cfg.Timeout, httpclient.Options{BlockPrivateIP: true})
	}

	return &Client{cfg: cfg, http: client, logger: log, retryDelay: time.Second}
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.cfg.APIKey != ""
}

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// Usage is token usage reported by the endpoint
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a system and user prompt and returns the model's reply,
// asking for a JSON object. Transient failures are retried.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.IsConfigured() {
		return "", errors.WithHint(
			errors.Wrap(errors.ErrInvalidRequest, "assistant API key not configured"),
			"Set assistant.api_key in am.toml or OPENROUTER_API_KEY.",
		)
	}

	req := completionRequest{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    *c.cfg.Temperature,
		MaxTokens:      *c.cfg.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var resp *completionResponse
	var err error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryDelay
			c.logger.Debugw("Retrying chat completion", logger.FieldAttempt, attempt, logger.FieldBackoff, delay.String())
			select {
			case <-ctx.Done():
				return "", errors.Mark(errors.Wrap(ctx.Err(), "chat completion"), errors.ErrTimeout)
			case <-time.After(delay):
			}
		}

		resp, err = c.createCompletion(ctx, req)
		if err == nil {
			break
		}
		c.logger.Warnw("Chat completion failed",
			logger.FieldAttempt, attempt+1,
			logger.FieldError, err,
			"model", c.cfg.Model,
		)
		if !errors.Is(err, errors.ErrServiceUnavailable) {
			return "", err
		}
	}
	if err != nil {
		return "", errors.Wrapf(err, "chat completion after %d retries", c.cfg.Retries)
	}

	if len(resp.Choices) == 0 {
		return "", errors.Mark(errors.New("no choices in chat completion"), errors.ErrServiceUnavailable)
	}
	c.logger.Debugw("Chat completion",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) createCompletion(ctx context.Context, req completionRequest) (*completionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("X-Title", "jawala")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to send request"), errors.ErrTimeout)
		}
		return nil, errors.Mark(errors.Wrap(err, "failed to send request"), errors.ErrServiceUnavailable)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response"), errors.ErrServiceUnavailable)
	}

	var resp completionResponse
	decodeErr := json.Unmarshal(raw, &resp)

	if httpResp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && resp.Error != nil {
			msg = resp.Error.Message
		}
		err := errors.Newf("chat completion failed with status %d: %s", httpResp.StatusCode, msg)
		switch {
		case httpResp.StatusCode == http.StatusUnauthorized:
			return nil, errors.Mark(err, errors.ErrUnauthorized)
		case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
			return nil, errors.Mark(err, errors.ErrServiceUnavailable)
		default:
			return nil, errors.Mark(err, errors.ErrInvalidRequest)
		}
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "failed to unmarshal response")
	}
	return &resp, nil
}
