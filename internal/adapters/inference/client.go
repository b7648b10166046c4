// Package inference implements the HTTP client for the remote inference
// provider, including failure classification and bounded retry of transient
// errors.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/convolens/convolens/internal/core"
	"github.com/convolens/convolens/internal/domain/model"
	"github.com/convolens/convolens/internal/observability/errlog"
)

// maxErrorBodyBytes caps how much of an error response body is kept for the
// error message.
const maxErrorBodyBytes = 1024

// Client calls an OpenAI-compatible inference endpoint. It implements
// core.InferenceProvider.
type Client struct {
	baseURL string
	apiKey  string
	model   string

	http   *http.Client
	logger *slog.Logger
	errLog *errlog.Log
	retry  RetryPolicy
}

var _ core.InferenceProvider = (*Client)(nil)

// ClientOptions configures the inference client.
type ClientOptions struct {
	BaseURL string
	APIKey  string
	Model   string

	HTTPClient *http.Client  // defaults to a 30s-timeout client
	Logger     *slog.Logger  // optional
	ErrorLog   *errlog.Log   // optional durable log for unclassified failures
	Retry      RetryPolicy   // zero value uses DefaultRetryPolicy
}

// NewClient builds an inference client from options.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("inference base URL is required")
	}
	if opts.Model == "" {
		return nil, errors.New("inference model is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		http:    hc,
		logger:  opts.Logger,
		errLog:  opts.ErrorLog,
		retry:   opts.Retry.sanitized(),
	}, nil
}

type taskRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Task  string `json:"task"`
}

type classifyResponse struct {
	Labels []model.Label `json:"labels"`
}

type regressResponse struct {
	Score *float64 `json:"score"`
}

type chatRequest struct {
	Model    string             `json:"model"`
	Messages []core.ChatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify runs a labeling sub-task against the provider.
func (c *Client) Classify(ctx context.Context, text string, kind model.ClassifyKind) ([]model.Label, error) {
	var labels []model.Label
	op := "classify_" + string(kind)
	err := c.do(ctx, op, func(ctx context.Context) error {
		var resp classifyResponse
		if err := c.post(ctx, "/v1/classify", taskRequest{
			Model: c.model,
			Input: text,
			Task:  string(kind),
		}, &resp); err != nil {
			return err
		}
		if resp.Labels == nil {
			return fmt.Errorf("%w: missing labels", ErrMalformedResponse)
		}
		labels = resp.Labels
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// Regress runs an emotion intensity regression against the provider.
func (c *Client) Regress(ctx context.Context, text string, kind model.EmotionKind) (float64, error) {
	var score float64
	op := "regress_" + string(kind)
	err := c.do(ctx, op, func(ctx context.Context) error {
		var resp regressResponse
		if err := c.post(ctx, "/v1/regress", taskRequest{
			Model: c.model,
			Input: text,
			Task:  string(kind),
		}, &resp); err != nil {
			return err
		}
		if resp.Score == nil {
			return fmt.Errorf("%w: missing score", ErrMalformedResponse)
		}
		score = *resp.Score
		return nil
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}

// Complete services a chat completion and returns the structured JSON payload
// of the first choice. Responses carrying tool calls return the first tool
// call's arguments; plain responses must have JSON content.
func (c *Client) Complete(ctx context.Context, messages []core.ChatMessage) (json.RawMessage, error) {
	var payload json.RawMessage
	err := c.do(ctx, "complete", func(ctx context.Context) error {
		var resp chatResponse
		if err := c.post(ctx, "/v1/chat/completions", chatRequest{
			Model:    c.model,
			Messages: messages,
		}, &resp); err != nil {
			return err
		}
		raw, err := extractChatPayload(resp)
		if err != nil {
			return err
		}
		payload = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func extractChatPayload(resp chatResponse) (json.RawMessage, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	msg := resp.Choices[0].Message

	content := msg.Content
	if len(msg.ToolCalls) > 0 {
		content = msg.ToolCalls[0].Function.Arguments
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty completion payload", ErrMalformedResponse)
	}
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("%w: completion payload is not JSON", ErrMalformedResponse)
	}
	return json.RawMessage(content), nil
}

// post sends a JSON request and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
