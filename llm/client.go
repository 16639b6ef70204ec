// Package llm wraps the OpenAI-compatible chat, vision, and transcription
// APIs behind a single client with rate limiting, retries, and per-call
// timeouts. Recoverable provider failures surface as *SoftError so callers
// can fail one topic without aborting a whole generation run.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"smartnotes/core"
	"smartnotes/logging"
)

// TextGenerator produces a chat completion for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int64) (string, error)
}

// VisionGenerator produces a chat completion for a prompt plus one image.
type VisionGenerator interface {
	GenerateWithImage(ctx context.Context, prompt, imageDataURL string, maxTokens int64) (string, error)
}

// Transcriber converts an audio or video file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (string, error)
}

// chatAPI is the slice of the go-openai client this package uses.
// Tests substitute a stub.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Client talks to an OpenAI-compatible endpoint. It implements
// TextGenerator, VisionGenerator, and Transcriber.
//
// Example:
//
//	client := llm.NewClient(cfg, logger)
//	reply, err := client.Generate(ctx, prompt, cfg.NoteResponseTokens)
type Client struct {
	api     chatAPI
	cfg     *core.Config
	limiter *RateLimiter
	logger  *logging.Logger
}

// NewClient creates a Client from the application configuration.
// BaseLLMURL, when set, overrides the default api.openai.com endpoint.
func NewClient(cfg *core.Config, logger *logging.Logger) *Client {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.BaseLLMURL != "" {
		clientConfig.BaseURL = cfg.BaseLLMURL
	}

	return &Client{
		api:     openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
		logger:  logger.Named("llm"),
	}
}

// newClientWithAPI builds a Client over a stub API. Test constructor.
func newClientWithAPI(api chatAPI, cfg *core.Config, logger *logging.Logger) *Client {
	return &Client{
		api:     api,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
		logger:  logger.Named("llm"),
	}
}

// Generate sends a single-turn chat completion request using the note model.
// Quota rejections and transient failures are retried once after RetryDelay;
// persistent failures return a *SoftError.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.NoteModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: int(maxTokens),
	}
	return c.complete(ctx, "generate", req)
}

// GenerateWithImage sends a prompt plus one base64 data-URL image to the
// vision model.
func (c *Client) GenerateWithImage(ctx context.Context, prompt, imageDataURL string, maxTokens int64) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageDataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens: int(maxTokens),
	}
	return c.complete(ctx, "generate_with_image", req)
}

// Transcribe converts an audio or video file to text with the
// transcription model.
func (c *Client) Transcribe(ctx context.Context, filePath string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.transcribeTimeout())
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateTranscription(callCtx, openai.AudioRequest{
		Model:    c.cfg.TranscribeModel,
		FilePath: filePath,
	})
	if err != nil {
		c.logger.Warnw("transcription failed", "file", filePath, "error", err.Error())
		return "", NewSoftError("transcribe", err)
	}

	c.logger.Debugw("transcription complete",
		"file", filePath,
		"chars", len(resp.Text),
		"duration", time.Since(start).Round(time.Millisecond).String())
	return resp.Text, nil
}

// complete executes a chat request with rate limiting, timeout, and a
// bounded retry loop.
func (c *Client) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	var lastErr error

	attempts := c.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
			c.logger.Debugw("retrying request", "op", op, "attempt", attempt+1)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait: %w", err)
		}

		content, err := c.completeOnce(ctx, req)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		if isQuotaError(err) {
			c.limiter.RecordQuotaError(0)
			c.logger.Warnw("provider quota hit", "op", op, "model", req.Model)
		} else {
			c.logger.Warnw("request failed", "op", op, "model", req.Model, "error", err.Error())
		}
	}

	return "", NewSoftError(op, lastErr)
}

// completeOnce issues exactly one chat completion call under AITimeout.
func (c *Client) completeOnce(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.AITimeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// transcribeTimeout gives transcription more headroom than chat calls,
// since large audio uploads dominate the latency.
func (c *Client) transcribeTimeout() time.Duration {
	t := 3 * c.cfg.AITimeout
	if t < time.Minute {
		t = time.Minute
	}
	return t
}
