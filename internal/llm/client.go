package llm

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// TrimFunc shortens a prompt after a context-length error. It returns false
// when nothing more can be removed.
type TrimFunc func([]llms.MessageContent) ([]llms.MessageContent, bool)

// Client wraps a chat model with retry and error classification. It holds
// its own credentials through the model and is passed to every caller.
type Client struct {
	model       llms.Model
	modelName   string
	temperature float64
	jsonMode    bool
	retry       RetryPolicy
	trim        TrimFunc
	logger      *zap.Logger
	sleep       func(context.Context, time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithTemperature sets the sampling temperature (default 0).
func WithTemperature(t float64) Option { return func(c *Client) { c.temperature = t } }

// WithJSONMode asks the provider for a JSON object response.
func WithJSONMode(on bool) Option { return func(c *Client) { c.jsonMode = on } }

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option { return func(c *Client) { c.retry = p } }

// WithTrimmer replaces the context-length trimmer.
func WithTrimmer(f TrimFunc) Option { return func(c *Client) { c.trim = f } }

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// WithModelName sets the name reported in logs.
func WithModelName(name string) Option { return func(c *Client) { c.modelName = name } }

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = f }
}

// NewClient creates a client around model.
func NewClient(model llms.Model, opts ...Option) *Client {
	c := &Client{
		model:  model,
		retry:  DefaultRetryPolicy(),
		trim:   DropFirstExchange,
		logger: zap.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientForModel wraps an existing model with the settings of mc.
func NewClientForModel(model llms.Model, mc ModelConfig, retry RetryPolicy, logger *zap.Logger) *Client {
	return NewClient(model,
		WithModelName(mc.ModelName),
		WithTemperature(mc.Temperature),
		WithJSONMode(mc.JSONMode),
		WithRetryPolicy(retry),
		WithLogger(logger),
	)
}

// DropFirstExchange removes the message after the leading system message,
// which is the earliest exemplar in a multi-message prompt.
func DropFirstExchange(messages []llms.MessageContent) ([]llms.MessageContent, bool) {
	if len(messages) <= 2 {
		return messages, false
	}
	out := make([]llms.MessageContent, 0, len(messages)-1)
	out = append(out, messages[0])
	out = append(out, messages[2:]...)
	return out, true
}

// Completion is a successful call.
type Completion struct {
	Text     string
	Attempts int
	Trimmed  int // messages removed after context-length errors
}

// Complete sends messages and returns the first choice. Rate-limit and
// transient errors are retried with backoff; a context-length error trims
// the prompt and retries without consuming an attempt; anything else fails
// at once with a *CallError.
func (c *Client) Complete(ctx context.Context, messages []llms.MessageContent) (*Completion, error) {
	return c.CompleteTrim(ctx, messages, c.trim)
}

// CompleteTrim is Complete with a trimmer for this call only. A nil trim
// uses the client's trimmer.
func (c *Client) CompleteTrim(ctx context.Context, messages []llms.MessageContent, trim TrimFunc) (*Completion, error) {
	if trim == nil {
		trim = c.trim
	}
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	maxAttempts := c.retry.attempts()
	result := &Completion{}
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; {
		result.Attempts++
		text, err := c.generate(ctx, messages, opts)
		if err == nil {
			result.Text = text
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, &CallError{Type: ErrorCanceled, Attempts: result.Attempts, Err: ctx.Err()}
		}

		errType := ClassifyError(err)
		switch {
		case errType == ErrorContext:
			trimmed, ok := trim(messages)
			if !ok {
				return nil, &CallError{Type: errType, Attempts: result.Attempts, Err: err}
			}
			result.Trimmed += len(messages) - len(trimmed)
			messages = trimmed
			c.logger.Warn("prompt exceeds context window, dropped earliest exemplar",
				zap.String("model", c.modelName), zap.Int("messages", len(messages)))
			continue
		case !c.retry.Retryable(errType):
			return nil, &CallError{Type: errType, Attempts: result.Attempts, Err: err}
		}

		if attempt == maxAttempts {
			break
		}
		delay := c.retry.Delay(attempt)
		c.logger.Warn("LLM call failed, retrying",
			zap.String("model", c.modelName),
			zap.String("type", string(errType)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &CallError{Type: ErrorCanceled, Attempts: result.Attempts, Err: err}
		}
		attempt++
	}

	return nil, &CallError{Type: ClassifyError(lastErr), Attempts: result.Attempts, Err: lastErr}
}

// Ask sends a single human message.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	res, err := c.Complete(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (c *Client) generate(ctx context.Context, messages []llms.MessageContent, opts []llms.CallOption) (string, error) {
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// ModelName returns the configured model name.
func (c *Client) ModelName() string { return c.modelName }
