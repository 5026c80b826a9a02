package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"evidencegen/internal/llm/llmtest"
)

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func messages(n int) []llms.MessageContent {
	out := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, "sys")}
	for i := 1; i < n; i++ {
		out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, string(rune('a'+i))))
	}
	return out
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ""},
		{errors.New("API returned unexpected status code: 429: Rate limit reached"), ErrorRate},
		{errors.New("You exceeded your current quota (insufficient_quota)"), ErrorQuota},
		{errors.New("status code: 401: Incorrect API key provided"), ErrorAuth},
		{errors.New("This model's maximum context length is 128000 tokens"), ErrorContext},
		{errors.New("status code: 503: service unavailable"), ErrorTransient},
		{errors.New("status code: 400: invalid request"), ErrorPermanent},
		{context.DeadlineExceeded, ErrorTransient},
		{context.Canceled, ErrorCanceled},
		{ErrEmptyResponse, ErrorTransient},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(tt.err), "%v", tt.err)
	}
}

func TestRetryPolicyDelayIsCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(10))
	assert.True(t, p.Retryable(ErrorRate))
	assert.False(t, p.Retryable(ErrorAuth))
}

func TestCompleteRetriesTransient(t *testing.T) {
	model := &llmtest.FakeModel{Replies: []llmtest.Reply{
		{Err: errors.New("429 too many requests")},
		{Err: errors.New("503 unavailable")},
		{Text: `{"evidence": "ok"}`},
	}}
	var delays []time.Duration
	c := NewClient(model, WithSleep(noSleep(&delays)))

	res, err := c.Complete(context.Background(), messages(2))
	require.NoError(t, err)
	assert.Equal(t, `{"evidence": "ok"}`, res.Text)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, delays)
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	model := &llmtest.FakeModel{Fallback: llmtest.Reply{Err: errors.New("503 unavailable")}}
	var delays []time.Duration
	c := NewClient(model, WithSleep(noSleep(&delays)),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}))

	_, err := c.Complete(context.Background(), messages(2))
	var callErr *CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, ErrorTransient, callErr.Type)
	assert.Equal(t, 3, callErr.Attempts)
	assert.Len(t, delays, 2)
	assert.False(t, IsFatal(err))
}

func TestCompleteAuthIsFatal(t *testing.T) {
	model := &llmtest.FakeModel{Fallback: llmtest.Reply{Err: errors.New("401 unauthorized")}}
	var delays []time.Duration
	c := NewClient(model, WithSleep(noSleep(&delays)))

	_, err := c.Complete(context.Background(), messages(2))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, model.CallCount())
	assert.Empty(t, delays)
}

func TestCompleteTrimsOnContextLength(t *testing.T) {
	model := &llmtest.FakeModel{
		Respond: func(msgs []llms.MessageContent) llmtest.Reply {
			if len(msgs) > 2 {
				return llmtest.Reply{Err: errors.New("maximum context length exceeded")}
			}
			return llmtest.Reply{Text: "fits"}
		},
	}
	c := NewClient(model, WithRetryPolicy(RetryPolicy{MaxAttempts: 1}))

	res, err := c.Complete(context.Background(), messages(4))
	require.NoError(t, err)
	assert.Equal(t, "fits", res.Text)
	assert.Equal(t, 2, res.Trimmed)

	calls := model.Calls
	require.Len(t, calls, 3)
	assert.Equal(t, "d", llmtest.Text(calls[2][1]))
}

func TestCompleteTrimUsesCallTrimmer(t *testing.T) {
	model := &llmtest.FakeModel{
		Respond: func(msgs []llms.MessageContent) llmtest.Reply {
			if len(msgs) > 1 {
				return llmtest.Reply{Err: errors.New("This model's maximum context length is 8192 tokens")}
			}
			return llmtest.Reply{Text: "ok"}
		},
	}
	c := NewClient(model)

	keepLast := func(msgs []llms.MessageContent) ([]llms.MessageContent, bool) {
		if len(msgs) <= 1 {
			return msgs, false
		}
		return msgs[len(msgs)-1:], true
	}
	res, err := c.CompleteTrim(context.Background(), messages(3), keepLast)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Trimmed)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "c", llmtest.Text(model.Calls[1][0]))
}

func TestCompleteContextLengthWithNothingToTrim(t *testing.T) {
	model := &llmtest.FakeModel{Fallback: llmtest.Reply{Err: errors.New("context_length_exceeded")}}
	c := NewClient(model)

	_, err := c.Complete(context.Background(), messages(2))
	var callErr *CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, ErrorContext, callErr.Type)
}

func TestCompleteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(llmtest.NewFakeModel("x"))

	_, err := c.Complete(ctx, messages(2))
	assert.True(t, IsFatal(err))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "default_model": "gpt-4o-mini",
  "models": {
    "gpt-4o-mini": {"model_name": "gpt-4o-mini", "token": "sk-test", "base_url": "https://api.openai.com/v1", "json_mode": true}
  },
  "embedding": {"provider": "ollama", "model": "all-minilm"},
  "retry": {"max_attempts": 3, "base_delay": "1s"}
}`), 0o644))

	t.Setenv("EVIDENCE_EMBEDDING_CONCURRENCY", "2")
	cfg, err := Load(path)
	require.NoError(t, err)

	m := cfg.Model("")
	assert.Equal(t, "gpt-4o-mini", m.ModelName)
	assert.Equal(t, "sk-test", m.Token)
	assert.True(t, m.JSONMode)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.Equal(t, 2, cfg.Embedding.Concurrency)

	p := cfg.Retry.Policy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 60*time.Second, p.MaxDelay)

	assert.Equal(t, "gpt-4o", cfg.Model("gpt-4o").ModelName)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestCreateLLMRequiresToken(t *testing.T) {
	_, err := CreateLLM(ModelConfig{ModelName: "gpt-4o-mini"})
	require.Error(t, err)
}
