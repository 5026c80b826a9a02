// Package llmtest provides a scripted llms.Model for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Reply is one scripted outcome.
type Reply struct {
	Text string
	Err  error
}

// FakeModel returns scripted replies in order, then repeats Fallback.
// Respond, when set, takes precedence and computes the reply from the prompt.
type FakeModel struct {
	mu       sync.Mutex
	Replies  []Reply
	Fallback Reply
	Respond  func(messages []llms.MessageContent) Reply
	Calls    [][]llms.MessageContent
}

// NewFakeModel creates a model that answers with texts in order.
func NewFakeModel(texts ...string) *FakeModel {
	m := &FakeModel{}
	for _, t := range texts {
		m.Replies = append(m.Replies, Reply{Text: t})
	}
	if len(texts) > 0 {
		m.Fallback = Reply{Text: texts[len(texts)-1]}
	} else {
		m.Fallback = Reply{Err: errors.New("no scripted reply")}
	}
	return m
}

// GenerateContent implements llms.Model.
func (m *FakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	copied := append([]llms.MessageContent(nil), messages...)
	m.Calls = append(m.Calls, copied)
	var reply Reply
	switch {
	case m.Respond != nil:
		reply = m.Respond(copied)
	case len(m.Replies) > 0:
		reply = m.Replies[0]
		m.Replies = m.Replies[1:]
	default:
		reply = m.Fallback
	}
	m.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply.Text}}}, nil
}

// Call implements llms.Model.
func (m *FakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// CallCount returns the number of GenerateContent calls.
func (m *FakeModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Text concatenates the text parts of a message.
func Text(msg llms.MessageContent) string {
	var s string
	for _, p := range msg.Parts {
		if tc, ok := p.(llms.TextContent); ok {
			s += tc.Text
		}
	}
	return s
}
