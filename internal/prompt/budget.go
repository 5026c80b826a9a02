package prompt

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
)

// perMessageOverhead approximates the role and separator tokens the chat
// format adds around every message.
const perMessageOverhead = 4

// Counter counts prompt tokens with cl100k_base. When the encoding cannot
// be loaded it falls back to an estimate of four characters per token.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter loads cl100k_base (GPT-4 / GPT-4o-mini family).
func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Exact reports whether the tokenizer loaded.
func (c *Counter) Exact() bool { return c != nil && c.enc != nil }

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if c.Exact() {
		return len(c.enc.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Messages returns the token count of a chat prompt.
func (c *Counter) Messages(msgs []llms.MessageContent) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		for _, part := range m.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				total += c.Count(tc.Text)
			}
		}
	}
	return total
}

// Fit drops the earliest exemplars until the rendered prompt is within
// maxTokens or no exemplar is left. maxTokens <= 0 disables the budget.
// It returns the rendered messages and their token count.
func (p *Prompt) Fit(c *Counter, maxTokens int) ([]llms.MessageContent, int, error) {
	for {
		msgs, err := p.Messages()
		if err != nil {
			return nil, 0, err
		}
		n := c.Messages(msgs)
		if maxTokens <= 0 || n <= maxTokens || !p.DropEarliest() {
			return msgs, n, nil
		}
	}
}
