// Package prompt assembles annotation prompts from a target schema and
// question plus retrieved exemplars.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/tmc/langchaingo/llms"
)

// Style selects the instruction preamble and answer format.
type Style string

const (
	// StyleDirect is a one-shot instruction with a plain-text answer.
	StyleDirect Style = "direct"
	// StyleStepwise is a read/analyze/generate instruction with a plain-text answer.
	StyleStepwise Style = "stepwise"
	// StyleJSON is a system instruction asking for {"reasoning", "evidence"}.
	StyleJSON Style = "json"
)

// ParseStyle validates a style name.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(s)) {
	case StyleDirect:
		return StyleDirect, nil
	case StyleStepwise:
		return StyleStepwise, nil
	case StyleJSON, "":
		return StyleJSON, nil
	default:
		return "", fmt.Errorf("unknown prompt style %q (want direct, stepwise or json)", s)
	}
}

// JSONAnswer reports whether responses of this style are JSON objects.
func (s Style) JSONAnswer() bool { return s == StyleJSON }

// QA is a question/evidence pair.
type QA struct {
	Question string
	Evidence string
}

// Exemplar is one block: a schema and its pairs, anchor first.
type Exemplar struct {
	DBID   string
	Schema string
	Pairs  []QA
}

// Target is the record under annotation.
type Target struct {
	Schema   string
	Question string
}

// Prompt holds everything needed to render messages and can shed exemplars
// when the model's context window is exceeded.
type Prompt struct {
	Style     Style
	Target    Target
	Exemplars []Exemplar

	// AnswerTurns moves each anchor's evidence into a simulated assistant
	// turn after its exemplar block (json style only).
	AnswerTurns bool

	dropped int
}

// New creates a prompt.
func New(style Style, target Target, exemplars []Exemplar) *Prompt {
	return &Prompt{Style: style, Target: target, Exemplars: exemplars}
}

// Dropped returns how many exemplars were removed.
func (p *Prompt) Dropped() int { return p.dropped }

// DropEarliest removes the first exemplar. It returns false when none is left.
func (p *Prompt) DropEarliest() bool {
	if len(p.Exemplars) == 0 {
		return false
	}
	p.Exemplars = p.Exemplars[1:]
	p.dropped++
	return true
}

// Trimmer adapts DropEarliest to the client's context-length hook.
func (p *Prompt) Trimmer() func([]llms.MessageContent) ([]llms.MessageContent, bool) {
	return func(msgs []llms.MessageContent) ([]llms.MessageContent, bool) {
		if !p.DropEarliest() {
			return msgs, false
		}
		out, err := p.Messages()
		if err != nil {
			return msgs, false
		}
		return out, true
	}
}

// Messages renders the prompt. The json style yields a system message, one
// human message per exemplar (each optionally followed by an AI turn) and a
// final human target message. Other styles yield a single human message.
func (p *Prompt) Messages() ([]llms.MessageContent, error) {
	switch p.Style {
	case StyleJSON, "":
		return p.jsonMessages()
	case StyleStepwise:
		text, err := p.single(stepwiseHeader, stepwiseTargetTmpl)
		if err != nil {
			return nil, err
		}
		return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, text)}, nil
	case StyleDirect:
		text, err := p.single(directHeader, directTargetTmpl)
		if err != nil {
			return nil, err
		}
		return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, text)}, nil
	default:
		return nil, fmt.Errorf("unknown prompt style %q", p.Style)
	}
}

func (p *Prompt) jsonMessages() ([]llms.MessageContent, error) {
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, jsonSystemPrompt)}

	for i, ex := range p.Exemplars {
		pairs := ex.Pairs
		if p.AnswerTurns && len(pairs) > 0 {
			pairs = append([]QA{{Question: pairs[0].Question}}, pairs[1:]...)
		}
		block, err := renderExemplar("few-shot sample", i+1, ex.Schema, pairs)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, block))

		if p.AnswerTurns && len(ex.Pairs) > 0 {
			answer, err := json.Marshal(struct {
				Evidence string `json:"evidence"`
			}{ex.Pairs[0].Evidence})
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeAI, string(answer)))
		}
	}

	target, err := render(jsonTargetTmpl, p.Target)
	if err != nil {
		return nil, err
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, target)), nil
}

func (p *Prompt) single(header string, targetTmpl *template.Template) (string, error) {
	var sb strings.Builder
	sb.WriteString(header)
	for i, ex := range p.Exemplars {
		block, err := renderExemplar("sample", i+1, ex.Schema, ex.Pairs)
		if err != nil {
			return "", err
		}
		sb.WriteString(block)
	}
	target, err := render(targetTmpl, p.Target)
	if err != nil {
		return "", err
	}
	sb.WriteString(target)
	return sb.String(), nil
}

func renderExemplar(heading string, number int, schema string, pairs []QA) (string, error) {
	return render(exemplarTmpl, struct {
		Heading string
		Number  int
		Schema  string
		Pairs   []QA
	}{heading, number, strings.TrimRight(schema, "\n"), pairs})
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// Text joins all message parts, for transcripts and token counting.
func Text(msgs []llms.MessageContent) string {
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s]\n", m.Role)
		for _, part := range m.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
