package masking

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"evidencegen/internal/extract"
	"evidencegen/internal/llm"
)

const keywordEraseText = `### Objective: Analyze the given question to identify and erase schemas and value samples. 
These elements are crucial for comparing the structure of sentences.

### Instructions:
1. Read the question carefully and understand the structure of question.
2. Read the list of schema_list:
  Read schema_list carefully and search for the schema names in the schema_list are included in the question. 
  The schema names may not necessarily be the same, so find schema names that are semantically similar.
3. Read the list of value_list:
  Perform the same task as number 2 for value_list
4. Erase schemas and value samples: 
  Change the schema name to "<schema>".
  Change the value sample to "<value>".
5 - Answer in json format. Format instructions: "reasoning", "masked_question".

### Task:
  question: {{.Question}}
  schema_list: {{list .Schema}}
  value_list: {{list .Values}}

### Let's think step by step.

`

var keywordEraseTmpl = template.Must(template.New("keyword_erase").Funcs(template.FuncMap{
	"list": func(items []string) string {
		quoted := make([]string, len(items))
		for i, s := range items {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	},
}).Parse(keywordEraseText))

// LLMMasker asks the model to replace schema names and values.
type LLMMasker struct {
	client *llm.Client
}

// NewLLMMasker creates a masker on client.
func NewLLMMasker(client *llm.Client) *LLMMasker {
	return &LLMMasker{client: client}
}

// ErasePrompt renders the keyword-erase prompt.
func ErasePrompt(question string, refs References) (string, error) {
	var sb strings.Builder
	err := keywordEraseTmpl.Execute(&sb, struct {
		Question string
		Schema   []string
		Values   []string
	}{question, refs.Schema, refs.Values})
	return sb.String(), err
}

// MaskQuestion returns the model's masked_question. A response without one
// yields the question unchanged.
func (m *LLMMasker) MaskQuestion(ctx context.Context, question string, refs References) (string, error) {
	prompt, err := ErasePrompt(question, refs)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Ask(ctx, prompt)
	if err != nil {
		return "", err
	}
	masked := extract.Field(resp, "masked_question")
	if extract.IsSentinel(masked) || strings.TrimSpace(masked) == "" {
		return question, nil
	}
	return masked, nil
}
