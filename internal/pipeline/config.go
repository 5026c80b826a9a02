// Package pipeline annotates dataset records with evidence: it builds the
// schema context of each record's database, retrieves exemplars, prompts
// the model and checkpoints every finished record.
package pipeline

import (
	"fmt"

	"evidencegen/internal/dataset"
	"evidencegen/internal/description"
	"evidencegen/internal/prompt"
)

// MergeMode selects how descriptions are attached to column lines.
type MergeMode string

const (
	MergeKeyed      MergeMode = "keyed"
	MergePositional MergeMode = "positional"
)

// Config controls a run.
type Config struct {
	DBRoot      string // databases of the records being annotated
	TrainDBRoot string // databases of the exemplar pool

	Style       prompt.Style
	TopK        int  // exemplar blocks
	TopN        int  // extra same-database pairs per block (diverse only)
	Diverse     bool // one block per distinct database
	UseMasked   bool // retrieve with masked_question when present
	AnswerTurns bool

	TargetSampleLimit   int
	ExemplarSampleLimit int
	MaxPromptTokens     int // 0 disables the budget

	ModelTarget string // "codes" also rewrites the text field
	TextMode    dataset.TextMode

	MergeMode    MergeMode
	CacheSchemas bool
}

// DefaultConfig returns the settings of a standard run.
func DefaultConfig() Config {
	return Config{
		Style:               prompt.StyleJSON,
		TopK:                5,
		TopN:                4,
		Diverse:             true,
		TargetSampleLimit:   description.DefaultTargetSamples,
		ExemplarSampleLimit: description.DefaultExemplarSamples,
		ModelTarget:         dataset.TargetCodes,
		TextMode:            dataset.TextEvidenceQuestion,
		MergeMode:           MergeKeyed,
		CacheSchemas:        true,
	}
}

// Validate checks values that would otherwise fail per record.
func (c Config) Validate() error {
	if c.DBRoot == "" {
		return fmt.Errorf("database root is required")
	}
	if _, err := prompt.ParseStyle(string(c.Style)); err != nil {
		return err
	}
	switch c.MergeMode {
	case "", MergeKeyed, MergePositional:
	default:
		return fmt.Errorf("unknown merge mode %q (want keyed or positional)", c.MergeMode)
	}
	if c.TopK < 0 || c.TopN < 0 {
		return fmt.Errorf("top_k and top_n must not be negative")
	}
	return nil
}
