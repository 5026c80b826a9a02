// Package masking rewrites questions so that schema names and database
// values are replaced by placeholder tokens before retrieval.
package masking

import (
	"context"
	"regexp"
	"strings"

	"github.com/xrash/smetrics"
)

const (
	// SchemaMask replaces table and column names.
	SchemaMask = "<schema>"
	// ValueMask replaces database values.
	ValueMask = "<value>"

	// DefaultThreshold is the Jaro-Winkler similarity at which a word is masked.
	DefaultThreshold = 0.9
)

// DefaultStopwords are never masked.
var DefaultStopwords = []string{
	"what", "how", "when", "which", "where",
	"in", "the", "for", "that",
	"is", "are",
	"min", "max", "count", "sum", "average",
}

// Masker rewrites one question given its database's references.
type Masker interface {
	MaskQuestion(ctx context.Context, question string, refs References) (string, error)
}

// FuzzyMasker masks whitespace tokens that are close to any reference word.
type FuzzyMasker struct {
	Threshold float64
	stopwords map[string]bool
}

// NewFuzzyMasker creates a masker with the default threshold and stopwords.
func NewFuzzyMasker() *FuzzyMasker {
	m := &FuzzyMasker{Threshold: DefaultThreshold, stopwords: make(map[string]bool)}
	for _, w := range DefaultStopwords {
		m.stopwords[w] = true
	}
	return m
}

// Similar reports whether two words are at least threshold apart in
// lower-cased Jaro-Winkler similarity (boost 0.7, prefix 4).
func Similar(a, b string, threshold float64) bool {
	return smetrics.JaroWinkler(strings.ToLower(a), strings.ToLower(b), 0.7, 4) >= threshold
}

// Mask replaces every non-stopword token similar to a word of refs with
// mask, then collapses runs of masks into one.
func (m *FuzzyMasker) Mask(question string, refs []string, mask string) string {
	refWords := uniqueWords(refs)
	tokens := strings.Fields(question)

	for i, tok := range tokens {
		if m.stopwords[strings.ToLower(tok)] {
			continue
		}
		for _, w := range refWords {
			if Similar(tok, w, m.Threshold) {
				tokens[i] = mask
				break
			}
		}
	}
	return collapse(strings.Join(tokens, " "), mask)
}

// MaskQuestion masks schema names first, then values.
func (m *FuzzyMasker) MaskQuestion(_ context.Context, question string, refs References) (string, error) {
	masked := m.Mask(question, refs.Schema, SchemaMask)
	return m.Mask(masked, refs.Values, ValueMask), nil
}

func uniqueWords(refs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range refs {
		for _, w := range strings.Fields(r) {
			lw := strings.ToLower(w)
			if !seen[lw] {
				seen[lw] = true
				out = append(out, lw)
			}
		}
	}
	return out
}

func collapse(s, mask string) string {
	q := regexp.QuoteMeta(mask)
	re := regexp.MustCompile("(" + q + ")(\\s+" + q + ")+")
	return re.ReplaceAllString(s, "$1")
}
